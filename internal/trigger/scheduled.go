// internal/trigger/scheduled.go
package trigger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// scheduleParser accepts five or six field cron expressions and descriptors
// such as "@daily" or "@every 15m".
var scheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule validates a schedule expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := scheduleParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return sched, nil
}

// Scheduled fires events on a cron schedule
type Scheduled struct {
	name string
	cron *cron.Cron

	mu     sync.Mutex
	ctx    context.Context
	events chan<- Event
}

// NewScheduled creates a new scheduled trigger
func NewScheduled(name, expr string) (*Scheduled, error) {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}

	s := &Scheduled{
		name: name,
		cron: cron.New(cron.WithParser(scheduleParser)),
	}
	s.cron.Schedule(sched, cron.FuncJob(s.fire))
	return s, nil
}

func (s *Scheduled) Name() string {
	return s.name
}

func (s *Scheduled) Start(ctx context.Context, events chan<- Event) error {
	s.mu.Lock()
	s.ctx, s.events = ctx, events
	s.mu.Unlock()

	s.cron.Start()
	<-ctx.Done()
	return ctx.Err()
}

func (s *Scheduled) Stop() error {
	<-s.cron.Stop().Done()
	return nil
}

// Next reports when the trigger fires next, or the zero time if not started.
func (s *Scheduled) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduled) fire() {
	s.mu.Lock()
	ctx, events := s.ctx, s.events
	s.mu.Unlock()
	if events == nil {
		return
	}
	send(ctx, events, Event{
		Name:      s.name,
		Type:      TypeScheduled,
		Timestamp: time.Now(),
	})
}
