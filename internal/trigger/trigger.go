// internal/trigger/trigger.go
// Package trigger produces the daemon's background events: cron schedules
// for maintenance jobs and a file watcher for config reloads.
package trigger

import (
	"context"
	"time"
)

// Event types
const (
	TypeScheduled    = "scheduled"
	TypeFileModified = "file_modified"
)

// Event represents a trigger event
type Event struct {
	Name      string
	Type      string
	Timestamp time.Time
	// Path is the changed file for TypeFileModified events.
	Path string
}

// Trigger is the interface all triggers must implement
type Trigger interface {
	// Start begins watching for events, sending them to the channel
	Start(ctx context.Context, events chan<- Event) error
	// Stop stops the trigger
	Stop() error
	// Name returns the job this trigger drives
	Name() string
}

// send delivers ev unless ctx ends first.
func send(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
