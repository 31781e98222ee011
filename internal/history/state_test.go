// internal/history/state_test.go
package history

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/colebrumley/zplot/internal/executor"
	"github.com/colebrumley/zplot/internal/visualizer"
)

func TestStateOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"success", nil, StateSuccess},
		{"invalid", &visualizer.Error{Kind: visualizer.KindInvalidExpression, Err: errors.New("bad")}, StateInvalid},
		{"rendering", &visualizer.Error{Kind: visualizer.KindRendering, Err: errors.New("unsafe")}, StateFailure},
		{"timeout", &visualizer.Error{Kind: visualizer.KindRendering, Err: executor.ErrTimeout}, StateTimeout},
		{"deadline", fmt.Errorf("wrapped: %w", context.DeadlineExceeded), StateTimeout},
		{"other", errors.New("disk full"), StateFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StateOf(tt.err); got != tt.want {
				t.Errorf("StateOf() = %s, want %s", got, tt.want)
			}
		})
	}
}
