// internal/history/state.go
package history

import "github.com/colebrumley/zplot/internal/visualizer"

// StateOf maps a visualizer result to a history state.
func StateOf(err error) string {
	if err == nil {
		return StateSuccess
	}
	if visualizer.IsTimeout(err) {
		return StateTimeout
	}
	if kind, ok := visualizer.KindOf(err); ok && kind == visualizer.KindInvalidExpression {
		return StateInvalid
	}
	return StateFailure
}
