// internal/visualizer/errors.go
package visualizer

import (
	"context"
	"errors"

	"github.com/colebrumley/zplot/internal/executor"
)

// Kind classifies a visualizer failure.
type Kind int

const (
	// KindInvalidExpression covers sanitizer and parser rejections.
	KindInvalidExpression Kind = iota
	// KindRendering covers the safety probe, sampling, drawing and encoding.
	KindRendering
)

func (k Kind) String() string {
	switch k {
	case KindInvalidExpression:
		return "invalid_expression"
	case KindRendering:
		return "rendering"
	}
	return "unknown"
}

// Error is returned by every Visualizer operation.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Kind == KindRendering {
		return "error generating visualization: " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func renderingError(err error) error {
	return &Error{Kind: KindRendering, Err: err}
}

// KindOf returns the kind of a visualizer error and whether err is one.
func KindOf(err error) (Kind, bool) {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Kind, true
	}
	return 0, false
}

// IsTimeout reports whether err was caused by the render deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, executor.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
