package engine

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds surfaced by the engine. Callers match them with errors.Is.
var (
	// ErrNotFound reports an unknown property name or an output queried
	// before a successful Infer.
	ErrNotFound = errors.New("not found")

	// ErrNotImplemented reports an attempt to mutate the frozen configuration
	// of a compiled model.
	ErrNotImplemented = errors.New("not implemented")

	// ErrInvalidState reports an illegal state-machine transition on an
	// asynchronous request.
	ErrInvalidState = errors.New("invalid request state")

	// ErrCancelled is returned by Wait when the request was cancelled.
	ErrCancelled = errors.New("inference cancelled")

	// ErrTimedOut is returned by WaitFor when the deadline expires before the
	// request reaches a terminal state. The request keeps running.
	ErrTimedOut = errors.New("wait timed out")

	// ErrShapeMismatch and ErrTypeMismatch report input binding validation
	// failures. They are recoverable: rebind a correct tensor and retry.
	ErrShapeMismatch = errors.New("shape mismatch")
	ErrTypeMismatch  = errors.New("dtype mismatch")

	// ErrExecution reports a failure during Infer.
	ErrExecution = errors.New("execution failed")

	// ErrIO reports a failure writing an exported artifact to its sink.
	ErrIO = errors.New("i/o failed")

	// ErrDeserialization reports a broken exported artifact: framing
	// violations, truncated streams or corrupt section lengths.
	ErrDeserialization = errors.New("deserialization failed")

	// ErrCompilation is the single failure kind of Compile. Every underlying
	// cause -- transformer failures, invalid graphs, panics from called
	// libraries -- is normalized into it; the cause stays reachable through
	// errors.Unwrap for diagnostics.
	ErrCompilation = errors.New("compilation failed")
)

// compilationError attaches the underlying cause to ErrCompilation.
type compilationError struct {
	msg   string
	cause error
}

func newCompilationError(cause error, format string, args ...any) error {
	return &compilationError{msg: fmt.Sprintf(format, args...), cause: cause}
}

func (e *compilationError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%s: %s", ErrCompilation, e.msg)
	}
	return fmt.Sprintf("%s: %s: %v", ErrCompilation, e.msg, e.cause)
}

func (e *compilationError) Is(target error) bool { return target == ErrCompilation }

func (e *compilationError) Unwrap() error { return e.cause }
