package compose

import (
	"errors"
	"fmt"

	"github.com/gogpu/compose/driver"
)

// Errors returned by the engine. Callers test them with errors.Is.
var (
	// ErrUnsupported is returned when the device lacks a required
	// capability, or a named mode is not recognized.
	ErrUnsupported = errors.New("compose: unsupported")

	// ErrOutOfRange is returned for caller-supplied sizes, tile sizes or
	// grids of the wrong shape.
	ErrOutOfRange = errors.New("compose: out of range")

	// ErrNotReady is returned when an operation needs state that has not
	// been reached yet, such as geometry before a surface exists.
	ErrNotReady = errors.New("compose: not ready")

	// ErrSyntax is wrapped by every *SyntaxError.
	ErrSyntax = errors.New("compose: syntax error")
)

// SyntaxError reports a malformed program include directive.
type SyntaxError struct {
	File string
	Line int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("File '%s', Line %d: Syntax error.", e.File, e.Line)
}

func (e *SyntaxError) Unwrap() error { return ErrSyntax }

// IncompleteTargetError is the panic value raised when the driver reports
// a render target as incomplete after its attachments changed. It signals
// a programming error, never a runtime condition.
type IncompleteTargetError struct {
	Status driver.FramebufferStatus
	Size   string
}

func (e *IncompleteTargetError) Error() string {
	return fmt.Sprintf("compose: render target %s incomplete: %s", e.Size, e.Status)
}
