package hub

import (
	"fmt"

	"github.com/pkg/errors"
)

// Errors returned by the codec.
var (
	// ErrInvalidFormat is the cause of every FormatError.
	ErrInvalidFormat = errors.New("invalid hub message format")
	// ErrArgumentBinding is the cause of every BindingError.
	ErrArgumentBinding = errors.New("failed to bind invocation arguments")
	// ErrUnsupportedObjectEncoding is returned by NewCodec for ArrayOfFields.
	ErrUnsupportedObjectEncoding = errors.New("unsupported object encoding")
)

// FormatError reports a structurally malformed frame. It is fatal: the
// batch being parsed is abandoned and the connection should be closed.
type FormatError struct {
	// Field names the part of the message that could not be processed.
	Field string
	Err   error
}

func newFormatError(field string, err error) *FormatError {
	return &FormatError{Field: field, Err: errors.WithStack(err)}
}

func formatErrorf(field string, format string, args ...any) *FormatError {
	return &FormatError{Field: field, Err: errors.Errorf(format, args...)}
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: reading %s: %v", ErrInvalidFormat, e.Field, e.Err)
}

func (e *FormatError) Unwrap() []error { return []error{ErrInvalidFormat, e.Err} }

// BindingError reports that an invocation's arguments could not be bound to
// the target's parameter types. It is captured in the decoded message and
// only fails that single invocation.
type BindingError struct {
	Target string
	Err    error
}

func (e *BindingError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("%s: %v", ErrArgumentBinding, e.Err)
	}
	return fmt.Sprintf("%s for %q: %v", ErrArgumentBinding, e.Target, e.Err)
}

func (e *BindingError) Unwrap() []error { return []error{ErrArgumentBinding, e.Err} }

// IsFatal reports whether err is a FormatError, which must terminate the connection.
func IsFatal(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

// IsBindingError reports whether err is a captured argument binding failure.
func IsBindingError(err error) bool {
	var be *BindingError
	return errors.As(err, &be)
}
