// Package errors provides error wrapping utilities and the error taxonomy
// shared by every pipeline stage.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Error classes. Every fatal pipeline error wraps exactly one of these.
var (
	// ErrInput marks missing, unreadable or oversized input files.
	ErrInput = stderrors.New("input error")
	// ErrTool marks failures of an external collaborator (encoder, signer,
	// manifest builder, checksum utility).
	ErrTool = stderrors.New("external tool error")
	// ErrInvariant marks values that violate a layout invariant and must not
	// be silently coerced.
	ErrInvariant = stderrors.New("invariant violation")
)

// Wrap wraps an error with additional context information.
// If err is nil, it returns nil without wrapping.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Input returns an ErrInput error for the given path.
func Input(path string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrInput, path)
	}
	return fmt.Errorf("%w: %s: %v", ErrInput, path, err)
}

// Invariantf returns an ErrInvariant error with a formatted message.
func Invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...))
}

// ToolError reports a failed external tool invocation.
type ToolError struct {
	Tool   string
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Tool, e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *ToolError) Unwrap() []error {
	return []error{ErrTool, e.Err}
}

// Tool returns a ToolError for the named collaborator.
func Tool(tool string, err error) error {
	return &ToolError{Tool: tool, Err: err}
}

// Toolf returns a ToolError with a formatted cause.
func Toolf(tool, format string, args ...any) error {
	return &ToolError{Tool: tool, Err: fmt.Errorf(format, args...)}
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return stderrors.New(text)
}
