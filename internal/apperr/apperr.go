// Package apperr classifies failures into the three user-visible kinds the
// CLI and HTTP surfaces report: bad input data, bad configuration, and
// internal invariant violations.
package apperr

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

// Kind identifies the class of a failure.
type Kind int

const (
	// KindUnknown is reported for errors that carry no classification.
	KindUnknown Kind = iota
	// KindInput marks unreadable, inconsistent or otherwise unusable raster data.
	KindInput
	// KindConfig marks invalid hyperparameters, weights or missing settings.
	KindConfig
	// KindInternal marks broken invariants; these are bugs, never user mistakes.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindConfig:
		return "config"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error attaches a Kind to an underlying error.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Input returns a KindInput error with a formatted message.
func Input(format string, args ...any) error {
	return &Error{Kind: KindInput, Err: eris.Errorf(format, args...)}
}

// Config returns a KindConfig error with a formatted message.
func Config(format string, args ...any) error {
	return &Error{Kind: KindConfig, Err: eris.Errorf(format, args...)}
}

// Internal returns a KindInternal error with a formatted message.
func Internal(format string, args ...any) error {
	return &Error{Kind: KindInternal, Err: eris.Errorf(format, args...)}
}

// WrapInput classifies err as an input error, adding context.
func WrapInput(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindInput, Err: eris.Wrap(err, msg)}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Describe renders err prefixed with its kind, for CLI output.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%s error: %v", KindOf(err), err)
}
