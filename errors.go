package jp2view

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration     = errors.New("jp2view: configuration rejected")
	ErrHeader            = errors.New("jp2view: header error")
	ErrDecode            = errors.New("jp2view: decode failed")
	ErrAssembly          = errors.New("jp2view: assembly error")
	ErrInvalidState      = errors.New("jp2view: invalid session state")
	ErrEngineUnavailable = errors.New("jp2view: decoding engine unavailable")
	ErrInvalidMarker     = errors.New("jp2view: invalid marker")
	ErrInvalidHeader     = errors.New("jp2view: invalid header")
	ErrTruncatedData     = errors.New("jp2view: truncated data")
	ErrUnsupportedFormat = errors.New("jp2view: unsupported format")
	ErrImageTooLarge     = errors.New("jp2view: image too large")
)

// Kind classifies a decode failure.
type Kind int

const (
	KindConfiguration Kind = iota + 1
	KindHeader
	KindDecode
	KindAssembly
	KindInvalidState
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "ConfigurationError"
	case KindHeader:
		return "HeaderError"
	case KindDecode:
		return "DecodeError"
	case KindAssembly:
		return "AssemblyError"
	case KindInvalidState:
		return "InvalidState"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindConfiguration:
		return ErrConfiguration
	case KindHeader:
		return ErrHeader
	case KindDecode:
		return ErrDecode
	case KindAssembly:
		return ErrAssembly
	case KindInvalidState:
		return ErrInvalidState
	default:
		return nil
	}
}

// Error is the structured failure returned by every session operation.
// It records which phase failed and the most recent diagnostics observed
// before the failure.
type Error struct {
	Kind        Kind
	Phase       Phase
	Err         error
	Diagnostics []Event
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "jp2view: %s during %s", e.Kind, e.Phase)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if n := len(e.Diagnostics); n > 0 {
		fmt.Fprintf(&b, " (last diagnostic: %s)", e.Diagnostics[n-1])
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind, so callers can
// write errors.Is(err, jp2view.ErrHeader).
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

func newError(kind Kind, phase Phase, err error, diags []Event) *Error {
	return &Error{Kind: kind, Phase: phase, Err: err, Diagnostics: diags}
}

// KindOf returns the Kind of err, or 0 if err is not a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
