package social

import (
	"errors"
	"fmt"
)

// Kind classifies failures so callers can react without string matching.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindAuth         Kind = "auth"
	KindPermission   Kind = "permission"
	KindNotFound     Kind = "not_found"
	KindRateLimit    Kind = "rate_limit"
	KindProvider     Kind = "provider"
	KindNotConnected Kind = "not_connected"
)

// Error is the classified error returned by adapters and the inbox.
type Error struct {
	Kind     Kind
	Platform Platform
	Op       string
	Message  string
	Hint     string
	Status   int
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Platform != "" {
		msg = e.Platform.Title() + ": " + msg
	}
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a classified error, or KindProvider for any
// other non-nil error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindProvider
}

// IsKind reports whether err is a classified error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Validationf builds a validation error for bad user input.
func Validationf(p Platform, format string, args ...any) error {
	return &Error{Kind: KindValidation, Platform: p, Message: fmt.Sprintf(format, args...)}
}

// NotConnected builds the error returned when an operation needs a
// connected account and there is none.
func NotConnected(p Platform) error {
	return &Error{
		Kind:     KindNotConnected,
		Platform: p,
		Message:  "no connected " + p.Title() + " account found",
		Hint:     "connect an account first",
	}
}

// WithOp returns err annotated with the operation when it is a classified
// error, or wraps it as a provider error otherwise.
func WithOp(p Platform, op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		c := *e
		if c.Op == "" {
			c.Op = op
		}
		if c.Platform == "" {
			c.Platform = p
		}
		return &c
	}
	return &Error{Kind: KindProvider, Platform: p, Op: op, Err: err}
}

// Reword replaces the message and hint of a classified error of the given
// kind. Any other error is returned unchanged.
func Reword(err error, kind Kind, message, hint string) error {
	var e *Error
	if !errors.As(err, &e) || e.Kind != kind {
		return err
	}
	c := *e
	c.Message = message
	if hint != "" {
		c.Hint = hint
	}
	c.Err = err
	return &c
}

// AsError returns the classified error inside err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
