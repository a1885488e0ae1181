package domainerrors

import "errors"

// Code classifies a consent lifecycle failure independently of any transport.
type Code string

const (
	CodeNotFound     Code = "not_found"
	CodeInvalidInput Code = "invalid_input"
	CodeValidation   Code = "validation_failed"
	CodeInternal     Code = "internal_error"
	CodeConflict     Code = "conflict"

	// Returned to callers unmodified; each one tells the TPP what to do next.
	CodeAuthorisationExpired Code = "authorisation_expired" // the SCA flow is past its expiry
	CodeRedirectExpired      Code = "redirect_url_expired"  // redirect window closed, authorisation already FAILED
	CodeWrongChecksum        Code = "wrong_checksum"        // stale snapshot, reload and retry
)

// Error carries a stable Code, a human message and the underlying cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by code, so errors.Is(err, &Error{Code: c}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches code and msg to err. A code already present in the chain wins,
// so an error is classified once, at the layer that understood it.
func Wrap(err error, code Code, msg string) error {
	if existing := CodeOf(err); existing != "" {
		code = existing
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the outermost domain code in err's chain, or "" if none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
