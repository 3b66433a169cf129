package attendance

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrValidation  = errors.New("validation error")
	ErrNotFound    = errors.New("not found")
	ErrInvalidTime = errors.New("invalid time format")
	ErrConflict    = errors.New("conflict")
)

// Error carries a client-facing message together with its kind.
type Error struct {
	Kind  error
	Field string
	Msg   string
}

func (e *Error) Error() string {
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func validationError(msg string) error {
	return &Error{Kind: ErrValidation, Msg: msg}
}

func notFound(what string) error {
	return &Error{Kind: ErrNotFound, Msg: what + " not found"}
}

func conflict(field, msg string) error {
	return &Error{Kind: ErrConflict, Field: field, Msg: msg}
}

func invalidTime(raw string) error {
	return &Error{Kind: ErrInvalidTime, Field: "time", Msg: fmt.Sprintf("invalid time format: %s", raw)}
}
