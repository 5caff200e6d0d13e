// Package common defines the error taxonomy shared by repositories, services
// and transports. Callers match kinds with errors.Is.
package common

import "errors"

var (
	// ErrValidation marks bad caller input. Surfaced directly, never retried.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a missing entity or an ownership mismatch.
	ErrNotFound = errors.New("not found")

	// ErrStorage marks a failed metadata or blob store operation.
	ErrStorage = errors.New("storage error")

	// ErrTranscription marks a job rejected or failed by the engine.
	ErrTranscription = errors.New("transcription failed")

	// ErrConflict marks a request that collides with in-flight work.
	ErrConflict = errors.New("conflict")

	// ErrInvalidToken is returned for malformed or wrongly signed bearer tokens.
	ErrInvalidToken = errors.New("invalid token")

	ErrTokenExpired = errors.New("token expired")
)

// Error pairs a taxonomy kind with a stable, user-facing message and the
// underlying cause, if any.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return e.Kind.Error()
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func Validation(msg string) error {
	return &Error{Kind: ErrValidation, Msg: msg}
}

func NotFound(msg string) error {
	return &Error{Kind: ErrNotFound, Msg: msg}
}

func Conflict(msg string) error {
	return &Error{Kind: ErrConflict, Msg: msg}
}

// Storage wraps a store failure. The message is what callers may show; the
// cause stays available for logging.
func Storage(msg string, err error) error {
	return &Error{Kind: ErrStorage, Msg: msg, Err: err}
}

func (e *Error) Message() string {
	return e.Error()
}

// Messager is an error that carries a caller-facing message separate from
// its diagnostic text.
type Messager interface {
	error
	Message() string
}

// Message returns the user-facing message of err: that of the outermost
// Messager in the chain, or the plain error text otherwise.
func Message(err error) string {
	var m Messager
	if errors.As(err, &m) {
		return m.Message()
	}
	return err.Error()
}
