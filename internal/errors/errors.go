package errors

import "errors"

// This package defines a centralized set of sentinel errors for the application.
// Services wrap their failures in one of these categories so the API layer can
// pick a status code with `errors.Is()` without knowing where the failure came from.

var (
	// ErrValidation signifies that the request body could not be accepted.
	// This is mapped to a 422 Unprocessable Entity HTTP status.
	ErrValidation = errors.New("validation failed")

	// ErrConfiguration signifies that a required setting (such as the
	// inference API token) is missing. It is only detected on first use.
	ErrConfiguration = errors.New("configuration error")

	// ErrUpstream signifies that the inference service rejected a job or
	// reported it as failed.
	ErrUpstream = errors.New("upstream error")

	// ErrStorage signifies a failure connecting to, writing to or reading
	// from the database.
	ErrStorage = errors.New("storage error")

	// ErrInternal signifies an unexpected error on the server.
	ErrInternal = errors.New("internal server error")
)

// Error pairs a category sentinel with the message shown to the client.
type Error struct {
	Kind   error
	Detail string
	Err    error
}

// New returns an error of the given kind with a client-facing detail.
func New(kind error, detail string) error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap is like New but keeps the underlying cause for logging and errors.Is.
func Wrap(kind error, detail string, err error) error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.Error() + ": " + e.Detail + ": " + e.Err.Error()
	}
	return e.Kind.Error() + ": " + e.Detail
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// DetailOf returns the client-facing detail carried by err, if any.
func DetailOf(err error) (string, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Detail, true
	}
	return "", false
}
