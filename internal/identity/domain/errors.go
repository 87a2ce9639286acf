// Package domain holds the identity layer's error taxonomy and the values passed between
// providers, federation and the auth service.
package domain

import (
	"errors"
	"net/http"
)

// Kind classifies an authentication failure. Every collaborator error is translated into
// one of these before it reaches a client.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindConflict
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Generic client-facing messages, one per class.
const (
	MsgInvalidCredentials = "invalid username or password"
	MsgUnauthorized       = "unauthorized"
	MsgInternal           = "internal server error"
)

// AuthError is a classified failure. Message is safe to show to clients; Err carries the
// underlying cause for logs only.
type AuthError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *AuthError) Unwrap() error { return e.Err }

// HTTPStatus maps the kind to its response status.
func (e *AuthError) HTTPStatus() int {
	switch e.Kind {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func BadRequest(msg string) *AuthError { return &AuthError{Kind: KindBadRequest, Message: msg} }

func Unauthorized(msg string, cause error) *AuthError {
	return &AuthError{Kind: KindUnauthorized, Message: msg, Err: cause}
}

func Forbidden(msg string) *AuthError { return &AuthError{Kind: KindForbidden, Message: msg} }

func Conflict(msg string) *AuthError { return &AuthError{Kind: KindConflict, Message: msg} }

func NotFound(msg string) *AuthError { return &AuthError{Kind: KindNotFound, Message: msg} }

// Internal wraps cause with the generic internal message.
func Internal(cause error) *AuthError {
	return &AuthError{Kind: KindInternal, Message: MsgInternal, Err: cause}
}

// AsAuthError returns err as an *AuthError. Unclassified errors become Internal.
func AsAuthError(err error) *AuthError {
	if err == nil {
		return nil
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae
	}
	return Internal(err)
}

// IsKind reports whether err is an *AuthError of kind k.
func IsKind(err error, k Kind) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Kind == k
}
