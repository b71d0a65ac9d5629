package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	Invalid      Kind = "invalid"
	Unauthorized Kind = "unauthorized"
	Forbidden    Kind = "forbidden"
	NotFound     Kind = "not_found"
	Conflict     Kind = "conflict"
	Upstream     Kind = "upstream"
	Timeout      Kind = "timeout"
	Internal     Kind = "internal"
)

const genericMsg = "Internal server error"

// AppError carries a message that is safe to show to the caller next to
// the internal cause that only goes to the log.
type AppError struct {
	Kind      Kind
	PublicMsg string
	Field     string // offending input field for Invalid
	Err       error
}

func (e *AppError) Error() string {
	msg := e.PublicMsg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *AppError) Unwrap() error { return e.Err }

func InvalidField(field, msg string) *AppError {
	return &AppError{Kind: Invalid, PublicMsg: msg, Field: field}
}
func InvalidErr(msg string) *AppError      { return &AppError{Kind: Invalid, PublicMsg: msg} }
func UnauthorizedErr(msg string) *AppError { return &AppError{Kind: Unauthorized, PublicMsg: msg} }
func ForbiddenErr(msg string) *AppError    { return &AppError{Kind: Forbidden, PublicMsg: msg} }
func NotFoundErr(msg string) *AppError     { return &AppError{Kind: NotFound, PublicMsg: msg} }
func ConflictErr(msg string) *AppError     { return &AppError{Kind: Conflict, PublicMsg: msg} }

// UpstreamErr passes a payment provider's own message through to the caller.
func UpstreamErr(msg string, err error) *AppError {
	return &AppError{Kind: Upstream, PublicMsg: msg, Err: err}
}

func TimeoutErr(msg string, err error) *AppError {
	return &AppError{Kind: Timeout, PublicMsg: msg, Err: err}
}

// Wrap hides err behind a generic message.
func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Kind: Internal, PublicMsg: genericMsg, Err: err}
}

func As(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

func Is(err error, kind Kind) bool {
	ae, ok := As(err)
	return ok && ae.Kind == kind
}

func HTTPStatus(err error) int {
	ae, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch ae.Kind {
	case Invalid:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case Upstream:
		return http.StatusBadGateway
	case Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func PublicMessage(err error) string {
	if ae, ok := As(err); ok && ae.PublicMsg != "" && ae.Kind != Internal {
		return ae.PublicMsg
	}
	return genericMsg
}
