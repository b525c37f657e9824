// Package bridgeerr is the bridge's typed error model, grounded on the
// teacher's internal/errors.CCProxyError: a single concrete error type
// carrying an HTTP status and an Anthropic-shaped JSON envelope, rather
// than a zoo of sentinel errors.
package bridgeerr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Kind enumerates the bridge's own error taxonomy (spec.md §7).
type Kind string

const (
	KindConfigError      Kind = "config_error"
	KindBadRequest       Kind = "bad_request"
	KindUpstreamTimeout  Kind = "upstream_timeout"
	KindUpstreamConnect  Kind = "upstream_connect"
	KindUpstreamStatus   Kind = "upstream_status"
	KindTranslationError Kind = "translation_error"
	KindStreamAborted    Kind = "stream_aborted"
)

// Error is the bridge's single error type. StatusCode is the HTTP
// status to answer the client with; for KindUpstreamStatus it is the
// upstream's own status code, passed through verbatim (spec.md §7.1).
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
	Field      string // populated for BadRequest validation failures
	wrapped    error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

// New builds an Error of the given kind with the kind's default status.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, StatusCode: statusFor(kind)}
}

// Newf is New with fmt.Sprintf formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap attaches an underlying cause to a new Error of the given kind.
func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, StatusCode: statusFor(kind), wrapped: err}
}

// WithField records which request field a BadRequest error concerns.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// WithStatus overrides the status code, used by KindUpstreamStatus to
// carry the upstream's own status through unchanged (spec.md §7.1 rule
// "never translate the upstream status code").
func (e *Error) WithStatus(status int) *Error {
	e.StatusCode = status
	return e
}

func statusFor(kind Kind) int {
	switch kind {
	case KindConfigError:
		return http.StatusInternalServerError // never sent over HTTP; process exits before serving (spec.md §6.4)
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUpstreamTimeout, KindUpstreamConnect:
		return http.StatusBadGateway
	case KindUpstreamStatus:
		return http.StatusBadGateway // overridden by WithStatus in practice
	case KindTranslationError:
		return http.StatusInternalServerError
	case KindStreamAborted:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// anthropicType maps a Kind to the `error.type` string an Anthropic
// client expects (spec.md §7.2).
func anthropicType(kind Kind) string {
	switch kind {
	case KindBadRequest:
		return "invalid_request_error"
	case KindUpstreamTimeout, KindUpstreamConnect, KindUpstreamStatus:
		return "api_error"
	case KindTranslationError, KindStreamAborted:
		return "api_error"
	default:
		return "api_error"
	}
}

// Body is the Anthropic-shaped {"type":"error","error":{...}} envelope.
type Body struct {
	Type  string `json:"type"`
	Error Info   `json:"error"`
}

// Info is the inner error object of Body.
type Info struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ToBody renders e as the Anthropic error envelope (spec.md §7.2).
func (e *Error) ToBody() Body {
	return Body{
		Type: "error",
		Error: Info{
			Type:    anthropicType(e.Kind),
			Message: e.Message,
		},
	}
}

// WriteGin writes e to a gin context as the Anthropic error envelope at
// its own status code.
func (e *Error) WriteGin(c *gin.Context) {
	c.JSON(e.StatusCode, e.ToBody())
}

// MarshalJSON lets an *Error be logged or serialized directly as its
// Anthropic body where convenient.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.ToBody())
}

// As reports whether err is (or wraps) a *Error and returns it.
func As(err error) (*Error, bool) {
	var target *Error
	ok := errors.As(err, &target)
	return target, ok
}
