package product

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// NotFoundPrefix decorates the upstream message of a normalized 404.
const NotFoundPrefix = "The product does not found: "

var (
	// ErrInvalidBody marks an inbound request body the gateway could not read.
	ErrInvalidBody = errors.New("invalid request body")

	// ErrInvalidResponse marks a 2xx upstream response whose body is not
	// the expected JSON.
	ErrInvalidResponse = errors.New("invalid upstream response")

	// ErrUpstreamTimeout indicates that the upstream call deadline expired.
	ErrUpstreamTimeout = errors.New("upstream request timed out")
)

// UpstreamError is a non-2xx answer from the product service.
type UpstreamError struct {
	Status      int
	Method      string
	URL         string
	ContentType string
	Body        []byte

	// Truncated is set when Body holds only the first maxErrorBody bytes.
	Truncated bool
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%d %s from %s %s", e.Status, http.StatusText(e.Status), e.Method, e.URL)
}

// Message is the upstream's own description of the failure: the message
// (or error) field of a JSON object body, else a plain-text body, else the
// status line.
func (e *UpstreamError) Message() string {
	body := strings.TrimSpace(string(e.Body))
	if body == "" {
		return e.Error()
	}

	switch body[0] {
	case '{':
		var obj map[string]any
		if err := json.Unmarshal(e.Body, &obj); err == nil {
			for _, key := range []string{"message", "error"} {
				if s, ok := obj[key].(string); ok && s != "" {
					return s
				}
			}
		}
		return e.Error()
	case '"':
		var s string
		if err := json.Unmarshal(e.Body, &s); err == nil && s != "" {
			return s
		}
		return e.Error()
	case '[':
		return e.Error()
	}
	return body
}

// FieldErrors parses the body of a 400 as a JSON array of strings. The
// result is never nil.
func (e *UpstreamError) FieldErrors() ([]string, error) {
	var list []string
	if err := json.Unmarshal(e.Body, &list); err != nil {
		return []string{}, fmt.Errorf("parse upstream field errors: %w", err)
	}
	if list == nil {
		list = []string{}
	}
	return list, nil
}

// DecodeError reports a malformed base64 payload in the create request.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// TransportError is a failure to talk to the product service at all.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ErrorEnvelope is the normalized error body returned to callers.
// swagger:model ErrorEnvelope
type ErrorEnvelope struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"  example:"404"`
	Error     string    `json:"error"   example:"Not Found"`
	Message   string    `json:"message" example:"The product does not found: not found"`
}

// ValidationEnvelope is the normalized body of an upstream 400. Errors is
// always present, possibly empty.
// swagger:model ValidationEnvelope
type ValidationEnvelope struct {
	ErrorEnvelope
	Errors []string `json:"errors"`
}

// NewErrorEnvelope builds an envelope for status at time now.
func NewErrorEnvelope(now time.Time, status int, message string) ErrorEnvelope {
	return ErrorEnvelope{
		Timestamp: now.UTC(),
		Status:    status,
		Error:     http.StatusText(status),
		Message:   message,
	}
}

// NotFoundEnvelope normalizes an upstream 404.
func NotFoundEnvelope(now time.Time, e *UpstreamError) ErrorEnvelope {
	return NewErrorEnvelope(now, e.Status, NotFoundPrefix+e.Message())
}

// BadRequestEnvelope normalizes an upstream 400. A body that is not a JSON
// array of strings yields an empty list; the parse error is returned for
// logging only.
func BadRequestEnvelope(now time.Time, e *UpstreamError) (ValidationEnvelope, error) {
	list, err := e.FieldErrors()
	return ValidationEnvelope{
		ErrorEnvelope: NewErrorEnvelope(now, e.Status, e.Message()),
		Errors:        list,
	}, err
}
