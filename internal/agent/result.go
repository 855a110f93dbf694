package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/tradepsych/insight/internal/retry"
	"github.com/tradepsych/insight/internal/schema"
)

// Kind tags a Result as success or error.
type Kind string

const (
	KindSuccess Kind = "SUCCESS"
	KindError   Kind = "ERROR"
)

// ErrorKind classifies a failed invocation.
type ErrorKind string

const (
	ErrAPI              ErrorKind = "API_ERROR"
	ErrInvalidJSON      ErrorKind = "INVALID_JSON"
	ErrSchemaValidation ErrorKind = "SCHEMA_VALIDATION_FAILED"
	ErrNoFunctionCall   ErrorKind = "NO_FUNCTION_CALL"
	ErrUnknown          ErrorKind = "UNKNOWN_ERROR"
)

// Status is the flat status string used in logs, metrics and call records.
func (k ErrorKind) Status() string {
	return string(k)
}

// HTTPStatus maps an error kind to the status a boundary should answer with.
// upstream is the provider's HTTP status for API errors, 0 if unknown.
func (k ErrorKind) HTTPStatus(upstream int) int {
	switch k {
	case ErrInvalidJSON, ErrSchemaValidation:
		return http.StatusUnprocessableEntity
	case ErrNoFunctionCall:
		return http.StatusBadGateway
	case ErrAPI:
		if retry.IsRetryableStatus(upstream) {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Result is the outcome of a structured invocation: exactly one of a
// validated value or a classified error. Build it with Success or Failure.
type Result[T any] struct {
	Kind           Kind   `json:"kind"`
	OriginalPrompt string `json:"originalPrompt"`

	// Success
	Data  T      `json:"data,omitempty"`
	Model string `json:"model,omitempty"`

	// Error
	ErrorKind  ErrorKind           `json:"errorKind,omitempty"`
	Error      string              `json:"error,omitempty"`
	Fields     []schema.FieldError `json:"fields,omitempty"`
	HTTPStatus int                 `json:"httpStatus,omitempty"`

	// Attempts is how many provider calls produced this result.
	Attempts int `json:"attempts,omitempty"`
}

// Success builds a success result.
func Success[T any](data T, model, prompt string) *Result[T] {
	return &Result[T]{
		Kind:           KindSuccess,
		Data:           data,
		Model:          model,
		OriginalPrompt: prompt,
		Attempts:       1,
	}
}

// Failure builds an error result.
func Failure[T any](kind ErrorKind, message, prompt string) *Result[T] {
	if kind == "" {
		kind = ErrUnknown
	}
	return &Result[T]{
		Kind:           KindError,
		ErrorKind:      kind,
		Error:          message,
		OriginalPrompt: prompt,
		Attempts:       1,
	}
}

// IsSuccess reports whether r holds a value.
func (r *Result[T]) IsSuccess() bool {
	return r != nil && r.Kind == KindSuccess
}

// Status returns SUCCESS or the error kind.
func (r *Result[T]) Status() string {
	if r == nil {
		return string(ErrUnknown)
	}
	if r.Kind == KindSuccess {
		return string(KindSuccess)
	}
	return string(r.ErrorKind)
}

// Err returns nil for a success and a *ResultError otherwise.
func (r *Result[T]) Err() error {
	if r == nil {
		return &ResultError{Kind: ErrUnknown, Message: "nil result"}
	}
	if r.Kind == KindSuccess {
		return nil
	}
	return &ResultError{
		Kind:     r.ErrorKind,
		Message:  r.Error,
		Fields:   r.Fields,
		Upstream: r.HTTPStatus,
	}
}

// Erase converts the payload to JSON so results of different agents can
// share one boundary type.
func (r *Result[T]) Erase() *Result[json.RawMessage] {
	if r == nil {
		return nil
	}
	out := &Result[json.RawMessage]{
		Kind:           r.Kind,
		OriginalPrompt: r.OriginalPrompt,
		Model:          r.Model,
		ErrorKind:      r.ErrorKind,
		Error:          r.Error,
		Fields:         r.Fields,
		HTTPStatus:     r.HTTPStatus,
		Attempts:       r.Attempts,
	}
	if r.Kind == KindSuccess {
		data, err := json.Marshal(r.Data)
		if err != nil {
			return Failure[json.RawMessage](ErrUnknown, fmt.Sprintf("encode result: %v", err), r.OriginalPrompt)
		}
		out.Data = data
	}
	return out
}

// ResultError is the Go error form of a failed Result.
type ResultError struct {
	Kind     ErrorKind
	Message  string
	Fields   []schema.FieldError
	Upstream int // provider HTTP status, 0 if unknown
}

func (e *ResultError) Error() string {
	if e.Upstream != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Upstream, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// HTTPStatus reports the provider status, so retry classification sees
// API errors the same way it sees provider errors.
func (e *ResultError) HTTPStatus() int {
	return e.Upstream
}

// StatusCode maps the error to a boundary HTTP status.
func (e *ResultError) StatusCode() int {
	return e.Kind.HTTPStatus(e.Upstream)
}

// AsResultError unwraps err to a *ResultError.
func AsResultError(err error) (*ResultError, bool) {
	var re *ResultError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
