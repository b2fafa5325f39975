package errutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type Detail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type BaseError struct {
	Code    CoreStatus `json:"code"`
	Message string     `json:"message"`
	Details []Detail   `json:"details,omitempty"`
	Err     error      `json:"-"`
}

func (e BaseError) Status() CoreStatus {
	return e.Code
}

func (e BaseError) JSON() map[string]any {
	return map[string]any{
		"error": map[string]any{
			"code":    e.Code,
			"message": e.Message,
			"details": e.Details,
		},
	}
}

func (e BaseError) Unwrap() error {
	return e.Err
}

func (e BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s", e.Code, e.messageWithErr())
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e BaseError) messageWithErr() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

type Option func(*BaseError)

func WithDetails(details ...Detail) Option {
	return func(be *BaseError) { be.Details = append(be.Details, details...) }
}

func WithErr(err error) Option {
	return func(be *BaseError) { be.Err = err }
}

func New(code CoreStatus, message string, opts ...Option) error {
	be := BaseError{Code: code, Message: message}
	for _, opt := range opts {
		opt(&be)
	}
	return be
}

func newWithErr(code CoreStatus, msg string, err error, options []Option) error {
	if err != nil {
		options = append([]Option{WithErr(err)}, options...)
	}
	return New(code, msg, options...)
}

func NotFound(msg string, err error, options ...Option) error {
	return newWithErr(StatusNotFound, msg, err, options)
}

func Conflict(msg string, err error, options ...Option) error {
	return newWithErr(StatusConflict, msg, err, options)
}

func BadRequest(msg string, err error, options ...Option) error {
	return newWithErr(StatusBadRequest, msg, err, options)
}

func ValidationFailed(msg string, err error, options ...Option) error {
	return newWithErr(StatusValidationFailed, msg, err, options)
}

func Internal(msg string, err error, options ...Option) error {
	return newWithErr(StatusInternal, msg, err, options)
}

// Code reports the CoreStatus carried by err. Context errors map to their
// transport equivalents; anything else is Internal.
func Code(err error) CoreStatus {
	if err == nil {
		return ""
	}

	var coder interface{ Status() CoreStatus }
	if errors.As(err, &coder) {
		return coder.Status()
	}

	switch {
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest
	case errors.Is(err, context.DeadlineExceeded):
		return StatusTimeout
	}

	return StatusInternal
}

// Is reports whether err carries the given CoreStatus.
func Is(err error, code CoreStatus) bool {
	return err != nil && Code(err) == code
}

// FieldErrors accumulates field level validation failures.
type FieldErrors []Detail

func (f *FieldErrors) Add(field, message string) {
	*f = append(*f, Detail{Field: field, Message: message})
}

func (f FieldErrors) Has(field string) bool {
	for _, d := range f {
		if d.Field == field {
			return true
		}
	}
	return false
}

// Err returns nil when nothing was collected, a ValidationFailed error otherwise.
func (f FieldErrors) Err(msg string) error {
	if len(f) == 0 {
		return nil
	}

	fields := make([]string, 0, len(f))
	for _, d := range f {
		fields = append(fields, d.Field)
	}

	return New(StatusValidationFailed, fmt.Sprintf("%s (%s)", msg, strings.Join(fields, ", ")), WithDetails(f...))
}
