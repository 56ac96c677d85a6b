package errors

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
)

// AppError is the error type returned by application layers.
// It carries a stable id for log correlation, a gRPC code for outer surfaces and an optional cause.
type AppError struct {
	id      string
	message string
	code    codes.Code
	cause   error
}

// Option customizes an AppError.
type Option func(*AppError)

func WithID(id string) Option {
	return func(e *AppError) { e.id = id }
}

func WithCode(code codes.Code) Option {
	return func(e *AppError) { e.code = code }
}

func WithCause(cause error) Option {
	return func(e *AppError) { e.cause = cause }
}

// New creates an application error. Code defaults to codes.Unknown.
func New(message string, opts ...Option) error {
	e := &AppError{message: message, code: codes.Unknown}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Internal creates an application error with codes.Internal.
func Internal(message string, opts ...Option) error {
	return New(message, append([]Option{WithCode(codes.Internal)}, opts...)...)
}

func InvalidArgument(message string, opts ...Option) error {
	return New(message, append([]Option{WithCode(codes.InvalidArgument)}, opts...)...)
}

func NotFound(message string, opts ...Option) error {
	return New(message, append([]Option{WithCode(codes.NotFound)}, opts...)...)
}

func (e *AppError) Error() string {
	if e.cause == nil {
		return e.message
	}
	return fmt.Sprintf("%s: %v", e.message, e.cause)
}

func (e *AppError) Unwrap() error { return e.cause }

func (e *AppError) ID() string { return e.id }

func (e *AppError) Message() string { return e.message }

func (e *AppError) GRPCCode() codes.Code { return e.code }

// Code returns the gRPC code of the first AppError in the chain.
func Code(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	var cfg *ConfigurationError
	if errors.As(err, &cfg) {
		return cfg.code
	}
	var app *AppError
	if errors.As(err, &app) {
		return app.code
	}
	var auth *AuthorizationError
	if errors.As(err, &auth) {
		return codes.PermissionDenied
	}
	return codes.Unknown
}

// Details renders the error chain with ids for logs.
func Details(err error) string {
	if err == nil {
		return ""
	}
	var b strings.Builder
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		if b.Len() > 0 {
			b.WriteString(" <- ")
		}
		var app *AppError
		if errors.As(cur, &app) && app == cur {
			if app.id != "" {
				fmt.Fprintf(&b, "[%s] ", app.id)
			}
			b.WriteString(app.message)
			continue
		}
		b.WriteString(cur.Error())
	}
	return b.String()
}

func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

func Unwrap(err error) error { return errors.Unwrap(err) }
