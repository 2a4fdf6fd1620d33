package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Code codes.Code

const (
	CodeNotFound              = Code(codes.NotFound)
	CodeSessionClosed         = Code(codes.FailedPrecondition)
	CodeValidationFailed      = Code(codes.InvalidArgument)
	CodeAlreadyExists         = Code(codes.AlreadyExists)
	CodeTransientSyncFailure  = Code(codes.Unavailable)
	CodeRuleEvaluationSkipped = Code(codes.Aborted)
	CodeInternal              = Code(codes.Internal)
)

var code2http = map[Code]int{
	CodeNotFound:              http.StatusNotFound,
	CodeSessionClosed:         http.StatusConflict,
	CodeValidationFailed:      http.StatusBadRequest,
	CodeAlreadyExists:         http.StatusConflict,
	CodeTransientSyncFailure:  http.StatusServiceUnavailable,
	CodeRuleEvaluationSkipped: http.StatusUnprocessableEntity,
	CodeInternal:              http.StatusInternalServerError,
}

var code2name = map[Code]string{
	CodeNotFound:              "NotFound",
	CodeSessionClosed:         "SessionClosed",
	CodeValidationFailed:      "ValidationFailed",
	CodeAlreadyExists:         "AlreadyExists",
	CodeTransientSyncFailure:  "TransientSyncFailure",
	CodeRuleEvaluationSkipped: "RuleEvaluationSkipped",
	CodeInternal:              "Internal",
}

func (c Code) String() string {
	if n, ok := code2name[c]; ok {
		return n
	}

	return codes.Code(c).String()
}

type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	err     error
}

func New(code Code, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Message: code.String(),
	}

	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

func (e *Error) Error() string {
	s := fmt.Sprintf("code: %s, message: %s", e.Code, e.Message)
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) GRPCStatus() *status.Status {
	return status.New(codes.Code(e.Code), e.Message)
}

func (e *Error) HTTPStatusCode() int {
	if c, ok := code2http[e.Code]; ok {
		return c
	}

	return http.StatusInternalServerError
}

// Convert returns err as an *Error, wrapping anything unknown as Internal.
func Convert(err error) *Error {
	var e *Error
	if !errors.As(err, &e) {
		return Internal(err)
	}

	return e
}

// Is reports whether any error in err's chain carries the code.
func Is(err error, code Code) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	return e.Code == code
}

// FromGRPC rebuilds an *Error from a status returned by a remote call.
func FromGRPC(err error) error {
	if err == nil {
		return nil
	}

	s, ok := status.FromError(err)
	if !ok {
		return err
	}

	return New(Code(s.Code()), WithMessagef("%s", s.Message()), WithCause(err))
}

func Internal(err error) *Error {
	return New(CodeInternal, WithCause(err))
}

func NotFound(format string, args ...any) *Error {
	return New(CodeNotFound, WithMessagef(format, args...))
}

func SessionClosed(sessionID string) *Error {
	return New(CodeSessionClosed, WithMessagef("session is closed: session=%s", sessionID))
}

func ValidationFailed(format string, args ...any) *Error {
	return New(CodeValidationFailed, WithMessagef(format, args...))
}

type Option interface {
	apply(*Error)
}

type optionFunc func(*Error)

func (f optionFunc) apply(e *Error) {
	f(e)
}

func WithCause(err error) Option {
	return optionFunc(func(e *Error) {
		e.err = err
	})
}

func WithMessagef(format string, args ...any) Option {
	return optionFunc(func(e *Error) {
		e.Message = fmt.Sprintf(format, args...)
	})
}
