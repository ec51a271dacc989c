package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
)

// Query error kinds. Every failure of a query execution carries exactly one of
// these as its kind.
var (
	ErrQueryShape          = errors.New("query shape error")
	ErrIndexAccess         = errors.New("index access error")
	ErrJoinType            = errors.New("join type error")
	ErrScoreFunctionConfig = errors.New("score function config error")
	ErrQueryTimeout        = errors.New("query timeout")
	// ErrQueryCanceled marks a query abandoned by its caller before the
	// deadline. A larger deadline would not have helped.
	ErrQueryCanceled = errors.New("query canceled")
)

// statusClientClosedRequest is the non-standard status proxies log when the
// client went away first.
const statusClientClosedRequest = 499

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

// QueryError is the structured failure of a query execution. Path holds the
// child indices leading from the root to the failing node; an empty path
// denotes the root itself.
type QueryError struct {
	Err     error
	Message string
	Path    []int
	Cause   error
}

func (e *QueryError) Error() string {
	var b strings.Builder
	b.WriteString(e.Err.Error())
	b.WriteString(" at ")
	b.WriteString(FormatPath(e.Path))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *QueryError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// NewQueryError builds a path-less QueryError of the given kind. The executor
// fills in the path as the error travels up the tree.
func NewQueryError(kind error, format string, args ...any) *QueryError {
	return &QueryError{
		Err:     kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapQueryError builds a QueryError of the given kind around an underlying
// cause.
func WrapQueryError(kind error, cause error, format string, args ...any) *QueryError {
	return &QueryError{
		Err:     kind,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// WithPath returns err annotated with path unless it already carries one.
// Errors that are not QueryErrors are classified first: a done context by
// ContextKind and anything else as ErrIndexAccess.
func WithPath(err error, path []int) error {
	if err == nil {
		return nil
	}
	var qe *QueryError
	if !errors.As(err, &qe) {
		kind, ok := ContextKind(err)
		if !ok {
			kind = ErrIndexAccess
		}
		qe = WrapQueryError(kind, err, "node evaluation failed")
	}
	if qe.Path != nil {
		return qe
	}
	out := *qe
	out.Path = append(make([]int, 0, len(path)), path...)
	return &out
}

// KindOf returns the query error kind of err, or nil if err is not a query
// error.
func KindOf(err error) error {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Err
	}
	return nil
}

// FormatPath renders a node path as "root" or "root/0/2".
func FormatPath(path []int) string {
	var b strings.Builder
	b.WriteString("root")
	for _, p := range path {
		fmt.Fprintf(&b, "/%d", p)
	}
	return b.String()
}

// ContextKind classifies an error from a done context: an expired deadline
// is ErrQueryTimeout, a cancellation ErrQueryCanceled. ok is false for any
// other error.
func ContextKind(err error) (kind error, ok bool) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrQueryTimeout, true
	case errors.Is(err, context.Canceled):
		return ErrQueryCanceled, true
	}
	return nil, false
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrQueryShape),
		errors.Is(err, ErrJoinType),
		errors.Is(err, ErrScoreFunctionConfig):
		return http.StatusBadRequest
	case errors.Is(err, ErrQueryTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrQueryCanceled):
		return statusClientClosedRequest
	case errors.Is(err, ErrIndexAccess):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}

}
