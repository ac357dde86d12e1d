package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.temporal.io/sdk/temporal"
)

// ErrorKind classifies workflow and activity failures
type ErrorKind string

const (
	KindValidation    ErrorKind = "ValidationError"
	KindNotFound      ErrorKind = "NotFoundError"
	KindTransient     ErrorKind = "TransientActivityError"
	KindCompensatable ErrorKind = "CompensatableError"
	KindNonFatal      ErrorKind = "NonFatalError"
)

func nonRetryableKinds() []string {
	return []string{
		string(KindValidation),
		string(KindNotFound),
		string(KindCompensatable),
		string(KindNonFatal),
	}
}

// Error is the failure surfaced by activities and workflows in both execution modes
type Error struct {
	Kind     ErrorKind
	Activity string
	Message  string
	Fields   []string
	Attempts int
	Cause    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Activity != "" {
		b.WriteString(" in ")
		b.WriteString(e.Activity)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Fields) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(e.Fields, "; "))
		b.WriteString("]")
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether another attempt may succeed
func (e *Error) Retryable() bool { return e.Kind == KindTransient }

// ValidationFailed builds a validation error listing field problems
func ValidationFailed(activity string, fields []string) *Error {
	return &Error{Kind: KindValidation, Activity: activity, Message: "validation failed", Fields: fields}
}

// NotFound builds a not-found error
func NotFound(activity, format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Activity: activity, Message: fmt.Sprintf(format, args...)}
}

// Transient wraps a failure that may succeed on retry
func Transient(activity string, cause error) *Error {
	return &Error{Kind: KindTransient, Activity: activity, Message: cause.Error(), Cause: cause}
}

// Compensatable marks a failure after which completed saga steps must be undone
func Compensatable(activity, message string, cause error) *Error {
	return &Error{Kind: KindCompensatable, Activity: activity, Message: message, Cause: cause}
}

// NonFatal marks a failure the workflow logs and tolerates
func NonFatal(activity string, cause error) *Error {
	return &Error{Kind: KindNonFatal, Activity: activity, Message: cause.Error(), Cause: cause}
}

// AsError extracts a *Error from err
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the error kind, treating unclassified errors as transient
func KindOf(err error) ErrorKind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return KindTransient
}

// classify turns whatever an activity returned into a *Error
func classify(activity string, err error) *Error {
	if e, ok := AsError(err); ok {
		cp := *e
		if cp.Activity == "" {
			cp.Activity = activity
		}
		return &cp
	}
	return Transient(activity, err)
}

// errorDetails travels with an ApplicationError across the Temporal boundary
type errorDetails struct {
	Activity string   `json:"activity,omitempty"`
	Fields   []string `json:"fields,omitempty"`
	Attempts int      `json:"attempts,omitempty"`
}

// toApplicationError encodes err for Temporal, keeping its kind as the error type
func toApplicationError(activity string, err error, attempt int) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*temporal.ApplicationError); ok {
		return appErr
	}

	e := classify(activity, err)
	if attempt > 0 {
		e.Attempts = attempt
	}
	details := errorDetails{Activity: e.Activity, Fields: e.Fields, Attempts: e.Attempts}
	if e.Retryable() {
		return temporal.NewApplicationError(e.Message, string(e.Kind), details)
	}
	return temporal.NewNonRetryableApplicationError(e.Message, string(e.Kind), nil, details)
}

// fromTemporal decodes an error returned by the Temporal SDK back into a *Error
func fromTemporal(activity string, err error, maxAttempts int) *Error {
	if err == nil {
		return nil
	}
	if e, ok := AsError(err); ok {
		return e
	}

	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		e := &Error{Kind: ErrorKind(appErr.Type()), Activity: activity, Message: appErr.Message(), Cause: err}
		if e.Kind == "" {
			e.Kind = KindTransient
		}
		if appErr.HasDetails() {
			var d errorDetails
			if derr := appErr.Details(&d); derr == nil {
				if d.Activity != "" {
					e.Activity = d.Activity
				}
				e.Fields = d.Fields
				e.Attempts = d.Attempts
			}
		}
		return e
	}

	var timeoutErr *temporal.TimeoutError
	if errors.As(err, &timeoutErr) {
		return &Error{Kind: KindTransient, Activity: activity, Message: "activity timed out", Attempts: maxAttempts, Cause: err}
	}

	var canceledErr *temporal.CanceledError
	if errors.As(err, &canceledErr) || errors.Is(err, context.Canceled) {
		return &Error{Kind: KindTransient, Activity: activity, Message: "canceled", Cause: err}
	}

	return Transient(activity, err)
}
