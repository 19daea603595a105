// Package apperr defines the error taxonomy shared by the stream adapters, chat
// sessions and the stage controller. Callers classify failures with KindOf rather
// than by inspecting provider-specific error values.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	// KindUnknown is the fallback for errors that carry no classification.
	KindUnknown Kind = iota
	// KindValidation reports bad or missing input detected before any network call.
	KindValidation
	// KindMissingCredential reports that the selected provider has no API key configured.
	KindMissingCredential
	// KindAborted reports a user-initiated cancellation.
	KindAborted
	// KindContentFiltered reports a vendor safety rejection.
	KindContentFiltered
	// KindTransport reports an HTTP or network failure.
	KindTransport
)

// String returns the kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindMissingCredential:
		return "missing-credential"
	case KindAborted:
		return "aborted"
	case KindContentFiltered:
		return "content-filtered"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Error is the concrete error type for every classified failure.
type Error struct {
	Kind     Kind
	Provider string
	// Key names the missing environment variable for KindMissingCredential.
	Key string
	// Status is the HTTP status code for KindTransport, when one was received.
	Status int
	Detail string
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Provider != "" {
		b.WriteString(" (")
		b.WriteString(e.Provider)
		b.WriteString(")")
	}
	switch {
	case e.Kind == KindMissingCredential && e.Key != "":
		fmt.Fprintf(&b, ": %s is not set", e.Key)
	case e.Status != 0:
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Validation builds a KindValidation error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Detail: fmt.Sprintf(format, args...)}
}

// ValidationWrap builds a KindValidation error around a sentinel so callers can
// match it with errors.Is.
func ValidationWrap(err error, detail string) *Error {
	return &Error{Kind: KindValidation, Detail: detail, Err: err}
}

// MissingCredential builds a KindMissingCredential error naming the environment key.
func MissingCredential(provider, key string) *Error {
	return &Error{Kind: KindMissingCredential, Provider: provider, Key: key}
}

// Aborted builds a KindAborted error.
func Aborted(provider string) *Error {
	return &Error{Kind: KindAborted, Provider: provider, Err: context.Canceled}
}

// ContentFiltered builds a KindContentFiltered error carrying the vendor's reason.
func ContentFiltered(provider, reason string) *Error {
	return &Error{Kind: KindContentFiltered, Provider: provider, Detail: reason}
}

// Transport builds a KindTransport error. body is the raw response body, if any.
func Transport(provider string, status int, body string, err error) *Error {
	return &Error{Kind: KindTransport, Provider: provider, Status: status, Detail: strings.TrimSpace(body), Err: err}
}

// KindOf classifies err. context.Canceled counts as an abort; anything without
// a classification is KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindAborted
	}
	return KindUnknown
}

// IsAborted reports whether err represents a user-initiated cancellation.
func IsAborted(err error) bool {
	return KindOf(err) == KindAborted
}

// FromContext converts a cancelled context into an Aborted error, or returns nil
// when the context is still live. Deadline expiry is a transport failure.
func FromContext(ctx context.Context, provider string) error {
	switch err := ctx.Err(); {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return Transport(provider, 0, "request timed out", err)
	default:
		return Aborted(provider)
	}
}

// UserMessage renders err as the text shown to the user. what names the
// operation, e.g. "Plan generation".
func UserMessage(what string, err error) string {
	if err == nil {
		return ""
	}
	var appErr *Error
	if !errors.As(err, &appErr) {
		if errors.Is(err, context.Canceled) {
			return fmt.Sprintf("%s stopped by user.", what)
		}
		return fmt.Sprintf("%s failed: %v", what, err)
	}
	switch appErr.Kind {
	case KindAborted:
		return fmt.Sprintf("%s stopped by user.", what)
	case KindValidation:
		return appErr.Detail
	case KindMissingCredential:
		return fmt.Sprintf("Missing API key: set %s to use the selected model.", appErr.Key)
	case KindContentFiltered:
		reason := appErr.Detail
		if reason == "" {
			reason = "the provider's safety filter rejected the request"
		}
		return fmt.Sprintf("%s was blocked (%s). Modify the report or instruction and try again.", what, reason)
	case KindTransport:
		if appErr.Status != 0 {
			return fmt.Sprintf("%s failed: %s returned status %d: %s", what, appErr.Provider, appErr.Status, appErr.Detail)
		}
		return fmt.Sprintf("%s failed: %v", what, appErr)
	default:
		return fmt.Sprintf("%s failed: %v", what, appErr)
	}
}
