// Package apperr defines the error taxonomy shared by the concierge pipeline.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind is a machine-readable failure class
type Kind string

const (
	KindTranslationFailure Kind = "translation_failure"
	KindRejectedQuery      Kind = "rejected_query"
	KindUnavailable        Kind = "unavailable"
	KindPriceStale         Kind = "price_stale"
	KindToolTimeout        Kind = "tool_timeout"
	KindToolError          Kind = "tool_error"
	KindStoreUnavailable   Kind = "store_unavailable"
	KindNotFound           Kind = "not_found"
	KindInvalidTransition  Kind = "invalid_transition"
)

// Error is a classified pipeline error.
type Error struct {
	Kind    Kind     // failure class
	Op      string   // operation that failed, e.g. "engine.reserve"
	Message string   // technical description
	Missing []string // slot names, only for translation failures
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s:%s] %s", e.Op, e.Kind, e.Message)
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, " (missing: %s)", strings.Join(e.Missing, ", "))
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: KindUnavailable}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// New creates a new Error.
func New(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

func TranslationFailure(op string, missing []string, message string) *Error {
	e := New(KindTranslationFailure, op, message, nil)
	e.Missing = missing
	return e
}

func Rejected(op, format string, args ...any) *Error {
	return New(KindRejectedQuery, op, fmt.Sprintf(format, args...), nil)
}

func Unavailable(op, message string) *Error {
	return New(KindUnavailable, op, message, nil)
}

func PriceStale(op string, drift float64) *Error {
	return New(KindPriceStale, op, fmt.Sprintf("quoted price drifted by %.4f", drift), nil)
}

func Store(op string, cause error) *Error {
	return New(KindStoreUnavailable, op, "store operation failed", cause)
}

func NotFound(op, what string) *Error {
	return New(KindNotFound, op, what+" not found", nil)
}

func InvalidTransition(op string, from, to string) *Error {
	return New(KindInvalidTransition, op, fmt.Sprintf("cannot move from %s to %s", from, to), nil)
}

func ToolError(op string, cause error) *Error {
	return New(KindToolError, op, "tool call failed", cause)
}

func ToolTimeout(op string, cause error) *Error {
	return New(KindToolTimeout, op, "tool call timed out", cause)
}

// KindOf classifies any error. Unclassified errors are tool errors;
// deadline and cancellation count as timeouts.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindToolTimeout
	}
	return KindToolError
}

// Is reports whether err is of kind k.
func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// MissingOf returns the missing slots carried by a translation failure.
func MissingOf(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Missing
	}
	return nil
}

// Transient reports whether a failure of kind k may succeed on retry.
func Transient(k Kind) bool {
	switch k {
	case KindToolTimeout, KindToolError:
		return true
	default:
		return false
	}
}

// UserMessage is the plain-language text shown to a guest for a kind.
func UserMessage(k Kind) string {
	switch k {
	case KindTranslationFailure:
		return "I need a few more details to help with that."
	case KindRejectedQuery:
		return "I can't look that up as asked. Could you rephrase the dates or room details?"
	case KindUnavailable:
		return "Sorry, that room isn't available for those dates."
	case KindPriceStale:
		return "The price changed while we were booking. Please confirm the new rate."
	case KindToolTimeout:
		return "That took longer than expected. Please try again in a moment."
	case KindStoreUnavailable:
		return "Our reservation system is temporarily unavailable. Please try again shortly."
	case KindNotFound:
		return "I couldn't find that reservation."
	case KindInvalidTransition:
		return "That reservation can't be changed in that way."
	default:
		return "Something went wrong on our side. Please try again."
	}
}
