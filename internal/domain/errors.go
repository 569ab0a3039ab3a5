package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"unicode/utf8"
)

// ErrorKind is the failure taxonomy shared by every stage.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindTransient
	KindAuth
	KindGeneration
	KindInfeasible
	KindRejected
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "TransientNetworkFailure"
	case KindAuth:
		return "AuthFailure"
	case KindGeneration:
		return "ContentGenerationFailure"
	case KindInfeasible:
		return "NormalizationInfeasible"
	case KindRejected:
		return "PlatformRejected"
	default:
		return "Unknown"
	}
}

var (
	// ErrNormalizationInfeasible is returned when the quality floor still exceeds the byte ceiling.
	ErrNormalizationInfeasible = &Error{Kind: KindInfeasible, Op: "normalize image", Err: errors.New("image cannot satisfy constraints at minimum quality")}
	// ErrNoImageAvailable means generation failed and the fallback pool is empty.
	ErrNoImageAvailable = errors.New("no image available: fallback pool is empty")
)

// Error carries a kind alongside the wrapped cause.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches two *Error values of the same kind and op, so wrapped copies of
// the sentinels still satisfy errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == e.Op
}

func newError(kind ErrorKind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Transient wraps err as a retryable network failure.
func Transient(op string, err error) error { return newError(KindTransient, op, err) }

// Auth wraps err as a credential failure. Never retried.
func Auth(op string, err error) error { return newError(KindAuth, op, err) }

// Generation wraps err as a content or image generation failure.
func Generation(op string, err error) error { return newError(KindGeneration, op, err) }

// Rejected wraps err as a platform rejection. Never retried.
func Rejected(op string, err error) error { return newError(KindRejected, op, err) }

// KindOf returns the kind of the first *Error in the chain. Context
// deadlines and net errors without a kind count as transient.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return KindTransient
	}
	return KindUnknown
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return KindOf(err) == KindTransient
}

// ClassifyStatus maps a non-2xx HTTP status to the taxonomy.
func ClassifyStatus(op string, status int, body []byte) error {
	cause := fmt.Errorf("status %d: %s", status, Snippet(body))
	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return Transient(op, cause)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return Auth(op, cause)
	default:
		return Rejected(op, cause)
	}
}

// Snippet trims a response body for error messages to at most 512 bytes,
// cutting on a rune boundary.
func Snippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		return s[:cut] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}
