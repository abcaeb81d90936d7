// Package llm adapts language model providers to the single completion call the
// mentor needs.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/domain"
)

// Completer produces the assistant reply for a conversation.
type Completer interface {
	// Complete answers history (oldest first) under systemPrompt.
	Complete(ctx context.Context, history []domain.Message, systemPrompt string) (string, error)
}

// ErrorKind lets the host pick a status code and a user-facing message.
type ErrorKind string

const (
	KindAuth        ErrorKind = "auth"
	KindRateLimited ErrorKind = "rate_limited"
	KindRegion      ErrorKind = "region"
	KindUnavailable ErrorKind = "unavailable"
	KindEmpty       ErrorKind = "empty"
)

// Error is a provider failure with its kind.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("llm %s", e.Kind)
	}
	return fmt.Sprintf("llm %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of an *Error anywhere in err's chain, or "".
func KindOf(err error) ErrorKind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}

// ErrEmptyCompletion is wrapped when a provider answers with no text.
var ErrEmptyCompletion = errors.New("empty completion")

// classify wraps a provider error into an *Error.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		return err
	}
	return &Error{Kind: kindFor(err), Err: err}
}

func kindFor(err error) ErrorKind {
	if errors.Is(err, ErrEmptyCompletion) {
		return KindEmpty
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindUnavailable
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if k := kindForStatus(apiErr.Code, apiErr.Message); k != "" {
			return k
		}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		if k := kindForStatus(apiErrPtr.Code, apiErrPtr.Message); k != "" {
			return k
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "unsupported_country", "region", "location is not supported", "country"):
		return KindRegion
	case containsAny(msg, "429", "rate limit", "rate_limit", "quota", "too many requests", "resource_exhausted"):
		return KindRateLimited
	case containsAny(msg, "401", "unauthorized", "invalid api key", "incorrect api key", "api key not valid", "permission_denied"):
		return KindAuth
	default:
		return KindUnavailable
	}
}

func kindForStatus(code int, message string) ErrorKind {
	lower := strings.ToLower(message)
	switch {
	case containsAny(lower, "location is not supported", "region", "country"):
		return KindRegion
	case code == 429:
		return KindRateLimited
	case code == 401 || code == 403:
		return KindAuth
	case code >= 500:
		return KindUnavailable
	}
	return ""
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
