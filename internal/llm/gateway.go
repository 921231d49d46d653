// Package llm is the single gateway through which every stage talks to a
// language model.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
)

// Gateway completes one prompt.
type Gateway interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, prompt string, maxTokens int) (string, error)

func (f GatewayFunc) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return f(ctx, prompt, maxTokens)
}

// Kind classifies a gateway failure.
type Kind string

const (
	KindRateLimited Kind = "rate_limited"
	KindTimeout     Kind = "timeout"
	KindProvider    Kind = "provider_error"
)

// Error is a typed gateway failure.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm %s (status %d): %s", e.Kind, e.StatusCode, truncate(msg, 200))
	}
	return fmt.Sprintf("llm %s: %s", e.Kind, truncate(msg, 200))
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient gateway failure: rate
// limiting, a timeout, a 5xx, or a transport error without a response.
func IsRetryable(err error) bool {
	var le *Error
	if !errors.As(err, &le) {
		return false
	}
	switch le.Kind {
	case KindRateLimited, KindTimeout:
		return true
	}
	return le.StatusCode == 0 || le.StatusCode >= 500
}

// classifyStatus maps an HTTP status to a gateway error.
func classifyStatus(status int, body string) *Error {
	switch {
	case status == 429:
		return &Error{Kind: KindRateLimited, StatusCode: status, Message: body}
	case status == 408 || status == 504:
		return &Error{Kind: KindTimeout, StatusCode: status, Message: body}
	default:
		return &Error{Kind: KindProvider, StatusCode: status, Message: body}
	}
}

// classifyTransport maps a transport-level failure to a gateway error.
func classifyTransport(err error) *Error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindProvider, Err: err}
}

var codeBlockRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// StripCodeBlock removes a surrounding markdown code fence, if any.
func StripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

// ExtractJSON returns the first balanced JSON object or array in s, or s
// itself when none is found. Models often wrap JSON in prose.
func ExtractJSON(s string) string {
	s = StripCodeBlock(s)
	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return s
	}
	open := s[start]
	closeCh := byte('}')
	if open == '[' {
		closeCh = ']'
	}
	depth := 0
	inStr, esc := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case esc:
			esc = false
		case inStr && c == '\\':
			esc = true
		case c == '"':
			inStr = !inStr
		case inStr:
		case c == open:
			depth++
		case c == closeCh:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
