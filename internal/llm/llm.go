// Package llm wraps the chat-completion service used for cleaning,
// reordering, and translating paper text.
package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrEmptyResponse is returned when the model replies with no content.
var ErrEmptyResponse = errors.New("empty response from model")

// Operation names the pipeline stage issuing a request. It only labels
// logs and latency stats.
type Operation string

const (
	OpClean     Operation = "clean"
	OpReorder   Operation = "reorder"
	OpTranslate Operation = "translate"
)

// Request is a single chat completion.
type Request struct {
	Op           Operation
	SystemPrompt string
	Prompt       string
	Temperature  float32
	MaxTokens    int
	Timeout      time.Duration // per call; zero uses the client default
}

// Completer returns the model's reply to a request. Failures are reported
// as *RemoteServiceError.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// RemoteServiceError wraps a failed call to the model service.
type RemoteServiceError struct {
	Op         Operation
	StatusCode int // 0 when the service gave no HTTP status
	Retryable  bool
	Err        error
}

func (e *RemoteServiceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("llm %s: status %d: %s", e.Op, e.StatusCode, truncate(e.Err.Error(), 200))
	}
	return fmt.Sprintf("llm %s: %s", e.Op, truncate(e.Err.Error(), 200))
}

func (e *RemoteServiceError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient service failure worth
// another attempt.
func IsRetryable(err error) bool {
	var rse *RemoteServiceError
	return errors.As(err, &rse) && rse.Retryable
}

var statusCodeRe = regexp.MustCompile(`status code: (\d+)`)

// classify turns a raw client error into a *RemoteServiceError. parent is
// the caller's context: its cancellation is final, while a per-call
// timeout can be retried.
func classify(parent context.Context, op Operation, err error) error {
	if err == nil {
		return nil
	}
	var rse *RemoteServiceError
	if errors.As(err, &rse) {
		return err
	}
	if parent.Err() != nil {
		return &RemoteServiceError{Op: op, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &RemoteServiceError{Op: op, Retryable: true, Err: err}
	}

	out := &RemoteServiceError{Op: op, Retryable: true, Err: err}
	if m := statusCodeRe.FindStringSubmatch(err.Error()); len(m) > 1 {
		code, _ := strconv.Atoi(m[1])
		out.StatusCode = code
		out.Retryable = code == 408 || code == 409 || code == 429 || code >= 500
	}
	return out
}

var codeFenceRe = regexp.MustCompile("(?s)^```[A-Za-z0-9_-]*\\s*(.*?)\\s*```$")

// normalizeReply strips a surrounding code fence and whitespace.
func normalizeReply(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

// truncate cuts s to at most n bytes without splitting a character.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
