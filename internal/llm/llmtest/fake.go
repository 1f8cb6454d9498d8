// Package llmtest provides a scripted llm.Completer for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/dgallion1/papertrans/internal/llm"
)

// Fake answers requests with a per-operation handler and records every
// call. Operations without a handler echo the prompt's final input.
type Fake struct {
	mu       sync.Mutex
	handlers map[llm.Operation]func(call int, req llm.Request) (string, error)
	calls    map[llm.Operation]int
	requests []llm.Request
}

func New() *Fake {
	return &Fake{
		handlers: make(map[llm.Operation]func(int, llm.Request) (string, error)),
		calls:    make(map[llm.Operation]int),
	}
}

// On installs the handler for op. call counts from zero per operation.
func (f *Fake) On(op llm.Operation, h func(call int, req llm.Request) (string, error)) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[op] = h
	return f
}

func (f *Fake) Complete(ctx context.Context, req llm.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &llm.RemoteServiceError{Op: req.Op, Err: err}
	}
	f.mu.Lock()
	n := f.calls[req.Op]
	f.calls[req.Op]++
	f.requests = append(f.requests, req)
	h := f.handlers[req.Op]
	f.mu.Unlock()

	if h == nil {
		return req.Prompt, nil
	}
	return h(n, req)
}

// Calls returns how many requests op has received.
func (f *Fake) Calls(op llm.Operation) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Requests returns a copy of every request received.
func (f *Fake) Requests() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]llm.Request, len(f.requests))
	copy(out, f.requests)
	return out
}
