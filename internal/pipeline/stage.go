package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgallion1/papertrans/internal/llm"
)

// StageStats counts chunk outcomes for one stage. A chunk that ends in the
// stage's fallback is counted as failed.
type StageStats struct {
	Stage     string        `json:"stage"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Retries   int           `json:"retries"`
	TotalTime time.Duration `json:"total_time_ns"`
}

// SuccessRate is Succeeded/Total, or 0 before any chunk ran.
func (s StageStats) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Total)
}

// AverageTime is the mean wall time spent per chunk, retries included.
func (s StageStats) AverageTime() time.Duration {
	if s.Total == 0 {
		return 0
	}
	return s.TotalTime / time.Duration(s.Total)
}

// LogValue renders stats as a log group.
func (s StageStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("stage", s.Stage),
		slog.Int("total", s.Total),
		slog.Int("succeeded", s.Succeeded),
		slog.Int("failed", s.Failed),
		slog.Int("retries", s.Retries),
		slog.Float64("success_rate", s.SuccessRate()),
		slog.Duration("avg_time", s.AverageTime()),
		slog.Duration("total_time", s.TotalTime),
	)
}

// stage sends one chunk at a time through the model with retries, and
// degrades to fallback when every attempt fails.
type stage struct {
	name     string
	op       llm.Operation
	system   string
	prompt   func(string) string
	fallback func(chunk string, err error) string

	llm        llm.Completer
	request    llm.Request
	maxRetries int
	backoff    func(int) time.Duration
	log        *slog.Logger

	mu    sync.Mutex
	stats StageStats
}

// process returns the stage output for chunk. The only error is context
// cancellation; model failures resolve to the fallback.
func (s *stage) process(ctx context.Context, index int, chunk string) (string, error) {
	if strings.TrimSpace(chunk) == "" {
		return "", nil
	}
	start := time.Now()
	log := s.log.With("stage", s.name, "chunk", index)

	req := s.request
	req.Op = s.op
	req.SystemPrompt = s.system
	req.Prompt = s.prompt(chunk)

	attempts := max(s.maxRetries, 1)
	var out string
	var lastErr error
	retries := 0
	for attempt := range attempts {
		out, lastErr = s.llm.Complete(ctx, req)
		if lastErr == nil && strings.TrimSpace(out) == "" {
			lastErr = &llm.RemoteServiceError{Op: s.op, Retryable: true, Err: llm.ErrEmptyResponse}
		}
		if lastErr == nil || ctx.Err() != nil {
			break
		}
		if !llm.IsRetryable(lastErr) || attempt == attempts-1 {
			break
		}
		retries++
		log.Warn("retryable model error", "attempt", attempt, "error", lastErr)
		select {
		case <-time.After(s.backoff(attempt)):
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Total++
	s.stats.Retries += retries
	s.stats.TotalTime += time.Since(start)
	if lastErr != nil {
		s.stats.Failed++
		log.Error("stage failed, using fallback", "error", lastErr)
		return s.fallback(chunk, lastErr), nil
	}
	s.stats.Succeeded++
	log.Debug("stage complete", "chars_in", len(chunk), "chars_out", len(out))
	return strings.TrimSpace(out), nil
}

func (s *stage) snapshot() StageStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Stage = s.name
	return st
}

func cleanFallback(chunk string, _ error) string { return BasicClean(chunk) }

func reorderFallback(chunk string, _ error) string { return chunk }

func translateFallback(_ string, err error) string {
	return fmt.Sprintf("[翻译错误: %v]", err)
}
