package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

type fakeGenerator struct {
	reply   string
	err     error
	block   bool
	gotMsgs []*schema.Message
}

func (f *fakeGenerator) Generate(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.gotMsgs = in
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func TestOpenAIClient_Complete(t *testing.T) {
	gen := &fakeGenerator{reply: "```markdown\n## 引言\n深度学习\n```"}
	c := newClient(gen, Config{Model: "test", Timeout: time.Second}, nil, nil)

	got, err := c.Complete(context.Background(), Request{
		Op:           OpTranslate,
		SystemPrompt: TranslateSystemPrompt,
		Prompt:       TranslatePrompt("Introduction"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "## 引言\n深度学习" {
		t.Errorf("expected fence stripped, got %q", got)
	}
	if len(gen.gotMsgs) != 2 || gen.gotMsgs[0].Role != schema.System || gen.gotMsgs[1].Role != schema.User {
		t.Errorf("expected system+user messages, got %+v", gen.gotMsgs)
	}

	rep := c.Stats().Report()
	if rep.ByOp[OpTranslate].Count != 1 {
		t.Errorf("expected one translate sample, got %+v", rep.ByOp)
	}
}

func TestOpenAIClient_EmptyReplyIsRetryable(t *testing.T) {
	c := newClient(&fakeGenerator{reply: "   "}, Config{}, nil, nil)
	_, err := c.Complete(context.Background(), Request{Op: OpClean, Prompt: "x"})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
	if !IsRetryable(err) {
		t.Error("empty reply should be retryable")
	}
}

func TestOpenAIClient_Timeout(t *testing.T) {
	c := newClient(&fakeGenerator{block: true}, Config{}, nil, nil)
	_, err := c.Complete(context.Background(), Request{Op: OpClean, Prompt: "x", Timeout: 10 * time.Millisecond})
	var rse *RemoteServiceError
	if !errors.As(err, &rse) {
		t.Fatalf("expected RemoteServiceError, got %v", err)
	}
	if !rse.Retryable {
		t.Error("per-call timeout should be retryable")
	}
}

func TestOpenAIClient_ParentCancelNotRetryable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := newClient(&fakeGenerator{block: true}, Config{Timeout: time.Second}, nil, nil)
	_, err := c.Complete(ctx, Request{Op: OpReorder, Prompt: "x"})
	if err == nil || IsRetryable(err) {
		t.Errorf("expected non-retryable error, got %v", err)
	}
}

func TestClassify_StatusCodes(t *testing.T) {
	tests := []struct {
		msg       string
		code      int
		retryable bool
	}{
		{"error, status code: 429, status: 429 Too Many Requests, message: slow down", 429, true},
		{"error, status code: 503, status: 503 Service Unavailable, message: busy", 503, true},
		{"error, status code: 401, status: 401 Unauthorized, message: bad key", 401, false},
		{"error, status code: 400, status: 400 Bad Request, message: too long", 400, false},
		{"dial tcp: connection refused", 0, true},
	}
	for _, tt := range tests {
		err := classify(context.Background(), OpTranslate, fmt.Errorf("failed to create chat completion: %w", errors.New(tt.msg)))
		var rse *RemoteServiceError
		if !errors.As(err, &rse) {
			t.Fatalf("expected RemoteServiceError for %q", tt.msg)
		}
		if rse.StatusCode != tt.code || rse.Retryable != tt.retryable {
			t.Errorf("%q: expected code=%d retryable=%v, got code=%d retryable=%v", tt.msg, tt.code, tt.retryable, rse.StatusCode, rse.Retryable)
		}
	}
}

func TestRemoteServiceError_TruncatesOnCharacterBoundary(t *testing.T) {
	body := "x" + strings.Repeat("错", 100)
	err := &RemoteServiceError{Op: OpTranslate, StatusCode: 429, Err: errors.New(body)}
	msg := err.Error()
	if !utf8.ValidString(msg) {
		t.Fatalf("expected valid UTF-8, got %q", msg)
	}
	if !strings.HasSuffix(msg, "...") || !strings.HasPrefix(msg, "llm translate: status 429: x错") {
		t.Errorf("unexpected message %q", msg)
	}
	if got := truncate("错错", 4); got != "错..." {
		t.Errorf("expected cut before the split character, got %q", got)
	}
	if got := truncate("short", 200); got != "short" {
		t.Errorf("expected short text unchanged, got %q", got)
	}
}

func TestIsRetryable_PlainError(t *testing.T) {
	if IsRetryable(errors.New("boom")) {
		t.Error("plain errors are not retryable")
	}
	if IsRetryable(nil) {
		t.Error("nil is not retryable")
	}
}

func TestNormalizeReply(t *testing.T) {
	tests := map[string]string{
		"  plain  ":               "plain",
		"```\ncode\n```":          "code",
		"```latex\n$$x$$\n```":    "$$x$$",
		"text with ``` inside":    "text with ``` inside",
		"```json\n{\"a\":1}\n```": "{\"a\":1}",
	}
	for in, want := range tests {
		if got := normalizeReply(in); got != want {
			t.Errorf("normalizeReply(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestPrompts(t *testing.T) {
	for name, p := range map[string]string{
		"clean":     CleanPrompt("CHUNK"),
		"reorder":   ReorderPrompt("CHUNK"),
		"translate": TranslatePrompt("CHUNK"),
	} {
		if !strings.Contains(p, "CHUNK") {
			t.Errorf("%s prompt missing chunk text", name)
		}
	}
	if !strings.Contains(CleanPrompt("x"), "<Title></Title>") {
		t.Error("clean prompt must ask for title markers")
	}
	if !strings.Contains(TranslatePrompt("x"), "$$") {
		t.Error("translate prompt must mention math delimiters")
	}
}

func TestStatsPercentiles(t *testing.T) {
	s := NewStats(time.Hour)
	for _, ms := range []int64{100, 200, 300, 400, 500} {
		s.Record(OpClean, time.Duration(ms)*time.Millisecond, nil)
	}
	s.Record(OpTranslate, 50*time.Millisecond, errors.New("fail"))

	rep := s.Report()
	clean := rep.ByOp[OpClean]
	if clean.Count != 5 || clean.MinMs != 100 || clean.MaxMs != 500 {
		t.Fatalf("unexpected clean snapshot %+v", clean)
	}
	if clean.AvgMs != 300 || clean.P50Ms != 300 || clean.P95Ms != 480 || clean.P99Ms != 496 {
		t.Errorf("unexpected percentiles %+v", clean)
	}
	if rep.Overall.Count != 6 || rep.Overall.Errors != 1 {
		t.Errorf("unexpected overall %+v", rep.Overall)
	}
}

func TestStatsPrunesExpiredSamples(t *testing.T) {
	s := NewStats(10 * time.Millisecond)
	s.Record(OpClean, time.Millisecond, nil)
	time.Sleep(25 * time.Millisecond)
	if n := s.Report().Overall.Count; n != 0 {
		t.Fatalf("expected samples pruned, got %d", n)
	}
	s.Record(OpClean, -time.Second, nil)
	rep := s.Report()
	if rep.Overall.Count != 1 || rep.Overall.MaxMs != 0 {
		t.Errorf("expected one clamped sample, got %+v", rep.Overall)
	}
}
