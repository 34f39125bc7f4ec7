package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// newSSEServer streams the given data payloads as SSE events, pausing
// between events when delay is non-zero.
func newSSEServer(t *testing.T, delay time.Duration, payloads ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("response writer does not support flushing")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		for i, p := range payloads {
			if i > 0 && delay > 0 {
				time.Sleep(delay)
			}
			fmt.Fprintf(w, "data: %s\n\n", p)
			flusher.Flush()
		}
	}))
}

type sinkCall struct {
	workerID int
	chunks   int
	tokens   int
}

type recordingSink struct {
	mu    sync.Mutex
	calls []sinkCall
}

func (s *recordingSink) RecordProgress(workerID int, chunks, tokens int, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sinkCall{workerID, chunks, tokens})
}

func TestProbeSuccessfulStream(t *testing.T) {
	server := newSSEServer(t, 0,
		`{"event":"message","conversation_id":"conv-1","message_id":"msg-1","answer":"你好"}`,
		`{"event":"message","answer":"hello world"}`,
		`{"event":"message_end"}`,
	)
	defer server.Close()

	sink := &recordingSink{}
	p := NewProber(server.Client(), server.URL, 5*time.Second)
	res := p.Probe(context.Background(), Request{
		Query:    "你是谁",
		APIKey:   "test-key",
		WorkerID: 3,
		Sink:     sink,
	})

	if !res.OK() {
		t.Fatalf("probe failed: %s", res.Err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	if res.ChunkCount != 2 {
		t.Fatalf("chunk count = %d, want 2", res.ChunkCount)
	}
	if res.TokenCount != 5 {
		t.Fatalf("token count = %d, want 5", res.TokenCount)
	}
	if res.ConversationID != "conv-1" || res.MessageID != "msg-1" {
		t.Fatalf("ids = %q/%q", res.ConversationID, res.MessageID)
	}
	if res.Answer != "你好hello world" {
		t.Fatalf("answer = %q", res.Answer)
	}
	if res.TTFB <= 0 || res.TTFT <= 0 {
		t.Fatalf("ttfb=%v ttft=%v, want both positive", res.TTFB, res.TTFT)
	}
	if res.TTFT < res.TTFB {
		t.Fatalf("ttft %v before ttfb %v", res.TTFT, res.TTFB)
	}
	if res.TotalResponseTime < res.TTFT {
		t.Fatalf("total %v shorter than ttft %v", res.TotalResponseTime, res.TTFT)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.calls) != 2 {
		t.Fatalf("sink calls = %d, want 2", len(sink.calls))
	}
	if sink.calls[0] != (sinkCall{workerID: 3, chunks: 1, tokens: 3}) {
		t.Fatalf("first sink call = %+v", sink.calls[0])
	}
}

func TestProbeTPOTFromEvenlySpacedTokens(t *testing.T) {
	const gap = 40 * time.Millisecond
	server := newSSEServer(t, gap,
		`{"answer":"one"}`,
		`{"answer":"two"}`,
		`{"answer":"three"}`,
		`{"answer":"four"}`,
	)
	defer server.Close()

	p := NewProber(server.Client(), server.URL, 5*time.Second)
	res := p.Probe(context.Background(), Request{Query: "q", APIKey: "k"})

	if !res.OK() {
		t.Fatalf("probe failed: %s", res.Err)
	}
	if res.TokenCount != 4 {
		t.Fatalf("token count = %d, want 4", res.TokenCount)
	}
	// Three inter-token gaps over three intervals; TPOT should sit near
	// the per-event delay.
	if res.TPOT < 20 || res.TPOT > 120 {
		t.Fatalf("tpot = %.2f ms, want near %v", res.TPOT, gap)
	}
	if res.StreamingDuration <= 0 {
		t.Fatalf("streaming duration = %.2f", res.StreamingDuration)
	}
	if res.Throughput <= 0 {
		t.Fatalf("throughput = %.2f", res.Throughput)
	}
}

func TestProbeZeroTokens(t *testing.T) {
	server := newSSEServer(t, 0,
		`{"event":"ping"}`,
		`{"event":"message_end"}`,
	)
	defer server.Close()

	p := NewProber(server.Client(), server.URL, 5*time.Second)
	res := p.Probe(context.Background(), Request{Query: "q", APIKey: "k"})

	if !res.OK() {
		t.Fatalf("probe failed: %s", res.Err)
	}
	if res.TokenCount != 0 || res.ChunkCount != 0 {
		t.Fatalf("counts = %d/%d, want 0/0", res.ChunkCount, res.TokenCount)
	}
	if res.TTFT != 0 {
		t.Fatalf("ttft = %v, want 0 with no tokens", res.TTFT)
	}
	if res.TPOT != 0 {
		t.Fatalf("tpot = %v, want 0 with no tokens", res.TPOT)
	}
	if res.Throughput != 0 {
		t.Fatalf("throughput = %v, want 0 with no tokens", res.Throughput)
	}
	if res.TTFB <= 0 {
		t.Fatalf("ttfb = %v, want positive: bytes did arrive", res.TTFB)
	}
}

func TestProbeSingleTokenHasZeroTPOT(t *testing.T) {
	server := newSSEServer(t, 0, `{"answer":"hi"}`)
	defer server.Close()

	p := NewProber(server.Client(), server.URL, 5*time.Second)
	res := p.Probe(context.Background(), Request{Query: "q", APIKey: "k"})

	if !res.OK() {
		t.Fatalf("probe failed: %s", res.Err)
	}
	if res.TokenCount != 1 {
		t.Fatalf("token count = %d, want 1", res.TokenCount)
	}
	if res.TPOT != 0 {
		t.Fatalf("tpot = %v, want 0 for a single token", res.TPOT)
	}
	if res.TTFT <= 0 {
		t.Fatalf("ttft = %v, want positive", res.TTFT)
	}
}

func TestProbeToleratesNoiseLines(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keepalive comment\n\n")
		fmt.Fprint(w, "data: not-json\n\n")
		fmt.Fprint(w, "data:{\"answer\":\"ok\"}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	p := NewProber(server.Client(), server.URL, 5*time.Second)
	res := p.Probe(context.Background(), Request{Query: "q", APIKey: "k"})

	if !res.OK() {
		t.Fatalf("probe failed: %s", res.Err)
	}
	if res.ChunkCount != 1 || res.TokenCount != 1 {
		t.Fatalf("counts = %d/%d, want 1/1", res.ChunkCount, res.TokenCount)
	}
	if res.Answer != "ok" {
		t.Fatalf("answer = %q", res.Answer)
	}
}

func TestProbeHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal failure", http.StatusInternalServerError)
	}))
	defer server.Close()

	p := NewProber(server.Client(), server.URL, 5*time.Second)
	res := p.Probe(context.Background(), Request{Query: "q", APIKey: "k"})

	if res.OK() {
		t.Fatal("expected a failed result")
	}
	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d", res.StatusCode)
	}
	if !strings.Contains(res.Err, "HTTP 500") || !strings.Contains(res.Err, "internal failure") {
		t.Fatalf("err = %q", res.Err)
	}
	if res.TokenCount != 0 {
		t.Fatalf("token count = %d on failed request", res.TokenCount)
	}
	if res.TotalResponseTime <= 0 {
		t.Fatalf("total response time = %v, want positive even on failure", res.TotalResponseTime)
	}
}

func TestProbeConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	p := NewProber(&http.Client{}, url, 2*time.Second)
	res := p.Probe(context.Background(), Request{Query: "q", APIKey: "k"})

	if res.OK() {
		t.Fatal("expected a failed result")
	}
	if res.StatusCode != 0 {
		t.Fatalf("status = %d, want 0 when no response arrived", res.StatusCode)
	}
}

func TestProbeSendsExpectedRequest(t *testing.T) {
	var (
		gotAuth   string
		gotAccept string
		gotBody   string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		fmt.Fprint(w, "data: {\"answer\":\"ok\"}\n\n")
	}))
	defer server.Close()

	p := NewProber(server.Client(), server.URL, 5*time.Second)
	res := p.Probe(context.Background(), Request{
		Query:          "你是谁",
		ConversationID: "conv-9",
		User:           "tester",
		APIKey:         "secret",
	})

	if !res.OK() {
		t.Fatalf("probe failed: %s", res.Err)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotAccept != "text/event-stream" {
		t.Fatalf("accept = %q", gotAccept)
	}
	for _, want := range []string{`"query":"你是谁"`, `"response_mode":"streaming"`, `"conversation_id":"conv-9"`, `"user":"tester"`} {
		if !strings.Contains(gotBody, want) {
			t.Fatalf("body %q missing %q", gotBody, want)
		}
	}
}

func TestBearerToken(t *testing.T) {
	if got := bearerToken("abc"); got != "Bearer abc" {
		t.Fatalf("got %q", got)
	}
	if got := bearerToken("Bearer abc"); got != "Bearer abc" {
		t.Fatalf("got %q", got)
	}
}
