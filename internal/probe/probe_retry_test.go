package probe

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gaolou/ssefire/internal/httpclient"
)

// A transient server error must surface as one successful probe whose
// connect phase absorbed the retry backoff, not as a failed result.
func TestProbeRetriesTransientServerErrors(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) <= 2 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"answer\":\"你好\"}\n\n")
	}))
	defer server.Close()

	client := httpclient.NewRetryingClient(5*time.Second, 3)
	p := NewProber(client, server.URL, 5*time.Second)
	res := p.Probe(context.Background(), Request{Query: "q", APIKey: "k"})

	if !res.OK() {
		t.Fatalf("probe failed after retries: %s", res.Err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
	if res.TokenCount != 3 {
		t.Fatalf("token count = %d, want 3", res.TokenCount)
	}
	// Two backoff waits (100ms then 200ms base) happen before the
	// successful attempt, all inside the connect phase.
	if res.ConnectTime < 290 {
		t.Fatalf("connect time = %.2f ms, expected the retry backoff inside it", res.ConnectTime)
	}
}
