package probe

import "time"

// Result captures the timing and counters of one streaming request. It is
// created once per probe invocation, completed or failed, and is immutable
// afterwards. Failed requests carry Err and keep whatever timestamps and
// counters were accumulated before the failure; their latency metrics are
// excluded from aggregate latency statistics but the record still counts
// toward totals.
type Result struct {
	WorkerID       int    `json:"thread_id"`
	Query          string `json:"query,omitempty"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	StatusCode     int    `json:"response_code"`

	RequestStart time.Time `json:"request_start"`
	ConnectEnd   time.Time `json:"connect_end"`
	FirstByte    time.Time `json:"first_byte"`
	FirstToken   time.Time `json:"first_token"`
	LastByte     time.Time `json:"last_byte"`
	RequestEnd   time.Time `json:"request_end"`

	ChunkCount int    `json:"chunk_count"`
	TokenCount int    `json:"token_count"`
	Answer     string `json:"-"`

	// Derived metrics, milliseconds unless noted. Computed once when the
	// probe finishes; zero when the underlying event never happened.
	ConnectTime       float64 `json:"connect_time"`
	TTFB              float64 `json:"ttfb"`
	TTFT              float64 `json:"ttft"`
	TPOT              float64 `json:"tpot"`
	StreamingDuration float64 `json:"streaming_duration"`
	Throughput        float64 `json:"throughput"` // tokens/sec
	TotalResponseTime float64 `json:"total_response_time"`

	Err string `json:"error,omitempty"`
}

// OK reports whether the request completed without error.
func (r Result) OK() bool { return r.Err == "" }

// finalize computes the derived metrics from the recorded timestamps.
// tokenTimes holds one timestamp per estimated token, in arrival order.
func (r *Result) finalize(tokenTimes []time.Time) {
	if !r.ConnectEnd.IsZero() {
		r.ConnectTime = millisecondsBetween(r.RequestStart, r.ConnectEnd)
	}
	if !r.FirstByte.IsZero() {
		r.TTFB = millisecondsBetween(r.RequestStart, r.FirstByte)
		r.StreamingDuration = millisecondsBetween(r.FirstByte, r.LastByte)
	}
	if !r.FirstToken.IsZero() {
		r.TTFT = millisecondsBetween(r.RequestStart, r.FirstToken)
	}
	if r.TokenCount > 1 && len(tokenTimes) > 1 {
		span := millisecondsBetween(tokenTimes[0], tokenTimes[len(tokenTimes)-1])
		r.TPOT = span / float64(r.TokenCount-1)
	}
	if r.StreamingDuration > 0 && r.TokenCount > 0 {
		r.Throughput = float64(r.TokenCount) / r.StreamingDuration * 1000
	}
	r.TotalResponseTime = millisecondsBetween(r.RequestStart, r.RequestEnd)
}

func millisecondsBetween(from, to time.Time) float64 {
	return float64(to.Sub(from)) / float64(time.Millisecond)
}
