package stats

import (
	"math"
	"testing"
	"time"

	"github.com/gaolou/ssefire/internal/probe"
)

func okResult(worker int, start time.Time, responseMs, ttft, tpot float64, tokens int) probe.Result {
	return probe.Result{
		WorkerID:          worker,
		StatusCode:        200,
		RequestStart:      start,
		RequestEnd:        start.Add(time.Duration(responseMs) * time.Millisecond),
		TokenCount:        tokens,
		ChunkCount:        tokens,
		TTFT:              ttft,
		TPOT:              tpot,
		TTFB:              ttft / 2,
		Throughput:        float64(tokens),
		TotalResponseTime: responseMs,
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	if s.TotalRequests != 0 || s.Successful != 0 || s.Failed != 0 {
		t.Fatalf("unexpected counts: %+v", s)
	}
	if s.SuccessRate != 0 || s.ActualDuration != 0 {
		t.Fatalf("rates should be zero: %+v", s)
	}
	if len(s.Threads) != 0 {
		t.Fatalf("threads = %d", len(s.Threads))
	}
}

func TestSummarizeCountsAndRates(t *testing.T) {
	base := time.Now()
	results := []probe.Result{
		okResult(0, base, 100, 50, 10, 5),
		okResult(0, base.Add(time.Second), 300, 70, 30, 5),
		okResult(1, base.Add(500*time.Millisecond), 200, 60, 20, 10),
		{WorkerID: 1, RequestStart: base, RequestEnd: base.Add(time.Second), Err: "HTTP 500: boom"},
	}

	s := Summarize(results)

	if s.TotalRequests != 4 || s.Successful != 3 || s.Failed != 1 {
		t.Fatalf("counts = %d/%d/%d", s.TotalRequests, s.Successful, s.Failed)
	}
	if s.SuccessRate != 75 {
		t.Fatalf("success rate = %v", s.SuccessRate)
	}
	if s.TotalTokens != 20 {
		t.Fatalf("tokens = %d", s.TotalTokens)
	}
	if len(s.Errors) != 1 || s.Errors[0] != "HTTP 500: boom" {
		t.Fatalf("errors = %v", s.Errors)
	}

	// Weighted average over successful requests: the per-thread weights
	// cancel into a plain mean over all successes.
	if math.Abs(s.AvgResponseTime-200) > 1e-9 {
		t.Fatalf("avg response = %v, want 200", s.AvgResponseTime)
	}
	if math.Abs(s.AvgTTFT-60) > 1e-9 {
		t.Fatalf("avg ttft = %v, want 60", s.AvgTTFT)
	}
	if math.Abs(s.AvgTPOT-20) > 1e-9 {
		t.Fatalf("avg tpot = %v, want 20", s.AvgTPOT)
	}
}

func TestSummarizeActualDurationSpansAllRequests(t *testing.T) {
	base := time.Now()
	results := []probe.Result{
		okResult(0, base, 100, 10, 0, 1),
		okResult(1, base.Add(2*time.Second), 500, 10, 0, 1),
	}

	s := Summarize(results)
	// earliest start to latest end: 2s + 500ms.
	if math.Abs(s.ActualDuration-2.5) > 0.001 {
		t.Fatalf("actual duration = %v s, want 2.5", s.ActualDuration)
	}
}

func TestSummarizeThreadsSortedAndAveraged(t *testing.T) {
	base := time.Now()
	results := []probe.Result{
		okResult(2, base, 400, 40, 4, 2),
		okResult(0, base, 100, 10, 1, 2),
		okResult(0, base, 200, 20, 2, 2),
	}

	s := Summarize(results)

	if len(s.Threads) != 2 {
		t.Fatalf("threads = %d, want 2", len(s.Threads))
	}
	if s.Threads[0].WorkerID != 0 || s.Threads[1].WorkerID != 2 {
		t.Fatalf("thread order = %d,%d", s.Threads[0].WorkerID, s.Threads[1].WorkerID)
	}
	if s.Threads[0].Requests != 2 || s.Threads[0].AvgResponseTime != 150 {
		t.Fatalf("thread 0 = %+v", s.Threads[0])
	}
	if s.Threads[1].Requests != 1 || s.Threads[1].AvgResponseTime != 400 {
		t.Fatalf("thread 2 = %+v", s.Threads[1])
	}
}

func TestSummarizeFailedExcludedFromLatency(t *testing.T) {
	base := time.Now()
	results := []probe.Result{
		okResult(0, base, 100, 50, 5, 3),
		{WorkerID: 0, RequestStart: base, RequestEnd: base.Add(time.Minute), TotalResponseTime: 60000, Err: "timeout"},
	}

	s := Summarize(results)

	if s.AvgResponseTime != 100 {
		t.Fatalf("avg response = %v, failed request leaked into latency", s.AvgResponseTime)
	}
	if s.Threads[0].Requests != 1 {
		t.Fatalf("thread requests = %d, want successes only", s.Threads[0].Requests)
	}
}

func TestSummarizeDistribution(t *testing.T) {
	base := time.Now()
	var results []probe.Result
	for i := 1; i <= 100; i++ {
		results = append(results, okResult(0, base, float64(i*10), 5, 1, 1))
	}

	s := Summarize(results)

	if s.ResponseTimes.Min > s.ResponseTimes.P50 || s.ResponseTimes.P50 > s.ResponseTimes.P99 {
		t.Fatalf("distribution out of order: %+v", s.ResponseTimes)
	}
	// HDR histogram keeps 3 significant figures.
	if math.Abs(s.ResponseTimes.Min-10) > 1 {
		t.Fatalf("min = %v, want ~10", s.ResponseTimes.Min)
	}
	if math.Abs(s.ResponseTimes.Max-1000) > 10 {
		t.Fatalf("max = %v, want ~1000", s.ResponseTimes.Max)
	}
	if math.Abs(s.ResponseTimes.Mean-505) > 10 {
		t.Fatalf("mean = %v, want ~505", s.ResponseTimes.Mean)
	}
}
