package stats

import (
	"sort"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/gaolou/ssefire/internal/probe"
)

// Distribution summarizes the spread of total response times, in
// milliseconds, backed by an HDR histogram.
type Distribution struct {
	Min  float64 `json:"min_ms"`
	Max  float64 `json:"max_ms"`
	Mean float64 `json:"mean_ms"`
	P50  float64 `json:"p50_ms"`
	P90  float64 `json:"p90_ms"`
	P99  float64 `json:"p99_ms"`
}

// PercentileSet holds the high percentiles of one metric distribution.
type PercentileSet struct {
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// ThreadSummary holds the per-worker averages over successful requests.
type ThreadSummary struct {
	WorkerID        int     `json:"thread_id"`
	Requests        int     `json:"requests"`
	AvgTTFT         float64 `json:"avg_ttft"`
	AvgTPOT         float64 `json:"avg_tpot"`
	AvgTTFB         float64 `json:"avg_ttfb"`
	AvgThroughput   float64 `json:"avg_throughput"`
	AvgResponseTime float64 `json:"avg_response_time"`
}

// Summary aggregates a full run's result list. Failed requests count toward
// totals but are excluded from every latency statistic.
type Summary struct {
	TotalRequests int     `json:"total_requests"`
	Successful    int     `json:"successful"`
	Failed        int     `json:"failed"`
	SuccessRate   float64 `json:"success_rate"`

	TotalChunks       int64   `json:"total_chunks"`
	TotalTokens       int64   `json:"total_tokens"`
	TotalResponseTime float64 `json:"total_response_time_ms"`
	ActualDuration    float64 `json:"actual_duration_s"`

	// Weighted (by per-thread successful request count) averages.
	AvgResponseTime float64 `json:"avg_response_time"`
	AvgTTFB         float64 `json:"avg_ttfb"`
	AvgTTFT         float64 `json:"avg_ttft"`
	AvgTPOT         float64 `json:"avg_tpot"`
	AvgThroughput   float64 `json:"avg_throughput"`

	TTFT PercentileSet `json:"ttft_percentiles"`
	TPOT PercentileSet `json:"tpot_percentiles"`
	TTFB PercentileSet `json:"ttfb_percentiles"`

	ResponseTimes Distribution `json:"response_time_distribution"`

	Threads []ThreadSummary `json:"threads"`
	Errors  []string        `json:"errors,omitempty"`
}

// Summarize computes the final aggregate over the run's result log.
func Summarize(results []probe.Result) Summary {
	s := Summary{}
	s.TotalRequests = len(results)

	// Track latencies from 1µs up to 10min with 3 significant figures.
	hist := hdrhistogram.New(1, 600_000_000, 3)

	perThread := map[int][]probe.Result{}
	var (
		earliestStart time.Time
		latestEnd     time.Time
	)
	for _, r := range results {
		s.TotalChunks += int64(r.ChunkCount)
		s.TotalTokens += int64(r.TokenCount)
		s.TotalResponseTime += r.TotalResponseTime
		if !r.RequestStart.IsZero() && (earliestStart.IsZero() || r.RequestStart.Before(earliestStart)) {
			earliestStart = r.RequestStart
		}
		if r.RequestEnd.After(latestEnd) {
			latestEnd = r.RequestEnd
		}
		if !r.OK() {
			s.Failed++
			s.Errors = append(s.Errors, r.Err)
			continue
		}
		s.Successful++
		perThread[r.WorkerID] = append(perThread[r.WorkerID], r)
		recordMillis(hist, r.TotalResponseTime)
	}
	if s.TotalRequests > 0 {
		s.SuccessRate = float64(s.Successful) / float64(s.TotalRequests) * 100
	}
	if !earliestStart.IsZero() {
		s.ActualDuration = latestEnd.Sub(earliestStart).Seconds()
	}

	var (
		ttftValues []float64
		tpotValues []float64
		ttfbValues []float64
	)
	for id, reqs := range perThread {
		ts := ThreadSummary{WorkerID: id, Requests: len(reqs)}
		for _, r := range reqs {
			ts.AvgTTFT += r.TTFT
			ts.AvgTPOT += r.TPOT
			ts.AvgTTFB += r.TTFB
			ts.AvgThroughput += r.Throughput
			ts.AvgResponseTime += r.TotalResponseTime
			ttftValues = append(ttftValues, r.TTFT)
			tpotValues = append(tpotValues, r.TPOT)
			ttfbValues = append(ttfbValues, r.TTFB)
		}
		n := float64(len(reqs))
		ts.AvgTTFT /= n
		ts.AvgTPOT /= n
		ts.AvgTTFB /= n
		ts.AvgThroughput /= n
		ts.AvgResponseTime /= n
		s.Threads = append(s.Threads, ts)

		// Weighted accumulation: per-thread mean times request count.
		s.AvgTTFT += ts.AvgTTFT * n
		s.AvgTPOT += ts.AvgTPOT * n
		s.AvgTTFB += ts.AvgTTFB * n
		s.AvgThroughput += ts.AvgThroughput * n
		s.AvgResponseTime += ts.AvgResponseTime * n
	}
	if s.Successful > 0 {
		n := float64(s.Successful)
		s.AvgTTFT /= n
		s.AvgTPOT /= n
		s.AvgTTFB /= n
		s.AvgThroughput /= n
		s.AvgResponseTime /= n
	}

	sort.Slice(s.Threads, func(i, j int) bool { return s.Threads[i].WorkerID < s.Threads[j].WorkerID })

	s.TTFT = percentileSet(ttftValues)
	s.TPOT = percentileSet(tpotValues)
	s.TTFB = percentileSet(ttfbValues)

	if hist.TotalCount() > 0 {
		s.ResponseTimes = Distribution{
			Min:  float64(hist.Min()) / 1000,
			Max:  float64(hist.Max()) / 1000,
			Mean: hist.Mean() / 1000,
			P50:  float64(hist.ValueAtQuantile(50)) / 1000,
			P90:  float64(hist.ValueAtQuantile(90)) / 1000,
			P99:  float64(hist.ValueAtQuantile(99)) / 1000,
		}
	}

	return s
}

func percentileSet(values []float64) PercentileSet {
	return PercentileSet{
		P90: Percentile(values, 90),
		P95: Percentile(values, 95),
		P99: Percentile(values, 99),
	}
}

func recordMillis(hist *hdrhistogram.Histogram, ms float64) {
	us := int64(ms * 1000)
	if us < hist.LowestTrackableValue() {
		us = hist.LowestTrackableValue()
	}
	if us > hist.HighestTrackableValue() {
		us = hist.HighestTrackableValue()
	}
	_ = hist.RecordValue(us)
}
