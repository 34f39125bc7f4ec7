package runner

import (
	"sync"
	"time"

	"github.com/gaolou/ssefire/internal/probe"
)

// ThreadState is the in-flight progress of one worker. It is mutated only by
// the owning worker (through RecordProgress) and read by the aggregator, both
// under the context lock. Counters are cumulative for the whole run and are
// never reset between requests.
type ThreadState struct {
	StartTime  time.Time
	Chunks     int64
	Tokens     int64
	LastUpdate time.Time

	registered bool
}

// RequestSample holds the finalized metrics of one successful request,
// appended on completion and used by the aggregator in preference to the
// in-flight approximation.
type RequestSample struct {
	TTFT              float64
	TPOT              float64
	TTFB              float64
	Throughput        float64
	TotalResponseTime float64
	TokenCount        int
	ChunkCount        int
}

// Snapshot is one immutable point-in-time aggregate, appended to the run's
// time series on every aggregator tick.
type Snapshot struct {
	Timestamp       time.Time `json:"timestamp"`
	ActiveThreads   int       `json:"active_threads"`
	TotalThreads    int       `json:"total_threads"`
	TotalRequests   int64     `json:"total_requests"`
	SuccessRequests int64     `json:"success_requests"`
	FailedRequests  int64     `json:"failed_requests"`
	TotalChunks     int64     `json:"total_chunks"`
	TotalTokens     int64     `json:"total_tokens"`
	AvgResponseTime float64   `json:"avg_response_time"`
	TPOT            float64   `json:"tpot"`
	TokensPerSecond float64   `json:"tokens_per_second"`
	SuccessRate     float64   `json:"success_rate"`

	// Approximate marks a snapshot derived from in-flight counters because
	// no request had completed anywhere yet.
	Approximate bool `json:"approximate"`
}

// AggregateContext is the shared state merged by the aggregator: a fixed-size
// arena of per-worker running state, per-worker completed-request samples,
// run counters and the snapshot time series. Worker count is known at start,
// so workers are addressed by ordinal. All fields are guarded by mu; holders
// must not perform I/O under the lock.
type AggregateContext struct {
	mu        sync.Mutex
	threads   []ThreadState
	completed [][]RequestSample
	requests  int64
	success   int64
	fail      int64
	series    []Snapshot
}

// NewAggregateContext creates the shared aggregation state for the given
// worker count.
func NewAggregateContext(workers int) *AggregateContext {
	if workers < 1 {
		workers = 1
	}
	return &AggregateContext{
		threads:   make([]ThreadState, workers),
		completed: make([][]RequestSample, workers),
	}
}

// RecordProgress implements probe.ProgressSink: it folds one fragment's worth
// of in-flight progress into the worker's running state.
func (a *AggregateContext) RecordProgress(workerID int, chunks, tokens int, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if workerID < 0 || workerID >= len(a.threads) {
		return
	}
	state := &a.threads[workerID]
	if !state.registered {
		state.registered = true
		state.StartTime = at
	}
	state.Chunks += int64(chunks)
	state.Tokens += int64(tokens)
	state.LastUpdate = at
}

// registerWorker marks a worker as active before its first request.
func (a *AggregateContext) registerWorker(workerID int, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if workerID < 0 || workerID >= len(a.threads) {
		return
	}
	state := &a.threads[workerID]
	if !state.registered {
		state.registered = true
		state.StartTime = at
	}
	state.LastUpdate = at
}

// markExit refreshes the worker's last-update stamp when its loop ends, so
// elapsed-time bookkeeping covers the full worker lifetime.
func (a *AggregateContext) markExit(workerID int, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if workerID < 0 || workerID >= len(a.threads) {
		return
	}
	if a.threads[workerID].registered {
		a.threads[workerID].LastUpdate = at
	}
}

// recordResult updates the run counters for one finished request and, on
// success, appends its finalized metrics to the worker's sample list.
func (a *AggregateContext) recordResult(workerID int, res probe.Result) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.requests++
	if !res.OK() {
		a.fail++
		return
	}
	a.success++
	if workerID < 0 || workerID >= len(a.completed) {
		return
	}
	a.completed[workerID] = append(a.completed[workerID], RequestSample{
		TTFT:              res.TTFT,
		TPOT:              res.TPOT,
		TTFB:              res.TTFB,
		Throughput:        res.Throughput,
		TotalResponseTime: res.TotalResponseTime,
		TokenCount:        res.TokenCount,
		ChunkCount:        res.ChunkCount,
	})
}

// Counts returns the running request counters.
func (a *AggregateContext) Counts() (requests, success, fail int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.requests, a.success, a.fail
}

// Series returns a copy of the snapshot time series. Safe to call once the
// run has stopped, or at any time for a consistent prefix.
func (a *AggregateContext) Series() []Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Snapshot, len(a.series))
	copy(out, a.series)
	return out
}

// snapshot computes one aggregate over the current shared state and appends
// it to the time series. Returns false without appending when no worker has
// registered yet.
//
// Derivation order: once any thread has a finalized completed request, the
// averages are the per-thread means weighted by request count and the token
// rate uses completed tokens only. Until then the coarser in-flight
// approximation is used so operators still see a live number during ramp-up.
func (a *AggregateContext) snapshot(now time.Time) (Snapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	active := 0
	var (
		earliestStart time.Time
		latestUpdate  time.Time
		totalChunks   int64
		totalTokens   int64
	)
	for i := range a.threads {
		state := &a.threads[i]
		if !state.registered {
			continue
		}
		active++
		if earliestStart.IsZero() || state.StartTime.Before(earliestStart) {
			earliestStart = state.StartTime
		}
		if state.LastUpdate.After(latestUpdate) {
			latestUpdate = state.LastUpdate
		}
		totalChunks += state.Chunks
		totalTokens += state.Tokens
	}
	if active == 0 {
		return Snapshot{}, false
	}
	if latestUpdate.Before(earliestStart) {
		latestUpdate = earliestStart
	}

	elapsedMs := float64(latestUpdate.Sub(earliestStart)) / float64(time.Millisecond)
	if elapsedMs < 1 {
		elapsedMs = 1
	}

	var (
		completedRequests int64
		completedTokens   int64
		completedChunks   int64
		weightedResponse  float64
		weightedTPOT      float64
	)
	for _, samples := range a.completed {
		if len(samples) == 0 {
			continue
		}
		// Per-thread mean weighted by the thread's request count: the
		// weights cancel into a plain sum over samples.
		for _, s := range samples {
			weightedResponse += s.TotalResponseTime
			weightedTPOT += s.TPOT
			completedTokens += int64(s.TokenCount)
			completedChunks += int64(s.ChunkCount)
		}
		completedRequests += int64(len(samples))
	}

	snap := Snapshot{
		Timestamp:       now,
		ActiveThreads:   active,
		TotalThreads:    len(a.threads),
		TotalRequests:   a.requests,
		SuccessRequests: a.success,
		FailedRequests:  a.fail,
		TotalTokens:     totalTokens,
	}

	if completedRequests > 0 {
		snap.AvgResponseTime = weightedResponse / float64(completedRequests)
		snap.TPOT = weightedTPOT / float64(completedRequests)
		snap.TokensPerSecond = float64(completedTokens) * 1000 / elapsedMs
	} else {
		snap.Approximate = true
		if totalChunks > 0 {
			snap.AvgResponseTime = elapsedMs / float64(totalChunks)
		}
		if totalTokens > 1 {
			snap.TPOT = elapsedMs / float64(totalTokens-1)
		}
		snap.TokensPerSecond = float64(totalTokens) * 1000 / elapsedMs
	}

	// Prefer chunk counts from finalized requests once any exist.
	if completedChunks > 0 {
		snap.TotalChunks = completedChunks
	} else {
		snap.TotalChunks = totalChunks
	}

	if a.requests > 0 {
		snap.SuccessRate = float64(a.success) / float64(a.requests) * 100
	}

	a.series = append(a.series, snap)
	return snap, true
}
