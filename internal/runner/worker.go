package runner

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/gaolou/ssefire/internal/probe"
	"github.com/gaolou/ssefire/internal/provider"
)

// Prober abstracts executing a single streaming probe. Satisfied by
// *probe.Prober; fakes are injected in tests.
type Prober interface {
	Probe(ctx context.Context, req probe.Request) probe.Result
}

// ResultLog is the append-only shared log of finished probe results,
// guarded by its own lock, separate from the aggregation context.
type ResultLog struct {
	mu      sync.Mutex
	results []probe.Result
}

// Append adds one result to the log.
func (l *ResultLog) Append(res probe.Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, res)
}

// Len returns the number of logged results.
func (l *ResultLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.results)
}

// Results returns a copy of the log. Intended for use after all workers have
// joined.
func (l *ResultLog) Results() []probe.Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]probe.Result, len(l.results))
	copy(out, l.results)
	return out
}

// worker owns one thread of execution: it repeatedly drives probes while its
// budget allows, tags results with its ordinal and publishes them.
type worker struct {
	id             int
	mode           RunMode
	prober         Prober
	queries        provider.QuerySource
	keys           provider.KeySource
	conversationID string
	user           string
	log            *ResultLog
	agg            *AggregateContext
	stop           *stopSignal
	deadline       time.Time // zero when mode != ModeDuration
	limiter        *rate.Limiter
}

// run executes the worker loop. The stop predicate is checked only at the
// top of each iteration: a request already in flight always runs to
// completion, so the run may exceed its configured duration by up to one
// request's latency.
func (w *worker) run(ctx context.Context) {
	w.agg.registerWorker(w.id, time.Now())
	defer func() {
		w.agg.markExit(w.id, time.Now())
	}()

	for w.keepGoing() {
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				return
			}
		}

		key := w.keys.NextKey()
		if key == "" {
			// Key source exhausted: clean exit, not an error.
			return
		}

		// The probe is bounded only by its own request timeout; stopping
		// the run must not interrupt an in-flight request.
		res := w.prober.Probe(context.Background(), probe.Request{
			Query:          w.queries.NextQuery(),
			ConversationID: w.conversationID,
			User:           w.user,
			APIKey:         key,
			WorkerID:       w.id,
			Sink:           w.agg,
		})
		res.WorkerID = w.id

		w.log.Append(res)
		w.agg.recordResult(w.id, res)

		if w.mode == ModeSingleShot {
			return
		}
	}
}

func (w *worker) keepGoing() bool {
	if w.stop.stopped() {
		return false
	}
	if w.mode == ModeDuration && !w.deadline.IsZero() && !time.Now().Before(w.deadline) {
		return false
	}
	return true
}

// stopSignal is the shared cooperative stop flag observed by workers and the
// aggregator at their next iteration boundary.
type stopSignal struct {
	once sync.Once
	ch   chan struct{}
}

func newStopSignal() *stopSignal {
	return &stopSignal{ch: make(chan struct{})}
}

func (s *stopSignal) raise() {
	s.once.Do(func() { close(s.ch) })
}

func (s *stopSignal) stopped() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}
