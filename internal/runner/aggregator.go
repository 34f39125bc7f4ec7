package runner

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// Aggregator ticks on a fixed interval, merges per-worker state into one
// Snapshot appended to the time series and prints a progress line. Between
// ticks it performs no work.
type Aggregator struct {
	ctx      *AggregateContext
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
	header   bool
}

// NewAggregator creates an aggregator over ctx updating at the given
// interval. Progress lines go to writer; pass io.Discard (or nil) to run
// silently while still building the time series.
func NewAggregator(ctx *AggregateContext, interval time.Duration, writer io.Writer) *Aggregator {
	if writer == nil {
		writer = io.Discard
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Aggregator{
		ctx:      ctx,
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
	}
}

// Start begins ticking in a background goroutine.
func (a *Aggregator) Start() {
	if !atomic.CompareAndSwapInt32(&a.active, 0, 1) {
		return // already running
	}
	go a.run()
}

// Stop halts ticking and waits for the aggregation goroutine to exit.
func (a *Aggregator) Stop() {
	if atomic.CompareAndSwapInt32(&a.active, 1, 0) {
		close(a.done)
		a.ticker.Stop()
		<-a.finished
	}
}

func (a *Aggregator) run() {
	defer close(a.finished)
	for {
		select {
		case <-a.ticker.C:
			snap, ok := a.ctx.snapshot(time.Now())
			if !ok {
				continue // no worker registered yet
			}
			a.printLine(snap)
		case <-a.done:
			return
		}
	}
}

func (a *Aggregator) printLine(snap Snapshot) {
	if !a.header {
		fmt.Fprintf(a.writer, "%-10s %-16s %12s %22s %22s %22s %14s\n",
			"Time", "Threads", "Chunks", "Avg Response (ms)", "TPOT (ms/token)", "Tokens/s", "Success (%)")
		a.header = true
	}
	fmt.Fprintf(a.writer, "%-10s %-16s %12d %22.2f %22.2f %22.2f %14.2f\n",
		snap.Timestamp.Format("15:04:05"),
		fmt.Sprintf("%d/%d", snap.ActiveThreads, snap.TotalThreads),
		snap.TotalChunks,
		snap.AvgResponseTime,
		snap.TPOT,
		snap.TokensPerSecond,
		snap.SuccessRate,
	)
}
