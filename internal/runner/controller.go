package runner

import (
	"context"
	"io"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/gaolou/ssefire/internal/probe"
	"github.com/gaolou/ssefire/internal/provider"
)

// RunMode selects how workers decide when to stop.
type RunMode int

const (
	// ModeSingleShot runs exactly one probe per worker.
	ModeSingleShot RunMode = iota
	// ModeDuration loops until the configured deadline or the stop signal.
	ModeDuration
	// ModeExternal loops until the caller's context is cancelled.
	ModeExternal
)

// Options configure a Controller.
type Options struct {
	Workers        int
	Mode           RunMode
	Duration       time.Duration // required for ModeDuration
	RampUp         time.Duration // staggered worker start window
	RatePerSecond  int           // request pacing shared by workers (0 = unpaced)
	TickInterval   time.Duration // aggregator tick, defaults to 1s
	ConversationID string
	User           string
	Queries        provider.QuerySource
	Keys           provider.KeySource
	Prober         Prober
	ProgressWriter io.Writer // nil silences progress lines
}

func (o *Options) normalize() {
	if o.Workers < 1 {
		o.Workers = 1
	}
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
}

// ModeFor derives the run mode from the configured duration: a positive
// duration means duration-bounded, otherwise single-shot. ModeExternal must
// be requested explicitly by callers that drive the stop themselves.
func ModeFor(duration time.Duration) RunMode {
	if duration > 0 {
		return ModeDuration
	}
	return ModeSingleShot
}

// Result is the outcome of one run: the full probe result log and the
// aggregator's snapshot time series.
type Result struct {
	Results  []probe.Result
	Series   []Snapshot
	Duration time.Duration
}

// Controller wires providers, workers and the aggregator together and
// enforces the overall run budget.
type Controller struct {
	opt Options
	agg *AggregateContext
	log *ResultLog
}

// New creates a Controller with the given options.
func New(opt Options) *Controller {
	opt.normalize()
	return &Controller{
		opt: opt,
		agg: NewAggregateContext(opt.Workers),
		log: &ResultLog{},
	}
}

// Context exposes the aggregation context, mainly for reporting.
func (c *Controller) Context() *AggregateContext { return c.agg }

// Run spawns the workers (staggered over the ramp-up window), starts the
// aggregator and the duration timer, joins everything and returns the
// collected results. Cancelling ctx raises the stop signal; an in-flight
// probe still runs to completion.
func (c *Controller) Run(ctx context.Context) Result {
	start := time.Now()
	stop := newStopSignal()

	agg := NewAggregator(c.agg, c.opt.TickInterval, c.opt.ProgressWriter)
	agg.Start()
	defer agg.Stop()

	var deadline time.Time
	if c.opt.Mode == ModeDuration && c.opt.Duration > 0 {
		deadline = start.Add(c.opt.Duration)
		timer := time.AfterFunc(c.opt.Duration, stop.raise)
		defer timer.Stop()
	}

	// Propagate external cancellation into the cooperative stop flag.
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			stop.raise()
		case <-watchDone:
		}
	}()
	defer close(watchDone)

	var limiter *rate.Limiter
	if c.opt.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(c.opt.RatePerSecond), c.opt.RatePerSecond)
	}

	rampStep := time.Duration(0)
	if c.opt.RampUp > 0 && c.opt.Workers > 1 {
		rampStep = c.opt.RampUp / time.Duration(c.opt.Workers)
	}

	var wg sync.WaitGroup
	for i := 0; i < c.opt.Workers; i++ {
		if rampStep > 0 && i > 0 {
			select {
			case <-time.After(rampStep):
			case <-stop.ch:
			}
		}
		if stop.stopped() {
			break
		}

		w := &worker{
			id:             i,
			mode:           c.opt.Mode,
			prober:         c.opt.Prober,
			queries:        c.opt.Queries,
			keys:           c.opt.Keys,
			conversationID: c.opt.ConversationID,
			user:           c.opt.User,
			log:            c.log,
			agg:            c.agg,
			stop:           stop,
			deadline:       deadline,
			limiter:        limiter,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.run(ctx)
		}()
	}
	wg.Wait()
	stop.raise()

	return Result{
		Results:  c.log.Results(),
		Series:   c.agg.Series(),
		Duration: time.Since(start),
	}
}
