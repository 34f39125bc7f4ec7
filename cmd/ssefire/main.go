package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/oklog/ulid/v2"

	"github.com/gaolou/ssefire/internal/config"
	"github.com/gaolou/ssefire/internal/httpclient"
	"github.com/gaolou/ssefire/internal/output"
	"github.com/gaolou/ssefire/internal/probe"
	"github.com/gaolou/ssefire/internal/provider"
	"github.com/gaolou/ssefire/internal/runner"
	"github.com/gaolou/ssefire/internal/stats"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	queries := provider.NewQueryProvider(cfg.ParamFile, cfg.Query)
	keys := provider.NewKeyProvider(cfg.APIKeyFile, cfg.APIKey)

	if cfg.ParamFile != "" && !cfg.Quiet {
		fmt.Printf("Loaded parameter file: %s (%d queries)\n\n", cfg.ParamFile, queries.Len())
	}

	client := httpclient.NewRetryingClient(cfg.Timeout, cfg.Retries)
	prober := probe.NewProber(client, cfg.Target(), cfg.Timeout)

	var wrapped runner.Prober = prober
	if cfg.LogErrors {
		wrapped = &loggingProber{inner: prober}
	}

	var progress io.Writer
	if !cfg.Quiet && !cfg.JSONOutput {
		progress = os.Stdout
	}

	ctrl := runner.New(runner.Options{
		Workers:        cfg.Threads,
		Mode:           runner.ModeFor(cfg.Duration),
		Duration:       cfg.Duration,
		RampUp:         cfg.RampUp,
		RatePerSecond:  cfg.Rate,
		ConversationID: cfg.ConversationID,
		User:           cfg.User,
		Queries:        queries,
		Keys:           keys,
		Prober:         wrapped,
		ProgressWriter: progress,
	})

	if !cfg.Quiet {
		fmt.Printf("Starting test: %d thread(s) against %s\n", cfg.Threads, cfg.Target())
		if cfg.Duration > 0 {
			fmt.Printf("Run duration: %s\n", cfg.Duration)
		} else {
			fmt.Println("Run mode: single shot (one request per thread)")
		}
		fmt.Println()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	result := ctrl.Run(ctx)
	summary := stats.Summarize(result.Results)

	if cfg.JSONOutput {
		if err := output.PrintJSONReport(os.Stdout, summary); err != nil {
			return err
		}
	} else {
		output.PrintReport(os.Stdout, summary)
	}

	metadata := output.ReportMetadata{
		RunID:     ulid.Make().String(),
		Target:    cfg.Target(),
		Threads:   cfg.Threads,
		Duration:  cfg.Duration,
		ModelName: cfg.ModelName,
	}
	reportPath, err := output.WriteHTMLReport(cfg.HTMLReport, summary, result.Series, result.Results, metadata)
	if err != nil {
		return err
	}
	if !cfg.Quiet {
		fmt.Printf("\nHTML report written to %s\n", reportPath)
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d requests failed", summary.Failed)
	}
	return nil
}

// loggingProber logs each failed probe to stderr without altering results.
type loggingProber struct {
	inner runner.Prober
}

func (l *loggingProber) Probe(ctx context.Context, req probe.Request) probe.Result {
	res := l.inner.Probe(ctx, req)
	if !res.OK() {
		fmt.Fprintf(os.Stderr, "[ssefire] request failed: %s\n", res.Err)
	}
	return res
}
