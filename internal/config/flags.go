package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ssefire",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Target flags
	flags.String("host", "localhost", "Server host address")
	flags.Int("port", 80, "Server port")
	flags.String("target", "", "Full streaming endpoint URL (overrides host/port)")
	flags.String("api-key", "", "API key ('app-xxx' or 'Bearer app-xxx')")
	flags.String("api-key-file", "", "Path to file with one API key per line, cycled round-robin")

	// Request flags
	flags.StringP("query", "q", "你是谁", "Query text (ignored when a parameter file is used)")
	flags.String("param-file", "", "Path to file with one query per line, cycled round-robin")
	flags.String("conversation-id", "", "Conversation ID to attach to every request")
	flags.String("user", "gaolou", "User identifier sent with every request")
	flags.Duration("timeout", 60*time.Second, "Per-request timeout")
	flags.Int("retries", 3, "Transport retries on 429/5xx responses")

	// Load control flags
	flags.IntP("threads", "t", 1, "Number of concurrent workers")
	flags.Duration("ramp-up", 0, "Window over which worker starts are staggered")
	flags.DurationP("duration", "d", 0, "How long to run (0 means one request per worker)")
	flags.IntP("rate", "r", 0, "Requests per second pacing (0 means unpaced)")

	// Output flags
	flags.Bool("quiet", false, "Suppress per-tick progress output")
	flags.Bool("json-output", false, "Emit the final summary as JSON")
	flags.Bool("log-errors", false, "Log each failed request to stderr")
	flags.String("html-report", "", "HTML report output path (default: report/report_<timestamp>.html)")
	flags.String("model-name", "", "Model name included in the report filename")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config,
// overriding values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	stringFlags := map[string]*string{
		"host":            &cfg.Host,
		"target":          &cfg.TargetURL,
		"api-key":         &cfg.APIKey,
		"api-key-file":    &cfg.APIKeyFile,
		"query":           &cfg.Query,
		"param-file":      &cfg.ParamFile,
		"conversation-id": &cfg.ConversationID,
		"user":            &cfg.User,
		"html-report":     &cfg.HTMLReport,
		"model-name":      &cfg.ModelName,
	}
	for name, dst := range stringFlags {
		if fs.Changed(name) {
			val, err := fs.GetString(name)
			if err != nil {
				return err
			}
			*dst = val
		}
	}

	intFlags := map[string]*int{
		"port":    &cfg.Port,
		"threads": &cfg.Threads,
		"rate":    &cfg.Rate,
		"retries": &cfg.Retries,
	}
	for name, dst := range intFlags {
		if fs.Changed(name) {
			val, err := fs.GetInt(name)
			if err != nil {
				return err
			}
			*dst = val
		}
	}

	durationFlags := map[string]*time.Duration{
		"timeout":  &cfg.Timeout,
		"ramp-up":  &cfg.RampUp,
		"duration": &cfg.Duration,
	}
	for name, dst := range durationFlags {
		if fs.Changed(name) {
			val, err := fs.GetDuration(name)
			if err != nil {
				return err
			}
			*dst = val
		}
	}

	boolFlags := map[string]*bool{
		"quiet":       &cfg.Quiet,
		"json-output": &cfg.JSONOutput,
		"log-errors":  &cfg.LogErrors,
	}
	for name, dst := range boolFlags {
		if fs.Changed(name) {
			val, err := fs.GetBool(name)
			if err != nil {
				return err
			}
			*dst = val
		}
	}

	return nil
}
