package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds the full test configuration, merged from an optional config
// file and command-line flags.
type Config struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	TargetURL      string        `mapstructure:"target"`
	APIKey         string        `mapstructure:"api_key"`
	APIKeyFile     string        `mapstructure:"api_key_file"`
	Query          string        `mapstructure:"query"`
	ParamFile      string        `mapstructure:"param_file"`
	ConversationID string        `mapstructure:"conversation_id"`
	User           string        `mapstructure:"user"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Threads        int           `mapstructure:"threads"`
	RampUp         time.Duration `mapstructure:"ramp_up"`
	Duration       time.Duration `mapstructure:"duration"`
	Rate           int           `mapstructure:"rate"`
	Retries        int           `mapstructure:"retries"`
	Quiet          bool          `mapstructure:"quiet"`
	JSONOutput     bool          `mapstructure:"json_output"`
	LogErrors      bool          `mapstructure:"log_errors"`
	HTMLReport     string        `mapstructure:"html_report"`
	ModelName      string        `mapstructure:"model_name"`
	ConfigFile     string        `mapstructure:"-"`
}

const chatMessagesPath = "/v1/chat-messages"

// Target returns the streaming endpoint URL: the explicit target when set,
// otherwise host/port composed with the chat-messages path.
func (c Config) Target() string {
	if c.TargetURL != "" {
		return c.TargetURL
	}
	return fmt.Sprintf("http://%s:%d%s", c.Host, c.Port, chatMessagesPath)
}

// ValidationError aggregates all configuration problems found by Validate.
type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

// Issues returns the individual validation problems.
func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	var issues []string

	if strings.TrimSpace(c.TargetURL) == "" && strings.TrimSpace(c.Host) == "" {
		issues = append(issues, "host or target is required")
	}
	if strings.TrimSpace(c.TargetURL) == "" && (c.Port < 1 || c.Port > 65535) {
		issues = append(issues, "port must be between 1 and 65535")
	}
	if strings.TrimSpace(c.APIKey) == "" && strings.TrimSpace(c.APIKeyFile) == "" {
		issues = append(issues, "api-key or api-key-file is required")
	}
	if c.Threads < 1 {
		issues = append(issues, "threads must be >= 1")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.Duration < 0 {
		issues = append(issues, "duration must be >= 0")
	}
	if c.RampUp < 0 {
		issues = append(issues, "ramp-up must be >= 0")
	}
	if c.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}
	if c.Retries < 0 {
		issues = append(issues, "retries must be >= 0")
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}
