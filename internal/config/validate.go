package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/HananiahKao/daily-manna-email/internal/dispatch"
	"github.com/HananiahKao/daily-manna-email/internal/schedule"
)

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate runs tag validation plus the semantic checks tags cannot express.
// A config that passes here is safe to commit and publish.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if err := structValidator.Struct(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if tz := strings.TrimSpace(cfg.Timezone); tz != "" && tz != schedule.TZName {
		return fmt.Errorf("config: timezone must be %s, got %q", schedule.TZName, tz)
	}

	if _, err := dispatch.ParseRules(cfg.Dispatch.Rules); err != nil {
		return fmt.Errorf("config: dispatch.rules: %w", err)
	}

	durations := []struct{ path, raw string }{
		{"dispatch.poll_interval", cfg.Dispatch.PollInterval},
		{"runner.command_timeout", cfg.Runner.CommandTimeout},
		{"runner.retry_backoff", cfg.Runner.RetryBackoff},
		{"tracker.retention_age", cfg.Tracker.RetentionAge},
		{"replies.poll_interval", cfg.Replies.PollInterval},
		{"content.timeout", cfg.Content.Timeout},
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}

	if level := strings.TrimSpace(cfg.Logging.Level); level != "" {
		switch strings.ToLower(level) {
		case "trace", "debug", "info", "warn", "warning", "error":
		default:
			return fmt.Errorf("config: logging.level: unknown level %q", level)
		}
	}
	if cfg.Logging.Alert.Enabled && len(cfg.Logging.Alert.To) == 0 {
		return fmt.Errorf("config: logging.alert.to is required when alerting is enabled")
	}

	if cfg.Replies.Enabled {
		if strings.TrimSpace(cfg.Replies.Host) == "" {
			return fmt.Errorf("config: replies.host is required when replies are enabled")
		}
		if strings.TrimSpace(cfg.Replies.Username) == "" {
			return fmt.Errorf("config: replies.username is required when replies are enabled")
		}
	}
	return nil
}
