package config

import (
	"github.com/HananiahKao/daily-manna-email/internal/dispatch"
)

type Config struct {
	// Timezone is informational; the engine always runs in Asia/Taipei.
	// When set it must match, so a stale value cannot mislead an operator.
	Timezone string `json:"timezone,omitempty"`

	Logging LoggingConfig `json:"logging"`
	State   StateConfig   `json:"state,omitempty"`

	Dispatch DispatchConfig `json:"dispatch"`
	Runner   RunnerConfig   `json:"runner,omitempty"`
	Tracker  TrackerConfig  `json:"tracker,omitempty"`

	SMTP    SMTPConfig    `json:"smtp"`
	Send    SendConfig    `json:"send"`
	Replies RepliesConfig `json:"replies,omitempty"`
	Content ContentConfig `json:"content"`

	Metrics MetricsConfig `json:"metrics,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Alert   LoggingMail `json:"alert,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingMail forwards warnings and errors to the operator's inbox.
type LoggingMail struct {
	Enabled    bool     `json:"enabled"`
	MinLevel   string   `json:"min_level,omitempty"`
	RatePerMin int      `json:"rate_per_min,omitempty"`
	To         []string `json:"to,omitempty"`
	Subject    string   `json:"subject,omitempty"`
}

// StateConfig overrides the on-disk state locations.
type StateConfig struct {
	SchedulePath      string `json:"schedule_path,omitempty"`
	DispatchStatePath string `json:"dispatch_state_path,omitempty"`
	SummaryDir        string `json:"summary_dir,omitempty"`
}

// DispatchConfig controls the recurring-job clock.
//
// PollInterval is a Go duration string (e.g. "5m"). Rules replace the
// built-in daily-send and weekly-summary defaults when present.
type DispatchConfig struct {
	Enabled      bool                  `json:"enabled"`
	PollInterval string                `json:"poll_interval,omitempty"`
	Rules        []dispatch.RuleConfig `json:"rules,omitempty"`
}

// RunnerConfig bounds rule command execution. Durations are Go duration
// strings.
type RunnerConfig struct {
	CommandTimeout string `json:"command_timeout,omitempty"`
	RetryBackoff   string `json:"retry_backoff,omitempty"`
}

// TrackerConfig controls execution history retention.
type TrackerConfig struct {
	Path          string `json:"path,omitempty"`
	RetentionRows int    `json:"retention_rows,omitempty" validate:"gte=0"`
	RetentionAge  string `json:"retention_age,omitempty"`
	StatsWindow   int    `json:"stats_window,omitempty" validate:"gte=0"`
}

type SMTPConfig struct {
	Host     string `json:"host" validate:"required"`
	Port     int    `json:"port,omitempty" validate:"gte=0,lte=65535"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	UseSSL   bool   `json:"use_ssl,omitempty"`
	From     string `json:"from" validate:"required,email"`
}

// SendConfig addresses the daily lesson mail and the weekly digest.
type SendConfig struct {
	To            []string `json:"to" validate:"required,min=1,dive,email"`
	SubjectPrefix string   `json:"subject_prefix,omitempty"`
}

// RepliesConfig controls inbound command processing over IMAP.
type RepliesConfig struct {
	Enabled        bool     `json:"enabled"`
	Host           string   `json:"host,omitempty"`
	Port           int      `json:"port,omitempty" validate:"gte=0,lte=65535"`
	Username       string   `json:"username,omitempty"`
	Password       string   `json:"password,omitempty"`
	UseSSL         bool     `json:"use_ssl,omitempty"`
	AllowedSenders []string `json:"allowed_senders,omitempty" validate:"dive,email"`
	// PollInterval is a Go duration string; empty reuses dispatch polling.
	PollInterval string `json:"poll_interval,omitempty"`
	// Confirm sends an outcome report back to the sender after applying.
	Confirm bool `json:"confirm,omitempty"`
}

// ContentConfig names the external command that resolves a selector to
// lesson material. Timeout is a Go duration string.
type ContentConfig struct {
	Command []string `json:"command" validate:"required,min=1"`
	Timeout string   `json:"timeout,omitempty"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:9290"
}
