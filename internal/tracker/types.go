package tracker

import (
	"errors"
	"time"
)

// ErrJobTimeout marks an execution that exceeded its time bound. Counted as
// a failed attempt, eligible for retry.
var ErrJobTimeout = errors.New("job execution timed out")

// Status is the lifecycle state of one execution attempt.
type Status string

const (
	StatusRunning  Status = "running"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusRetrying Status = "retrying"
)

// Execution is one recorded job attempt.
type Execution struct {
	ID          string            `json:"id"`
	JobName     string            `json:"job_name"`
	Status      Status            `json:"status"`
	Attempt     int               `json:"attempt"`
	MaxAttempts int               `json:"max_attempts"`
	StartedAt   time.Time         `json:"started_at"`
	EndedAt     time.Time         `json:"ended_at,omitempty"`
	ExitCode    int               `json:"exit_code"`
	TimedOut    bool              `json:"timed_out,omitempty"`
	LogExcerpt  string            `json:"log_excerpt,omitempty"`
	Error       string            `json:"error,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Duration returns the attempt's wall time, zero while still running.
func (e Execution) Duration() time.Duration {
	if e.EndedAt.IsZero() {
		return 0
	}
	return e.EndedAt.Sub(e.StartedAt)
}

// Outcome describes how an attempt finished.
type Outcome struct {
	Success    bool
	ExitCode   int
	TimedOut   bool
	LogExcerpt string
	Err        error
}

// HistoryQuery selects a page of execution history.
type HistoryQuery struct {
	JobName  string // empty = all jobs
	Page     int    // 1-based
	PageSize int
}

// HistoryPage is one page of results, most recent first.
type HistoryPage struct {
	Executions []Execution `json:"executions"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	Total      int         `json:"total"`
}

// Stats aggregates the retained history window.
type Stats struct {
	TotalRuns      int            `json:"total_runs"`
	SuccessRate    float64        `json:"success_rate"`
	MeanDuration   time.Duration  `json:"mean_duration"`
	LastRun        time.Time      `json:"last_run,omitempty"`
	CountsByStatus map[Status]int `json:"counts_by_status"`
}

// Config bounds history retention and storage placement.
type Config struct {
	Path          string
	RetentionRows int           // default 500
	RetentionAge  time.Duration // default 30 days
	StatsWindow   int           // executions considered by Stats, default 1000
}

func (c Config) withDefaults() Config {
	if c.Path == "" {
		c.Path = "state/jobs.db"
	}
	if c.RetentionRows <= 0 {
		c.RetentionRows = 500
	}
	if c.RetentionAge <= 0 {
		c.RetentionAge = 30 * 24 * time.Hour
	}
	if c.StatsWindow <= 0 {
		c.StatsWindow = 1000
	}
	return c
}
