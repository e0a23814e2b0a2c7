// Package tracker records job execution attempts, outcomes, and retries in
// an append-only sqlite history with bounded retention.
package tracker

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/HananiahKao/daily-manna-email/internal/metrics"
	"github.com/HananiahKao/daily-manna-email/internal/schedule"
	logx "github.com/HananiahKao/daily-manna-email/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Tracker owns the execution history store.
type Tracker struct {
	db  *sql.DB
	cfg Config
	log logx.Logger

	opCount    atomic.Uint64
	pruneEvery uint64
}

// Open initializes the sqlite-backed tracker at cfg.Path.
func Open(cfg Config, log logx.Logger) (*Tracker, error) {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA busy_timeout = 5000")

	t := &Tracker{db: db, cfg: cfg, log: log, pruneEvery: 50}
	if err := t.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return t, nil
}

func (t *Tracker) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = t.db.ExecContext(ctx, string(b))
	return err
}

func (t *Tracker) Close() error {
	if t == nil || t.db == nil {
		return nil
	}
	return t.db.Close()
}

// Start records a new running attempt and returns its execution id.
func (t *Tracker) Start(ctx context.Context, jobName string, attempt, maxAttempts int, metadata map[string]string) (string, error) {
	if attempt < 1 {
		attempt = 1
	}
	if maxAttempts < attempt {
		maxAttempts = attempt
	}
	id := uuid.NewString()
	meta := ""
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			return "", err
		}
		meta = string(b)
	}
	now := time.Now().In(schedule.Location())
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO executions(id, job_name, status, attempt, max_attempts, started_at, timed_out, meta)
		 VALUES(?,?,?,?,?,?,0,?)`,
		id, jobName, string(StatusRunning), attempt, maxAttempts, now.Format(time.RFC3339Nano), nullStr(meta),
	)
	if err != nil {
		return "", err
	}
	t.maybePrune()
	return id, nil
}

// Complete finishes an attempt. A failure with attempts remaining becomes
// retrying; an exhausted one is terminally failed. The resulting status is
// returned so the caller can decide whether to re-invoke Start.
func (t *Tracker) Complete(ctx context.Context, id string, outcome Outcome) (Status, error) {
	var attempt, maxAttempts int
	var jobName, startedRaw string
	err := t.db.QueryRowContext(ctx,
		`SELECT job_name, attempt, max_attempts, started_at FROM executions WHERE id = ?`, id,
	).Scan(&jobName, &attempt, &maxAttempts, &startedRaw)
	if err != nil {
		return "", fmt.Errorf("unknown execution %s: %w", id, err)
	}

	status := StatusSuccess
	if !outcome.Success {
		if attempt < maxAttempts {
			status = StatusRetrying
		} else {
			status = StatusFailed
		}
	}

	errText := ""
	if outcome.Err != nil {
		errText = outcome.Err.Error()
	}
	now := time.Now().In(schedule.Location())
	_, err = t.db.ExecContext(ctx,
		`UPDATE executions
		 SET status = ?, ended_at = ?, exit_code = ?, timed_out = ?, log_excerpt = ?, err = ?
		 WHERE id = ?`,
		string(status), now.Format(time.RFC3339Nano), outcome.ExitCode,
		boolInt(outcome.TimedOut), nullStr(truncateExcerpt(outcome.LogExcerpt)), nullStr(errText), id,
	)
	if err != nil {
		return "", err
	}

	if started, parseErr := time.Parse(time.RFC3339Nano, startedRaw); parseErr == nil {
		metrics.ObserveExecution(jobName, string(status), now.Sub(started))
	}
	t.maybePrune()
	return status, nil
}

// History pages through executions, most recent first.
func (t *Tracker) History(ctx context.Context, q HistoryQuery) (HistoryPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 20
	}

	where, args := "", []any{}
	if strings.TrimSpace(q.JobName) != "" {
		where = " WHERE job_name = ?"
		args = append(args, q.JobName)
	}

	page := HistoryPage{Page: q.Page, PageSize: q.PageSize}
	if err := t.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM executions"+where, args...).Scan(&page.Total); err != nil {
		return HistoryPage{}, err
	}

	rows, err := t.db.QueryContext(ctx,
		`SELECT id, job_name, status, attempt, max_attempts, started_at, ended_at, exit_code, timed_out, log_excerpt, err, meta
		 FROM executions`+where+`
		 ORDER BY started_at DESC LIMIT ? OFFSET ?`,
		append(args, q.PageSize, (q.Page-1)*q.PageSize)...,
	)
	if err != nil {
		return HistoryPage{}, err
	}
	defer rows.Close()

	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return HistoryPage{}, err
		}
		page.Executions = append(page.Executions, exec)
	}
	return page, rows.Err()
}

// Stats aggregates success rate, mean duration, and status counts over the
// most recent StatsWindow executions.
func (t *Tracker) Stats(ctx context.Context, jobName string) (Stats, error) {
	where, args := "", []any{}
	if strings.TrimSpace(jobName) != "" {
		where = " WHERE job_name = ?"
		args = append(args, jobName)
	}

	rows, err := t.db.QueryContext(ctx,
		`SELECT status, started_at, ended_at FROM executions`+where+`
		 ORDER BY started_at DESC LIMIT ?`,
		append(args, t.cfg.StatsWindow)...,
	)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()

	stats := Stats{CountsByStatus: map[Status]int{}}
	succeeded := 0
	var durTotal time.Duration
	durCount := 0
	for rows.Next() {
		var status, startedRaw string
		var endedRaw sql.NullString
		if err := rows.Scan(&status, &startedRaw, &endedRaw); err != nil {
			return Stats{}, err
		}
		stats.TotalRuns++
		stats.CountsByStatus[Status(status)]++
		if Status(status) == StatusSuccess {
			succeeded++
		}
		started, err := time.Parse(time.RFC3339Nano, startedRaw)
		if err != nil {
			continue
		}
		if started.After(stats.LastRun) {
			stats.LastRun = started
		}
		if endedRaw.Valid {
			if ended, err := time.Parse(time.RFC3339Nano, endedRaw.String); err == nil {
				durTotal += ended.Sub(started)
				durCount++
			}
		}
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}
	if stats.TotalRuns > 0 {
		stats.SuccessRate = float64(succeeded) / float64(stats.TotalRuns)
	}
	if durCount > 0 {
		stats.MeanDuration = durTotal / time.Duration(durCount)
	}
	return stats, nil
}

// maybePrune trims history on a write cadence: rows beyond RetentionRows or
// older than RetentionAge go first (oldest evicted first).
func (t *Tracker) maybePrune() {
	if t.opCount.Add(1)%t.pruneEvery != 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-t.cfg.RetentionAge).Format(time.RFC3339Nano)
	if _, err := t.db.ExecContext(ctx, `DELETE FROM executions WHERE started_at < ?`, cutoff); err != nil {
		t.log.Warn("history age prune failed", logx.Err(err))
	}
	_, err := t.db.ExecContext(ctx,
		`DELETE FROM executions WHERE id NOT IN (
		   SELECT id FROM executions ORDER BY started_at DESC LIMIT ?)`,
		t.cfg.RetentionRows,
	)
	if err != nil {
		t.log.Warn("history size prune failed", logx.Err(err))
	}
}

type rowScanner interface{ Scan(dest ...any) error }

func scanExecution(row rowScanner) (Execution, error) {
	var exec Execution
	var status, startedRaw string
	var endedRaw, excerpt, errText, meta sql.NullString
	var exitCode sql.NullInt64
	var timedOut int
	err := row.Scan(&exec.ID, &exec.JobName, &status, &exec.Attempt, &exec.MaxAttempts,
		&startedRaw, &endedRaw, &exitCode, &timedOut, &excerpt, &errText, &meta)
	if err != nil {
		return Execution{}, err
	}
	exec.Status = Status(status)
	exec.StartedAt, _ = time.Parse(time.RFC3339Nano, startedRaw)
	if endedRaw.Valid {
		exec.EndedAt, _ = time.Parse(time.RFC3339Nano, endedRaw.String)
	}
	if exitCode.Valid {
		exec.ExitCode = int(exitCode.Int64)
	}
	exec.TimedOut = timedOut != 0
	exec.LogExcerpt = excerpt.String
	exec.Error = errText.String
	if meta.Valid && meta.String != "" {
		_ = json.Unmarshal([]byte(meta.String), &exec.Metadata)
	}
	return exec, nil
}

const maxExcerpt = 4000

func truncateExcerpt(s string) string {
	if len(s) <= maxExcerpt {
		return s
	}
	// Keep the tail; failures usually explain themselves at the end.
	return "..." + s[len(s)-maxExcerpt:]
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
