// Package runner executes dispatch rule commands as child processes and
// records every attempt in the execution tracker.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/HananiahKao/daily-manna-email/internal/dispatch"
	"github.com/HananiahKao/daily-manna-email/internal/tracker"
	logx "github.com/HananiahKao/daily-manna-email/pkg/logx"
)

// Config bounds a single command attempt.
type Config struct {
	// CommandTimeout caps one attempt. Zero means 10 minutes.
	CommandTimeout time.Duration
	// RetryBackoff is the pause between failed attempts. Zero means 30s.
	RetryBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 10 * time.Minute
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 30 * time.Second
	}
	return c
}

// Runner drives rule commands through their attempt loop.
type Runner struct {
	cfg     Config
	tracker *tracker.Tracker
	log     logx.Logger
}

func New(cfg Config, tr *tracker.Tracker, log logx.Logger) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{cfg: cfg.withDefaults(), tracker: tr, log: log}
}

// RunRule executes the rule's commands in order. A command that exhausts its
// attempts stops the rule; later commands are not started.
func (r *Runner) RunRule(ctx context.Context, rule dispatch.Rule) error {
	for i, argv := range rule.Commands {
		if err := r.runCommand(ctx, rule, i, argv); err != nil {
			return fmt.Errorf("rule %s command %d: %w", rule.Name, i+1, err)
		}
	}
	return nil
}

func (r *Runner) runCommand(ctx context.Context, rule dispatch.Rule, index int, argv []string) error {
	if len(argv) == 0 {
		return errors.New("empty command")
	}
	maxAttempts := rule.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	meta := map[string]string{
		"rule":    rule.Name,
		"command": strings.Join(argv, " "),
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, r.cfg.RetryBackoff); err != nil {
				return err
			}
		}

		id, err := r.tracker.Start(ctx, rule.Name, attempt, maxAttempts, meta)
		if err != nil {
			return fmt.Errorf("record attempt: %w", err)
		}
		outcome := r.execute(ctx, rule, argv)
		status, err := r.tracker.Complete(ctx, id, outcome)
		if err != nil {
			r.log.Warn("record outcome failed", logx.String("rule", rule.Name), logx.Err(err))
		}

		if outcome.Success {
			r.log.Info("rule command succeeded",
				logx.String("rule", rule.Name),
				logx.Int("command", index+1),
				logx.Int("attempt", attempt))
			return nil
		}
		lastErr = outcome.Err
		r.log.Warn("rule command failed",
			logx.String("rule", rule.Name),
			logx.Int("command", index+1),
			logx.Int("attempt", attempt),
			logx.String("status", string(status)),
			logx.Bool("timed_out", outcome.TimedOut),
			logx.Err(outcome.Err))
	}
	if lastErr == nil {
		lastErr = errors.New("command failed")
	}
	return fmt.Errorf("%d attempts exhausted: %w", maxAttempts, lastErr)
}

// execute runs one attempt and classifies its outcome.
func (r *Runner) execute(ctx context.Context, rule dispatch.Rule, argv []string) tracker.Outcome {
	attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.CommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(attemptCtx, argv[0], argv[1:]...)
	cmd.Env = mergeEnv(os.Environ(), rule.Env)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()
	excerpt := tailLines(output.String(), 40)

	if err == nil {
		return tracker.Outcome{Success: true, LogExcerpt: excerpt}
	}

	out := tracker.Outcome{ExitCode: -1, LogExcerpt: excerpt, Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
	}
	if attemptCtx.Err() == context.DeadlineExceeded {
		out.TimedOut = true
		out.Err = fmt.Errorf("%w after %s", tracker.ErrJobTimeout, r.cfg.CommandTimeout)
	}
	return out
}

func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	merged := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		key, _, ok := strings.Cut(kv, "=")
		if ok {
			if _, shadowed := extra[key]; shadowed {
				continue
			}
		}
		merged = append(merged, kv)
	}
	for k, v := range extra {
		merged = append(merged, k+"="+v)
	}
	return merged
}

func tailLines(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
