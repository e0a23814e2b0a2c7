package runner

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/HananiahKao/daily-manna-email/internal/dispatch"
	"github.com/HananiahKao/daily-manna-email/internal/tracker"
	logx "github.com/HananiahKao/daily-manna-email/pkg/logx"
)

func newTestRunner(t *testing.T, cfg Config) (*Runner, *tracker.Tracker) {
	t.Helper()
	tr, err := tracker.Open(tracker.Config{Path: filepath.Join(t.TempDir(), "jobs.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open tracker: %v", err)
	}
	t.Cleanup(func() { _ = tr.Close() })
	return New(cfg, tr, logx.Nop()), tr
}

func TestRunRuleSuccess(t *testing.T) {
	r, tr := newTestRunner(t, Config{})
	rule := dispatch.Rule{
		Name:        "touch-noop",
		Commands:    [][]string{{"true"}},
		MaxAttempts: 3,
	}
	if err := r.RunRule(context.Background(), rule); err != nil {
		t.Fatalf("run: %v", err)
	}
	page, err := tr.History(context.Background(), tracker.HistoryQuery{JobName: "touch-noop"})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if page.Total != 1 || page.Executions[0].Status != tracker.StatusSuccess {
		t.Fatalf("want one successful execution, got %+v", page.Executions)
	}
}

func TestRunRuleExhaustsAttempts(t *testing.T) {
	r, tr := newTestRunner(t, Config{RetryBackoff: 5 * time.Millisecond})
	rule := dispatch.Rule{
		Name:        "always-fails",
		Commands:    [][]string{{"false"}},
		MaxAttempts: 2,
	}
	err := r.RunRule(context.Background(), rule)
	if err == nil {
		t.Fatalf("exhausted rule should error")
	}

	page, err := tr.History(context.Background(), tracker.HistoryQuery{JobName: "always-fails"})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("want 2 attempts, got %d", page.Total)
	}
	if page.Executions[0].Status != tracker.StatusFailed {
		t.Fatalf("last attempt should be terminal, got %s", page.Executions[0].Status)
	}
	if page.Executions[1].Status != tracker.StatusRetrying {
		t.Fatalf("first attempt should be retrying, got %s", page.Executions[1].Status)
	}
}

func TestRunRuleTimeout(t *testing.T) {
	r, tr := newTestRunner(t, Config{CommandTimeout: 50 * time.Millisecond})
	rule := dispatch.Rule{
		Name:     "too-slow",
		Commands: [][]string{{"sleep", "10"}},
	}
	err := r.RunRule(context.Background(), rule)
	if !errors.Is(err, tracker.ErrJobTimeout) {
		t.Fatalf("want timeout error, got %v", err)
	}
	page, err := tr.History(context.Background(), tracker.HistoryQuery{JobName: "too-slow"})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !page.Executions[0].TimedOut {
		t.Fatalf("execution should be marked timed out: %+v", page.Executions[0])
	}
}

func TestRunRuleStopsAfterFailedCommand(t *testing.T) {
	r, tr := newTestRunner(t, Config{RetryBackoff: time.Millisecond})
	rule := dispatch.Rule{
		Name:     "stops-early",
		Commands: [][]string{{"false"}, {"true"}},
	}
	if err := r.RunRule(context.Background(), rule); err == nil {
		t.Fatalf("failed first command should abort the rule")
	}
	page, err := tr.History(context.Background(), tracker.HistoryQuery{JobName: "stops-early"})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("second command must not start, got %d executions", page.Total)
	}
}

func TestMergeEnvShadowing(t *testing.T) {
	merged := mergeEnv([]string{"PATH=/usr/bin", "LANG=C"}, map[string]string{"LANG": "zh_TW.UTF-8"})
	var lang string
	for _, kv := range merged {
		if v, ok := strings.CutPrefix(kv, "LANG="); ok {
			lang = v
		}
	}
	if lang != "zh_TW.UTF-8" {
		t.Fatalf("rule env must shadow process env, got %q", lang)
	}
}
