package dispatch

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/HananiahKao/daily-manna-email/internal/schedule"
	logx "github.com/HananiahKao/daily-manna-email/pkg/logx"
)

func testEngine(t *testing.T, rules []Rule) *Engine {
	t.Helper()
	return NewEngine(rules, filepath.Join(t.TempDir(), "dispatch_state.json"), logx.Nop())
}

func taipei(t *testing.T, iso string, hour, minute int) time.Time {
	t.Helper()
	d, err := schedule.ParseDate(iso)
	if err != nil {
		t.Fatalf("parse %s: %v", iso, err)
	}
	return time.Date(d.Year, d.Month, d.Day, hour, minute, 0, 0, schedule.Location())
}

func TestRuleFiresOncePerDay(t *testing.T) {
	e := testEngine(t, nil) // defaults: daily-send 06:00 mon..sat

	monday := "2026-08-31"
	due, err := e.Evaluate(taipei(t, monday, 5, 55))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("nothing is due before 06:00, got %+v", due)
	}

	// 06:00, 06:10, 06:20 polls: due until fired, then idle.
	for i, minute := range []int{0, 10, 20} {
		now := taipei(t, monday, 6, minute)
		due, err := e.Evaluate(now)
		if err != nil {
			t.Fatalf("evaluate poll %d: %v", i, err)
		}
		if i == 0 {
			if len(due) != 1 || due[0].Name != "daily-send" {
				t.Fatalf("first poll should owe daily-send, got %+v", due)
			}
			if err := e.MarkFired("daily-send", now); err != nil {
				t.Fatalf("mark fired: %v", err)
			}
			continue
		}
		if len(due) != 0 {
			t.Fatalf("poll %d after firing must be idle, got %+v", i, due)
		}
	}

	// Next day re-arms.
	due, err = e.Evaluate(taipei(t, "2026-09-01", 6, 0))
	if err != nil {
		t.Fatalf("evaluate next day: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("midnight rollover must re-arm, got %+v", due)
	}
}

func TestLatePollStillFires(t *testing.T) {
	e := testEngine(t, nil)
	// Daemon was down all morning; a 14:30 poll still owes the 06:00 rule.
	due, err := e.Evaluate(taipei(t, "2026-08-31", 14, 30))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(due) != 1 || due[0].Name != "daily-send" {
		t.Fatalf("late poll must still fire, got %+v", due)
	}
}

func TestWeekdayFilter(t *testing.T) {
	e := testEngine(t, nil)
	// Sunday: daily-send (mon..sat) idle, weekly-summary due after 21:00.
	due, err := e.Evaluate(taipei(t, "2026-08-30", 21, 5))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(due) != 1 || due[0].Name != "weekly-summary" {
		t.Fatalf("sunday evening owes only the summary, got %+v", due)
	}
}

func TestEvaluationOrderByTime(t *testing.T) {
	rules := []Rule{
		{Name: "late", Hour: 20, Weekdays: allWeekdays(), Commands: [][]string{{"true"}}},
		{Name: "early", Hour: 6, Weekdays: allWeekdays(), Commands: [][]string{{"true"}}},
	}
	e := testEngine(t, rules)
	due, err := e.Evaluate(taipei(t, "2026-08-31", 22, 0))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(due) != 2 || due[0].Name != "early" || due[1].Name != "late" {
		t.Fatalf("due rules must come back in firing-time order: %+v", due)
	}
}

func TestCorruptStateSurfaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dispatch_state.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	e := NewEngine(nil, path, logx.Nop())
	if _, err := e.Evaluate(taipei(t, "2026-08-31", 7, 0)); !errors.Is(err, schedule.ErrCorruptState) {
		t.Fatalf("corrupt state must surface, got %v", err)
	}
}

func TestMalformedRuleDateReArmsOnlyThatRule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dispatch_state.json")
	raw, _ := json.Marshal(map[string]string{
		"daily-send":     "yesterday-ish",
		"weekly-summary": "2026-08-30",
	})
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	e := NewEngine(nil, path, logx.Nop())

	// Sunday 21:05: summary already fired today, daily-send dropped its bad
	// record but does not match Sunday anyway.
	due, err := e.Evaluate(taipei(t, "2026-08-30", 21, 5))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("want nothing due, got %+v", due)
	}

	// Monday: the re-armed rule fires normally.
	due, err = e.Evaluate(taipei(t, "2026-08-31", 6, 0))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(due) != 1 || due[0].Name != "daily-send" {
		t.Fatalf("daily-send should be due monday, got %+v", due)
	}
}

func allWeekdays() map[time.Weekday]bool {
	m := map[time.Weekday]bool{}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		m[wd] = true
	}
	return m
}
