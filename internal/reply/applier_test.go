package reply

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/HananiahKao/daily-manna-email/internal/schedule"
)

func seededSchedule(t *testing.T) (*schedule.Schedule, []Issued, time.Time) {
	t.Helper()
	sched := schedule.NewSchedule()
	for _, e := range weekEntries(t, "2026-08-31", 7) {
		sched.Upsert(e)
	}
	now := time.Date(2026, 8, 30, 21, 0, 0, 0, schedule.Location())
	issued := IssueTokens(sched, sched.Entries, "s1", now)
	return sched, issued, now.Add(12 * time.Hour)
}

func TestApplyMoveEndToEnd(t *testing.T) {
	sched, issued, now := seededSchedule(t)
	token := issued[0].Token
	source := issued[0].Record.Date

	body := "[" + token + "] move 2026-09-10"
	instructions, failures := ParseBody(body)
	if len(failures) != 0 {
		t.Fatalf("parse failures: %+v", failures)
	}

	result := Apply(sched, instructions, now)
	if !result.Changed || len(result.Outcomes) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Outcomes[0].Status != OutcomeApplied {
		t.Fatalf("move should apply: %+v", result.Outcomes[0])
	}
	if sched.Find(source) != nil {
		t.Fatalf("source date should be vacated")
	}
	target, _ := schedule.ParseDate("2026-09-10")
	moved := sched.Find(target)
	if moved == nil || moved.Selector != issued[0].Record.Selector {
		t.Fatalf("entry did not land on target date: %+v", moved)
	}
	if _, err := ResolveToken(sched, token, now); err == nil {
		t.Fatalf("token must be revoked after a successful batch")
	}
}

func TestApplyUnknownTokenLeavesScheduleUntouched(t *testing.T) {
	sched, _, now := seededSchedule(t)
	before, _ := json.Marshal(sched)

	instructions, _ := ParseBody("[ZZ99ZZ99] skip")
	result := Apply(sched, instructions, now)
	if result.Changed {
		t.Fatalf("rejected batch must not report change")
	}
	if len(result.Outcomes) != 1 || result.Outcomes[0].Status != OutcomeRejected {
		t.Fatalf("unexpected outcomes: %+v", result.Outcomes)
	}
	if result.Outcomes[0].Message != "token unknown or expired" {
		t.Fatalf("rejection message %q", result.Outcomes[0].Message)
	}

	after, _ := json.Marshal(sched)
	if string(before) != string(after) {
		t.Fatalf("schedule mutated by a rejected instruction")
	}
}

func TestApplyMoveConflictRejected(t *testing.T) {
	sched, issued, now := seededSchedule(t)
	occupied := issued[1].Record.Date

	instructions, _ := ParseBody("[" + issued[0].Token + "] move " + occupied.String())
	result := Apply(sched, instructions, now)
	if len(result.Outcomes) != 1 || result.Outcomes[0].Status != OutcomeRejected {
		t.Fatalf("conflicting move must be rejected: %+v", result.Outcomes)
	}
	if !strings.Contains(result.Outcomes[0].Message, "already assigned") {
		t.Fatalf("conflict message %q", result.Outcomes[0].Message)
	}
	if !strings.Contains(result.Outcomes[0].Message, schedule.ErrConflict.Error()) {
		t.Fatalf("conflict sentinel missing from %q", result.Outcomes[0].Message)
	}
	// The rejected token survives for a corrected retry.
	if _, err := ResolveToken(sched, issued[0].Token, now); err != nil {
		t.Fatalf("token should remain active after rejection: %v", err)
	}
}

func TestApplySameTokenMultipleInstructions(t *testing.T) {
	sched, issued, now := seededSchedule(t)
	token := issued[2].Token

	body := strings.Join([]string{
		"[" + token + "] move 2026-09-15",
		"[" + token + "] note moved for the retreat",
	}, "\n")
	instructions, _ := ParseBody(body)
	result := Apply(sched, instructions, now)

	for _, o := range result.Outcomes {
		if o.Status == OutcomeRejected {
			t.Fatalf("batch instruction rejected: %+v", o)
		}
	}
	target, _ := schedule.ParseDate("2026-09-15")
	entry := sched.Find(target)
	if entry == nil || !strings.Contains(entry.Notes, "retreat") {
		t.Fatalf("second instruction must hit the moved entry: %+v", entry)
	}
}

func TestApplySkipAppendsReason(t *testing.T) {
	sched, issued, now := seededSchedule(t)
	token := issued[3].Token

	instructions, _ := ParseBody("[" + token + "] skip travelling")
	result := Apply(sched, instructions, now)
	if !result.Changed {
		t.Fatalf("skip should change the schedule")
	}
	entry := sched.Find(issued[3].Record.Date)
	if entry.Status != schedule.StatusSkipped || entry.Notes != "travelling" {
		t.Fatalf("skip outcome wrong: %+v", entry)
	}
}

func TestApplyKeepIsNoopButConsumesToken(t *testing.T) {
	sched, issued, now := seededSchedule(t)
	token := issued[4].Token

	instructions, _ := ParseBody("[" + token + "] keep")
	result := Apply(sched, instructions, now)
	if len(result.Outcomes) != 1 || result.Outcomes[0].Status != OutcomeNoop {
		t.Fatalf("keep should be a noop: %+v", result.Outcomes)
	}
	// Revocation alone still marks the schedule dirty so it persists.
	if !result.Changed {
		t.Fatalf("token revocation must be persisted")
	}
	if _, err := ResolveToken(sched, token, now); err == nil {
		t.Fatalf("keep still consumes its token")
	}
}
