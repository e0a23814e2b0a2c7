package reply

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HananiahKao/daily-manna-email/internal/schedule"
)

// OutcomeStatus classifies one instruction's result.
type OutcomeStatus string

const (
	OutcomeApplied  OutcomeStatus = "applied"
	OutcomeNoop     OutcomeStatus = "noop"
	OutcomeRejected OutcomeStatus = "rejected"
)

// Outcome reports one instruction's result for confirmation mail.
type Outcome struct {
	Token   string        `json:"token"`
	Verb    string        `json:"verb"`
	Status  OutcomeStatus `json:"status"`
	Message string        `json:"message"`
	Date    string        `json:"date,omitempty"`
}

// Result aggregates a whole batch.
type Result struct {
	Outcomes []Outcome `json:"outcomes"`
	Changed  bool      `json:"changed"`
}

// Rejected returns the rejected outcomes.
func (r Result) Rejected() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status == OutcomeRejected {
			out = append(out, o)
		}
	}
	return out
}

// Apply resolves each instruction's token and applies it to the bound entry,
// in encounter order. A failing instruction never halts the batch and never
// leaves a partial field mutation behind. Instructions sharing a token hit
// the same entry (last writer wins per field); each such token is revoked
// once after the batch when at least one of its instructions succeeded.
// The caller persists the schedule afterwards.
func Apply(sched *schedule.Schedule, instructions []Instruction, now time.Time) Result {
	if now.IsZero() {
		now = time.Now().In(schedule.Location())
	}
	var result Result

	// Tokens resolve once per batch so a move does not orphan later
	// instructions for the same token.
	resolved := map[string]*schedule.Entry{}
	succeeded := map[string]bool{}

	for _, inst := range instructions {
		entry, ok := resolved[inst.Token]
		if !ok {
			rec, err := ResolveToken(sched, inst.Token, now)
			if err != nil {
				reason := "token unknown or expired"
				if !errors.Is(err, ErrUnknownToken) && !errors.Is(err, ErrExpiredToken) {
					reason = err.Error()
				}
				result.Outcomes = append(result.Outcomes, Outcome{
					Token: inst.Token, Verb: inst.Op.String(),
					Status: OutcomeRejected, Message: reason,
				})
				continue
			}
			entry = sched.Find(rec.Date)
			if entry == nil {
				result.Outcomes = append(result.Outcomes, Outcome{
					Token: inst.Token, Verb: inst.Op.String(),
					Status:  OutcomeRejected,
					Message: fmt.Sprintf("no entry for %s", rec.Date),
					Date:    rec.Date.String(),
				})
				continue
			}
			resolved[inst.Token] = entry
		}

		outcome := applyOne(sched, entry, inst)
		if outcome.Status != OutcomeRejected {
			succeeded[inst.Token] = true
		}
		if outcome.Status == OutcomeApplied {
			result.Changed = true
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	for token := range succeeded {
		RevokeToken(sched, token)
		result.Changed = true
	}
	return result
}

func applyOne(sched *schedule.Schedule, entry *schedule.Entry, inst Instruction) Outcome {
	out := Outcome{Token: inst.Token, Verb: inst.Op.String(), Date: entry.Date.String()}

	switch inst.Op {
	case OpKeep:
		out.Status = OutcomeNoop
		out.Message = "kept without changes"

	case OpSkip:
		entry.Status = schedule.StatusSkipped
		if reason := strings.TrimSpace(inst.Text); reason != "" {
			entry.Notes = appendNote(entry.Notes, reason)
		}
		out.Status = OutcomeApplied
		out.Message = "marked as skipped"

	case OpMove:
		if existing := sched.Find(inst.Date); existing != nil && existing != entry {
			conflict := fmt.Errorf("%w: date %s already assigned to %s",
				schedule.ErrConflict, inst.Date, existing.Selector)
			out.Status = OutcomeRejected
			out.Message = conflict.Error()
			return out
		}
		entry.Date = inst.Date
		out.Status = OutcomeApplied
		out.Message = fmt.Sprintf("moved to %s", inst.Date)
		out.Date = inst.Date.String()

	case OpSetSelector:
		entry.Selector = inst.Text
		if entry.Status == "" {
			entry.Status = schedule.StatusPending
		}
		out.Status = OutcomeApplied
		out.Message = fmt.Sprintf("selector updated to %s", inst.Text)

	case OpSetNote:
		entry.Notes = appendNote(entry.Notes, inst.Text)
		out.Status = OutcomeApplied
		out.Message = "updated notes"

	case OpSetStatus:
		entry.Status = schedule.Status(inst.Text)
		out.Status = OutcomeApplied
		out.Message = fmt.Sprintf("status set to %s", inst.Text)

	case OpSetOverride:
		entry.Override = inst.Text
		out.Status = OutcomeApplied
		out.Message = fmt.Sprintf("override set to %s", inst.Text)

	default:
		out.Status = OutcomeRejected
		out.Message = fmt.Sprintf("unsupported verb %q", inst.Op)
	}
	return out
}

// appendNote joins note fragments with " | ", dropping exact duplicates.
func appendNote(current, addition string) string {
	addition = strings.TrimSpace(addition)
	if addition == "" {
		return current
	}
	existing := strings.TrimSpace(current)
	if existing == "" {
		return addition
	}
	if strings.Contains(existing, addition) {
		return existing
	}
	return existing + " | " + addition
}
