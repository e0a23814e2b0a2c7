package reply

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/HananiahKao/daily-manna-email/internal/schedule"
)

var tokenShape = regexp.MustCompile(`^[0-9A-F]{8}$`)

func weekEntries(t *testing.T, startISO string, n int) []schedule.Entry {
	t.Helper()
	start, err := schedule.ParseDate(startISO)
	if err != nil {
		t.Fatalf("parse %s: %v", startISO, err)
	}
	entries := make([]schedule.Entry, 0, n)
	sel := "2-1-1"
	for i := 0; i < n; i++ {
		entries = append(entries, schedule.Entry{
			Date: start.AddDays(i), Selector: sel, Status: schedule.StatusPending,
		})
		sel, _ = schedule.NextSelector(sel)
	}
	return entries
}

func TestIssueTokensShapeAndUniqueness(t *testing.T) {
	sched := schedule.NewSchedule()
	entries := weekEntries(t, "2026-08-31", 7)
	now := time.Date(2026, 8, 30, 21, 0, 0, 0, schedule.Location())

	issued := IssueTokens(sched, entries, "20260830T210000", now)
	if len(issued) != 7 {
		t.Fatalf("want 7 tokens, got %d", len(issued))
	}
	seen := map[string]bool{}
	for _, iss := range issued {
		if !tokenShape.MatchString(iss.Token) {
			t.Fatalf("token %q is not 8 uppercase hex chars", iss.Token)
		}
		if seen[iss.Token] {
			t.Fatalf("duplicate token %s", iss.Token)
		}
		seen[iss.Token] = true
		if got := iss.Record.ExpiresAt.Sub(iss.Record.IssuedAt); got != TokenTTL {
			t.Fatalf("ttl %v", got)
		}
	}
}

func TestReissueReplacesDateToken(t *testing.T) {
	sched := schedule.NewSchedule()
	entries := weekEntries(t, "2026-08-31", 1)
	now := time.Date(2026, 8, 30, 21, 0, 0, 0, schedule.Location())

	first := IssueTokens(sched, entries, "s1", now)[0]
	second := IssueTokens(sched, entries, "s2", now.Add(time.Hour))[0]

	if _, err := ResolveToken(sched, first.Token, now.Add(2*time.Hour)); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("replaced token must be unknown, got %v", err)
	}
	if _, err := ResolveToken(sched, second.Token, now.Add(2*time.Hour)); err != nil {
		t.Fatalf("fresh token must resolve: %v", err)
	}
	if len(sched.Tokens().Tokens) != 1 {
		t.Fatalf("a date holds exactly one active token")
	}
}

func TestResolveTokenExpiry(t *testing.T) {
	sched := schedule.NewSchedule()
	now := time.Date(2026, 8, 30, 21, 0, 0, 0, schedule.Location())
	iss := IssueTokens(sched, weekEntries(t, "2026-08-31", 1), "s1", now)[0]

	// Case-insensitive lookup.
	if _, err := ResolveToken(sched, "  "+iss.Token+" ", now.Add(time.Hour)); err != nil {
		t.Fatalf("resolve with padding: %v", err)
	}

	late := now.Add(TokenTTL)
	if _, err := ResolveToken(sched, iss.Token, late); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("token at ttl boundary must be expired, got %v", err)
	}
	// Expired resolution purges the record.
	if _, err := ResolveToken(sched, iss.Token, late); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("purged token must now be unknown, got %v", err)
	}
}

func TestPurgeExpired(t *testing.T) {
	sched := schedule.NewSchedule()
	now := time.Date(2026, 8, 30, 21, 0, 0, 0, schedule.Location())
	IssueTokens(sched, weekEntries(t, "2026-08-31", 3), "s1", now)

	if removed := PurgeExpired(sched, now.Add(time.Hour)); removed != 0 {
		t.Fatalf("nothing should expire after an hour, removed %d", removed)
	}
	if removed := PurgeExpired(sched, now.Add(TokenTTL+time.Minute)); removed != 3 {
		t.Fatalf("all tokens past ttl should purge, removed %d", removed)
	}
	if sched.Tokens().LastPurgeAt == "" {
		t.Fatalf("purge must be stamped")
	}
}

func TestActiveTokensSorted(t *testing.T) {
	sched := schedule.NewSchedule()
	now := time.Date(2026, 8, 30, 21, 0, 0, 0, schedule.Location())
	IssueTokens(sched, weekEntries(t, "2026-08-31", 4), "s1", now)

	active := ActiveTokens(sched, now.Add(time.Hour))
	if len(active) != 4 {
		t.Fatalf("want 4 active, got %d", len(active))
	}
	for i := 1; i < len(active); i++ {
		if active[i].Record.Date.Before(active[i-1].Record.Date) {
			t.Fatalf("active tokens out of date order: %+v", active)
		}
	}
}
