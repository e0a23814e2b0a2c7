package schedule

import (
	"errors"
	"testing"
	"time"
)

func TestParseDescriptor(t *testing.T) {
	today := mustDate(t, "2026-08-27") // Thursday

	cases := []struct {
		in   string
		want string
	}{
		{"2026-09-15", "2026-09-15"},
		{"today", "2026-08-27"},
		{"今天", "2026-08-27"},
		{"tomorrow", "2026-08-28"},
		{"明天", "2026-08-28"},
		{"thu", "2026-08-27"}, // matching weekday resolves to today
		{"fri", "2026-08-28"},
		{"週一", "2026-08-31"},
		{"主日", "2026-08-30"},
	}
	for _, tc := range cases {
		got, err := ParseDescriptor(tc.in, today)
		if err != nil {
			t.Fatalf("descriptor %q: %v", tc.in, err)
		}
		if got.String() != tc.want {
			t.Fatalf("descriptor %q: got %s, want %s", tc.in, got, tc.want)
		}
	}

	for _, bad := range []string{"", "someday", "2026-13-01"} {
		if _, err := ParseDescriptor(bad, today); !errors.Is(err, ErrValidation) {
			t.Fatalf("descriptor %q should fail validation, got %v", bad, err)
		}
	}
}

func TestNextMondayIsStrictlyFuture(t *testing.T) {
	monday := mustDate(t, "2026-08-31")
	if got := NextMonday(monday); got.String() != "2026-09-07" {
		t.Fatalf("next monday from a monday must be a week out, got %s", got)
	}
	sunday := mustDate(t, "2026-08-30")
	if got := NextMonday(sunday); got.String() != "2026-08-31" {
		t.Fatalf("next monday from sunday, got %s", got)
	}
}

func TestWeekStart(t *testing.T) {
	for _, day := range []string{"2026-08-31", "2026-09-03", "2026-09-06"} {
		if got := WeekStart(mustDate(t, day)); got.String() != "2026-08-31" {
			t.Fatalf("week start of %s: got %s", day, got)
		}
	}
}

func TestLocationIsTaipei(t *testing.T) {
	loc := Location()
	if loc.String() != TZName {
		t.Fatalf("location %s", loc)
	}
	at := time.Date(2026, 8, 30, 6, 0, 0, 0, loc)
	_, offset := at.Zone()
	if offset != 8*3600 {
		t.Fatalf("Taipei offset should be +08:00, got %d", offset)
	}
}
