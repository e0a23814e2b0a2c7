package schedule

import (
	"crypto/sha256"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "github.com/HananiahKao/daily-manna-email/pkg/logx"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "schedule.json"), logx.Nop())
}

func mustDate(t *testing.T, s string) Date {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("parse date %s: %v", s, err)
	}
	return d
}

func TestLoadAbsentFileYieldsEmptySchedule(t *testing.T) {
	sched, err := testStore(t).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(sched.Entries) != 0 || sched.Timezone != TZName {
		t.Fatalf("unexpected fresh schedule: %+v", sched)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := NewStore(path, logx.Nop()).Load()
	if !errors.Is(err, ErrCorruptState) {
		t.Fatalf("corrupt file must surface ErrCorruptState, got %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	store := testStore(t)
	sched := NewSchedule()
	sched.Upsert(Entry{Date: mustDate(t, "2026-08-31"), Selector: "2-1-1", Status: StatusPending})
	sched.Upsert(Entry{Date: mustDate(t, "2026-09-01"), Selector: "2-1-2", Status: StatusPending, Notes: "note"})
	if err := store.Save(sched); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Entries) != 2 {
		t.Fatalf("want 2 entries, got %d", len(loaded.Entries))
	}
	first := loaded.Entries[0]
	if first.Selector != "2-1-1" || first.Weekday != "週一" {
		t.Fatalf("round trip lost fields: %+v", first)
	}
}

func TestEnsureRangeSeedsAndAdvances(t *testing.T) {
	store := testStore(t)
	start := mustDate(t, "2026-08-31") // Monday
	end := start.AddDays(6)

	changed, err := store.EnsureRange(start, end, "")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if !changed {
		t.Fatalf("first ensure must add entries")
	}

	sched, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(sched.Entries) != 7 {
		t.Fatalf("want 7 entries, got %d", len(sched.Entries))
	}
	if sched.Entries[0].Selector != "2-1-1" || sched.Entries[6].Selector != "2-1-7" {
		t.Fatalf("default seed progression wrong: %s .. %s",
			sched.Entries[0].Selector, sched.Entries[6].Selector)
	}

	// Extending continues from the latest entry.
	if _, err := store.EnsureRange(end.AddDays(1), end.AddDays(7), ""); err != nil {
		t.Fatalf("extend: %v", err)
	}
	sched, _ = store.Load()
	if got := sched.Entries[7].Selector; got != "2-2-1" {
		t.Fatalf("extension should roll into lesson 2, got %s", got)
	}
}

func TestEnsureRangeIdempotent(t *testing.T) {
	store := testStore(t)
	start := mustDate(t, "2026-08-31")
	end := start.AddDays(6)
	if _, err := store.EnsureRange(start, end, "3-4-2"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	before := hashFile(t, store.Path())

	changed, err := store.EnsureRange(start, end, "3-4-2")
	if err != nil {
		t.Fatalf("re-ensure: %v", err)
	}
	if changed {
		t.Fatalf("second ensure over the same range must be a no-op")
	}
	if hashFile(t, store.Path()) != before {
		t.Fatalf("no-op ensure must not rewrite the file")
	}
}

func TestEnsureRangeRejectsInvertedRange(t *testing.T) {
	sched := NewSchedule()
	start := mustDate(t, "2026-09-07")
	if _, err := sched.EnsureRange(start, start.AddDays(-1), ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("inverted range must fail validation, got %v", err)
	}
}

func TestMarkSent(t *testing.T) {
	sched := NewSchedule()
	d := mustDate(t, "2026-09-01")
	sched.Upsert(Entry{Date: d, Selector: "2-1-2", Status: StatusPending})

	at := time.Date(2026, 9, 1, 6, 0, 12, 0, Location())
	entry, err := sched.MarkSent(d, at)
	if err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if entry.Status != StatusSent || entry.SentAt == "" {
		t.Fatalf("sent transition incomplete: %+v", entry)
	}
	if _, err := sched.MarkSent(mustDate(t, "2026-09-02"), at); err == nil {
		t.Fatalf("marking a missing date must fail")
	}
}

func hashFile(t *testing.T, path string) [32]byte {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return sha256.Sum256(b)
}
