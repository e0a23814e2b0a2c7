package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "github.com/HananiahKao/daily-manna-email/pkg/logx"
)

// DefaultPath is the schedule file location relative to the working
// directory, overridable via the SCHEDULE_FILE environment variable.
const DefaultPath = "state/schedule.json"

// Store owns schedule persistence. All mutations flow through
// load-mutate-save; Save rewrites the file atomically so a crash mid-write
// never exposes a truncated schedule.
type Store struct {
	path string
	log  logx.Logger
}

func NewStore(path string, log logx.Logger) *Store {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
		if env := strings.TrimSpace(os.Getenv("SCHEDULE_FILE")); env != "" {
			path = env
		}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{path: path, log: log}
}

func (s *Store) Path() string { return s.path }

// Load reads the schedule file. An absent file yields an empty schedule; an
// unreadable one surfaces ErrCorruptState and is never reset.
func (s *Store) Load() (*Schedule, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewSchedule(), nil
		}
		return nil, err
	}
	var sched Schedule
	if err := json.Unmarshal(data, &sched); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptState, s.path, err)
	}
	if sched.Version <= 0 {
		sched.Version = Version
	}
	sched.Timezone = TZName
	sched.sort()
	return &sched, nil
}

// Save persists the schedule with write-temp-then-rename semantics.
func (s *Store) Save(sched *Schedule) error {
	sched.Version = Version
	sched.Timezone = TZName
	sched.sort()
	for i := range sched.Entries {
		sched.Entries[i].Weekday = WeekdayLabel(sched.Entries[i].Date)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(sched, "", "  ")
	if err != nil {
		return err
	}
	tmp := fmt.Sprintf("%s.tmp-%d", s.path, time.Now().UnixNano())
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// SeedSelector determines the selector new entries should start from: the
// advance of the latest existing entry, else the explicit seed, else a
// first-lesson default.
func SeedSelector(sched *Schedule, seed string) (string, error) {
	if n := len(sched.Entries); n > 0 {
		return NextSelector(sched.Entries[n-1].Selector)
	}
	if strings.TrimSpace(seed) != "" {
		if _, _, _, err := ParseSelector(seed); err != nil {
			return "", err
		}
		return strings.TrimSpace(seed), nil
	}
	return "2-1-1", nil
}

// EnsureRange guarantees an entry exists for every date in [start, end],
// synthesizing missing ones by advancing from the nearest prior entry (or
// the seed when none exists). Idempotent: a second call over the same range
// reports no change. Reports whether entries were added.
func (sched *Schedule) EnsureRange(start, end Date, seed string) (bool, error) {
	if end.Before(start) {
		return false, fmt.Errorf("%w: range end %s precedes start %s", ErrValidation, end, start)
	}
	resolvedSeed, err := SeedSelector(sched, seed)
	if err != nil {
		return false, err
	}

	cursor := ""
	if prior := sched.LatestBefore(start); prior != nil {
		cursor = prior.Selector
	}

	added := false
	for d := start; !end.Before(d); d = d.AddDays(1) {
		if existing := sched.Find(d); existing != nil {
			cursor = existing.Selector
			continue
		}
		if cursor == "" {
			cursor = resolvedSeed
		} else {
			cursor, err = NextSelector(cursor)
			if err != nil {
				return added, err
			}
		}
		sched.Upsert(Entry{Date: d, Selector: cursor, Status: StatusPending})
		added = true
	}
	return added, nil
}

// EnsureRange is the store-level form: load, ensure, save only when changed.
func (s *Store) EnsureRange(start, end Date, seed string) (bool, error) {
	sched, err := s.Load()
	if err != nil {
		return false, err
	}
	changed, err := sched.EnsureRange(start, end, seed)
	if err != nil {
		return false, err
	}
	if changed {
		if err := s.Save(sched); err != nil {
			return false, err
		}
	}
	return changed, nil
}
