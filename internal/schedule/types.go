package schedule

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	// Version is the schedule file schema version.
	Version = 1

	// TZName is the operational timezone all dates and rule times are
	// interpreted in.
	TZName = "Asia/Taipei"
)

// Location returns the operational timezone, falling back to UTC when the
// zone database is unavailable.
func Location() *time.Location {
	loc, err := time.LoadLocation(TZName)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Status is the delivery state of a schedule entry.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusSkipped Status = "skipped"
)

// ParseStatus validates a status literal.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending, nil
	case StatusSent:
		return StatusSent, nil
	case StatusSkipped:
		return StatusSkipped, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
}

// Entry is one scheduled send.
type Entry struct {
	Date     Date   `json:"date"`
	Weekday  string `json:"weekday,omitempty"` // display label, regenerated on save
	Selector string `json:"selector"`
	Status   Status `json:"status"`
	SentAt   string `json:"sent_at,omitempty"` // RFC3339, set on transition to sent
	Notes    string `json:"notes"`
	Override string `json:"override,omitempty"`
}

// TokenRecord is one active reply token bound to a schedule date.
type TokenRecord struct {
	Date      Date      `json:"date"`
	Selector  string    `json:"selector"`
	SummaryID string    `json:"summary_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenTable is the active reply token store kept in Schedule.Meta.
type TokenTable struct {
	Tokens        map[string]TokenRecord `json:"tokens"`
	LastSummaryID string                 `json:"last_summary_id,omitempty"`
	LastIssuedAt  string                 `json:"last_issued_at,omitempty"`
	LastExpiresAt string                 `json:"last_expires_at,omitempty"`
	LastPurgeAt   string                 `json:"last_purge_at,omitempty"`
}

// Meta carries cross-cutting schedule data.
type Meta struct {
	ReplyTokens *TokenTable `json:"reply_tokens,omitempty"`
}

// Schedule is the ordered collection of entries plus metadata. Entries are
// kept sorted by date and dates are unique.
type Schedule struct {
	Version  int     `json:"version"`
	Timezone string  `json:"timezone"`
	Meta     Meta    `json:"meta"`
	Entries  []Entry `json:"entries"`
}

// NewSchedule returns an empty schedule with defaults filled in.
func NewSchedule() *Schedule {
	return &Schedule{Version: Version, Timezone: TZName}
}

// Tokens returns the token table, creating it when absent.
func (s *Schedule) Tokens() *TokenTable {
	if s.Meta.ReplyTokens == nil {
		s.Meta.ReplyTokens = &TokenTable{}
	}
	if s.Meta.ReplyTokens.Tokens == nil {
		s.Meta.ReplyTokens.Tokens = map[string]TokenRecord{}
	}
	return s.Meta.ReplyTokens
}

// Find returns the entry for date, or nil.
func (s *Schedule) Find(date Date) *Entry {
	for i := range s.Entries {
		if s.Entries[i].Date == date {
			return &s.Entries[i]
		}
	}
	return nil
}

// LatestBefore returns the last entry strictly before date, or nil.
func (s *Schedule) LatestBefore(date Date) *Entry {
	var found *Entry
	for i := range s.Entries {
		if s.Entries[i].Date.Before(date) {
			found = &s.Entries[i]
		}
	}
	return found
}

// Upsert inserts or replaces the entry for e.Date and re-sorts by date.
func (s *Schedule) Upsert(e Entry) {
	if e.Status == "" {
		e.Status = StatusPending
	}
	if existing := s.Find(e.Date); existing != nil {
		*existing = e
	} else {
		s.Entries = append(s.Entries, e)
	}
	s.sort()
}

// MarkSent transitions the entry for date to sent, stamping sent_at.
func (s *Schedule) MarkSent(date Date, at time.Time) (*Entry, error) {
	entry := s.Find(date)
	if entry == nil {
		return nil, fmt.Errorf("no schedule entry for %s", date)
	}
	entry.Status = StatusSent
	entry.SentAt = at.In(Location()).Format(time.RFC3339)
	return entry, nil
}

func (s *Schedule) sort() {
	sort.Slice(s.Entries, func(i, j int) bool {
		return s.Entries[i].Date.Before(s.Entries[j].Date)
	})
}
