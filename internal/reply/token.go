// Package reply implements the operator reply protocol: short-lived tokens
// bound to schedule dates, the line-command grammar, and batch application
// of parsed instructions to the schedule.
package reply

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/HananiahKao/daily-manna-email/internal/schedule"
)

// TokenTTL keeps a token valid through the following summary cycle.
const TokenTTL = 10 * 24 * time.Hour

var (
	// ErrUnknownToken covers tokens that were never issued or were already
	// consumed. Reported per instruction; never aborts a batch.
	ErrUnknownToken = errors.New("unknown token")

	// ErrExpiredToken marks a token past its expiry. Treated the same as
	// unknown at the outcome level; expired records are purged lazily.
	ErrExpiredToken = errors.New("token expired")
)

// Issued pairs a freshly issued token with its record.
type Issued struct {
	Token  string
	Record schedule.TokenRecord
}

// IssueTokens binds one fresh token to each entry, replacing any prior token
// for the same date. Tokens are recorded in Schedule.Meta; the caller
// persists.
func IssueTokens(sched *schedule.Schedule, entries []schedule.Entry, summaryID string, issuedAt time.Time) []Issued {
	if issuedAt.IsZero() {
		issuedAt = time.Now().In(schedule.Location())
	}
	expiresAt := issuedAt.Add(TokenTTL)
	table := sched.Tokens()

	created := make([]Issued, 0, len(entries))
	for _, entry := range entries {
		for tok, rec := range table.Tokens {
			if rec.Date == entry.Date {
				delete(table.Tokens, tok)
			}
		}
		token := generateToken(table.Tokens)
		rec := schedule.TokenRecord{
			Date:      entry.Date,
			Selector:  entry.Selector,
			SummaryID: summaryID,
			IssuedAt:  issuedAt,
			ExpiresAt: expiresAt,
		}
		table.Tokens[token] = rec
		created = append(created, Issued{Token: token, Record: rec})
	}
	table.LastSummaryID = summaryID
	table.LastIssuedAt = issuedAt.Format(time.RFC3339)
	table.LastExpiresAt = expiresAt.Format(time.RFC3339)
	return created
}

// ResolveToken looks a token up, purging it when expired. Unknown and
// expired tokens return distinct sentinels so callers can log precisely,
// while the operator-facing outcome treats them identically.
func ResolveToken(sched *schedule.Schedule, token string, now time.Time) (schedule.TokenRecord, error) {
	if now.IsZero() {
		now = time.Now().In(schedule.Location())
	}
	table := sched.Meta.ReplyTokens
	if table == nil || table.Tokens == nil {
		return schedule.TokenRecord{}, ErrUnknownToken
	}
	key := strings.ToUpper(strings.TrimSpace(token))
	rec, ok := table.Tokens[key]
	if !ok {
		return schedule.TokenRecord{}, ErrUnknownToken
	}
	if !rec.ExpiresAt.After(now) {
		delete(table.Tokens, key)
		return schedule.TokenRecord{}, ErrExpiredToken
	}
	return rec, nil
}

// RevokeToken removes a token after successful application.
func RevokeToken(sched *schedule.Schedule, token string) {
	table := sched.Meta.ReplyTokens
	if table == nil || table.Tokens == nil {
		return
	}
	delete(table.Tokens, strings.ToUpper(strings.TrimSpace(token)))
}

// PurgeExpired drops every expired or malformed token record, reporting how
// many were removed.
func PurgeExpired(sched *schedule.Schedule, now time.Time) int {
	if now.IsZero() {
		now = time.Now().In(schedule.Location())
	}
	table := sched.Tokens()
	removed := 0
	for tok, rec := range table.Tokens {
		if rec.Date.IsZero() || !rec.ExpiresAt.After(now) {
			delete(table.Tokens, tok)
			removed++
		}
	}
	table.LastPurgeAt = now.Format(time.RFC3339)
	return removed
}

// ActiveTokens lists unexpired tokens sorted by date then token.
func ActiveTokens(sched *schedule.Schedule, now time.Time) []Issued {
	if now.IsZero() {
		now = time.Now().In(schedule.Location())
	}
	table := sched.Meta.ReplyTokens
	if table == nil {
		return nil
	}
	active := make([]Issued, 0, len(table.Tokens))
	for tok, rec := range table.Tokens {
		if rec.ExpiresAt.After(now) {
			active = append(active, Issued{Token: tok, Record: rec})
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].Record.Date != active[j].Record.Date {
			return active[i].Record.Date.Before(active[j].Record.Date)
		}
		return active[i].Token < active[j].Token
	})
	return active
}

func generateToken(existing map[string]schedule.TokenRecord) string {
	for {
		buf := make([]byte, 4)
		if _, err := rand.Read(buf); err != nil {
			// crypto/rand failing is unrecoverable for token issuance
			panic(err)
		}
		candidate := strings.ToUpper(hex.EncodeToString(buf))
		if _, taken := existing[candidate]; !taken {
			return candidate
		}
	}
}
