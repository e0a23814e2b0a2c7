// Package summary renders the weekly schedule digest in text and HTML and
// archives a copy for the operator to consult later.
package summary

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/HananiahKao/daily-manna-email/internal/reply"
	"github.com/HananiahKao/daily-manna-email/internal/schedule"
)

// Row pairs a schedule entry with its reply token for this summary.
type Row struct {
	Entry schedule.Entry
	Token string
}

// Summary is one rendered weekly digest.
type Summary struct {
	ID      string
	Start   schedule.Date
	End     schedule.Date
	Subject string
	Text    string
	HTML    string
}

// BuildRows joins entries with the tokens issued for them.
func BuildRows(entries []schedule.Entry, issued []reply.Issued) []Row {
	byDate := make(map[schedule.Date]string, len(issued))
	for _, iss := range issued {
		byDate[iss.Record.Date] = iss.Token
	}
	rows := make([]Row, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, Row{Entry: e, Token: byDate[e.Date]})
	}
	return rows
}

// Render produces both forms of the digest.
func Render(subjectPrefix, summaryID string, start, end schedule.Date, rows []Row) Summary {
	if subjectPrefix == "" {
		subjectPrefix = "[DailyManna]"
	}
	return Summary{
		ID:      summaryID,
		Start:   start,
		End:     end,
		Subject: fmt.Sprintf("%s Weekly Schedule %s – %s", subjectPrefix, start, end),
		Text:    renderText(summaryID, start, end, rows),
		HTML:    renderHTML(summaryID, start, end, rows),
	}
}

func renderText(summaryID string, start, end schedule.Date, rows []Row) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Weekly Schedule %s – %s (summary %s)\n\n", start, end, summaryID)
	b.WriteString("Reply with a token line to adjust an entry, e.g.\n")
	b.WriteString("  [AB12CD34] move 2026-09-03\n")
	b.WriteString("  [AB12CD34] skip travelling\n\n")
	for _, r := range rows {
		e := r.Entry
		fmt.Fprintf(&b, "%s %s  %-8s %-7s", e.Date, schedule.WeekdayLabel(e.Date), e.Selector, e.Status)
		if r.Token != "" {
			fmt.Fprintf(&b, " [%s]", r.Token)
		}
		if e.Override != "" {
			fmt.Fprintf(&b, " override=%s", e.Override)
		}
		if e.SentAt != "" {
			fmt.Fprintf(&b, " sent_at=%s", e.SentAt)
		}
		if e.Notes != "" {
			fmt.Fprintf(&b, " // %s", e.Notes)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderHTML(summaryID string, start, end schedule.Date, rows []Row) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h2>Weekly Schedule %s – %s</h2>\n", start, end)
	fmt.Fprintf(&b, "<p>Summary %s. Reply with a token line, e.g. <code>[AB12CD34] move 2026-09-03</code>.</p>\n", html.EscapeString(summaryID))
	b.WriteString(`<table border="1" cellpadding="4" cellspacing="0">` + "\n")
	b.WriteString("<tr><th>Date</th><th>Weekday</th><th>Selector</th><th>Status</th><th>Token</th><th>Notes</th></tr>\n")
	for _, r := range rows {
		e := r.Entry
		notes := e.Notes
		if e.Override != "" {
			notes = strings.TrimSpace(notes + " override=" + e.Override)
		}
		token := ""
		if r.Token != "" {
			token = "[" + r.Token + "]"
		}
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td><code>%s</code></td><td>%s</td></tr>\n",
			e.Date, html.EscapeString(schedule.WeekdayLabel(e.Date)),
			html.EscapeString(e.Selector), html.EscapeString(string(e.Status)),
			html.EscapeString(token), html.EscapeString(notes))
	}
	b.WriteString("</table>\n")
	return b.String()
}

// NewID derives a summary id from its generation time.
func NewID(at time.Time) string {
	return at.In(schedule.Location()).Format("20060102T150405")
}

// Archive writes the text form under dir, named by summary id.
func Archive(dir string, s Summary) (string, error) {
	if dir == "" {
		dir = "state/summaries"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, "summary-"+s.ID+".txt")
	tmp := path + ".tmp"
	body := s.Subject + "\n\n" + s.Text
	if err := os.WriteFile(tmp, []byte(body), 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", err
	}
	return path, nil
}
