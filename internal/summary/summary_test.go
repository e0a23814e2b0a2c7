package summary

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/HananiahKao/daily-manna-email/internal/reply"
	"github.com/HananiahKao/daily-manna-email/internal/schedule"
)

func testRows(t *testing.T) []Row {
	t.Helper()
	d1, _ := schedule.ParseDate("2026-08-31")
	d2, _ := schedule.ParseDate("2026-09-01")
	entries := []schedule.Entry{
		{Date: d1, Selector: "2-1-1", Status: schedule.StatusPending, Notes: "swapped with <Tue>"},
		{Date: d2, Selector: "2-1-2", Status: schedule.StatusSent, SentAt: "2026-09-01T06:00:12+08:00"},
	}
	issued := []reply.Issued{
		{Token: "AB12CD34", Record: schedule.TokenRecord{Date: d1, Selector: "2-1-1"}},
	}
	return BuildRows(entries, issued)
}

func TestRenderSubjectAndTokens(t *testing.T) {
	rows := testRows(t)
	start, _ := schedule.ParseDate("2026-08-31")
	end, _ := schedule.ParseDate("2026-09-06")

	s := Render("[DailyManna]", "20260830T210000", start, end, rows)
	if want := "[DailyManna] Weekly Schedule 2026-08-31 – 2026-09-06"; s.Subject != want {
		t.Fatalf("subject %q, want %q", s.Subject, want)
	}
	if !strings.Contains(s.Text, "[AB12CD34]") {
		t.Fatalf("text digest missing token:\n%s", s.Text)
	}
	if strings.Contains(strings.SplitN(s.Text, "2026-09-01", 2)[1], "[AB12CD34]") {
		t.Fatalf("sent entry must not carry the pending entry's token")
	}
	if !strings.Contains(s.HTML, "&lt;Tue&gt;") {
		t.Fatalf("notes must be HTML escaped:\n%s", s.HTML)
	}
}

func TestArchiveWritesFile(t *testing.T) {
	rows := testRows(t)
	start, _ := schedule.ParseDate("2026-08-31")
	end, _ := schedule.ParseDate("2026-09-06")
	s := Render("", NewID(time.Date(2026, 8, 30, 21, 0, 0, 0, schedule.Location())), start, end, rows)

	dir := t.TempDir()
	path, err := Archive(dir, s)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if !strings.HasPrefix(string(b), s.Subject) {
		t.Fatalf("archive should start with the subject line")
	}
	if !strings.Contains(path, "summary-20260830T210000") {
		t.Fatalf("archive name should carry the summary id: %s", path)
	}
}
