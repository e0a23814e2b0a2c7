package transport

import (
	"strings"
	"testing"
)

func TestBuildMIMEPlainOnly(t *testing.T) {
	msg := Message{
		To:      []string{"crew@example.org"},
		Subject: "Lesson 2-1-3",
		Text:    "body text",
	}
	raw, err := buildMIME("bot@example.org", msg.To, msg)
	if err != nil {
		t.Fatalf("buildMIME: %v", err)
	}
	s := string(raw)
	if !strings.Contains(s, "From: bot@example.org\r\n") {
		t.Fatalf("missing From header:\n%s", s)
	}
	if !strings.Contains(s, "Content-Type: text/plain; charset=utf-8") {
		t.Fatalf("expected plain text content type:\n%s", s)
	}
	if strings.Contains(s, "multipart/alternative") {
		t.Fatalf("plain message must not be multipart:\n%s", s)
	}
	if !strings.Contains(s, "body text") {
		t.Fatalf("body missing:\n%s", s)
	}
}

func TestBuildMIMEMultipart(t *testing.T) {
	msg := Message{
		To:      []string{"a@example.org", "b@example.org"},
		Subject: "weekly digest",
		Text:    "plain part",
		HTML:    "<table><tr><td>html part</td></tr></table>",
	}
	raw, err := buildMIME("bot@example.org", msg.To, msg)
	if err != nil {
		t.Fatalf("buildMIME: %v", err)
	}
	s := string(raw)
	if !strings.Contains(s, "multipart/alternative") {
		t.Fatalf("expected multipart message:\n%s", s)
	}
	if !strings.Contains(s, "To: a@example.org, b@example.org\r\n") {
		t.Fatalf("recipients not joined:\n%s", s)
	}
	if !strings.Contains(s, "plain part") || !strings.Contains(s, "html part") {
		t.Fatalf("both parts must be present:\n%s", s)
	}
	// text/plain must come before text/html so clients prefer the richer part.
	if strings.Index(s, "text/plain") > strings.Index(s, "text/html") {
		t.Fatalf("plain part must precede html part:\n%s", s)
	}
}

func TestBuildMIMEEncodesSubject(t *testing.T) {
	msg := Message{To: []string{"a@example.org"}, Subject: "課程 2-1-3", Text: "x"}
	raw, err := buildMIME("bot@example.org", msg.To, msg)
	if err != nil {
		t.Fatalf("buildMIME: %v", err)
	}
	if !strings.Contains(string(raw), "=?utf-8?q?") {
		t.Fatalf("non-ASCII subject must be RFC 2047 encoded:\n%s", raw)
	}
}

func TestCleanAddresses(t *testing.T) {
	got := cleanAddresses([]string{" a@example.org ", "", "  ", "b@example.org"})
	if len(got) != 2 || got[0] != "a@example.org" || got[1] != "b@example.org" {
		t.Fatalf("cleanAddresses = %v", got)
	}
}
