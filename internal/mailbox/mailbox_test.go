package mailbox

import (
	"testing"

	logx "github.com/HananiahKao/daily-manna-email/pkg/logx"
)

func TestSenderAllowlist(t *testing.T) {
	m := NewIMAP(Config{AllowedSenders: []string{"Operator@Example.COM", " "}}, logx.Nop())
	if !m.senderAllowed("operator@example.com") {
		t.Fatalf("case-insensitive match expected")
	}
	if m.senderAllowed("stranger@example.com") {
		t.Fatalf("unlisted sender must be rejected")
	}

	open := NewIMAP(Config{}, logx.Nop())
	if !open.senderAllowed("anyone@example.com") {
		t.Fatalf("empty allowlist admits all senders")
	}
}

func TestRawBodyFallback(t *testing.T) {
	raw := []byte("Subject: hi\r\nFrom: a@b\r\n\r\n[AB12CD34] keep\r\n")
	if got := rawBodyFallback(raw); got != "[AB12CD34] keep" {
		t.Fatalf("got %q", got)
	}
	// Bare-LF messages still split on the header boundary.
	if got := rawBodyFallback([]byte("X: y\n\nbody here")); got != "body here" {
		t.Fatalf("got %q", got)
	}
}

func TestConfigDefaults(t *testing.T) {
	ssl := Config{UseSSL: true}.withDefaults()
	if ssl.Port != 993 {
		t.Fatalf("ssl default port: %d", ssl.Port)
	}
	plain := Config{}.withDefaults()
	if plain.Port != 143 {
		t.Fatalf("plain default port: %d", plain.Port)
	}
	if plain.Timeout <= 0 {
		t.Fatalf("timeout default missing")
	}
}
