package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validYAML = `
timezone: Asia/Taipei
logging:
  level: info
  console: true
  file:
    enabled: false
    path: ""
dispatch:
  enabled: true
  poll_interval: 5m
  rules:
    - name: daily-send
      time: "06:00"
      weekdays: [mon, tue, wed, thu, fri, sat]
      commands:
        - [manna, send-daily]
smtp:
  host: smtp.example.com
  port: 465
  use_ssl: true
  from: sender@example.com
send:
  to: [reader@example.com]
  subject_prefix: "[DailyManna]"
content:
  command: [manna-content]
`

func TestParseYAML(t *testing.T) {
	m := NewManager(writeConfig(t, "config.yaml", validYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SMTP.Host != "smtp.example.com" || !cfg.SMTP.UseSSL {
		t.Fatalf("smtp section wrong: %+v", cfg.SMTP)
	}
	if len(cfg.Dispatch.Rules) != 1 || cfg.Dispatch.Rules[0].Name != "daily-send" {
		t.Fatalf("dispatch rules wrong: %+v", cfg.Dispatch.Rules)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got := m.Get(); got != cfg {
		t.Fatalf("Get should return the committed config")
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	m := NewManager(writeConfig(t, "config.yaml", validYAML+"\nbogus_key: 1\n"))
	if _, err := m.Parse(); err == nil {
		t.Fatalf("unknown top-level key must be rejected")
	}
}

func TestValidateTimezone(t *testing.T) {
	m := NewManager(writeConfig(t, "config.yaml", validYAML))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg.Timezone = "UTC"
	if err := Validate(cfg); err == nil {
		t.Fatalf("non-Taipei timezone must be rejected")
	}
}

func TestValidateBadRuleTime(t *testing.T) {
	m := NewManager(writeConfig(t, "config.yaml", validYAML))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg.Dispatch.Rules[0].Time = "6 o'clock"
	if err := Validate(cfg); err == nil {
		t.Fatalf("unparseable rule time must be rejected")
	}
}

func TestValidateRepliesRequiresHost(t *testing.T) {
	m := NewManager(writeConfig(t, "config.yaml", validYAML))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg.Replies.Enabled = true
	if err := Validate(cfg); err == nil {
		t.Fatalf("enabled replies without an IMAP host must be rejected")
	}
}

func TestSummarizeChange(t *testing.T) {
	m := NewManager(writeConfig(t, "config.yaml", validYAML))
	oldCfg, err := m.Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	newCfg, _ := m.Parse()
	newCfg.Dispatch.PollInterval = "1m"
	newCfg.SMTP.Password = "rotated"

	changed, _ := SummarizeChange(oldCfg, newCfg)
	want := map[string]bool{"dispatch": true, "mail": true}
	if len(changed) != 2 {
		t.Fatalf("changed sections: %v", changed)
	}
	for _, c := range changed {
		if !want[c] {
			t.Fatalf("unexpected section %q in %v", c, changed)
		}
	}
}
