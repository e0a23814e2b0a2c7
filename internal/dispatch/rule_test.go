package dispatch

import (
	"encoding/json"
	"testing"
	"time"
)

func rawList(items ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(items))
	for i, s := range items {
		out[i] = json.RawMessage(s)
	}
	return out
}

func TestParseRules(t *testing.T) {
	rules, err := ParseRules([]RuleConfig{
		{
			Name:     "daily-send",
			Time:     "06:00",
			Weekdays: rawList(`"mon"`, `"tue"`, `"wed"`, `"thu"`, `"fri"`, `"sat"`),
			Commands: rawList(`["manna","send-daily"]`),
		},
		{
			Name:     "backup",
			Time:     "23:30",
			Weekdays: rawList(`0`),
			Commands: rawList(`"tar czf backup.tgz state/"`),
			Env:      map[string]string{"TZ": "Asia/Taipei"},
		},
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if rules[0].Hour != 6 || rules[0].Minute != 0 || rules[0].Weekdays[time.Sunday] {
		t.Fatalf("daily-send wrong: %+v", rules[0])
	}
	if !rules[1].Weekdays[time.Sunday] || rules[1].Weekdays[time.Monday] {
		t.Fatalf("numeric weekday wrong: %+v", rules[1].Weekdays)
	}
	if got := rules[1].Commands[0]; got[0] != "bash" || got[1] != "-lc" {
		t.Fatalf("shell string must wrap in a shell: %v", got)
	}
}

func TestParseRulesRejects(t *testing.T) {
	cases := []RuleConfig{
		{Name: "", Time: "06:00", Commands: rawList(`["x"]`)},
		{Name: "a", Time: "24:00", Commands: rawList(`["x"]`)},
		{Name: "a", Time: "06:00"},
		{Name: "a", Time: "06:00", Weekdays: rawList(`7`), Commands: rawList(`["x"]`)},
		{Name: "a", Time: "06:00", Weekdays: rawList(`"someday"`), Commands: rawList(`["x"]`)},
	}
	for i, rc := range cases {
		if _, err := ParseRules([]RuleConfig{rc}); err == nil {
			t.Fatalf("case %d should fail: %+v", i, rc)
		}
	}

	dup := RuleConfig{Name: "a", Time: "06:00", Commands: rawList(`["x"]`)}
	if _, err := ParseRules([]RuleConfig{dup, dup}); err == nil {
		t.Fatalf("duplicate names must be rejected")
	}
}

func TestParseRulesDailySentinel(t *testing.T) {
	rules, err := ParseRules([]RuleConfig{
		{Name: "a", Time: "12:00", Weekdays: rawList(`"daily"`), Commands: rawList(`["x"]`)},
		{Name: "b", Time: "12:00", Commands: rawList(`["x"]`)},
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, r := range rules {
		if !r.Daily() {
			t.Fatalf("rule %s should match every weekday", r.Name)
		}
	}
}

func TestDefaultRules(t *testing.T) {
	rules := DefaultRules()
	if len(rules) != 2 {
		t.Fatalf("want 2 default rules, got %d", len(rules))
	}
	byName := map[string]Rule{}
	for _, r := range rules {
		byName[r.Name] = r
	}
	daily := byName["daily-send"]
	if daily.Hour != 6 || daily.Weekdays[time.Sunday] || !daily.Weekdays[time.Saturday] {
		t.Fatalf("daily-send default wrong: %+v", daily)
	}
	weekly := byName["weekly-summary"]
	if weekly.Hour != 21 || !weekly.Weekdays[time.Sunday] || weekly.Weekdays[time.Monday] {
		t.Fatalf("weekly-summary default wrong: %+v", weekly)
	}
}
