// Package dispatch decides, from wall-clock time and a rule set, which
// recurring jobs are due. Each rule fires at most once per calendar day in
// the engine timezone; firing is recorded at dispatch time, so retry
// bookkeeping stays with the execution tracker.
package dispatch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/HananiahKao/daily-manna-email/internal/schedule"
)

// RuleConfig is the wire form of one dispatch rule as it appears in the
// configuration file.
type RuleConfig struct {
	Name string `json:"name" yaml:"name" validate:"required"`
	Time string `json:"time" yaml:"time" validate:"required"`
	// Weekdays holds weekday labels/indices, or the sentinel "daily".
	Weekdays []json.RawMessage `json:"weekdays,omitempty" yaml:"weekdays,omitempty"`
	// Commands entries are either argv arrays or shell strings.
	Commands []json.RawMessage `json:"commands" yaml:"commands" validate:"required,min=1"`
	Env      map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	// MaxAttempts bounds retries per firing; 0 means the runner default.
	MaxAttempts int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty" validate:"gte=0,lte=10"`
}

// Rule is a validated dispatch rule.
type Rule struct {
	Name        string
	Hour        int
	Minute      int
	Weekdays    map[time.Weekday]bool
	Commands    [][]string
	Env         map[string]string
	MaxAttempts int
}

// Daily reports whether the rule matches every weekday.
func (r Rule) Daily() bool { return len(r.Weekdays) == 7 }

// WeekdaysLabel renders the weekday set for display.
func (r Rule) WeekdaysLabel() string {
	if r.Daily() {
		return "daily"
	}
	order := []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday}
	var parts []string
	for _, wd := range order {
		if r.Weekdays[wd] {
			parts = append(parts, strings.ToLower(wd.String()[:3]))
		}
	}
	return strings.Join(parts, ",")
}

// TimeLabel renders "HH:MM".
func (r Rule) TimeLabel() string { return fmt.Sprintf("%02d:%02d", r.Hour, r.Minute) }

// scheduledAt returns the rule's firing instant for the day containing now.
func (r Rule) scheduledAt(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), r.Hour, r.Minute, 0, 0, loc)
}

// ParseRules validates a rule list from configuration.
func ParseRules(configs []RuleConfig) ([]Rule, error) {
	rules := make([]Rule, 0, len(configs))
	seen := map[string]bool{}
	for _, rc := range configs {
		rule, err := parseRule(rc)
		if err != nil {
			return nil, err
		}
		if seen[rule.Name] {
			return nil, fmt.Errorf("%w: duplicate rule name %q", schedule.ErrValidation, rule.Name)
		}
		seen[rule.Name] = true
		rules = append(rules, rule)
	}
	return rules, nil
}

func parseRule(rc RuleConfig) (Rule, error) {
	name := strings.TrimSpace(rc.Name)
	if name == "" {
		return Rule{}, fmt.Errorf("%w: rule name is required", schedule.ErrValidation)
	}
	hour, minute, err := ParseHHMM(rc.Time)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %s: %w", name, err)
	}
	weekdays, err := parseWeekdays(rc.Weekdays)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %s: %w", name, err)
	}
	if len(rc.Commands) == 0 {
		return Rule{}, fmt.Errorf("%w: rule %s has no commands", schedule.ErrValidation, name)
	}
	commands := make([][]string, 0, len(rc.Commands))
	for _, raw := range rc.Commands {
		argv, err := coerceCommand(raw)
		if err != nil {
			return Rule{}, fmt.Errorf("rule %s: %w", name, err)
		}
		commands = append(commands, argv)
	}
	return Rule{
		Name:        name,
		Hour:        hour,
		Minute:      minute,
		Weekdays:    weekdays,
		Commands:    commands,
		Env:         rc.Env,
		MaxAttempts: rc.MaxAttempts,
	}, nil
}

// ParseHHMM parses a "HH:MM" rule time.
func ParseHHMM(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: invalid time %q, expected HH:MM", schedule.ErrValidation, s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: invalid hour in %q", schedule.ErrValidation, s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: invalid minute in %q", schedule.ErrValidation, s)
	}
	return hour, minute, nil
}

// parseWeekdays accepts labels ("mon", "週一"), indices (0=Sunday..6 per
// time.Weekday), and the sentinels "daily"/"all". An empty list means daily.
func parseWeekdays(raw []json.RawMessage) (map[time.Weekday]bool, error) {
	everyday := map[time.Weekday]bool{}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		everyday[wd] = true
	}
	if len(raw) == 0 {
		return everyday, nil
	}
	out := map[time.Weekday]bool{}
	for _, item := range raw {
		var n int
		if err := json.Unmarshal(item, &n); err == nil {
			if n < 0 || n > 6 {
				return nil, fmt.Errorf("%w: weekday index must be 0..6: %d", schedule.ErrValidation, n)
			}
			out[time.Weekday(n)] = true
			continue
		}
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			return nil, fmt.Errorf("%w: weekday entries must be strings or indices", schedule.ErrValidation)
		}
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "daily", "all":
			return everyday, nil
		}
		wd, err := schedule.ParseWeekday(s)
		if err != nil {
			return nil, err
		}
		out[wd] = true
	}
	return out, nil
}

// coerceCommand turns a command spec into argv: arrays pass through, shell
// strings wrap in a shell invocation.
func coerceCommand(raw json.RawMessage) ([]string, error) {
	var argv []string
	if err := json.Unmarshal(raw, &argv); err == nil {
		if len(argv) == 0 {
			return nil, fmt.Errorf("%w: empty command", schedule.ErrValidation)
		}
		return argv, nil
	}
	var shell string
	if err := json.Unmarshal(raw, &shell); err != nil {
		return nil, fmt.Errorf("%w: command must be an argv array or shell string", schedule.ErrValidation)
	}
	if strings.TrimSpace(shell) == "" {
		return nil, fmt.Errorf("%w: empty command", schedule.ErrValidation)
	}
	return []string{"bash", "-lc", shell}, nil
}

// DefaultRules is the built-in rule set used when no configuration exists:
// the daily send on working days and the weekly summary on Sunday evening.
func DefaultRules() []Rule {
	weekdaysMonSat := map[time.Weekday]bool{}
	for wd := time.Monday; wd <= time.Saturday; wd++ {
		weekdaysMonSat[wd] = true
	}
	return []Rule{
		{
			Name:     "daily-send",
			Hour:     6,
			Weekdays: weekdaysMonSat,
			Commands: [][]string{{"manna", "send-daily"}},
		},
		{
			Name:     "weekly-summary",
			Hour:     21,
			Weekdays: map[time.Weekday]bool{time.Sunday: true},
			Commands: [][]string{{"manna", "ensure-week", "--email"}},
		},
	}
}

// SortRules orders rules by firing time then name, the order ticks run them.
func SortRules(rules []Rule) {
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Hour != rules[j].Hour {
			return rules[i].Hour < rules[j].Hour
		}
		if rules[i].Minute != rules[j].Minute {
			return rules[i].Minute < rules[j].Minute
		}
		return rules[i].Name < rules[j].Name
	})
}
