package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/HananiahKao/daily-manna-email/internal/schedule"
	logx "github.com/HananiahKao/daily-manna-email/pkg/logx"
)

// DefaultStatePath is where last-fired dates persist, overridable via
// DISPATCH_STATE_FILE.
const DefaultStatePath = "state/dispatch_state.json"

// State maps rule name to the last calendar date (engine timezone) the rule
// fired on.
type State map[string]schedule.Date

// Engine evaluates a rule set against wall-clock time and persisted firing
// state. Per rule the lifecycle is Idle -> Due -> (MarkFired) -> Idle until
// midnight rollover; a due rule stays due at every poll until it fires, so
// a late poll never skips a day's firing.
type Engine struct {
	rules     []Rule
	statePath string
	loc       *time.Location
	log       logx.Logger
}

func NewEngine(rules []Rule, statePath string, log logx.Logger) *Engine {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	SortRules(rules)
	if strings.TrimSpace(statePath) == "" {
		statePath = DefaultStatePath
		if env := strings.TrimSpace(os.Getenv("DISPATCH_STATE_FILE")); env != "" {
			statePath = env
		}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{rules: rules, statePath: statePath, loc: schedule.Location(), log: log}
}

// Rules returns the active rule set in evaluation order.
func (e *Engine) Rules() []Rule { return append([]Rule(nil), e.rules...) }

// Evaluate returns the rules due at now: scheduled time reached today,
// weekday matches, and no firing recorded for today yet. There is no missed
// window cutoff; a rule stays due until fired or the day rolls over.
func (e *Engine) Evaluate(now time.Time) ([]Rule, error) {
	state, err := e.loadState()
	if err != nil {
		return nil, err
	}
	local := now.In(e.loc)
	today := schedule.DateOf(local)

	var due []Rule
	for _, rule := range e.rules {
		if !rule.Weekdays[local.Weekday()] {
			continue
		}
		if local.Before(rule.scheduledAt(now, e.loc)) {
			continue
		}
		if last, ok := state[rule.Name]; ok && last == today {
			continue
		}
		due = append(due, rule)
	}
	return due, nil
}

// MarkFired records that a rule dispatched today. Called at dispatch time,
// before command outcomes are known: a failing job must not be re-dispatched
// by the next poll; its retries belong to the execution tracker.
func (e *Engine) MarkFired(ruleName string, now time.Time) error {
	state, err := e.loadState()
	if err != nil {
		return err
	}
	state[ruleName] = schedule.DateOf(now.In(e.loc))
	return e.saveState(state)
}

// LastFired reports the last firing date recorded for a rule.
func (e *Engine) LastFired(ruleName string) (schedule.Date, bool, error) {
	state, err := e.loadState()
	if err != nil {
		return schedule.Date{}, false, err
	}
	d, ok := state[ruleName]
	return d, ok, nil
}

func (e *Engine) loadState() (State, error) {
	data, err := os.ReadFile(e.statePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{}, nil
		}
		return nil, err
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", schedule.ErrCorruptState, e.statePath, err)
	}
	state := State{}
	for name, iso := range raw {
		d, err := schedule.ParseDate(iso)
		if err != nil {
			// A malformed date for one rule re-arms only that rule.
			e.log.Warn("dropping malformed dispatch state entry",
				logx.String("rule", name), logx.String("value", iso))
			continue
		}
		state[name] = d
	}
	return state, nil
}

func (e *Engine) saveState(state State) error {
	raw := make(map[string]string, len(state))
	for name, d := range state {
		raw[name] = d.String()
	}
	if err := os.MkdirAll(filepath.Dir(e.statePath), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	tmp := fmt.Sprintf("%s.tmp-%d", e.statePath, time.Now().UnixNano())
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, e.statePath); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
