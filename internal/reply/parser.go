package reply

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/HananiahKao/daily-manna-email/internal/schedule"
)

// Op identifies one reply verb.
type Op int

const (
	OpKeep Op = iota
	OpSkip
	OpMove
	OpSetSelector
	OpSetNote
	OpSetStatus
	OpSetOverride
)

func (op Op) String() string {
	switch op {
	case OpKeep:
		return "keep"
	case OpSkip:
		return "skip"
	case OpMove:
		return "move"
	case OpSetSelector:
		return "selector"
	case OpSetNote:
		return "note"
	case OpSetStatus:
		return "status"
	case OpSetOverride:
		return "override"
	}
	return "unknown"
}

// Instruction is one parsed operator command.
type Instruction struct {
	Token string
	Op    Op

	// Argument fields by op: Date for move, Text for selector/note/status/
	// override and the optional skip reason.
	Date schedule.Date
	Text string

	// Source is the original line, kept for confirmation reporting.
	Source string
}

// ParseFailure records a line that did not match the grammar.
type ParseFailure struct {
	Line   string
	Reason string
}

var (
	// Issued tokens are 8 hex chars; the pattern tolerates 6 to 32
	// alphanumerics so other token shapes still reach the resolver.
	// Shorter bracketed strings are reported as malformed lines.
	commandLinePattern = regexp.MustCompile(`^\[([A-Za-z0-9]{6,32})\]\s*(.*)$`)
	replyBreakPattern  = regexp.MustCompile(`(?i)^on\s+.*\b(wrote|說):?\s*$`)
)

// ParseBody translates a raw reply body into instructions and failures.
// Parsing is total: malformed lines become failures, never errors. Quoted
// lines are skipped and parsing stops at the first quoted-reply break line.
// Instructions come back in line order.
func ParseBody(body string) ([]Instruction, []ParseFailure) {
	var instructions []Instruction
	var failures []ParseFailure

	for _, raw := range strings.Split(body, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ">") {
			continue
		}
		if replyBreakPattern.MatchString(line) {
			break
		}
		m := commandLinePattern.FindStringSubmatch(line)
		if m == nil {
			failures = append(failures, ParseFailure{Line: line, Reason: "line does not match [TOKEN] command format"})
			continue
		}
		token := strings.ToUpper(m[1])
		remainder := strings.TrimSpace(m[2])
		if remainder == "" {
			failures = append(failures, ParseFailure{Line: line, Reason: fmt.Sprintf("missing command for token %s", token)})
			continue
		}
		verb, tail := splitVerb(remainder)
		inst, reason := parseInstruction(token, verb, tail, line)
		if reason != "" {
			failures = append(failures, ParseFailure{Line: line, Reason: reason})
			continue
		}
		instructions = append(instructions, inst)
	}
	return instructions, failures
}

func splitVerb(remainder string) (verb, tail string) {
	fields := strings.SplitN(remainder, " ", 2)
	verb = strings.ToLower(fields[0])
	if len(fields) > 1 {
		tail = strings.TrimSpace(fields[1])
	}
	return verb, tail
}

// parseInstruction validates one verb+argument pair. A non-empty reason
// means the line is rejected.
func parseInstruction(token, verb, tail, source string) (Instruction, string) {
	inst := Instruction{Token: token, Source: source}
	switch verb {
	case "keep", "ok":
		if tail != "" {
			return inst, "keep does not accept extra text"
		}
		inst.Op = OpKeep
	case "skip", "omit":
		inst.Op = OpSkip
		inst.Text = tail // optional reason
	case "move", "reschedule", "resched", "date":
		if tail == "" {
			return inst, "move requires an ISO date"
		}
		d, err := schedule.ParseDate(tail)
		if err != nil {
			return inst, fmt.Sprintf("invalid ISO date %q", tail)
		}
		inst.Op = OpMove
		inst.Date = d
	case "selector", "sel":
		if tail == "" {
			return inst, "selector requires a value"
		}
		if _, _, _, err := schedule.ParseSelector(tail); err != nil {
			return inst, fmt.Sprintf("invalid selector %q", tail)
		}
		inst.Op = OpSetSelector
		inst.Text = strings.TrimSpace(tail)
	case "note", "notes", "comment":
		if tail == "" {
			return inst, "note requires content"
		}
		inst.Op = OpSetNote
		inst.Text = tail
	case "status":
		if tail == "" {
			return inst, "status requires a value"
		}
		status, err := schedule.ParseStatus(tail)
		if err != nil {
			return inst, fmt.Sprintf("unknown status %q", tail)
		}
		inst.Op = OpSetStatus
		inst.Text = string(status)
	case "override", "weekday":
		if tail == "" {
			return inst, "override requires a descriptor"
		}
		inst.Op = OpSetOverride
		inst.Text = tail
	default:
		return inst, fmt.Sprintf("unrecognized action %q", verb)
	}
	return inst, ""
}
