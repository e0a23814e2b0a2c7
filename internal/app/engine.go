// Package app wires the schedule store, dispatch engine, mail transports,
// and execution tracker into the operations the CLI and daemon expose.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/HananiahKao/daily-manna-email/internal/config"
	"github.com/HananiahKao/daily-manna-email/internal/content"
	"github.com/HananiahKao/daily-manna-email/internal/dispatch"
	"github.com/HananiahKao/daily-manna-email/internal/mailbox"
	"github.com/HananiahKao/daily-manna-email/internal/metrics"
	"github.com/HananiahKao/daily-manna-email/internal/reply"
	"github.com/HananiahKao/daily-manna-email/internal/runner"
	"github.com/HananiahKao/daily-manna-email/internal/schedule"
	"github.com/HananiahKao/daily-manna-email/internal/summary"
	"github.com/HananiahKao/daily-manna-email/internal/tracker"
	"github.com/HananiahKao/daily-manna-email/internal/transport"
	logx "github.com/HananiahKao/daily-manna-email/pkg/logx"
)

// Engine is the operation façade. Every public method is one user-visible
// operation; state mutations go through load-mutate-save on the store.
type Engine struct {
	cfg      *config.Config
	store    *schedule.Store
	dispatch *dispatch.Engine
	tracker  *tracker.Tracker
	runner   *runner.Runner
	deliver  transport.Deliverer
	resolver content.Resolver
	fetcher  mailbox.Fetcher
	log      logx.Logger

	// now is swappable for tests.
	now func() time.Time
}

// New builds an engine from configuration. The tracker may be nil when the
// caller only needs schedule operations.
func New(cfg *config.Config, tr *tracker.Tracker, log logx.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	rules, err := dispatch.ParseRules(cfg.Dispatch.Rules)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		store:    schedule.NewStore(cfg.State.SchedulePath, log),
		dispatch: dispatch.NewEngine(rules, cfg.State.DispatchStatePath, log),
		tracker:  tr,
		log:      log,
		now:      func() time.Time { return time.Now().In(schedule.Location()) },
	}

	e.deliver = transport.NewSMTP(transport.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		UseSSL:   cfg.SMTP.UseSSL,
		From:     cfg.SMTP.From,
	})

	contentTimeout, err := config.ParseDurationField("content.timeout", cfg.Content.Timeout)
	if err != nil {
		return nil, err
	}
	e.resolver = content.NewExec(cfg.Content.Command, contentTimeout)

	if tr != nil {
		cmdTimeout, err := config.ParseDurationField("runner.command_timeout", cfg.Runner.CommandTimeout)
		if err != nil {
			return nil, err
		}
		backoff, err := config.ParseDurationField("runner.retry_backoff", cfg.Runner.RetryBackoff)
		if err != nil {
			return nil, err
		}
		e.runner = runner.New(runner.Config{CommandTimeout: cmdTimeout, RetryBackoff: backoff}, tr, log)
	}

	if cfg.Replies.Enabled {
		e.fetcher = mailbox.NewIMAP(mailbox.Config{
			Host:           cfg.Replies.Host,
			Port:           cfg.Replies.Port,
			Username:       cfg.Replies.Username,
			Password:       cfg.Replies.Password,
			UseSSL:         cfg.Replies.UseSSL,
			AllowedSenders: cfg.Replies.AllowedSenders,
		}, log)
	}
	return e, nil
}

// EntryView is the JSON shape schedule operations print.
type EntryView struct {
	Date     string `json:"date"`
	Weekday  string `json:"weekday"`
	Selector string `json:"selector"`
	Status   string `json:"status"`
	SentAt   string `json:"sent_at,omitempty"`
	Notes    string `json:"notes,omitempty"`
	Override string `json:"override,omitempty"`
}

// resolveDescriptor maps an operator date descriptor to a date; empty means
// today.
func (e *Engine) resolveDescriptor(descriptor string) (schedule.Date, error) {
	today := schedule.Today(e.now())
	if strings.TrimSpace(descriptor) == "" {
		return today, nil
	}
	return schedule.ParseDescriptor(descriptor, today)
}

func viewOf(e schedule.Entry) EntryView {
	return EntryView{
		Date:     e.Date.String(),
		Weekday:  schedule.WeekdayLabel(e.Date),
		Selector: e.Selector,
		Status:   string(e.Status),
		SentAt:   e.SentAt,
		Notes:    e.Notes,
		Override: e.Override,
	}
}

// NextEntry resolves a date descriptor ("today", "明天", a weekday, an ISO
// date, or empty for today) to its schedule entry. With skipSent, an
// already-sent entry for that date yields the next pending one instead.
func (e *Engine) NextEntry(descriptor string, skipSent bool) (EntryView, error) {
	date, err := e.resolveDescriptor(descriptor)
	if err != nil {
		return EntryView{}, err
	}
	sched, err := e.store.Load()
	if err != nil {
		return EntryView{}, err
	}
	entry := sched.Find(date)
	if entry == nil {
		return EntryView{}, fmt.Errorf("no schedule entry for %s", date)
	}
	if skipSent && entry.Status == schedule.StatusSent {
		for _, cand := range sched.Entries {
			if cand.Date.After(date) && cand.Status == schedule.StatusPending {
				return viewOf(cand), nil
			}
		}
		return EntryView{}, fmt.Errorf("no pending entry after %s", date)
	}
	return viewOf(*entry), nil
}

// MarkSent transitions a date's entry to sent, stamping the send time.
func (e *Engine) MarkSent(descriptor string) (EntryView, error) {
	date, err := e.resolveDescriptor(descriptor)
	if err != nil {
		return EntryView{}, err
	}
	sched, err := e.store.Load()
	if err != nil {
		return EntryView{}, err
	}
	entry, err := sched.MarkSent(date, e.now())
	if err != nil {
		return EntryView{}, err
	}
	if err := e.store.Save(sched); err != nil {
		return EntryView{}, err
	}
	return viewOf(*entry), nil
}

// EnsureWeekResult reports what the weekly pass produced.
type EnsureWeekResult struct {
	Start       string      `json:"start"`
	End         string      `json:"end"`
	Added       bool        `json:"added"`
	PurgedCount int         `json:"purged_tokens"`
	SummaryID   string      `json:"summary_id"`
	ArchivePath string      `json:"archive_path,omitempty"`
	Emailed     bool        `json:"emailed"`
	Entries     []EntryView `json:"entries"`
}

// EnsureWeek extends the schedule across next week, purges stale reply
// tokens, issues fresh ones, renders the digest, archives it, and optionally
// emails it. Idempotent over the schedule range; tokens rotate each call.
func (e *Engine) EnsureWeek(ctx context.Context, seed string, email bool) (EnsureWeekResult, error) {
	now := e.now()
	today := schedule.Today(now)
	start := schedule.NextMonday(today)
	end := start.AddDays(6)

	sched, err := e.store.Load()
	if err != nil {
		return EnsureWeekResult{}, err
	}
	added, err := sched.EnsureRange(start, end, seed)
	if err != nil {
		return EnsureWeekResult{}, err
	}
	purged := reply.PurgeExpired(sched, now)

	var weekEntries []schedule.Entry
	for _, entry := range sched.Entries {
		if !entry.Date.Before(start) && !end.Before(entry.Date) {
			weekEntries = append(weekEntries, entry)
		}
	}

	summaryID := summary.NewID(now)
	issued := reply.IssueTokens(sched, weekEntries, summaryID, now)
	if err := e.store.Save(sched); err != nil {
		return EnsureWeekResult{}, err
	}

	digest := summary.Render(e.cfg.Send.SubjectPrefix, summaryID, start, end,
		summary.BuildRows(weekEntries, issued))
	archivePath, err := summary.Archive(e.cfg.State.SummaryDir, digest)
	if err != nil {
		return EnsureWeekResult{}, err
	}

	result := EnsureWeekResult{
		Start:       start.String(),
		End:         end.String(),
		Added:       added,
		PurgedCount: purged,
		SummaryID:   summaryID,
		ArchivePath: archivePath,
	}
	for _, entry := range weekEntries {
		result.Entries = append(result.Entries, viewOf(entry))
	}

	if email {
		msg := transport.Message{
			To:      e.cfg.Send.To,
			Subject: digest.Subject,
			Text:    digest.Text,
			HTML:    digest.HTML,
		}
		if err := e.deliver.Deliver(ctx, msg); err != nil {
			return result, fmt.Errorf("summary delivery: %w", err)
		}
		result.Emailed = true
	}
	e.log.Info("weekly pass complete",
		logx.String("start", result.Start),
		logx.Bool("added", added),
		logx.Int("purged_tokens", purged),
		logx.Bool("emailed", result.Emailed))
	return result, nil
}

// ReplyReport is the outcome of applying one reply body.
type ReplyReport struct {
	Outcomes []reply.Outcome      `json:"outcomes"`
	Failures []reply.ParseFailure `json:"failures,omitempty"`
	Changed  bool                 `json:"changed"`
}

// ApplyReply parses a reply body and applies its instructions. Unparseable
// lines and rejected instructions are reported, never raised; the schedule
// is saved once, after the whole batch.
func (e *Engine) ApplyReply(body string) (ReplyReport, error) {
	instructions, failures := reply.ParseBody(body)
	report := ReplyReport{Failures: failures}
	if len(instructions) == 0 {
		return report, nil
	}

	sched, err := e.store.Load()
	if err != nil {
		return ReplyReport{}, err
	}
	result := reply.Apply(sched, instructions, e.now())
	report.Outcomes = result.Outcomes
	report.Changed = result.Changed
	if result.Changed {
		if err := e.store.Save(sched); err != nil {
			return ReplyReport{}, err
		}
	}
	return report, nil
}

// ProcessReplies drains unread operator replies: apply, acknowledge, and
// optionally send back an outcome report. One bad message never blocks the
// rest.
func (e *Engine) ProcessReplies(ctx context.Context) (int, error) {
	if e.fetcher == nil {
		return 0, fmt.Errorf("reply processing is not enabled")
	}
	replies, err := e.fetcher.FetchUnread(ctx)
	if err != nil {
		return 0, err
	}
	if len(replies) == 0 {
		return 0, nil
	}

	var processed []uint32
	for _, r := range replies {
		report, err := e.ApplyReply(r.Body)
		if err != nil {
			e.log.Error("reply apply failed", logx.String("from", r.From), logx.Err(err))
			continue
		}
		e.log.Info("reply processed",
			logx.String("from", r.From),
			logx.Int("outcomes", len(report.Outcomes)),
			logx.Int("failures", len(report.Failures)),
			logx.Bool("changed", report.Changed))
		processed = append(processed, r.UID)

		if e.cfg.Replies.Confirm && (len(report.Outcomes) > 0 || len(report.Failures) > 0) {
			msg := transport.Message{
				To:      []string{r.From},
				Subject: confirmSubject(e.cfg.Send.SubjectPrefix, r.Subject),
				Text:    renderConfirmation(report),
			}
			if err := e.deliver.Deliver(ctx, msg); err != nil {
				e.log.Warn("confirmation delivery failed", logx.String("to", r.From), logx.Err(err))
			}
		}
	}
	if err := e.fetcher.MarkProcessed(ctx, processed); err != nil {
		e.log.Warn("marking replies processed failed", logx.Err(err))
	}
	return len(processed), nil
}

func confirmSubject(prefix, original string) string {
	if prefix == "" {
		prefix = "[DailyManna]"
	}
	original = strings.TrimSpace(original)
	if original == "" {
		return prefix + " Reply processed"
	}
	return prefix + " Re: " + original
}

func renderConfirmation(report ReplyReport) string {
	var b strings.Builder
	b.WriteString("Your schedule commands were processed.\n\n")
	for _, o := range report.Outcomes {
		fmt.Fprintf(&b, "[%s] %s: %s (%s)\n", o.Token, o.Verb, o.Message, o.Status)
	}
	if len(report.Failures) > 0 {
		b.WriteString("\nLines that could not be understood:\n")
		for _, f := range report.Failures {
			fmt.Fprintf(&b, "  %q: %s\n", f.Line, f.Reason)
		}
	}
	return b.String()
}

// SendDaily resolves today's (or the given date's) entry to content and
// delivers it, then marks the entry sent. Without force, an already-sent or
// skipped entry is left alone.
func (e *Engine) SendDaily(ctx context.Context, descriptor string, force bool) (EntryView, error) {
	date, err := e.resolveDescriptor(descriptor)
	if err != nil {
		return EntryView{}, err
	}
	sched, err := e.store.Load()
	if err != nil {
		return EntryView{}, err
	}
	entry := sched.Find(date)
	if entry == nil {
		return EntryView{}, fmt.Errorf("no schedule entry for %s", date)
	}
	if !force {
		switch entry.Status {
		case schedule.StatusSent:
			e.log.Info("entry already sent; skipping", logx.String("date", date.String()))
			return viewOf(*entry), nil
		case schedule.StatusSkipped:
			e.log.Info("entry skipped by operator; not sending", logx.String("date", date.String()))
			return viewOf(*entry), nil
		}
	}

	selector := entry.Selector
	if entry.Override != "" {
		selector = entry.Override
	}
	block, err := e.resolver.Resolve(ctx, selector)
	if err != nil {
		return EntryView{}, fmt.Errorf("resolve %s: %w", selector, err)
	}

	subject := block.Title
	if subject == "" {
		subject = fmt.Sprintf("Lesson %s", selector)
	}
	prefix := e.cfg.Send.SubjectPrefix
	if prefix != "" {
		subject = prefix + " " + subject
	}
	msg := transport.Message{
		To:      e.cfg.Send.To,
		Subject: subject,
		Text:    block.Text,
		HTML:    block.HTML,
	}
	if err := e.deliver.Deliver(ctx, msg); err != nil {
		return EntryView{}, fmt.Errorf("daily delivery: %w", err)
	}

	updated, err := sched.MarkSent(date, e.now())
	if err != nil {
		return EntryView{}, err
	}
	if err := e.store.Save(sched); err != nil {
		return EntryView{}, err
	}
	e.log.Info("daily mail sent",
		logx.String("date", date.String()),
		logx.String("selector", selector),
		logx.Int("recipients", len(e.cfg.Send.To)))
	return viewOf(*updated), nil
}

// DispatchTick evaluates due rules and runs them sequentially. A rule is
// marked fired before its commands run, so a crash mid-run never replays it
// the same day; per-command retries live in the runner and tracker.
func (e *Engine) DispatchTick(ctx context.Context) error {
	now := e.now()
	due, err := e.dispatch.Evaluate(now)
	if err != nil {
		return err
	}
	for _, rule := range due {
		if err := ctx.Err(); err != nil {
			return err
		}
		metrics.ObserveDue(rule.Name)
		if err := e.dispatch.MarkFired(rule.Name, now); err != nil {
			return fmt.Errorf("mark %s fired: %w", rule.Name, err)
		}
		e.log.Info("rule due",
			logx.String("rule", rule.Name),
			logx.String("at", rule.TimeLabel()))
		if e.runner == nil {
			e.log.Warn("no runner configured; rule marked fired without running",
				logx.String("rule", rule.Name))
			continue
		}
		if err := e.runner.RunRule(ctx, rule); err != nil {
			e.log.Error("rule run failed", logx.String("rule", rule.Name), logx.Err(err))
		}
	}
	return nil
}

// Rules exposes the active dispatch rules for display.
func (e *Engine) Rules() []dispatch.Rule { return e.dispatch.Rules() }

// JobHistory pages through recorded executions.
func (e *Engine) JobHistory(ctx context.Context, q tracker.HistoryQuery) (tracker.HistoryPage, error) {
	if e.tracker == nil {
		return tracker.HistoryPage{}, fmt.Errorf("tracker is not available")
	}
	return e.tracker.History(ctx, q)
}

// JobStats aggregates execution statistics.
func (e *Engine) JobStats(ctx context.Context, jobName string) (tracker.Stats, error) {
	if e.tracker == nil {
		return tracker.Stats{}, fmt.Errorf("tracker is not available")
	}
	return e.tracker.Stats(ctx, jobName)
}
