package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"github.com/HananiahKao/daily-manna-email/internal/config"
	"github.com/HananiahKao/daily-manna-email/internal/metrics"
	"github.com/HananiahKao/daily-manna-email/internal/schedule"
	"github.com/HananiahKao/daily-manna-email/internal/tracker"
	logx "github.com/HananiahKao/daily-manna-email/pkg/logx"
)

const defaultPollInterval = 5 * time.Minute

// Service is the long-running daemon: a cron-driven dispatch poll, optional
// reply polling, optional metrics endpoint, and config hot reload.
type Service struct {
	manager *config.Manager
	logSvc  *logx.Service
	log     logx.Logger

	mu      sync.Mutex
	engine  *Engine
	lastCfg *config.Config

	tracker *tracker.Tracker
}

func NewService(manager *config.Manager, logSvc *logx.Service, log logx.Logger) *Service {
	return &Service{manager: manager, logSvc: logSvc, log: log}
}

// Run blocks until ctx is cancelled. The dispatch poll runs immediately at
// startup so a daemon restarted after a due time still fires that day's
// rules.
func (s *Service) Run(ctx context.Context) error {
	cfg := s.manager.Get()
	if cfg == nil {
		return fmt.Errorf("no configuration loaded")
	}

	trackerCfg, err := trackerConfig(cfg.Tracker)
	if err != nil {
		return err
	}
	tr, err := tracker.Open(trackerCfg, s.log)
	if err != nil {
		return fmt.Errorf("open tracker: %w", err)
	}
	s.tracker = tr
	defer func() { _ = tr.Close() }()

	engine, err := New(cfg, tr, s.log)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.engine = engine
	s.lastCfg = cfg
	s.mu.Unlock()

	pollInterval, err := config.ParseDurationOrDefault("dispatch.poll_interval", cfg.Dispatch.PollInterval, defaultPollInterval)
	if err != nil {
		return err
	}

	c := cron.New(cron.WithLocation(schedule.Location()))
	if cfg.Dispatch.Enabled {
		if _, err := c.AddFunc(fmt.Sprintf("@every %s", pollInterval), func() {
			s.tick(ctx)
		}); err != nil {
			return fmt.Errorf("register dispatch poll: %w", err)
		}
	}
	if cfg.Replies.Enabled {
		replyInterval, err := config.ParseDurationOrDefault("replies.poll_interval", cfg.Replies.PollInterval, pollInterval)
		if err != nil {
			return err
		}
		if _, err := c.AddFunc(fmt.Sprintf("@every %s", replyInterval), func() {
			s.pollReplies(ctx)
		}); err != nil {
			return fmt.Errorf("register reply poll: %w", err)
		}
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		addr := cfg.Metrics.Addr
		if addr == "" {
			addr = "127.0.0.1:9290"
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv = &http.Server{Addr: addr, Handler: mux}
		go func() {
			s.log.Info("metrics listening", logx.String("addr", addr))
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.log.Error("metrics server stopped", logx.Err(err))
			}
		}()
	}

	updates := s.manager.Subscribe(1)
	defer s.manager.Unsubscribe(updates)
	go func() {
		if err := s.manager.Watch(ctx); err != nil {
			s.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	c.Start()
	s.log.Info("daemon started",
		logx.Duration("poll_interval", pollInterval),
		logx.Bool("dispatch", cfg.Dispatch.Enabled),
		logx.Bool("replies", cfg.Replies.Enabled),
		logx.Int("rules", len(engine.Rules())))

	// Run one poll right away rather than waiting a full interval.
	if cfg.Dispatch.Enabled {
		s.tick(ctx)
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	watchdog := s.startWatchdog(ctx)

	for {
		select {
		case <-ctx.Done():
			<-c.Stop().Done()
			if watchdog != nil {
				watchdog.Stop()
			}
			if metricsSrv != nil {
				shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				_ = metricsSrv.Shutdown(shutCtx)
				cancel()
			}
			_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
			s.log.Info("daemon stopped")
			return nil
		case newCfg, ok := <-updates:
			if !ok {
				return nil
			}
			s.applyConfig(newCfg)
		}
	}
}

// tick runs one dispatch evaluation on the current engine.
func (s *Service) tick(ctx context.Context) {
	s.mu.Lock()
	engine := s.engine
	s.mu.Unlock()
	if engine == nil {
		return
	}
	if err := engine.DispatchTick(ctx); err != nil && ctx.Err() == nil {
		s.log.Error("dispatch tick failed", logx.Err(err))
	}
}

func (s *Service) pollReplies(ctx context.Context) {
	s.mu.Lock()
	engine := s.engine
	s.mu.Unlock()
	if engine == nil || engine.fetcher == nil {
		return
	}
	n, err := engine.ProcessReplies(ctx)
	if err != nil && ctx.Err() == nil {
		s.log.Warn("reply poll failed", logx.Err(err))
		return
	}
	if n > 0 {
		s.log.Info("replies processed", logx.Int("count", n))
	}
}

// applyConfig swaps in a validated config: logging sinks re-apply, the
// engine rebuilds. Poll intervals stay fixed until restart.
func (s *Service) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	// The manager has already committed cfg, so diff against our own copy.
	s.mu.Lock()
	old := s.lastCfg
	s.mu.Unlock()
	changed, attrs := config.SummarizeChange(old, cfg)

	if s.logSvc != nil {
		s.logSvc.Apply(logConfig(cfg.Logging))
	}

	engine, err := New(cfg, s.tracker, s.log)
	if err != nil {
		s.log.Error("config reload rejected at engine build", logx.Err(err))
		return
	}
	s.mu.Lock()
	s.engine = engine
	s.lastCfg = cfg
	s.mu.Unlock()

	s.log.Info("configuration reloaded",
		append([]logx.Field{logx.Any("changed", changed)}, attrs...)...)
}

func (s *Service) startWatchdog(ctx context.Context) *time.Ticker {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return nil
	}
	ticker := time.NewTicker(interval / 2)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	}()
	return ticker
}

// logConfig maps the config section onto the logging service's own form.
func logConfig(lc config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		Alert: logx.AlertConfig{
			Enabled:    lc.Alert.Enabled,
			MinLevel:   lc.Alert.MinLevel,
			RatePerMin: lc.Alert.RatePerMin,
			To:         lc.Alert.To,
			Subject:    lc.Alert.Subject,
		},
	}
}

// LogConfig is the exported form for the CLI bootstrap.
func LogConfig(lc config.LoggingConfig) logx.Config { return logConfig(lc) }

func trackerConfig(tc config.TrackerConfig) (tracker.Config, error) {
	age, err := config.ParseDurationField("tracker.retention_age", tc.RetentionAge)
	if err != nil {
		return tracker.Config{}, err
	}
	return tracker.Config{
		Path:          tc.Path,
		RetentionRows: tc.RetentionRows,
		RetentionAge:  age,
		StatsWindow:   tc.StatsWindow,
	}, nil
}

// TrackerConfig is the exported form for the CLI bootstrap.
func TrackerConfig(tc config.TrackerConfig) (tracker.Config, error) { return trackerConfig(tc) }
