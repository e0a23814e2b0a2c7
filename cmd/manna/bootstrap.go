package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HananiahKao/daily-manna-email/internal/app"
	"github.com/HananiahKao/daily-manna-email/internal/config"
	"github.com/HananiahKao/daily-manna-email/internal/tracker"
	"github.com/HananiahKao/daily-manna-email/internal/transport"
	logx "github.com/HananiahKao/daily-manna-email/pkg/logx"
)

const defaultConfigPath = "config.yaml"

// bootstrap holds what every subcommand needs after config load.
type bootstrap struct {
	manager *config.Manager
	cfg     *config.Config
	logSvc  *logx.Service
	log     logx.Logger
}

func load(configPath string) (*bootstrap, error) {
	manager := config.NewManager(configPath)
	cfg, err := manager.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	alertSender := transport.NewSMTP(transport.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		UseSSL:   cfg.SMTP.UseSSL,
		From:     cfg.SMTP.From,
	})
	logSvc, log := logx.New(app.LogConfig(cfg.Logging), alertSender)
	manager.SetLogger(log)
	manager.SetValidator(func(_ context.Context, c *config.Config) error { return config.Validate(c) })

	return &bootstrap{manager: manager, cfg: cfg, logSvc: logSvc, log: log}, nil
}

func (b *bootstrap) Close() {
	if b.logSvc != nil {
		_ = b.logSvc.Close()
	}
}

// engine builds the operation façade; withTracker opens the execution store.
func (b *bootstrap) engine(withTracker bool) (*app.Engine, *tracker.Tracker, error) {
	var tr *tracker.Tracker
	if withTracker {
		trackerCfg, err := app.TrackerConfig(b.cfg.Tracker)
		if err != nil {
			return nil, nil, err
		}
		tr, err = tracker.Open(trackerCfg, b.log)
		if err != nil {
			return nil, nil, fmt.Errorf("open tracker: %w", err)
		}
	}
	engine, err := app.New(b.cfg, tr, b.log)
	if err != nil {
		if tr != nil {
			_ = tr.Close()
		}
		return nil, nil, err
	}
	return engine, tr, nil
}

// printJSON writes the operation result the way scripts expect it.
func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func addConfigFlag(cmd *cobra.Command, configPath *string) {
	cmd.Flags().StringVarP(configPath, "config", "c", defaultConfigPath, "path to config file")
}
