package config

import (
	"reflect"
	"strings"

	logx "github.com/HananiahKao/daily-manna-email/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging. Credentials never appear in the attrs.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 12)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.alert_enabled", newCfg.Logging.Alert.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Dispatch, newCfg.Dispatch) {
		changed = append(changed, "dispatch")
		attrs = append(attrs,
			logx.Bool("dispatch.enabled", newCfg.Dispatch.Enabled),
			logx.Int("dispatch.rule_count", len(newCfg.Dispatch.Rules)),
			logx.String("dispatch.poll_interval", strings.TrimSpace(newCfg.Dispatch.PollInterval)),
		)
	}
	if !reflect.DeepEqual(oldCfg.Runner, newCfg.Runner) || !reflect.DeepEqual(oldCfg.Tracker, newCfg.Tracker) {
		changed = append(changed, "execution")
	}
	// SMTP and replies carry credentials; report only that they changed.
	if !reflect.DeepEqual(oldCfg.SMTP, newCfg.SMTP) || !reflect.DeepEqual(oldCfg.Send, newCfg.Send) {
		changed = append(changed, "mail")
		attrs = append(attrs, logx.Int("send.recipient_count", len(newCfg.Send.To)))
	}
	if !reflect.DeepEqual(oldCfg.Replies, newCfg.Replies) {
		changed = append(changed, "replies")
		attrs = append(attrs, logx.Bool("replies.enabled", newCfg.Replies.Enabled))
	}
	if !reflect.DeepEqual(oldCfg.Content, newCfg.Content) {
		changed = append(changed, "content")
	}
	if !reflect.DeepEqual(oldCfg.Metrics, newCfg.Metrics) {
		changed = append(changed, "metrics")
		attrs = append(attrs, logx.Bool("metrics.enabled", newCfg.Metrics.Enabled))
	}
	if !reflect.DeepEqual(oldCfg.State, newCfg.State) {
		changed = append(changed, "state")
	}
	return changed, attrs
}
