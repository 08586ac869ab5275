package config

import (
	"reflect"
	"sort"

	logx "signalbot/pkg/logx"
)

// RestartOnly lists sections that take effect only after a restart.
var RestartOnly = map[string]bool{
	"storage": true,
	"market":  true,
	"signals": true,
	"events":  true,
}

// SummarizeChange returns the changed section names plus log fields that
// never include secrets.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var changed []string
	var attrs []logx.Field

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.PollTimeout != nt.PollTimeout || ot.LogChat != nt.LogChat || !reflect.DeepEqual(ot.AdminIDs, nt.AdminIDs) || ot.Token != nt.Token {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Int("telegram.admin_count", len(nt.AdminIDs)),
			logx.Bool("telegram.log_chat_set", nt.LogChat != 0),
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
		)
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver))
	}
	if oldCfg.Signals != newCfg.Signals {
		changed = append(changed, "signals")
	}
	if oldCfg.Broadcast != newCfg.Broadcast {
		changed = append(changed, "broadcast")
		attrs = append(attrs, logx.Int("broadcast.rate_per_sec", newCfg.Broadcast.RatePerSec))
	}
	if !reflect.DeepEqual(oldCfg.Market, newCfg.Market) {
		changed = append(changed, "market")
		attrs = append(attrs, logx.String("market.cache", newCfg.Market.Cache.Driver))
	}
	if oldCfg.Ops != newCfg.Ops {
		changed = append(changed, "ops")
		attrs = append(attrs, logx.Bool("ops.enabled", newCfg.Ops.Enabled), logx.Bool("ops.token_set", newCfg.Ops.Token != ""))
	}
	if !reflect.DeepEqual(oldCfg.Events, newCfg.Events) {
		changed = append(changed, "events")
		attrs = append(attrs, logx.Bool("events.kafka", newCfg.Events.Kafka.Enabled))
	}

	sort.Strings(changed)
	return changed, attrs
}
