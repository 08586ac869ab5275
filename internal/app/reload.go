package app

import (
	"context"
	"strings"

	"signalbot/internal/config"
	logx "signalbot/pkg/logx"
)

// reloadLoop applies hot-reloadable sections as new configs arrive.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					drained = true
				}
			}
			a.apply(ctx, last, next)
			last = next
		}
	}
}

func (a *App) apply(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	for _, s := range sections {
		if config.RestartOnly[s] {
			a.log.Warn("config section changed; restart required for it to take effect", logx.String("section", s))
		}
	}

	a.logs.SetChat(next.Telegram.LogChat)
	a.logs.Apply(mapLogging(next))
	a.cmdm.SetAdmins(next.Telegram.AdminIDs)
	a.broadcast.Apply(mapBroadcast(next))
	a.notif.Apply(mapNotifier(next))
	a.ops.Reconfigure(ctx, mapOps(next))

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
