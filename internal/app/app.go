package app

import (
	"context"
	"fmt"
	"time"

	"signalbot/internal/bot"
	"signalbot/internal/config"
	"signalbot/internal/eventbus"
	"signalbot/internal/eventbus/kafkasink"
	"signalbot/internal/notifier"
	"signalbot/internal/notifier/broadcast"
	"signalbot/internal/observability/metrics"
	"signalbot/internal/ops"
	rtsup "signalbot/internal/runtime/supervisor"
	"signalbot/internal/signal"
	"signalbot/internal/storage"
	"signalbot/internal/task/engine"
	"signalbot/internal/task/scheduler"
	kit "signalbot/internal/transport"
	telegram "signalbot/internal/transport/telegram/adapter"
	logx "signalbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store       storage.Store
	closeMarket func() error
	metrics     *metrics.Recorder

	adapter   kit.Adapter
	broadcast *broadcast.Service
	notif     *notifier.Service
	tasks     *engine.Service
	sched     *scheduler.Service
	signals   *signal.Engine
	cmdm      *bot.CommandManager
	ops       *ops.Service
	sink      *kafkasink.Sink

	updates chan kit.Update
}

// health is the /healthz body.
type health struct {
	Status        string         `json:"status"`
	Date          string         `json:"date"`
	Enabled       bool           `json:"signals_enabled"`
	Target        int            `json:"target"`
	Sent          int            `json:"sent"`
	Remaining     int            `json:"remaining"`
	Pending       int            `json:"pending_timers"`
	EventsDropped uint64         `json:"events_dropped"`
	Tasks         engine.Stats   `json:"tasks"`
	SchedulerUp   bool           `json:"scheduler_running"`
	NextTimer     *time.Time     `json:"next_timer,omitempty"`
	NextRefresh   *time.Time     `json:"next_refresh,omitempty"`
	Goroutines    rtsup.Counters `json:"goroutines"`
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, root := logx.New(mapLogging(cfg))
	log := root.With(logx.String("comp", "app"))

	pollTimeout, err := config.DurationOr("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout}, root.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}
	logSvc.AttachSender(ad, cfg.Telegram.LogChat)

	bus := eventbus.New()
	rec := metrics.New()

	openCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sc, err := mapStorage(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(openCtx, sc, root.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	if err := store.EnsureDefaults(openCtx, storage.StandardDefaults()); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("storage defaults: %w", err)
	}
	log.Info("storage ready", logx.String("driver", sc.Driver))

	src, closeMarket, err := buildMarket(openCtx, cfg.Market, rec, root.With(logx.String("comp", "market")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	var sink *kafkasink.Sink
	if cfg.Events.Kafka.Enabled {
		sink, err = kafkasink.New(kafkasink.Config{Brokers: cfg.Events.Kafka.Brokers, Topic: cfg.Events.Kafka.Topic}, root)
		if err != nil {
			_ = store.Close()
			_ = closeMarket()
			return nil, err
		}
	}

	cmdm := bot.NewCommandManager(root, ad, cfg.Telegram.AdminIDs)
	resolver := signal.NewResolver(store, cmdm.Admins, root.With(logx.String("comp", "signal.recipients")))
	bc := broadcast.New(mapBroadcast(cfg), ad, root.With(logx.String("comp", "broadcast")))
	notif := notifier.New(mapNotifier(cfg), ad, root.With(logx.String("comp", "notifier")), bus)
	tasks := engine.New(mapTaskEngine(), root.With(logx.String("comp", "taskengine")), bus)
	sched := scheduler.New(scheduler.Config{Timezone: signal.Zone}, tasks, root.With(logx.String("comp", "scheduler")))

	sig := signal.New(signal.Deps{
		Store:     store,
		Resolver:  resolver,
		Market:    src,
		Broadcast: bc,
		Scheduler: sched,
		Images:    signal.LoadCatalog(cfg.Signals.ImagesDir, root),
		Bus:       bus,
		Metrics:   rec,
		Logger:    root,
	})
	cmdm.SetRegistry(bot.NewHandlers(sig, store, resolver, notif, cmdm.Admins, root).Commands())

	var app *App
	healthFn := func(ctx context.Context) any {
		st := sig.Status(ctx)
		h := health{
			Status:        "ok",
			Date:          st.Date,
			Enabled:       st.Enabled,
			Target:        st.Target,
			Sent:          st.Sent,
			Remaining:     st.Remaining,
			Pending:       st.Pending,
			EventsDropped: eventbus.Dropped(bus),
			Tasks:         tasks.Stats(),
		}
		snap := sched.Snapshot()
		h.SchedulerUp = snap.Running
		if len(snap.Once) > 0 {
			h.NextTimer = &snap.Once[0].At
		}
		for _, c := range snap.Schedules {
			if !c.Next.IsZero() && (h.NextRefresh == nil || c.Next.Before(*h.NextRefresh)) {
				next := c.Next
				h.NextRefresh = &next
			}
		}
		if app != nil && app.sup != nil {
			h.Goroutines = app.sup.Counters()
		}
		return h
	}

	app = &App{
		cfgm:        cfgm,
		log:         log,
		logs:        logSvc,
		bus:         bus,
		store:       store,
		closeMarket: closeMarket,
		metrics:     rec,
		adapter:     ad,
		broadcast:   bc,
		notif:       notif,
		tasks:       tasks,
		sched:       sched,
		signals:     sig,
		cmdm:        cmdm,
		ops:         ops.New(mapOps(cfg), healthFn, rec.Handler(), root),
		sink:        sink,
		updates:     make(chan kit.Update, 256),
	}
	return app, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	runCtx := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapStorage(cfg); err != nil {
			return err
		}
		if _, err := config.DurationOr("market.timeout", cfg.Market.Timeout, 0); err != nil {
			return err
		}
		return nil
	})

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		return err
	}
	a.notif.Start(runCtx)
	a.tasks.Start(runCtx)
	a.sched.Start(runCtx)
	if err := a.signals.Start(runCtx); err != nil {
		return fmt.Errorf("signal engine: %w", err)
	}
	a.ops.Start(runCtx)

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.metrics.Event(e.Type)
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	if a.sink != nil {
		a.sup.Go0("events.kafka", func(c context.Context) {
			if err := a.sink.Run(c, a.bus); err != nil && c.Err() == nil {
				a.log.Warn("event export stopped", logx.Err(err))
			}
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.Int("admins", len(a.cmdm.Admins())))
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	// step bounds one shutdown action so a stuck component cannot stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("signals", time.Second, func(context.Context) error { a.signals.Stop(); return nil })
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("taskengine", 2*time.Second, func(c context.Context) error { a.tasks.Stop(c); return nil })
	step("ops", time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	if a.sink != nil {
		step("kafka", 2*time.Second, func(context.Context) error { return a.sink.Close() })
	}
	step("market", time.Second, func(context.Context) error { return a.closeMarket() })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	return a.logs.Close()
}
