// Package app wires configuration, storage, the Telegram adapter, the
// router and the orchestrator into a running bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"alfredo/internal/alfredo"
	"alfredo/internal/calendar"
	"alfredo/internal/config"
	"alfredo/internal/router"
	rtsup "alfredo/internal/runtime/supervisor"
	"alfredo/internal/safecall"
	"alfredo/internal/scheduler"
	"alfredo/internal/storage"
	kit "alfredo/internal/transport"
	telegram "alfredo/internal/transport/telegram/adapter"
	logx "alfredo/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	cfg  *config.Config
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	store storage.Store

	adapter *telegram.Adapter
	bot     *alfredo.Bot
	router  *router.Router
	sched   *scheduler.Service
	// schedule is the validated maintenance cron spec, empty if unset.
	schedule string

	updates chan kit.Message
}

// NewApp loads the config and builds every component. Errors are fatal.
func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// Telegram logging needs the adapter, which itself needs a logger: start
	// with the sink disabled, then enable it once the target is known.
	baseLogCfg := mapLogConfig(cfg.Logging)
	baseLogCfg.Telegram.Enabled = false
	logSvc, root := logx.New(baseLogCfg, nil)
	log := root.With(logx.String("comp", "app"))
	cfgm.SetLogger(root.With(logx.String("comp", "config")))
	log.Info("config loaded", logx.String("path", cfgm.Path()))

	schedule, err := mapMaintenanceSchedule(cfg)
	if err != nil {
		return nil, err
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, root.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	logSvc.SetSender(ad)
	if cfg.Telegram.LogChat != 0 {
		logSvc.SetTelegramTarget(cfg.Telegram.LogChat)
	}
	logSvc.Apply(mapLogConfig(cfg.Logging))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("path", sc.Path))

	loc, err := mapLocation(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	cc, err := mapCalendarConfig(cfg, loc)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	cal, err := calendar.New(cc, root)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	bot, err := alfredo.New(alfredo.Deps{
		Store:    store,
		Channel:  ad,
		Group:    cfg.Telegram.Group,
		Location: loc,
		Calendar: cal,
		Start:    cc.Start(),
		Logger:   root,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	r := router.New(root, ad, cfg.Telegram.Admins)
	r.SetBotName(ad.Username())
	r.SetRegistry(bot.Commands())

	sched := scheduler.New(loc, root)

	return &App{
		cfgm:     cfgm,
		cfg:      cfg,
		log:      log,
		logs:     logSvc,
		store:    store,
		adapter:  ad,
		bot:      bot,
		router:   r,
		sched:    sched,
		schedule: schedule,
		updates:  make(chan kit.Message, 64),
	}, nil
}

func (a *App) Logger() logx.Logger { return a.log }

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

	if spec := a.schedule; spec != "" {
		if err := a.sched.AddCron("maintenance", spec, func() { a.TriggerMaintenance("schedule") }); err != nil {
			return fmt.Errorf("maintenance.schedule: %w", err)
		}
		a.sched.Start()
		a.log.Info("maintenance scheduled", logx.String("spec", spec), logx.Time("next", a.sched.Next("maintenance")))
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})
	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go0("telegram.menu", func(c context.Context) {
		mctx, cancel := context.WithTimeout(c, 10*time.Second)
		defer cancel()
		safecall.Run(mctx, a.log, "set_commands", func(c context.Context) error {
			return a.adapter.SetCommands(c, a.bot.MenuCommands())
		})
	})

	a.startMaintenanceSignal(a.sup)

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c, func(lc config.LoggingConfig) {
			a.logs.Apply(mapLogConfig(lc))
		})
	})

	a.log.Info("app started", logx.Int64("group", a.cfg.Telegram.Group), logx.Int("admins", len(a.cfg.Telegram.Admins)))
	return nil
}

// TriggerMaintenance queues one maintenance run on the command worker, so it
// never overlaps a command. It reports whether the job was queued.
func (a *App) TriggerMaintenance(source string) bool {
	id := uuid.NewString()
	log := a.log.With(logx.String("job_id", id), logx.String("source", source))
	ok := a.router.Enqueue("maintenance", func(ctx context.Context) error {
		start := time.Now()
		a.bot.Maintain(ctx)
		log.Info("maintenance finished", logx.Duration("dur", time.Since(start)))
		return nil
	})
	if ok {
		log.Info("maintenance queued")
	} else {
		log.Warn("maintenance dropped, dispatcher not accepting jobs")
	}
	return ok
}

// MaintainOnce runs maintenance inline without starting the poller.
func (a *App) MaintainOnce(ctx context.Context) {
	a.log.Info("one-shot maintenance", logx.String("job_id", uuid.NewString()))
	a.bot.Maintain(ctx)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))

	a.sched.Stop()
	var errs []error
	if a.sup != nil {
		a.sup.Cancel()
		if err := a.adapter.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := a.sup.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
	}
	// the store goes last: the worker may still be finishing a job above
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}
	a.log.Info("stopped")
	_ = a.logs.Close()
	return errors.Join(errs...)
}

// Close releases resources of an app that was never started.
func (a *App) Close() error {
	err := a.store.Close()
	_ = a.logs.Close()
	return err
}
