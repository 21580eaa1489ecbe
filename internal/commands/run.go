package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"alfredo/internal/app"
	logx "alfredo/pkg/logx"
)

func addRun(topLevel *cobra.Command, oo *options) {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the bot (default).",
		Example: `
alfredo run --config config.json --pidfile /run/alfredo.pid
`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd, oo)
		},
	}
	topLevel.AddCommand(cmd)
}

func runBot(cmd *cobra.Command, oo *options) error {
	cmd.SilenceUsage = true

	a, err := app.NewApp(oo.config)
	if err != nil {
		return err
	}
	log := a.Logger()

	if oo.pidfile != "" {
		if err := writePidfile(oo.pidfile); err != nil {
			_ = a.Close()
			return err
		}
		defer removePidfile(oo.pidfile)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		return errors.Join(err, a.Stop(stopCtx, app.StopFatalError))
	}
	notifySystemd(log, daemon.SdNotifyReady)

	reason := app.StopUnknown
	select {
	case sig := <-sigCh:
		if sig == syscall.SIGTERM {
			reason = app.StopSIGTERM
		} else {
			reason = app.StopSIGINT
		}
	case <-a.Done():
		reason = app.StopFatalError
	}
	notifySystemd(log, daemon.SdNotifyStopping)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	stopErr := a.Stop(stopCtx, reason)
	if reason == app.StopFatalError {
		return errors.Join(a.Err(), stopErr)
	}
	return stopErr
}

func notifySystemd(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	switch {
	case err != nil:
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
	case sent:
		log.Debug("sd_notify sent", logx.String("state", state))
	}
}
