//go:build !windows

package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	rtsup "alfredo/internal/runtime/supervisor"
	logx "alfredo/pkg/logx"
)

// MaintenanceSignal triggers a maintenance run.
var MaintenanceSignal os.Signal = syscall.SIGUSR1

// startMaintenanceSignal only queues work; no store or network access happens
// on the signal path.
func (a *App) startMaintenanceSignal(sup *rtsup.Supervisor) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, MaintenanceSignal)
	sup.Go0("signal.maintenance", func(c context.Context) {
		defer signal.Stop(ch)
		for {
			select {
			case <-c.Done():
				return
			case sig := <-ch:
				a.log.Info("received signal", logx.String("signal", sig.String()))
				a.TriggerMaintenance("signal")
			}
		}
	})
}
