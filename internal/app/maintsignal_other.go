//go:build windows

package app

import (
	"os"

	rtsup "alfredo/internal/runtime/supervisor"
)

// MaintenanceSignal is nil on platforms without SIGUSR1.
var MaintenanceSignal os.Signal

func (a *App) startMaintenanceSignal(*rtsup.Supervisor) {
	a.log.Warn("maintenance signal not supported on this platform")
}
