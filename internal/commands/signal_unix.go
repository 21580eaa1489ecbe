//go:build !windows

package commands

import "syscall"

func sendMaintenanceSignal(pid int) error {
	return syscall.Kill(pid, syscall.SIGUSR1)
}
