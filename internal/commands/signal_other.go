//go:build windows

package commands

func sendMaintenanceSignal(int) error { return errSignalUnsupported }
