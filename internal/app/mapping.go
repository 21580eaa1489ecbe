package app

import (
	"fmt"
	"strings"
	"time"

	"alfredo/internal/calendar"
	"alfredo/internal/config"
	"alfredo/internal/scheduler"
	"alfredo/internal/storage"
	logx "alfredo/pkg/logx"
)

const (
	defaultStoragePath = "alfredo.sqlite"
	defaultTimezone    = "Europe/Berlin"
	defaultCalendarDir = "./ics"
	defaultEventStart  = "18:00"
	defaultEventLength = 4 * time.Hour
	defaultLocation    = "Z3034"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	path := strings.TrimSpace(cfg.Storage.Path)
	if path == "" {
		path = defaultStoragePath
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Path: path, BusyTimeout: busy}, nil
}

// mapMaintenanceSchedule checks maintenance.schedule up front so a typo is
// fatal at load time. Empty disables the in-process schedule.
func mapMaintenanceSchedule(cfg *config.Config) (string, error) {
	spec := strings.TrimSpace(cfg.Maintenance.Schedule)
	if spec == "" {
		return "", nil
	}
	if err := scheduler.Validate(spec); err != nil {
		return "", fmt.Errorf("maintenance.schedule: %w", err)
	}
	return spec, nil
}

func mapLocation(cfg *config.Config) (*time.Location, error) {
	tz := strings.TrimSpace(cfg.Timezone)
	if tz == "" {
		tz = defaultTimezone
	}
	return time.LoadLocation(tz)
}

func mapCalendarConfig(cfg *config.Config, loc *time.Location) (calendar.Config, error) {
	cc := cfg.Calendar
	dir := strings.TrimSpace(cc.Dir)
	if dir == "" {
		dir = defaultCalendarDir
	}
	start := strings.TrimSpace(cc.Start)
	if start == "" {
		start = defaultEventStart
	}
	h, m, err := config.ParseClock("calendar.start", start)
	if err != nil {
		return calendar.Config{}, err
	}
	dur, err := config.ParseDurationOrDefault("calendar.duration", cc.Duration, defaultEventLength)
	if err != nil {
		return calendar.Config{}, err
	}
	location := strings.TrimSpace(cc.Location)
	if location == "" {
		location = defaultLocation
	}
	return calendar.Config{Dir: dir, Hour: h, Minute: m, Duration: dur, Location: location, TZ: loc}, nil
}

func mapLogConfig(lc config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    lc.Telegram.Enabled,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}
