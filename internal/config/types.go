package config

// Config is the on-disk configuration (JSON or YAML).
//
// Only the logging section is re-applied on hot reload; everything else is
// read once at startup.
type Config struct {
	Telegram    TelegramConfig    `json:"telegram"`
	Storage     StorageConfig     `json:"storage"`
	Timezone    string            `json:"timezone,omitempty"` // IANA TZ; defines "today"
	Maintenance MaintenanceConfig `json:"maintenance,omitempty"`
	Calendar    CalendarConfig    `json:"calendar,omitempty"`
	Logging     LoggingConfig     `json:"logging"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// Group is the chat that receives polls, reminders and announcements.
	Group int64 `json:"group"`
	// Admins is the set of privileged user ids. A nil slice means the key
	// was absent; an empty slice means it was present but empty.
	Admins []int64 `json:"admins"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// LogChat receives log records when logging.telegram is enabled.
	LogChat int64 `json:"log_chat,omitempty"`
}

// StorageConfig controls the event store.
//
// Example:
//
//	"storage": { "path": "./alfredo.sqlite", "busy_timeout": "5s" }
//
// Use ":memory:" for an ephemeral store.
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// MaintenanceConfig optionally schedules the daily maintenance in-process.
// SIGUSR1 and `alfredo maintain` work regardless.
type MaintenanceConfig struct {
	Schedule string `json:"schedule,omitempty"` // cron spec, e.g. "0 10 * * *"
}

type CalendarConfig struct {
	Dir      string `json:"dir,omitempty"`
	Start    string `json:"start,omitempty"`    // HH:MM local time
	Duration string `json:"duration,omitempty"` // Go duration string
	Location string `json:"location,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}
