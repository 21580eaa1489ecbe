package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"

	logx "alfredo/pkg/logx"
)

// EnvToken overrides telegram.token when set (also read from .env).
const EnvToken = "ALFREDO_TELEGRAM_TOKEN"

type ConfigManager struct {
	path string

	mu  sync.RWMutex
	cfg *Config

	log logx.Logger
}

func NewConfigManager(path string) *ConfigManager {
	return &ConfigManager{path: path}
}

func (m *ConfigManager) SetLogger(log logx.Logger) { m.log = log }

func (m *ConfigManager) Path() string { return m.path }

// Parse reads and strictly decodes the config file without validating it.
func (m *ConfigManager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s does not exist", m.path)
		}
		return nil, err
	}
	jb, err := toJSON(m.path, b)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", m.path, err)
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("%s: invalid config: trailing data", m.path)
		}
		return nil, err
	}
	return &cfg, nil
}

// Load parses, applies the environment override and validates the config.
// Any error here is fatal for the process.
func (m *ConfigManager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()
	if tok := strings.TrimSpace(os.Getenv(EnvToken)); tok != "" {
		cfg.Telegram.Token = tok
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("%w in %s", err, m.path)
	}
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	return cfg, nil
}

// Validate checks required keys and parses every typed field once, so that
// later mapping cannot fail.
func Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return errors.New("config key telegram.token not found")
	}
	if cfg.Telegram.Group == 0 {
		return errors.New("config key telegram.group not found")
	}
	if cfg.Telegram.Admins == nil {
		return errors.New("config key telegram.admins not found")
	}
	if len(cfg.Telegram.Admins) == 0 {
		return errors.New("need at least one admin")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("timezone: invalid %q: %w", tz, err)
		}
	}
	if s := strings.TrimSpace(cfg.Calendar.Start); s != "" {
		if _, _, err := ParseClock("calendar.start", s); err != nil {
			return err
		}
	}
	if _, err := ParseDurationField("calendar.duration", cfg.Calendar.Duration); err != nil {
		return err
	}
	return nil
}

// Watch reloads the config file on change and hands the logging section to
// apply. Changes to any other section only produce a restart warning.
func (m *ConfigManager) Watch(ctx context.Context, apply func(LoggingConfig)) error {
	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watch init: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("config watch add %s: %w", dir, err)
	}
	m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

	// debounce to avoid partial writes
	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(250*time.Millisecond, func() { m.reload(apply) })
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if strings.EqualFold(filepath.Base(ev.Name), file) &&
				ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.log.Warn("config watch error", logx.Err(err), logx.String("dir", dir))
		}
	}
}

func (m *ConfigManager) reload(apply func(LoggingConfig)) {
	next, err := m.Parse()
	if err != nil {
		m.log.Warn("config reload failed", logx.Err(err), logx.String("path", m.path))
		return
	}
	m.mu.Lock()
	prev := m.cfg
	if prev != nil {
		// keep the startup values for everything that is not hot-reloadable
		kept := *prev
		kept.Logging = next.Logging
		m.cfg = &kept
	}
	m.mu.Unlock()

	if prev != nil && staticChanged(prev, next) {
		m.log.Warn("config changed outside logging section; restart required for it to take effect")
	}
	if prev != nil && reflect.DeepEqual(prev.Logging, next.Logging) {
		m.log.Debug("config reload: logging unchanged")
		return
	}
	if apply != nil {
		apply(next.Logging)
	}
	m.log.Info("logging config reloaded", logx.String("level", next.Logging.Level))
}

func staticChanged(a, b *Config) bool {
	x, y := *a, *b
	x.Logging, y.Logging = LoggingConfig{}, LoggingConfig{}
	// the token may come from the environment
	x.Telegram.Token, y.Telegram.Token = "", ""
	return !reflect.DeepEqual(x, y)
}
