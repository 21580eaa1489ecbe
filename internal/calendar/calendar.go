// Package calendar renders single-event iCalendar files.
package calendar

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"alfredo/internal/storage"
	logx "alfredo/pkg/logx"
)

type Config struct {
	Dir      string
	Hour     int
	Minute   int
	Duration time.Duration
	Location string
	// TZ is the zone the start time is expressed in.
	TZ *time.Location
}

// Start is the configured start as offset from midnight.
func (c Config) Start() time.Duration {
	return time.Duration(c.Hour)*time.Hour + time.Duration(c.Minute)*time.Minute
}

type Generator struct {
	cfg Config
	log logx.Logger
	now func() time.Time
}

func New(cfg Config, log logx.Logger) (*Generator, error) {
	if cfg.Dir == "" {
		return nil, errors.New("calendar dir is empty")
	}
	if cfg.TZ == nil {
		cfg.TZ = time.UTC
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 4 * time.Hour
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Generator{cfg: cfg, log: log.With(logx.String("comp", "calendar")), now: time.Now}, nil
}

// FileName is the cache key for an event date.
func FileName(date time.Time) string {
	return date.Format(storage.DateLayout) + "_alfredo.ics"
}

// File returns the path of the .ics file for date, writing it on first use.
func (g *Generator) File(date time.Time) (string, error) {
	path := filepath.Join(g.cfg.Dir, FileName(date))
	if _, err := os.Stat(path); err == nil {
		g.log.Debug("serving ics file from cache", logx.String("path", path))
		return path, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	g.log.Debug("creating new ics file", logx.String("path", path))
	if err := os.MkdirAll(g.cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create calendar dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(g.render(date)), 0o644); err != nil {
		return "", fmt.Errorf("write ics file: %w", err)
	}
	return path, nil
}

func (g *Generator) render(date time.Time) string {
	begin := time.Date(date.Year(), date.Month(), date.Day(), g.cfg.Hour, g.cfg.Minute, 0, 0, g.cfg.TZ).UTC()
	now := g.now().UTC()

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//alfredo//bot//DE")

	ev := cal.AddEvent(uuid.NewString())
	ev.SetSummary("Alfredo")
	ev.SetStartAt(begin)
	ev.SetEndAt(begin.Add(g.cfg.Duration))
	ev.SetCreatedTime(now)
	ev.SetDtStampTime(now)
	if g.cfg.Location != "" {
		ev.SetLocation(g.cfg.Location)
	}
	return cal.Serialize()
}
