// Package scheduler fires named jobs on cron schedules.
//
// Jobs are expected to be cheap: in this bot they only hand work to the
// router's serialized queue.
package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"alfredo/internal/config"
	logx "alfredo/pkg/logx"
)

type scheduleDef struct {
	name string
	spec string
	job  func()
}

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	loc    *time.Location
	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef
}

func New(loc *time.Location, log logx.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:    log.With(logx.String("comp", "scheduler")),
		loc:    loc,
		parser: specParser,
	}
}

var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NormalizeSpec accepts a 5-field cron spec, a descriptor (@daily, @every 1h)
// or a daily "HH:MM" shortcut, and returns the cron spec.
func NormalizeSpec(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty schedule")
	}
	if h, m, err := config.ParseClock("schedule", raw); err == nil {
		return fmt.Sprintf("%d %d * * *", m, h), nil
	} else if !strings.Contains(raw, " ") && !strings.HasPrefix(raw, "@") {
		return "", err
	}
	return raw, nil
}

// Validate reports whether raw would be accepted by AddCron.
func Validate(raw string) error {
	spec, err := NormalizeSpec(raw)
	if err != nil {
		return err
	}
	_, err = specParser.Parse(spec)
	return err
}

func (s *Service) AddCron(name, raw string, job func()) error {
	if job == nil {
		return errors.New("job is nil")
	}
	spec, err := NormalizeSpec(raw)
	if err != nil {
		return err
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", raw, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	d := scheduleDef{name: name, spec: spec, job: job}
	s.defs = append(s.defs, d)
	if s.c != nil {
		return s.addCronLocked(d)
	}
	return nil
}

func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for _, d := range s.defs {
		if err := s.addCronLocked(d); err != nil {
			s.log.Warn("schedule rejected", logx.String("job", d.name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.Int("jobs", len(s.defs)), logx.String("tz", s.loc.String()))
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return
	}
	<-s.c.Stop().Done()
	s.c = nil
	s.log.Info("scheduler stopped")
}

// Next returns the next activation of the named job, zero if unknown or not running.
func (s *Service) Next(name string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.defs {
		if d.name != name {
			continue
		}
		sched, err := s.parser.Parse(d.spec)
		if err != nil {
			return time.Time{}
		}
		return sched.Next(time.Now().In(s.loc))
	}
	return time.Time{}
}

func (s *Service) addCronLocked(d scheduleDef) error {
	_, err := s.c.AddFunc(d.spec, func() {
		s.log.Debug("schedule fired", logx.String("job", d.name))
		d.job()
	})
	return err
}
