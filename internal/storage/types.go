package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("event not found")
	ErrDuplicateDate = errors.New("an event already exists on this date")
	ErrClosed        = errors.New("storage closed")
)

// DateLayout is the on-disk and command-line date format.
const DateLayout = "2006-01-02"

// Config configures storage.
//
// Path ":memory:" opens an ephemeral database.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

// Event is a single scheduled Alfredo.
//
// Date is a calendar date (midnight UTC). Description and MessageID are
// optional; their zero values are stored as NULL.
type Event struct {
	ID          int64
	Date        time.Time
	Description string
	MessageID   int
}

// Store is the persistence API used by the orchestrator.
type Store interface {
	Create(ctx context.Context, date time.Time, description string, messageID int) (Event, error)
	// FindByDate returns ErrNotFound when no event exists on date.
	FindByDate(ctx context.Context, date time.Time) (Event, error)
	// ListFuture returns events dated today or later, soonest first.
	ListFuture(ctx context.Context, today time.Time) ([]Event, error)
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
	Close() error
}

// DateOf strips the clock from t, keeping t's calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return DateOf(t), nil
}
