package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "alfredo/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const memoryPath = ":memory:"

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: serializes writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	if path != memoryPath {
		_, _ = db.Exec("PRAGMA journal_mode = WAL")
		_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	}

	st := newSQLiteStore(db, log)
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage migrate: %w", err)
	}
	log.Info("store opened", logx.String("path", path))
	return st, nil
}

func newSQLiteStore(db *sql.DB, log logx.Logger) *sqliteStore {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &sqliteStore{db: db, log: log}
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *sqliteStore) Create(ctx context.Context, date time.Time, description string, messageID int) (Event, error) {
	if s.db == nil {
		return Event{}, ErrClosed
	}
	date = DateOf(date)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO alfredo_date(date, description, message_id) VALUES(?,?,?)`,
		date.Format(DateLayout), nullStr(description), nullInt(messageID),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Event{}, ErrDuplicateDate
		}
		return Event{}, fmt.Errorf("event create: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Event{}, fmt.Errorf("event create: %w", err)
	}
	s.log.Debug("event created", logx.Int64("id", id), logx.String("date", date.Format(DateLayout)), logx.Int("message_id", messageID))
	return Event{ID: id, Date: date, Description: description, MessageID: messageID}, nil
}

func (s *sqliteStore) FindByDate(ctx context.Context, date time.Time) (Event, error) {
	if s.db == nil {
		return Event{}, ErrClosed
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, date, description, message_id FROM alfredo_date WHERE date = ?`,
		DateOf(date).Format(DateLayout),
	)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, ErrNotFound
	}
	if err != nil {
		return Event{}, fmt.Errorf("event find: %w", err)
	}
	return ev, nil
}

func (s *sqliteStore) ListFuture(ctx context.Context, today time.Time) ([]Event, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, date, description, message_id FROM alfredo_date WHERE date >= ? ORDER BY date ASC`,
		DateOf(today).Format(DateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("event list: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("event list: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("event list: %w", err)
	}
	return out, nil
}

func (s *sqliteStore) Delete(ctx context.Context, id int64) error {
	if s.db == nil {
		return ErrClosed
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM alfredo_date WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("event delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("event delete: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	s.log.Debug("event deleted", logx.Int64("id", id))
	return nil
}

func (s *sqliteStore) Count(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, ErrClosed
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alfredo_date`).Scan(&n); err != nil {
		return 0, fmt.Errorf("event count: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(r scanner) (Event, error) {
	var (
		ev   Event
		date string
		desc sql.NullString
		msg  sql.NullInt64
	)
	if err := r.Scan(&ev.ID, &date, &desc, &msg); err != nil {
		return Event{}, err
	}
	d, err := ParseDate(date)
	if err != nil {
		return Event{}, fmt.Errorf("bad date %q in row %d: %w", date, ev.ID, err)
	}
	ev.Date = d
	ev.Description = desc.String
	ev.MessageID = int(msg.Int64)
	return ev, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}
