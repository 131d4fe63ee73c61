//Package store keeps a journal of detected actions in sqlite.
package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/chenBenjamin97/pose-action/pkg/log"
	"github.com/chenBenjamin97/pose-action/pkg/pose"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const writeTimeout = 2 * time.Second

//Action is a stored detection.
type Action struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	DetectedAt time.Time `json:"detected_at"`
}

type actionRow struct {
	ID         string  `db:"id"`
	SessionID  string  `db:"session_id"`
	Label      string  `db:"label"`
	Confidence float64 `db:"confidence"`
	DetectedAt int64   `db:"detected_at"`
}

func (r actionRow) action() Action {
	return Action{
		ID:         r.ID,
		SessionID:  r.SessionID,
		Label:      r.Label,
		Confidence: r.Confidence,
		DetectedAt: time.Unix(0, r.DetectedAt).UTC(),
	}
}

type Store struct {
	db *sqlx.DB
}

//Open opens (creating if needed) the sqlite database at path and applies pending migrations.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store.Open: %w", err)
	}
	//sqlite allows one writer; the pipeline is the only one anyway
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}

	log.Info(log.Fields{"path": path}, "[store.Open] action journal ready")
	return s, nil
}

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: migrations source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("store: sqlite migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("store: migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	//m is not closed, that would close the shared connection

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: migration up failed: %w", err)
	}
	return nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	log.Debug(nil, fmt.Sprintf("[migrate] "+format, v...))
}

func (migrateLogger) Verbose() bool { return false }

//SaveAction stores one detection. Saving the same event twice is a no-op.
func (s *Store) SaveAction(ctx context.Context, sessionID string, ev pose.ActionEvent) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT OR IGNORE INTO actions (id, session_id, label, confidence, detected_at)
		VALUES (:id, :session_id, :label, :confidence, :detected_at)`,
		actionRow{
			ID:         ev.ID,
			SessionID:  sessionID,
			Label:      ev.Label,
			Confidence: ev.Confidence,
			DetectedAt: ev.DetectedAt.UnixNano(),
		})
	if err != nil {
		return fmt.Errorf("store.SaveAction: %w", err)
	}
	return nil
}

//RecentActions returns up to limit detections, newest first.
func (s *Store) RecentActions(ctx context.Context, limit int) ([]Action, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []actionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, session_id, label, confidence, detected_at
		FROM actions
		ORDER BY detected_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store.RecentActions: %w", err)
	}

	out := make([]Action, len(rows))
	for i, r := range rows {
		out[i] = r.action()
	}
	return out, nil
}

//CountActions returns the number of stored detections per label.
func (s *Store) CountActions(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Label string `db:"label"`
		N     int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT label, COUNT(*) AS n FROM actions GROUP BY label`); err != nil {
		return nil, fmt.Errorf("store.CountActions: %w", err)
	}

	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.Label] = r.N
	}
	return out, nil
}

//Observer journals ActionDetected events of the given pipeline session.
func (s *Store) Observer(sessionID string) pose.Observer {
	return pose.ObserverFunc(func(ev pose.Event) {
		if ev.Kind != pose.ActionDetected || ev.Action == nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		if err := s.SaveAction(ctx, sessionID, *ev.Action); err != nil {
			log.Error(log.Fields{"error": err.Error(), "id": ev.Action.ID}, "[store.Observer] could not journal action")
		}
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}
