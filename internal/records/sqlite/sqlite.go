// Package sqlite keeps room and session records in a local SQLite database.
// It backs the development server when RECORD_STORE=sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/adi-253/webchat/backend/internal/models"
	"github.com/adi-253/webchat/backend/internal/records"
	_ "modernc.org/sqlite"
)

var schema = []string{`
CREATE TABLE IF NOT EXISTS rooms (
	id         TEXT PRIMARY KEY,
	created    INTEGER NOT NULL,
	duration   INTEGER NOT NULL,
	topic_arn  TEXT NOT NULL,
	log_group  TEXT NOT NULL DEFAULT '',
	state      TEXT NOT NULL
)`, `
CREATE TABLE IF NOT EXISTS sessions (
	room_id          TEXT NOT NULL,
	id               TEXT NOT NULL,
	created          INTEGER NOT NULL,
	owner_id         TEXT NOT NULL,
	queue_url        TEXT NOT NULL,
	queue_arn        TEXT NOT NULL,
	subscription_arn TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (room_id, id)
)`}

// Store implements records.Store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at dsn.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", dsn, err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

// Migrate creates the tables.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate sqlite: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) PutRoom(ctx context.Context, room models.Room) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rooms (id, created, duration, topic_arn, log_group, state)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			created = excluded.created,
			duration = excluded.duration,
			topic_arn = excluded.topic_arn,
			log_group = excluded.log_group,
			state = excluded.state`,
		room.ID, room.Created, room.Duration, room.TopicARN, room.LogGroup, string(room.State))
	if err != nil {
		return fmt.Errorf("failed to write room %s: %w", room.ID, err)
	}
	return nil
}

func (s *Store) GetRoom(ctx context.Context, roomID string) (models.Room, error) {
	var room models.Room
	var state string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, created, duration, topic_arn, log_group, state FROM rooms WHERE id = ?`, roomID).
		Scan(&room.ID, &room.Created, &room.Duration, &room.TopicARN, &room.LogGroup, &state)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, records.ErrNotFound
	}
	if err != nil {
		return models.Room{}, fmt.Errorf("failed to read room %s: %w", roomID, err)
	}
	room.State = models.RoomState(state)
	return room, nil
}

func (s *Store) DeleteRoom(ctx context.Context, roomID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, roomID); err != nil {
		return fmt.Errorf("failed to delete room %s: %w", roomID, err)
	}
	return nil
}

func (s *Store) PutSession(ctx context.Context, session models.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (room_id, id, created, owner_id, queue_url, queue_arn, subscription_arn)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(room_id, id) DO UPDATE SET
			created = excluded.created,
			owner_id = excluded.owner_id,
			queue_url = excluded.queue_url,
			queue_arn = excluded.queue_arn,
			subscription_arn = excluded.subscription_arn`,
		session.RoomID, session.ID, session.Created, session.OwnerID,
		session.QueueURL, session.QueueARN, session.SubscriptionARN)
	if err != nil {
		return fmt.Errorf("failed to write session %s: %w", session.ID, err)
	}
	return nil
}

const sessionColumns = `room_id, id, created, owner_id, queue_url, queue_arn, subscription_arn`

func scanSession(row interface{ Scan(...any) error }) (models.Session, error) {
	var session models.Session
	err := row.Scan(&session.RoomID, &session.ID, &session.Created, &session.OwnerID,
		&session.QueueURL, &session.QueueARN, &session.SubscriptionARN)
	return session, err
}

func (s *Store) GetSession(ctx context.Context, roomID, sessionID string) (models.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE room_id = ? AND id = ?`, roomID, sessionID)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, records.ErrNotFound
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to read session %s: %w", sessionID, err)
	}
	return session, nil
}

func (s *Store) DeleteSession(ctx context.Context, roomID, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE room_id = ? AND id = ?`, roomID, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	return nil
}

func (s *Store) ListSessions(ctx context.Context, roomID string) ([]models.Session, error) {
	return s.querySessions(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE room_id = ? ORDER BY created, id`, roomID)
}

func (s *Store) ListAllSessions(ctx context.Context) ([]models.Session, error) {
	return s.querySessions(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY created, id`)
}

func (s *Store) querySessions(ctx context.Context, query string, args ...any) ([]models.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

var _ records.Store = (*Store)(nil)
