package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// ErrNotFound is returned when no video_status row exists for the given id.
var ErrNotFound = errors.New("video status not found")

type Store struct {
	db *sql.DB
}

type VideoStatus struct {
	ID        string
	Name      string
	Status    string
	Message   sql.NullString
	CreatedAt time.Time
	UpdatedAt time.Time
}

func New(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Init(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS video_status (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	status TEXT NOT NULL,
	message TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// InsertStatus creates the row for a new encode job. A duplicate id is a
// caller bug and surfaces as the driver's unique-violation error.
func (s *Store) InsertStatus(ctx context.Context, v VideoStatus) error {
	const q = `
INSERT INTO video_status (id, name, status, message, created_at, updated_at)
VALUES ($1, $2, $3, $4, NOW(), NOW())
`
	_, err := s.db.ExecContext(ctx, q, v.ID, v.Name, v.Status, nullString(v.Message))
	return err
}

func (s *Store) GetStatus(ctx context.Context, id string) (VideoStatus, error) {
	const q = `
SELECT id, name, status, message, created_at, updated_at
FROM video_status
WHERE id = $1
`
	var v VideoStatus
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&v.ID,
		&v.Name,
		&v.Status,
		&v.Message,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return VideoStatus{}, ErrNotFound
	}
	return v, err
}

// UpdateStatus moves an existing row to a new status and refreshes updated_at.
// Updating an absent id returns ErrNotFound.
func (s *Store) UpdateStatus(ctx context.Context, id, status string, message *string) error {
	const q = `
UPDATE video_status
SET status = $2, message = $3, updated_at = NOW()
WHERE id = $1
`
	res, err := s.db.ExecContext(ctx, q, id, status, message)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]VideoStatus, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, name, status, message, created_at, updated_at
FROM video_status
ORDER BY created_at DESC
LIMIT $1
`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStatuses(rows)
}

func (s *Store) ListBefore(ctx context.Context, before time.Time, limit int) ([]VideoStatus, error) {
	if limit <= 0 {
		limit = 200
	}
	const q = `
SELECT id, name, status, message, created_at, updated_at
FROM video_status
WHERE created_at < $1
ORDER BY created_at ASC
LIMIT $2
`
	rows, err := s.db.QueryContext(ctx, q, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStatuses(rows)
}

func (s *Store) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	const q = `
DELETE FROM video_status
WHERE created_at < $1
`
	res, err := s.db.ExecContext(ctx, q, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanStatuses(rows *sql.Rows) ([]VideoStatus, error) {
	var items []VideoStatus
	for rows.Next() {
		var v VideoStatus
		if err := rows.Scan(
			&v.ID,
			&v.Name,
			&v.Status,
			&v.Message,
			&v.CreatedAt,
			&v.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func nullString(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}
