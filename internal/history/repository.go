package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/neobin-core/internal/lid"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// ErrInvalidRetention is returned by Prune for a non-positive age.
var ErrInvalidRetention = errors.New("history: retention must be positive")

// Entry is one recorded transition.
type Entry struct {
	ID        int64      `json:"id"`
	Command   string     `json:"command"`
	Angle     int        `json:"angle"`
	Opened    bool       `json:"opened"`
	Status    bool       `json:"status"`
	Source    lid.Origin `json:"source"`
	CreatedAt time.Time  `json:"created_at"`
}

// SQLiteRepository stores transitions in the state_history table.
// It implements lid.Recorder.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// RecordTransition appends t with the current time.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - t: Transition reported by the controller
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteRepository) RecordTransition(ctx context.Context, t lid.Transition) error {
	source := t.Origin
	if source == "" {
		source = lid.OriginCommand
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO state_history (command, angle, opened, status, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.Command, t.Angle, boolInt(t.Opened), boolInt(t.Status), string(source),
		r.now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting state history: %w", err)
	}
	return nil
}

// GetHistory returns up to limit entries, newest first. A non-positive
// limit selects 50; larger values are clamped to 500.
func (r *SQLiteRepository) GetHistory(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, command, angle, opened, status, source, created_at
		 FROM state_history
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e              Entry
			opened, status int64
			source         string
			createdAt      int64
		)
		if err := rows.Scan(&e.ID, &e.Command, &e.Angle, &opened, &status, &source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}
		e.Opened = opened != 0
		e.Status = status != 0
		e.Source = lid.Origin(source)
		e.CreatedAt = time.UnixMilli(createdAt).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than olderThan and returns how many went.
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, ErrInvalidRetention
	}

	cutoff := r.now().UTC().Add(-olderThan).UnixMilli()
	res, err := r.db.ExecContext(ctx, "DELETE FROM state_history WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting state history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
