// Package journal keeps an audit trail of hook runs in sqlite.
package journal

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/hookbus/pkg/database"
	"github.com/garyjia/hookbus/pkg/hooks"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Entry is one recorded hook run
type Entry struct {
	ID       string        `json:"id"`
	Tag      string        `json:"tag"`
	Fired    int           `json:"fired"`
	Depth    int           `json:"depth"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
	RanAt    time.Time     `json:"ran_at"`
}

// NewEntry converts a run record into a journal entry with a fresh ID
func NewEntry(rec hooks.RunRecord, ranAt time.Time) Entry {
	entry := Entry{
		ID:       uuid.NewString(),
		Tag:      string(rec.Tag),
		Fired:    rec.Fired,
		Depth:    rec.Depth,
		Duration: rec.Duration,
		RanAt:    ranAt.UTC(),
	}
	if rec.Err != nil {
		entry.Error = rec.Err.Error()
	}
	return entry
}

// Store reads and writes journal entries
type Store struct {
	db     *database.DB
	logger *zap.Logger
}

// NewStore creates a store backed by db
func NewStore(db *database.DB, logger *zap.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// Migrate creates the journal tables
func (s *Store) Migrate(ctx context.Context) error {
	_, err := database.NewMigrator(s.db, s.logger).Run(ctx, migrationsFS, "migrations")
	return err
}

// Record inserts an entry
func (s *Store) Record(ctx context.Context, entry Entry) error {
	query := `
		INSERT INTO hook_runs (id, tag, fired, depth, duration_us, error, ran_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.Tag,
		entry.Fired,
		entry.Depth,
		entry.Duration.Microseconds(),
		entry.Error,
		entry.RanAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record hook run: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. An empty tag matches
// every tag.
func (s *Store) Recent(ctx context.Context, tag string, limit int) ([]Entry, error) {
	query := `
		SELECT id, tag, fired, depth, duration_us, error, ran_at
		FROM hook_runs
		WHERE (? = '' OR tag = ?)
		ORDER BY ran_at DESC, rowid DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, tag, tag, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query hook runs: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var (
			entry      Entry
			durationUS int64
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.Tag,
			&entry.Fired,
			&entry.Depth,
			&durationUS,
			&entry.Error,
			&entry.RanAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan hook run: %w", err)
		}
		entry.Duration = time.Duration(durationUS) * time.Microsecond
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// Totals returns the number of recorded runs per tag
func (s *Store) Totals(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT tag, COUNT(*) FROM hook_runs GROUP BY tag")
	if err != nil {
		return nil, fmt.Errorf("failed to query hook run totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]int)
	for rows.Next() {
		var (
			tag   string
			count int
		)
		if err := rows.Scan(&tag, &count); err != nil {
			return nil, fmt.Errorf("failed to scan hook run totals: %w", err)
		}
		totals[tag] = count
	}

	return totals, rows.Err()
}
