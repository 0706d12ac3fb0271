package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-shutters/internal/cover"
)

const (
	// DefaultLimit is the number of decisions List returns when no limit is given.
	DefaultLimit = 50

	// MaxLimit caps the number of decisions List returns.
	MaxLimit = 200
)

// timestampLayout is fixed width so string ordering matches time ordering.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

// Decision is one recorded cover decision.
type Decision struct {
	ID           int64      `json:"id"`
	EntryID      string     `json:"entry_id"`
	Cover        string     `json:"cover"`
	Reason       string     `json:"reason"`
	Target       *float64   `json:"target"`
	Position     *float64   `json:"position"`
	ManualActive bool       `json:"manual_active"`
	ManualUntil  *time.Time `json:"manual_until,omitempty"`
	DecidedAt    time.Time  `json:"decided_at"`
}

// FromSnapshot builds the decision recorded for a snapshot.
func FromSnapshot(s cover.Snapshot) Decision {
	decidedAt := s.UpdatedAt
	if decidedAt.IsZero() {
		decidedAt = time.Now()
	}
	return Decision{
		EntryID:      s.EntryID,
		Cover:        s.Cover,
		Reason:       string(s.Reason),
		Target:       s.Target,
		Position:     s.Position,
		ManualActive: s.ManualActive,
		ManualUntil:  s.ManualUntil,
		DecidedAt:    decidedAt,
	}
}

// Repository stores and queries cover decisions.
type Repository interface {
	// Record appends a decision.
	Record(ctx context.Context, d Decision) error

	// List returns the most recent decisions of a cover, newest first.
	List(ctx context.Context, coverID string, limit int) ([]Decision, error)

	// Prune deletes decisions older than olderThan and reports how many.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SQLiteRepository implements Repository using the cover_decisions table.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLite decision repository.
//
// Parameters:
//   - db: Open, migrated SQLite connection
//
// Returns:
//   - *SQLiteRepository: Repository instance ready for use
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Record inserts a decision.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - d: Decision to persist; ID is ignored
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteRepository) Record(ctx context.Context, d Decision) error {
	if d.Cover == "" {
		return ErrCoverRequired
	}
	if d.DecidedAt.IsZero() {
		d.DecidedAt = r.now()
	}

	var manualUntil any
	if d.ManualUntil != nil {
		manualUntil = formatTimestamp(*d.ManualUntil)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO cover_decisions
		 (entry_id, cover_id, reason, target, position, manual_active, manual_until, decided_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.EntryID,
		d.Cover,
		d.Reason,
		nullFloat(d.Target),
		nullFloat(d.Position),
		d.ManualActive,
		manualUntil,
		formatTimestamp(d.DecidedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting cover decision: %w", err)
	}
	return nil
}

// List returns recent decisions for a cover, ordered newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - coverID: Cover entity id
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []Decision: Decisions ordered by decided_at DESC
//   - error: nil on success, otherwise the underlying query error
func (r *SQLiteRepository) List(ctx context.Context, coverID string, limit int) ([]Decision, error) {
	if coverID == "" {
		return nil, ErrCoverRequired
	}
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, entry_id, cover_id, reason, target, position, manual_active, manual_until, decided_at
		 FROM cover_decisions
		 WHERE cover_id = ?
		 ORDER BY decided_at DESC, id DESC
		 LIMIT ?`,
		coverID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying cover decisions: %w", err)
	}
	defer rows.Close()

	decisions := make([]Decision, 0, limit)
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cover decisions: %w", err)
	}
	return decisions, nil
}

// Prune deletes decisions older than the given duration.
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, ErrInvalidRetention
	}

	cutoff := formatTimestamp(r.now().Add(-olderThan))
	result, err := r.db.ExecContext(ctx, "DELETE FROM cover_decisions WHERE decided_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting cover decisions: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func scanDecision(rows *sql.Rows) (Decision, error) {
	var (
		d           Decision
		target      sql.NullFloat64
		position    sql.NullFloat64
		manualUntil sql.NullString
		decidedAt   string
	)
	if err := rows.Scan(&d.ID, &d.EntryID, &d.Cover, &d.Reason, &target, &position,
		&d.ManualActive, &manualUntil, &decidedAt); err != nil {
		return Decision{}, fmt.Errorf("scanning cover decision: %w", err)
	}

	if target.Valid {
		d.Target = &target.Float64
	}
	if position.Valid {
		d.Position = &position.Float64
	}
	if manualUntil.Valid {
		until, err := parseTimestamp(manualUntil.String)
		if err != nil {
			return Decision{}, err
		}
		d.ManualUntil = &until
	}

	at, err := parseTimestamp(decidedAt)
	if err != nil {
		return Decision{}, err
	}
	d.DecidedAt = at
	return d, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// parseTimestamp parses a timestamp stored in SQLite.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("decided_at is empty")
	}
	t, err := time.Parse(timestampLayout, value)
	if err == nil {
		return t, nil
	}
	if fallback, fallbackErr := time.Parse(time.RFC3339, value); fallbackErr == nil {
		return fallback, nil
	}
	return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", value, err)
}
