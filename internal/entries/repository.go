package entries

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"
)

// OptionsRepository stores runtime option overrides per entry.
//
// Stored options are layered over the entries file data, so a value set
// through the API survives a file reload.
type OptionsRepository interface {
	// Get returns the stored overrides of an entry, or an empty map.
	Get(ctx context.Context, entryID string) (map[string]any, error)

	// Patch merges patch into the stored overrides and returns the result.
	// A nil value removes the key.
	Patch(ctx context.Context, entryID string, patch map[string]any) (map[string]any, error)

	// Delete removes all overrides of an entry.
	Delete(ctx context.Context, entryID string) error
}

// SQLiteOptionsRepository implements OptionsRepository using the
// entry_options table.
type SQLiteOptionsRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteOptionsRepository creates a repository on an open, migrated database.
func NewSQLiteOptionsRepository(db *sql.DB) *SQLiteOptionsRepository {
	return &SQLiteOptionsRepository{db: db, now: time.Now}
}

// Get returns the stored overrides of an entry.
func (r *SQLiteOptionsRepository) Get(ctx context.Context, entryID string) (map[string]any, error) {
	return r.get(ctx, r.db, entryID)
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *SQLiteOptionsRepository) get(ctx context.Context, q querier, entryID string) (map[string]any, error) {
	if entryID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidEntry)
	}

	var raw string
	err := q.QueryRowContext(ctx,
		"SELECT options FROM entry_options WHERE entry_id = ?", entryID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying entry options: %w", err)
	}

	opts := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &opts); err != nil {
		return nil, fmt.Errorf("%w: entry %s: %w", ErrInvalidOptions, entryID, err)
	}
	return opts, nil
}

// Patch merges patch into the stored overrides inside one transaction.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - entryID: Entry to update
//   - patch: Keys to set; nil values delete the key
//
// Returns:
//   - map[string]any: The stored overrides after the patch
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteOptionsRepository) Patch(ctx context.Context, entryID string, patch map[string]any) (map[string]any, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	current, err := r.get(ctx, tx, entryID)
	if err != nil {
		return nil, err
	}
	next := applyPatch(current, patch)

	data, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO entry_options (entry_id, options, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(entry_id) DO UPDATE SET options = excluded.options, updated_at = excluded.updated_at`,
		entryID,
		string(data),
		r.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("saving entry options: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing entry options: %w", err)
	}
	return next, nil
}

// Delete removes all overrides of an entry.
func (r *SQLiteOptionsRepository) Delete(ctx context.Context, entryID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM entry_options WHERE entry_id = ?", entryID); err != nil {
		return fmt.Errorf("deleting entry options: %w", err)
	}
	return nil
}

// applyPatch returns current with patch applied; nil values delete keys.
func applyPatch(current, patch map[string]any) map[string]any {
	next := maps.Clone(current)
	if next == nil {
		next = map[string]any{}
	}
	for k, v := range patch {
		if v == nil {
			delete(next, k)
			continue
		}
		next[k] = v
	}
	return next
}
