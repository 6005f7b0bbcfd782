package entry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store defines the interface for entry persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Store interface {
	// GetByID retrieves an entry by its unique identifier.
	// Returns ErrNotFound if the entry does not exist.
	GetByID(ctx context.Context, id string) (*Entry, error)

	// List retrieves all entries ordered by name.
	List(ctx context.Context) ([]Entry, error)

	// Create inserts a new entry.
	// Returns ErrExists if an entry with the same ID already exists.
	Create(ctx context.Context, e *Entry) error

	// UpdateSleepPeriod records the device's reported wakeup period.
	// Returns ErrNotFound if the entry does not exist.
	UpdateSleepPeriod(ctx context.Context, id string, seconds int) error

	// UpdateFirmware records the device's reported firmware version.
	// Returns ErrNotFound if the entry does not exist.
	UpdateFirmware(ctx context.Context, id string, version string) error

	// SetAuthRequired flags or clears pending reauthentication.
	// Returns ErrNotFound if the entry does not exist.
	SetAuthRequired(ctx context.Context, id string, required bool) error

	// Delete removes an entry by ID.
	// Returns ErrNotFound if the entry does not exist.
	Delete(ctx context.Context, id string) error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// schema creates the entries table if it does not exist.
// The store owns its schema; the database package only manages the connection.
const schema = `
	CREATE TABLE IF NOT EXISTS entries (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		host          TEXT NOT NULL,
		mac           TEXT NOT NULL DEFAULT '',
		generation    INTEGER NOT NULL,
		sleep_period  INTEGER NOT NULL DEFAULT 0,
		firmware      TEXT NOT NULL DEFAULT '',
		auth_required INTEGER NOT NULL DEFAULT 0,
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL
	)`

// NewSQLiteStore creates a new SQLite-backed entry store.
// The db parameter should be an open SQLite connection.
// The entries table is created if it does not exist.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("creating entries table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// GetByID retrieves an entry by its unique identifier.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*Entry, error) {
	query := `
		SELECT id, name, host, mac, generation, sleep_period, firmware,
			auth_required, created_at, updated_at
		FROM entries
		WHERE id = ?`

	row := s.db.QueryRowContext(ctx, query, id)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying entry by id: %w", err)
	}
	return e, nil
}

// List retrieves all entries ordered by name.
func (s *SQLiteStore) List(ctx context.Context) ([]Entry, error) {
	query := `
		SELECT id, name, host, mac, generation, sleep_period, firmware,
			auth_required, created_at, updated_at
		FROM entries
		ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only rows close

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	return entries, nil
}

// Create inserts a new entry.
func (s *SQLiteStore) Create(ctx context.Context, e *Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	query := `
		INSERT INTO entries (id, name, host, mac, generation, sleep_period,
			firmware, auth_required, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.Name, e.Host, e.MAC, int(e.Generation), e.SleepPeriod,
		e.Firmware, boolToInt(e.AuthRequired),
		e.CreatedAt.Format(time.RFC3339), e.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrExists
		}
		return fmt.Errorf("inserting entry: %w", err)
	}
	return nil
}

// UpdateSleepPeriod records the device's reported wakeup period.
func (s *SQLiteStore) UpdateSleepPeriod(ctx context.Context, id string, seconds int) error {
	if seconds < 0 {
		return ErrInvalidEntry
	}
	return s.updateField(ctx, id, "sleep_period", seconds)
}

// UpdateFirmware records the device's reported firmware version.
func (s *SQLiteStore) UpdateFirmware(ctx context.Context, id string, version string) error {
	return s.updateField(ctx, id, "firmware", version)
}

// SetAuthRequired flags or clears pending reauthentication.
func (s *SQLiteStore) SetAuthRequired(ctx context.Context, id string, required bool) error {
	return s.updateField(ctx, id, "auth_required", boolToInt(required))
}

// updateField updates a single column and the updated_at timestamp.
// The column name is always one of the fixed strings above, never user input.
func (s *SQLiteStore) updateField(ctx context.Context, id, column string, value interface{}) error {
	query := fmt.Sprintf( //nolint:gosec // column is a compile-time constant
		"UPDATE entries SET %s = ?, updated_at = ? WHERE id = ?", column)

	result, err := s.db.ExecContext(ctx, query,
		value, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating entry %s: %w", column, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an entry by ID.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM entries WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows for shared scanning logic.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanEntry scans a single entry row.
func scanEntry(row scanner) (*Entry, error) {
	var (
		e            Entry
		generation   int
		authRequired int
		createdAt    string
		updatedAt    string
	)

	err := row.Scan(
		&e.ID, &e.Name, &e.Host, &e.MAC, &generation, &e.SleepPeriod,
		&e.Firmware, &authRequired, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Generation = Generation(generation)
	e.AuthRequired = authRequired != 0

	if e.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if e.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &e, nil
}

// isUniqueViolation checks if an error is a SQLite unique constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// boolToInt converts a bool to the 0/1 representation SQLite stores.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
