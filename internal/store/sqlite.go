package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore stores onboarding records in SQLite. The records table
// holds the structured state; conversation turns live in their own
// table and are replaced wholesale on write, matching how the record
// is mutated as a unit.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS onboarding_records (
		user_id TEXT PRIMARY KEY,
		phase INTEGER NOT NULL,
		phase_data TEXT,
		pending TEXT,
		completed INTEGER NOT NULL DEFAULT 0,
		revision INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversation_turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		role TEXT NOT NULL,
		text TEXT,
		phase INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES onboarding_records(user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_turns_user ON conversation_turns(user_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Load returns the record for userID, or a fresh phase-1 record if the
// user has no row yet.
func (s *SQLiteStore) Load(ctx context.Context, userID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT phase, phase_data, pending, completed, revision, created_at, updated_at
		FROM onboarding_records WHERE user_id = ?
	`, userID)

	var (
		rec       = &Record{UserID: userID}
		phaseData sql.NullString
		pending   sql.NullString
		completed int
		createdAt time.Time
		updatedAt time.Time
	)
	err := row.Scan(&rec.Phase, &phaseData, &pending, &completed, &rec.Revision, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return NewRecord(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}

	rec.Completed = completed != 0
	rec.CreatedAt = createdAt
	rec.UpdatedAt = updatedAt
	if phaseData.Valid && phaseData.String != "" {
		if err := json.Unmarshal([]byte(phaseData.String), &rec.PhaseData); err != nil {
			return nil, fmt.Errorf("failed to parse phase data: %w", err)
		}
	}
	if pending.Valid && pending.String != "" {
		if err := json.Unmarshal([]byte(pending.String), &rec.Pending); err != nil {
			return nil, fmt.Errorf("failed to parse pending plans: %w", err)
		}
	}

	turns, err := s.loadTurns(ctx, userID)
	if err != nil {
		return nil, err
	}
	rec.Conversation = turns
	return rec, nil
}

func (s *SQLiteStore) loadTurns(ctx context.Context, userID string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, text, phase, timestamp
		FROM conversation_turns WHERE user_id = ? ORDER BY id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.Role, &t.Text, &t.Phase, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// Apply applies the mutation in a single transaction, guarded by the
// revision the caller read. The UPDATE carries the old revision in its
// WHERE clause, so a concurrent writer that got there first leaves
// RowsAffected at zero and this attempt fails with ErrConflict.
func (s *SQLiteStore) Apply(ctx context.Context, userID string, revision int64, m Mutation) (*Record, error) {
	rec, err := s.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec.Revision != revision {
		return nil, fmt.Errorf("apply for %s at revision %d (stored %d): %w",
			userID, revision, rec.Revision, ErrConflict)
	}

	if err := applyMutation(rec, m); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	phaseDataJSON, _ := json.Marshal(rec.PhaseData)
	pendingJSON, _ := json.Marshal(rec.Pending)
	completed := 0
	if rec.Completed {
		completed = 1
	}

	if revision == 0 {
		// First write for this user. The PRIMARY KEY rejects a
		// concurrent first writer.
		_, err = tx.Exec(`
			INSERT INTO onboarding_records (user_id, phase, phase_data, pending, completed, revision, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, userID, rec.Phase, string(phaseDataJSON), string(pendingJSON), completed,
			rec.Revision, rec.CreatedAt, rec.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("insert record for %s: %w", userID, ErrConflict)
		}
	} else {
		res, err := tx.Exec(`
			UPDATE onboarding_records
			SET phase = ?, phase_data = ?, pending = ?, completed = ?, revision = ?, updated_at = ?
			WHERE user_id = ? AND revision = ?
		`, rec.Phase, string(phaseDataJSON), string(pendingJSON), completed,
			rec.Revision, rec.UpdatedAt, userID, revision)
		if err != nil {
			return nil, fmt.Errorf("failed to update record: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to check update: %w", err)
		}
		if n == 0 {
			return nil, fmt.Errorf("apply for %s at revision %d: %w", userID, revision, ErrConflict)
		}
	}

	// Replace conversation turns wholesale.
	if _, err := tx.Exec("DELETE FROM conversation_turns WHERE user_id = ?", userID); err != nil {
		return nil, fmt.Errorf("failed to delete turns: %w", err)
	}
	for _, t := range rec.Conversation {
		_, err := tx.Exec(`
			INSERT INTO conversation_turns (user_id, role, text, phase, timestamp)
			VALUES (?, ?, ?, ?, ?)
		`, userID, t.Role, t.Text, t.Phase, t.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to insert turn: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return rec, nil
}
