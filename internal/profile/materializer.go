package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/openclaw/coachd/internal/store"
)

// Materializer writes profiles to SQLite. The profile row and all its
// sections land in a single transaction, and the UNIQUE constraint on
// user_id makes a rerun (or a racing second writer) resolve to the
// profile that got there first.
type Materializer struct {
	db *sql.DB
}

// NewMaterializer opens (or creates) the profile database at path.
func NewMaterializer(path string) (*Materializer, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	m := &Materializer{db: db}
	if err := m.init(); err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

// NewMaterializerWithDB wraps an existing database handle. The schema
// is still created if missing.
func NewMaterializerWithDB(db *sql.DB) (*Materializer, error) {
	m := &Materializer{db: db}
	if err := m.init(); err != nil {
		return nil, err
	}
	return m, nil
}

// Close closes the database connection.
func (m *Materializer) Close() error {
	return m.db.Close()
}

func (m *Materializer) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		locked INTEGER NOT NULL DEFAULT 1,
		version INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS profile_sections (
		profile_id TEXT NOT NULL,
		section TEXT NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (profile_id, section),
		FOREIGN KEY (profile_id) REFERENCES profiles(id)
	);
	`

	if _, err := m.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Materialize creates the profile for a finished onboarding record and
// returns its ID. A profile that already exists for the user is
// returned as-is, which makes retries after a partial failure safe.
func (m *Materializer) Materialize(ctx context.Context, rec *store.Record) (string, error) {
	var missing []string
	for _, section := range Sections {
		if _, ok := rec.PhaseData[section]; !ok {
			missing = append(missing, section)
		}
	}
	if len(missing) > 0 {
		return "", &MaterializationError{UserID: rec.UserID, Missing: missing}
	}

	if id, err := m.existingID(ctx, rec.UserID); err != nil {
		return "", &MaterializationError{UserID: rec.UserID, Err: err}
	} else if id != "" {
		return id, nil
	}

	id := uuid.NewString()
	if err := m.insert(ctx, id, rec); err != nil {
		// A racing writer may have won; fall back to their profile.
		if existing, lookupErr := m.existingID(ctx, rec.UserID); lookupErr == nil && existing != "" {
			return existing, nil
		}
		return "", &MaterializationError{UserID: rec.UserID, Err: err}
	}
	return id, nil
}

func (m *Materializer) existingID(ctx context.Context, userID string) (string, error) {
	var id string
	err := m.db.QueryRowContext(ctx, "SELECT id FROM profiles WHERE user_id = ?", userID).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up profile: %w", err)
	}
	return id, nil
}

func (m *Materializer) insert(ctx context.Context, id string, rec *store.Record) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO profiles (id, user_id, locked, version, created_at)
		VALUES (?, ?, 1, ?, ?)
	`, id, rec.UserID, Version, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}

	for _, section := range Sections {
		_, err = tx.Exec(`
			INSERT INTO profile_sections (profile_id, section, data)
			VALUES (?, ?, ?)
		`, id, section, string(rec.PhaseData[section]))
		if err != nil {
			return fmt.Errorf("failed to insert section %s: %w", section, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Load returns the profile for a user, or nil if none exists.
func (m *Materializer) Load(ctx context.Context, userID string) (*Profile, error) {
	p := &Profile{UserID: userID, Sections: make(map[string]json.RawMessage)}
	err := m.db.QueryRowContext(ctx, `
		SELECT id, locked, version, created_at FROM profiles WHERE user_id = ?
	`, userID).Scan(&p.ID, &p.Locked, &p.Version, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT section, data FROM profile_sections WHERE profile_id = ?
	`, p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sections: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var section, data string
		if err := rows.Scan(&section, &data); err != nil {
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}
		p.Sections[section] = json.RawMessage(data)
	}
	return p, rows.Err()
}
