package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteRepository stores the state document as a single row. Deployments
// that want database-level locking instead of a flock use this backend; the
// document semantics are identical to FileRepository.
type SQLiteRepository struct {
	conn *sql.DB
}

// NewSQLiteRepository opens the database and initializes the schema.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	r := &SQLiteRepository{conn: conn}
	if err := r.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return r, nil
}

// Close closes the database connection.
func (r *SQLiteRepository) Close() error {
	return r.conn.Close()
}

func (r *SQLiteRepository) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS gate_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		doc TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := r.conn.Exec(schema)
	return err
}

// Load reads the state document row. A missing or corrupt row yields a fresh
// default state.
func (r *SQLiteRepository) Load(ctx context.Context) (*GateState, error) {
	var doc string
	err := r.conn.QueryRowContext(ctx, `SELECT doc FROM gate_state WHERE id = 1`).Scan(&doc)
	if err == sql.ErrNoRows {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state row: %w", err)
	}

	st := &GateState{}
	if err := json.Unmarshal([]byte(doc), st); err != nil {
		return New(), nil
	}
	st.Normalize()
	return st, nil
}

// Save trims retention and replaces the state document row.
func (r *SQLiteRepository) Save(ctx context.Context, st *GateState) error {
	st.Normalize()
	st.Trim()

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	query := `
	INSERT INTO gate_state (id, doc, updated_at) VALUES (1, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(id) DO UPDATE SET
		doc = excluded.doc,
		updated_at = CURRENT_TIMESTAMP
	`
	_, err = r.conn.ExecContext(ctx, query, string(data))
	return err
}
