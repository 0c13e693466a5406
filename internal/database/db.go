// internal/database/db.go
package database

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// Database is the cross-session backup index. It exists so "list all
// session backups" does not have to open every metadata.json under the
// backup root; the per-session metadata file remains the source of truth
// and the index is rebuilt row by row as sessions are touched.
type Database struct {
	db *sql.DB
}

// SessionRow is one indexed session backup.
type SessionRow struct {
	SessionID        string     `json:"sessionId"`
	WorkingDirectory string     `json:"workingDirectory"`
	State            string     `json:"state"`
	CreatedAt        time.Time  `json:"createdAt"`
	ClosedAt         *time.Time `json:"closedAt,omitempty"`
	CheckpointCount  int        `json:"checkpointCount"`
	TotalBytes       int64      `json:"totalBytes"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// Open creates or opens the index database at the given path.
func Open(path string) (*Database, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}

	d := &Database{db: db}
	if err := d.init(); err != nil {
		db.Close()
		return nil, err
	}

	return d, nil
}

func (d *Database) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS session_backups (
		session_id TEXT PRIMARY KEY,
		working_directory TEXT NOT NULL,
		state TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		closed_at INTEGER,
		checkpoint_count INTEGER NOT NULL DEFAULT 0,
		total_bytes INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_session_backups_state ON session_backups(state);
	`

	_, err := d.db.Exec(schema)
	return err
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// UpsertSession inserts or replaces the index row for a session.
func (d *Database) UpsertSession(row *SessionRow) error {
	row.UpdatedAt = time.Now()

	_, err := d.db.Exec(`
		INSERT OR REPLACE INTO session_backups
		(session_id, working_directory, state, created_at, closed_at, checkpoint_count, total_bytes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		row.SessionID, row.WorkingDirectory, row.State, row.CreatedAt.Unix(),
		nullableTime(row.ClosedAt), row.CheckpointCount, row.TotalBytes, row.UpdatedAt.Unix())
	return err
}

// GetSession retrieves one index row by session ID.
func (d *Database) GetSession(sessionID string) (*SessionRow, error) {
	row := d.db.QueryRow(`
		SELECT session_id, working_directory, state, created_at, closed_at, checkpoint_count, total_bytes, updated_at
		FROM session_backups WHERE session_id = ?`, sessionID)

	return scanSession(row.Scan)
}

// ListSessions retrieves all index rows, most recently updated first.
func (d *Database) ListSessions() ([]*SessionRow, error) {
	rows, err := d.db.Query(`
		SELECT session_id, working_directory, state, created_at, closed_at, checkpoint_count, total_bytes, updated_at
		FROM session_backups ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*SessionRow
	for rows.Next() {
		session, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func scanSession(scan func(dest ...interface{}) error) (*SessionRow, error) {
	session := &SessionRow{}
	var createdAt, updatedAt int64
	var closedAt sql.NullInt64

	err := scan(&session.SessionID, &session.WorkingDirectory, &session.State,
		&createdAt, &closedAt, &session.CheckpointCount, &session.TotalBytes, &updatedAt)
	if err != nil {
		return nil, err
	}

	session.CreatedAt = time.Unix(createdAt, 0)
	session.UpdatedAt = time.Unix(updatedAt, 0)
	if closedAt.Valid {
		t := time.Unix(closedAt.Int64, 0)
		session.ClosedAt = &t
	}

	return session, nil
}
