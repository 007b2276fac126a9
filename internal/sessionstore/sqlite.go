package sessionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nexuscore/agentcore/pkg/models"
)

// SQLiteStore implements Store on top of modernc.org/sqlite, grounded on
// the teacher's CockroachStore prepared-statement idiom in
// internal/sessions/cockroach.go, adapted to an embedded single-file
// backend appropriate for a single-process personal-assistant runtime.
type SQLiteStore struct {
	db *sql.DB

	stmtGet    *sql.Stmt
	stmtUpsert *sql.Stmt
	stmtDelete *sql.Stmt
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// OpenSQLiteStore opens (creating if necessary) a SQLite-backed session
// store at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid lock contention
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if s.stmtGet, err = db.Prepare(`SELECT data FROM sessions WHERE session_id = ?`); err != nil {
		db.Close()
		return nil, err
	}
	if s.stmtUpsert, err = db.Prepare(`
		INSERT INTO sessions (session_id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`); err != nil {
		db.Close()
		return nil, err
	}
	if s.stmtDelete, err = db.Prepare(`DELETE FROM sessions WHERE session_id = ?`); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	var data string
	err := s.stmtGet.QueryRowContext(ctx, sessionID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var session models.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *SQLiteStore) GetOrCreate(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := s.Get(ctx, sessionID)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	now := time.Now()
	session = &models.Session{SessionID: sessionID, CreatedAt: now, UpdatedAt: now}
	if err := s.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SQLiteStore) Save(ctx context.Context, session *models.Session) error {
	if session == nil || session.SessionID == "" {
		return errors.New("sessionstore: session_id is required")
	}
	session.TrimMessages()
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	_, err = s.stmtUpsert.ExecContext(ctx, session.SessionID, string(data), session.UpdatedAt)
	return err
}

func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.stmtDelete.ExecContext(ctx, sessionID)
	return err
}
