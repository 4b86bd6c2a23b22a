package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/tmoreaux/detectlab/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. The session state
// lives in a single row updated inside a transaction, so a multi-field
// mutation is either fully visible or not at all.
type SQLiteStore struct {
	db *sql.DB

	// Serializes read-modify-write cycles; sqlite would otherwise reject a
	// concurrent lock upgrade instead of queueing it.
	writeMu sync.Mutex
}

// NewSQLite opens a SQLite database at the given path, configures WAL mode
// and runs migrations.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS session_state (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	data       TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS event_log (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	data       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}

	// Seed the singleton state row on first run.
	initial, err := json.Marshal(model.NewSessionState())
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal initial state")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_state (id, data) VALUES (1, ?) ON CONFLICT(id) DO NOTHING`,
		string(initial),
	)
	return eris.Wrap(err, "sqlite: seed state")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) State(ctx context.Context) (model.SessionState, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM session_state WHERE id = 1`).Scan(&data)
	if err != nil {
		return model.SessionState{}, eris.Wrap(err, "sqlite: read state")
	}
	return decodeState(data)
}

func (s *SQLiteStore) Update(ctx context.Context, mutate func(st *model.SessionState) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin update")
	}
	defer func() { _ = tx.Rollback() }()

	var data string
	if err := tx.QueryRowContext(ctx, `SELECT data FROM session_state WHERE id = 1`).Scan(&data); err != nil {
		return eris.Wrap(err, "sqlite: read state for update")
	}
	state, err := decodeState(data)
	if err != nil {
		return err
	}

	if err := mutate(&state); err != nil {
		return err
	}

	encoded, err := json.Marshal(state)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal state")
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE session_state SET data = ?, updated_at = ? WHERE id = 1`,
		string(encoded), time.Now().UTC(),
	); err != nil {
		return eris.Wrap(err, "sqlite: write state")
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit update")
}

func (s *SQLiteStore) AppendLog(ctx context.Context, entry model.LogEntry) (int, error) {
	encoded, err := json.Marshal(entry)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: marshal log entry")
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO event_log (id, data) VALUES (?, ?)`,
		uuid.New().String(), string(encoded),
	); err != nil {
		return 0, eris.Wrap(err, "sqlite: insert log entry")
	}

	return s.LogCount(ctx)
}

func (s *SQLiteStore) Logs(ctx context.Context) ([]model.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM event_log ORDER BY seq`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query logs")
	}
	defer rows.Close()

	var entries []model.LogEntry
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan log entry")
		}
		var entry model.LogEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal log entry")
		}
		entries = append(entries, entry)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: iterate logs")
}

func (s *SQLiteStore) LogCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM event_log`).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count logs")
}

func (s *SQLiteStore) ClearLogs(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM event_log`)
	return eris.Wrap(err, "sqlite: clear logs")
}

func decodeState(data string) (model.SessionState, error) {
	state := model.NewSessionState()
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return model.SessionState{}, eris.Wrap(err, "sqlite: unmarshal state")
	}
	if state.AssignmentsByTab == nil {
		state.AssignmentsByTab = make(map[int]model.TabAssignment)
	}
	if state.StartedPages == nil {
		state.StartedPages = make(map[string]bool)
	}
	return state, nil
}
