package eventlog

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver

	"contextcore/pkg/event"
	"contextcore/pkg/logx"
)

// CurrentSchemaVersion defines the current schema version for migration support.
const CurrentSchemaVersion = 1

// OpenSQLite opens (creating if needed) an SQLite database holding event logs.
// One database can hold many conversations; each SQLiteStore is scoped to one.
func OpenSQLite(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initializeSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Configure connection pool for SQLite (single writer)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return db, nil
}

func initializeSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			conversation_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			id TEXT NOT NULL,
			kind TEXT NOT NULL,
			data TEXT NOT NULL,
			PRIMARY KEY (conversation_id, position),
			UNIQUE (conversation_id, id)
		)`,
		`INSERT OR IGNORE INTO schema_version (version) VALUES (1)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// SQLiteStore pages events for one conversation from an SQLite database.
// It keeps only the event count in memory.
type SQLiteStore struct {
	db             *sql.DB
	logger         *logx.Logger
	conversationID string
	count          int
	mu             sync.Mutex
}

// NewSQLiteStore scopes a store to conversationID inside db. Existing events for that
// conversation are picked up, so a Log over the store continues where it left off.
func NewSQLiteStore(db *sql.DB, conversationID string) (*SQLiteStore, error) {
	if conversationID == "" {
		return nil, errors.New("conversation id must not be empty")
	}

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM events WHERE conversation_id = ?`, conversationID).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}

	return &SQLiteStore{
		db:             db,
		logger:         logx.NewLogger("eventlog-sqlite"),
		conversationID: conversationID,
		count:          count,
	}, nil
}

// Append implements Store.
func (s *SQLiteStore) Append(ev *event.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		`INSERT INTO events (conversation_id, position, id, kind, data) VALUES (?, ?, ?, ?, ?)`,
		s.conversationID, s.count, ev.ID, string(ev.Kind()), string(data),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ErrDuplicateID, ev.ID)
		}
		return fmt.Errorf("failed to insert event: %w", err)
	}
	s.count++
	return nil
}

// Len implements Store.
func (s *SQLiteStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Get implements Store.
func (s *SQLiteStore) Get(i int) (*event.Event, error) {
	row := s.db.QueryRow(
		`SELECT data FROM events WHERE conversation_id = ? AND position = ?`,
		s.conversationID, i,
	)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: index %d", ErrNotFound, i)
	}
	return ev, err
}

// Slice implements Store.
func (s *SQLiteStore) Slice(from, to int) ([]*event.Event, error) {
	from, to = clampRange(from, to, s.Len())
	if from == to {
		return nil, nil
	}

	rows, err := s.db.Query(
		`SELECT data FROM events WHERE conversation_id = ? AND position >= ? AND position < ? ORDER BY position`,
		s.conversationID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn("failed to close rows: %v", closeErr)
		}
	}()

	events := make([]*event.Event, 0, to-from)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

// Lookup implements Store.
func (s *SQLiteStore) Lookup(id string) (*event.Event, error) {
	row := s.db.QueryRow(
		`SELECT data FROM events WHERE conversation_id = ? AND id = ?`,
		s.conversationID, id,
	)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %s", ErrNotFound, id)
	}
	return ev, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*event.Event, error) {
	var data string
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}
	var ev event.Event
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	return &ev, nil
}
