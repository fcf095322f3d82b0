// Package store provides session persistence backends for SalesPipe.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/SalesPipe/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants.
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) LoadConversation(sessionID string) (*models.ConversationState, error) {
	var doc []byte
	err := s.db.QueryRow(`SELECT document FROM conversations WHERE session_id = $1`, sessionID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore LoadConversation failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to load conversation %s: %w", sessionID, err)
	}
	var st models.ConversationState
	if err := json.Unmarshal(doc, &st); err != nil {
		slog.Error("PostgresStore LoadConversation unmarshal failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to decode conversation %s: %w", sessionID, err)
	}
	return &st, nil
}

func (s *PostgresStore) SaveConversation(st *models.ConversationState) error {
	doc, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode conversation %s: %w", st.SessionID, err)
	}
	_, err = s.db.Exec(`INSERT INTO conversations (session_id, document, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO UPDATE SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at`,
		st.SessionID, doc, st.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveConversation failed", "error", err, "sessionID", st.SessionID)
		return fmt.Errorf("failed to save conversation %s: %w", st.SessionID, err)
	}
	slog.Debug("PostgresStore SaveConversation succeeded", "sessionID", st.SessionID, "bytes", len(doc))
	return nil
}

func (s *PostgresStore) DeleteConversation(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM conversations WHERE session_id = $1`, sessionID)
	if err != nil {
		slog.Error("PostgresStore DeleteConversation failed", "error", err, "sessionID", sessionID)
		return fmt.Errorf("failed to delete conversation %s: %w", sessionID, err)
	}
	return nil
}

func (s *PostgresStore) ListSessionIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT session_id FROM conversations ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
