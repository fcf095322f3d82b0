// Package store provides session persistence backends for SalesPipe.
//
// Saving a conversation document is the atomic commit unit for a turn: the
// guard layer mutates a copy and nothing is visible until SaveConversation
// returns. Backends serialize the whole document as JSON under the session
// id, so save/load per session key is a single-row upsert/select.
package store

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/BTreeMap/SalesPipe/internal/models"
)

// Opts holds configuration options for store implementations.
type Opts struct {
	// DSN is the database connection string (file path for SQLite,
	// connection URL for Postgres).
	DSN string
	// Driver selects the backend: "sqlite3" or "postgres". Empty means
	// infer from the DSN.
	Driver string
}

// Option configures store Opts.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithDriver sets the database driver.
func WithDriver(driver string) Option {
	return func(o *Opts) { o.Driver = driver }
}

// NewStore creates a persistent store, selecting the backend from the driver
// option or, when unset, from the DSN scheme.
func NewStore(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	driver := strings.ToLower(cfg.Driver)
	if driver == "" {
		if strings.HasPrefix(cfg.DSN, "postgres://") || strings.HasPrefix(cfg.DSN, "postgresql://") {
			driver = "postgres"
		} else {
			driver = "sqlite3"
		}
	}
	slog.Debug("NewStore: selecting backend", "driver", driver, "DSN_set", cfg.DSN != "")
	switch driver {
	case "postgres":
		return NewPostgresStore(opts...)
	default:
		return NewSQLiteStore(opts...)
	}
}

// Store is the persistence interface the turn engine depends on.
// LoadConversation returns (nil, nil) when the session has no document yet.
type Store interface {
	LoadConversation(sessionID string) (*models.ConversationState, error)
	SaveConversation(st *models.ConversationState) error
	DeleteConversation(sessionID string) error
	ListSessionIDs() ([]string, error)
	Close() error
}

// InMemoryStore keeps session documents in a map. Used in tests and
// single-process deployments without durability requirements.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.ConversationState
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*models.ConversationState)}
}

func (s *InMemoryStore) LoadConversation(sessionID string) (*models.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return st.Clone(), nil
}

func (s *InMemoryStore) SaveConversation(st *models.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[st.SessionID] = st.Clone()
	slog.Debug("InMemoryStore.SaveConversation: saved", "sessionID", st.SessionID, "messages", len(st.Messages))
	return nil
}

func (s *InMemoryStore) DeleteConversation(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *InMemoryStore) ListSessionIDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *InMemoryStore) Close() error { return nil }
