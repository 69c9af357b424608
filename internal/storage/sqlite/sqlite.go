// Package sqlite provides SQLite-based storage implementation.
package sqlite

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DefaultMaxConversations bounds the conversation table when no cap is given.
const DefaultMaxConversations = 50

// Storage implements the storage.Storage interface using SQLite
type Storage struct {
	db               *sql.DB
	maxConversations int
	mu               sync.RWMutex
	closed           bool
}

// Option configures a Storage.
type Option func(*Storage)

// WithMaxConversations caps the number of stored conversations. The least
// recently updated ones are evicted first.
func WithMaxConversations(n int) Option {
	return func(s *Storage) {
		if n > 0 {
			s.maxConversations = n
		}
	}
}

// New creates a new SQLite storage instance
func New(dbPath string, opts ...Option) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings for better concurrency
	db.SetMaxOpenConns(1) // SQLite works best with single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	storage := &Storage{
		db:               db,
		maxConversations: DefaultMaxConversations,
	}
	for _, opt := range opts {
		opt(storage)
	}

	if err := storage.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return storage, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

// generateID creates a new unique ID with a prefix
func generateID(prefix string) string {
	return prefix + "_" + uuid.New().String()
}

// boolToInt converts a boolean to an integer (1 for true, 0 for false)
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullString returns nil for empty strings, otherwise the string itself
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
