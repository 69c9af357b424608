// Package storage provides the storage interface and implementations.
package storage

import (
	"time"

	"github.com/mandalnilabja/chatrelay/internal/storage/models"
	"github.com/mandalnilabja/chatrelay/internal/storage/sqlite"
)

// Re-export types from models package for convenience
type (
	Conversation       = models.Conversation
	ConversationFilter = models.ConversationFilter
	RequestLog         = models.RequestLog
	LogFilter          = models.LogFilter
	DailyUsage         = models.DailyUsage
	RouteStats         = models.RouteStats
	UsageStats         = models.UsageStats
	StatsFilter        = models.StatsFilter
)

// Re-export functions from models package
var NewConversation = models.NewConversation

// Re-export errors from sqlite package
var (
	ErrNotFound      = sqlite.ErrNotFound
	ErrInvalidInput  = sqlite.ErrInvalidInput
	ErrStorageClosed = sqlite.ErrStorageClosed
)

// ConversationStore persists chat histories. Putting beyond the cap evicts
// the least recently updated conversations.
type ConversationStore interface {
	PutConversation(convo *models.Conversation) error
	GetConversation(id string) (*models.Conversation, error)
	ListConversations(filter models.ConversationFilter) ([]*models.Conversation, error)
	DeleteConversation(id string) error
}

// RequestLogStore records requests proxied by the relay.
type RequestLogStore interface {
	LogRequest(log *models.RequestLog) error
	GetRequestLogs(filter models.LogFilter) ([]*models.RequestLog, error)
	DeleteRequestLogs(olderThan time.Time) (int64, error)

	GetUsageStats(filter models.StatsFilter) (*models.UsageStats, error)
	GetDailyUsage(startDate, endDate string) ([]*models.DailyUsage, error)
}

// Storage defines the interface for persistent data storage
type Storage interface {
	ConversationStore
	RequestLogStore

	Close() error
}

// NewSQLiteStorage creates a new SQLite storage instance. maxConversations
// caps the conversation table; zero uses the default.
func NewSQLiteStorage(dbPath string, maxConversations int) (Storage, error) {
	return sqlite.New(dbPath, sqlite.WithMaxConversations(maxConversations))
}
