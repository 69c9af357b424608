package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mandalnilabja/chatrelay/internal/storage/models"
)

// PutConversation inserts or replaces a conversation, then evicts the least
// recently updated conversations beyond the cap.
func (s *Storage) PutConversation(convo *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStorageClosed
	}
	if convo == nil {
		return ErrInvalidInput
	}

	if convo.ID == "" {
		convo.ID = generateID("conv")
	}
	now := time.Now().UTC()
	if convo.CreatedAt.IsZero() {
		convo.CreatedAt = now
	}
	if convo.UpdatedAt.IsZero() {
		convo.UpdatedAt = now
	}
	if convo.Title == "" {
		convo.Title = models.DefaultTitle
	}

	messages, err := json.Marshal(convo.Messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO conversations (id, title, messages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			messages = excluded.messages,
			updated_at = excluded.updated_at
	`, convo.ID, convo.Title, string(messages), convo.CreatedAt, convo.UpdatedAt)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		DELETE FROM conversations WHERE id NOT IN (
			SELECT id FROM conversations ORDER BY updated_at DESC LIMIT ?
		)
	`, s.maxConversations)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// GetConversation retrieves a conversation by ID
func (s *Storage) GetConversation(id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStorageClosed
	}

	row := s.db.QueryRow(`
		SELECT id, title, messages, created_at, updated_at
		FROM conversations WHERE id = ?
	`, id)
	convo, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return convo, err
}

// ListConversations returns conversations, most recently updated first.
func (s *Storage) ListConversations(filter models.ConversationFilter) ([]*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStorageClosed
	}

	query := `SELECT id, title, messages, created_at, updated_at FROM conversations WHERE 1=1`
	var args []interface{}

	if q := strings.TrimSpace(filter.Query); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		query += " AND (LOWER(title) LIKE ? OR LOWER(messages) LIKE ?)"
		args = append(args, like, like)
	}

	query += " ORDER BY updated_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convos []*models.Conversation
	for rows.Next() {
		convo, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convos = append(convos, convo)
	}

	return convos, rows.Err()
}

// DeleteConversation removes a conversation
func (s *Storage) DeleteConversation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStorageClosed
	}

	result, err := s.db.Exec("DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanConversation(row scanner) (*models.Conversation, error) {
	var convo models.Conversation
	var messages string

	if err := row.Scan(&convo.ID, &convo.Title, &messages, &convo.CreatedAt, &convo.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(messages), &convo.Messages); err != nil {
		return nil, fmt.Errorf("decode messages of %s: %w", convo.ID, err)
	}
	return &convo, nil
}
