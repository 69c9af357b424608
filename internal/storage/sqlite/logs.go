package sqlite

import (
	"fmt"
	"time"

	"github.com/mandalnilabja/chatrelay/internal/storage/models"
)

// LogRequest stores a request log entry and folds it into the daily usage
// totals in the same transaction.
func (s *Storage) LogRequest(log *models.RequestLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStorageClosed
	}
	if log == nil || log.Route == "" {
		return ErrInvalidInput
	}

	if log.ID == "" {
		log.ID = generateID("log")
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO request_logs (id, request_id, route, model, candidate, attempts,
			prompt_tokens, is_streaming, status_code, credential_fingerprint,
			error_message, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, log.ID, log.RequestID, log.Route, log.Model, log.Candidate, log.Attempts,
		log.PromptTokens, boolToInt(log.IsStreaming), log.StatusCode, nullString(log.CredentialFingerprint),
		nullString(log.ErrorMessage), log.DurationMs, log.CreatedAt.UTC())
	if err != nil {
		return err
	}

	errorCount := 0
	if log.StatusCode >= 400 || log.ErrorMessage != "" {
		errorCount = 1
	}

	_, err = tx.Exec(`
		INSERT INTO usage_daily (date, route, model, request_count, prompt_tokens, error_count)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(date, route, model) DO UPDATE SET
			request_count = request_count + 1,
			prompt_tokens = prompt_tokens + excluded.prompt_tokens,
			error_count = error_count + excluded.error_count
	`, log.CreatedAt.UTC().Format("2006-01-02"), log.Route, log.Model, log.PromptTokens, errorCount)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// GetRequestLogs retrieves request logs with filtering
func (s *Storage) GetRequestLogs(filter models.LogFilter) ([]*models.RequestLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStorageClosed
	}

	query := `SELECT id, request_id, route, COALESCE(model, ''), COALESCE(candidate, ''), attempts,
		prompt_tokens, is_streaming, status_code, COALESCE(credential_fingerprint, ''),
		COALESCE(error_message, ''), duration_ms, created_at
		FROM request_logs WHERE 1=1`

	var args []interface{}

	if filter.Route != "" {
		query += " AND route = ?"
		args = append(args, filter.Route)
	}
	if filter.Model != "" {
		query += " AND model = ?"
		args = append(args, filter.Model)
	}
	if filter.StatusCode != nil {
		query += " AND status_code = ?"
		args = append(args, *filter.StatusCode)
	}
	if filter.StartDate != nil {
		query += " AND created_at >= ?"
		args = append(args, *filter.StartDate)
	}
	if filter.EndDate != nil {
		query += " AND created_at <= ?"
		args = append(args, *filter.EndDate)
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*models.RequestLog
	for rows.Next() {
		var log models.RequestLog
		var isStreaming int

		err := rows.Scan(&log.ID, &log.RequestID, &log.Route, &log.Model, &log.Candidate, &log.Attempts,
			&log.PromptTokens, &isStreaming, &log.StatusCode, &log.CredentialFingerprint,
			&log.ErrorMessage, &log.DurationMs, &log.CreatedAt)
		if err != nil {
			return nil, err
		}

		log.IsStreaming = isStreaming == 1
		logs = append(logs, &log)
	}

	return logs, rows.Err()
}

// DeleteRequestLogs removes logs created before the given time.
func (s *Storage) DeleteRequestLogs(olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStorageClosed
	}

	result, err := s.db.Exec("DELETE FROM request_logs WHERE created_at < ?", olderThan.UTC())
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
