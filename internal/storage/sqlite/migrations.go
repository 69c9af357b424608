package sqlite

import "fmt"

// migrations are applied in order; PRAGMA user_version records how many ran.
var migrations = []string{
	`
	CREATE TABLE IF NOT EXISTS conversations (
		id          TEXT PRIMARY KEY,
		title       TEXT NOT NULL,
		messages    TEXT NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS request_logs (
		id            TEXT PRIMARY KEY,
		request_id    TEXT NOT NULL,
		route         TEXT NOT NULL,
		model         TEXT,
		candidate     TEXT,
		attempts      INTEGER DEFAULT 0,
		prompt_tokens INTEGER DEFAULT 0,
		is_streaming  INTEGER DEFAULT 0,
		status_code   INTEGER,
		credential_fingerprint TEXT,
		error_message TEXT,
		duration_ms   INTEGER,
		created_at    DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS usage_daily (
		date          TEXT NOT NULL,
		route         TEXT NOT NULL,
		model         TEXT NOT NULL,
		request_count INTEGER DEFAULT 0,
		prompt_tokens INTEGER DEFAULT 0,
		error_count   INTEGER DEFAULT 0,
		PRIMARY KEY (date, route, model)
	);

	CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);
	CREATE INDEX IF NOT EXISTS idx_logs_created ON request_logs(created_at);
	CREATE INDEX IF NOT EXISTS idx_logs_route ON request_logs(route);
	CREATE INDEX IF NOT EXISTS idx_usage_date ON usage_daily(date);
	`,
}

// migrate brings the schema up to date.
func (s *Storage) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return err
	}

	for i := version; i < len(migrations); i++ {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		// PRAGMA does not accept bound parameters.
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
