// Package history is the persistent conversation log. Records are immutable
// once written; a per-chat reset epoch logically clears context without
// deleting anything.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"groupbot/internal/domain"
	"groupbot/internal/metrics"

	_ "modernc.org/sqlite"
)

// maxContentRunes bounds stored message content (code points, not bytes).
const maxContentRunes = 4000

// Store implements domain.ChatStore using SQLite.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	metrics *metrics.Collector
}

func NewStore(dbPath string, logger *slog.Logger, collector *metrics.Collector) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: logger, metrics: collector}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chat_history (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id     INTEGER NOT NULL,
		user_id     INTEGER NOT NULL,
		message_id  INTEGER NOT NULL,
		role        TEXT NOT NULL,
		content     TEXT NOT NULL,
		timestamp   REAL NOT NULL,
		reset_epoch INTEGER NOT NULL DEFAULT 0,
		tokens      INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_chat_history_chat ON chat_history(chat_id, reset_epoch, timestamp);
	CREATE INDEX IF NOT EXISTS idx_chat_history_time ON chat_history(timestamp);
	CREATE INDEX IF NOT EXISTS idx_chat_history_user ON chat_history(user_id);

	CREATE TABLE IF NOT EXISTS chat_reset_epochs (
		chat_id     INTEGER PRIMARY KEY,
		reset_epoch INTEGER NOT NULL DEFAULT 0
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// normalizeContent strips invalid UTF-8 sequences and truncates to the
// maximum stored length in code points.
func normalizeContent(content string) string {
	content = strings.ToValidUTF8(content, "")
	runes := []rune(content)
	if len(runes) > maxContentRunes {
		return string(runes[:maxContentRunes])
	}
	return content
}

// Append inserts one record under the chat's current epoch. A failed append
// must never block message delivery; callers log the StorageError and move on.
func (s *Store) Append(ctx context.Context, chatID, userID, messageID int64, role, content string) error {
	epoch, err := s.currentEpoch(ctx, chatID)
	if err != nil {
		return &domain.StorageError{Op: "append", Err: err}
	}

	s.metrics.DBOperations.Inc()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chat_history (chat_id, user_id, message_id, role, content, timestamp, reset_epoch)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		chatID, userID, messageID, role, normalizeContent(content),
		float64(time.Now().UnixNano())/1e9, epoch,
	)
	if err != nil {
		return &domain.StorageError{Op: "append", Err: err}
	}

	s.logger.Debug("message stored", "chat_id", chatID, "user_id", userID, "role", role)
	return nil
}

// currentEpoch resolves the chat's epoch, lazily creating epoch 0.
func (s *Store) currentEpoch(ctx context.Context, chatID int64) (int64, error) {
	s.metrics.DBOperations.Inc()

	var epoch int64
	err := s.db.QueryRowContext(ctx,
		`SELECT reset_epoch FROM chat_reset_epochs WHERE chat_id = ?`, chatID,
	).Scan(&epoch)
	if err == sql.ErrNoRows {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO chat_reset_epochs (chat_id, reset_epoch) VALUES (?, 0)
			 ON CONFLICT(chat_id) DO NOTHING`, chatID)
		if err != nil {
			return 0, err
		}
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return epoch, nil
}

// ActiveHistory returns the limit most recent records of the current epoch in
// chronological order (fetch newest-first, then reverse).
func (s *Store) ActiveHistory(ctx context.Context, chatID int64, limit int) ([]domain.HistoryEntry, error) {
	epoch, err := s.currentEpoch(ctx, chatID)
	if err != nil {
		return nil, &domain.StorageError{Op: "active history", Err: err}
	}
	return s.HistoryForEpoch(ctx, chatID, epoch, limit)
}

// HistoryForEpoch returns records scoped to an explicit epoch. Records from
// earlier epochs stay queryable here even though the active history excludes
// them.
func (s *Store) HistoryForEpoch(ctx context.Context, chatID int64, epoch int64, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = 30
	}

	s.metrics.DBOperations.Inc()
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM chat_history
		 WHERE chat_id = ? AND reset_epoch = ?
		 ORDER BY timestamp DESC LIMIT ?`,
		chatID, epoch, limit,
	)
	if err != nil {
		return nil, &domain.StorageError{Op: "history query", Err: err}
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		if err := rows.Scan(&e.Role, &e.Content); err != nil {
			return nil, &domain.StorageError{Op: "history scan", Err: err}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Op: "history rows", Err: err}
	}

	// Reverse to chronological order
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// ResetEpoch atomically increments the chat's epoch. The upsert with a
// server-side increment keeps concurrent resets from losing updates.
func (s *Store) ResetEpoch(ctx context.Context, chatID int64) (int64, error) {
	s.metrics.DBOperations.Inc()

	var epoch int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO chat_reset_epochs (chat_id, reset_epoch) VALUES (?, 1)
		 ON CONFLICT(chat_id) DO UPDATE SET reset_epoch = reset_epoch + 1
		 RETURNING reset_epoch`,
		chatID,
	).Scan(&epoch)
	if err != nil {
		return 0, &domain.StorageError{Op: "reset epoch", Err: err}
	}

	s.logger.Info("chat context reset", "chat_id", chatID, "epoch", epoch)
	return epoch, nil
}

// PurgeOlderThan deletes records older than the given number of days. The
// cutoff is computed here and bound as a plain parameter.
func (s *Store) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := float64(time.Now().Add(-time.Duration(days)*24*time.Hour).UnixNano()) / 1e9

	s.metrics.DBOperations.Inc()
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_history WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, &domain.StorageError{Op: "purge", Err: err}
	}

	deleted, _ := res.RowsAffected()
	s.logger.Info("old messages purged", "older_than_days", days, "deleted", deleted)
	return deleted, nil
}

// Healthy verifies the database answers a trivial query.
func (s *Store) Healthy(ctx context.Context) error {
	s.metrics.DBOperations.Inc()
	var one int
	if err := s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return &domain.StorageError{Op: "health check", Err: err}
	}
	if one != 1 {
		return &domain.StorageError{Op: "health check", Err: fmt.Errorf("unexpected result %d", one)}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
