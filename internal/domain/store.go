package domain

import "context"

// ChatStore is the persistent per-chat conversation log with reset epochs.
// It is the sole writer of message and epoch records.
type ChatStore interface {
	// Append inserts one immutable history record under the chat's current
	// epoch. Content is normalized (invalid UTF-8 stripped, truncated).
	Append(ctx context.Context, chatID, userID, messageID int64, role, content string) error

	// ActiveHistory returns the limit most recent records of the chat's
	// current epoch in chronological order.
	ActiveHistory(ctx context.Context, chatID int64, limit int) ([]HistoryEntry, error)

	// HistoryForEpoch returns records scoped to an explicit epoch (audit use).
	HistoryForEpoch(ctx context.Context, chatID int64, epoch int64, limit int) ([]HistoryEntry, error)

	// ResetEpoch atomically increments the chat's epoch and returns the new
	// value. Prior records remain stored but leave the active history.
	ResetEpoch(ctx context.Context, chatID int64) (int64, error)

	// PurgeOlderThan deletes records older than the given number of days and
	// returns how many were removed.
	PurgeOlderThan(ctx context.Context, days int) (int64, error)

	Healthy(ctx context.Context) error
	Close() error
}
