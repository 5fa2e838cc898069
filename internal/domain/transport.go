package domain

import "context"

// Transport is the outbound side of the Telegram channel. The router and the
// scheduled jobs only see this interface; swapping the implementation changes
// nothing about their contracts.
type Transport interface {
	// SendText sends a message and returns the sent message id.
	SendText(ctx context.Context, chatID int64, text string) (int64, error)

	// Reply sends a message as a direct reply to replyToID.
	Reply(ctx context.Context, chatID, replyToID int64, text string) (int64, error)

	// SetReaction sets an emoji reaction on a message. Best-effort.
	SetReaction(ctx context.Context, chatID, messageID int64, emoji string) error

	// BotID and BotUsername identify the bot account for mention and
	// reply-to-bot detection.
	BotID() int64
	BotUsername() string
}

// Responder turns conversation context plus a query into a reply string.
// Implementations never fail: on error they return a user-visible string.
type Responder interface {
	Respond(ctx context.Context, history []HistoryEntry, query string) string
}
