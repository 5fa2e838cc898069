package domain

import "time"

// Roles stored in chat history. Matches the model API wire roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// InboundMessage is one incoming Telegram text message, normalized for routing.
type InboundMessage struct {
	ChatID    int64
	UserID    int64
	MessageID int64
	Text      string
	Timestamp time.Time

	// ReplyTo is set when the message is a direct reply to another message.
	ReplyTo *ReplyRef
}

// ReplyRef identifies the message an InboundMessage replies to.
type ReplyRef struct {
	MessageID int64
	UserID    int64
	Text      string
}

// HistoryEntry is one turn of active conversation context as fed to the model.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
