// Package channel is the Telegram transport: polling for updates, chunked
// sends, and the reaction side channel. The rest of the system only sees
// domain.Transport.
package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"groupbot/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	maxMsgLen      = 4000
	maxSendRetries = 3
	pollTimeout    = 30
)

type Telegram struct {
	bot       *tgbotapi.BotAPI
	parseMode string
	logger    *slog.Logger

	// inflight tracks handler goroutines for the graceful drain on shutdown.
	inflight sync.WaitGroup
}

func NewTelegram(token string, logger *slog.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	logger.Info("telegram bot connected", "username", bot.Self.UserName, "id", bot.Self.ID)
	return &Telegram{bot: bot, parseMode: tgbotapi.ModeMarkdown, logger: logger}, nil
}

func (t *Telegram) BotID() int64        { return t.bot.Self.ID }
func (t *Telegram) BotUsername() string { return t.bot.Self.UserName }

// Run polls for updates and hands each text message to handle on its own
// goroutine, so one slow external call never blocks other messages.
func (t *Telegram) Run(ctx context.Context, handle func(context.Context, domain.InboundMessage)) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	u.AllowedUpdates = []string{"message"}
	updates := t.bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram polling stopping")
			t.bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			msg, ok := toInbound(update)
			if !ok {
				continue
			}
			t.inflight.Add(1)
			go func() {
				defer t.inflight.Done()
				handle(ctx, msg)
			}()
		}
	}
}

// Drain waits for in-flight handlers to finish, up to the timeout.
func (t *Telegram) Drain(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		t.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		t.logger.Info("all in-flight handlers drained")
	case <-time.After(timeout):
		t.logger.Warn("drain timed out, some handlers still running")
	}
}

func toInbound(update tgbotapi.Update) (domain.InboundMessage, bool) {
	m := update.Message
	if m == nil || m.From == nil || m.Chat == nil {
		return domain.InboundMessage{}, false
	}

	msg := domain.InboundMessage{
		ChatID:    m.Chat.ID,
		UserID:    m.From.ID,
		MessageID: int64(m.MessageID),
		Text:      m.Text,
		Timestamp: time.Unix(int64(m.Date), 0),
	}
	if rt := m.ReplyToMessage; rt != nil && rt.From != nil {
		msg.ReplyTo = &domain.ReplyRef{
			MessageID: int64(rt.MessageID),
			UserID:    rt.From.ID,
			Text:      rt.Text,
		}
	}
	return msg, true
}

func (t *Telegram) SendText(ctx context.Context, chatID int64, text string) (int64, error) {
	return t.sendChunked(chatID, 0, text)
}

func (t *Telegram) Reply(ctx context.Context, chatID, replyToID int64, text string) (int64, error) {
	return t.sendChunked(chatID, replyToID, text)
}

// SetReaction sets an emoji reaction via the raw Bot API method; the library
// has no typed helper for it. Best-effort by contract.
func (t *Telegram) SetReaction(ctx context.Context, chatID, messageID int64, emoji string) error {
	params := tgbotapi.Params{
		"chat_id":    strconv.FormatInt(chatID, 10),
		"message_id": strconv.FormatInt(messageID, 10),
		"reaction":   fmt.Sprintf(`[{"type":"emoji","emoji":%q}]`, emoji),
	}
	if _, err := t.bot.MakeRequest("setMessageReaction", params); err != nil {
		return fmt.Errorf("set reaction: %w", err)
	}
	return nil
}

// sendChunked splits long text at the Telegram message limit and returns the
// id of the last sent chunk.
func (t *Telegram) sendChunked(chatID, replyToID int64, text string) (int64, error) {
	var lastID int64
	for _, chunk := range splitChunks(text) {
		id, err := t.sendChunk(chatID, replyToID, chunk)
		if err != nil {
			return 0, err
		}
		lastID = id
		replyToID = 0 // only the first chunk is a reply
	}
	return lastID, nil
}

// splitChunks breaks text into message-sized pieces, preferring newline
// boundaries when one falls in the second half of the window.
func splitChunks(text string) []string {
	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxMsgLen {
			chunks = append(chunks, text)
			break
		}
		cutAt := strings.LastIndex(text[:maxMsgLen], "\n")
		if cutAt < maxMsgLen/2 {
			cutAt = maxMsgLen
		}
		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}
	return chunks
}

// sendChunk sends one message with retry and rate-limit handling.
// Strategy: try the parse mode first, fall back to plain text on parse
// errors, back off on 429 and transient failures.
func (t *Telegram) sendChunk(chatID, replyToID int64, text string) (int64, error) {
	var lastErr error

	for attempt := 0; attempt <= maxSendRetries; attempt++ {
		msg := tgbotapi.NewMessage(chatID, text)
		if replyToID != 0 {
			msg.ReplyToMessageID = int(replyToID)
		}
		if attempt == 0 && t.parseMode != "" {
			msg.ParseMode = t.parseMode
		}
		// Subsequent attempts go out as plain text.

		sent, err := t.bot.Send(msg)
		if err == nil {
			return int64(sent.MessageID), nil
		}
		lastErr = err
		errStr := err.Error()

		if strings.Contains(errStr, "Too Many Requests") || strings.Contains(errStr, "429") {
			retryAfter := time.Duration(attempt+1) * 3 * time.Second
			t.logger.Warn("telegram rate limited, backing off",
				"retry_after", retryAfter, "attempt", attempt+1)
			time.Sleep(retryAfter)
			continue
		}

		if attempt == 0 && msg.ParseMode != "" && strings.Contains(errStr, "can't parse entities") {
			t.logger.Warn("markdown parse error, retrying as plain text", "err", err)
			continue
		}

		if attempt < maxSendRetries {
			backoff := time.Duration(attempt+1) * time.Second
			t.logger.Warn("telegram send error, retrying", "err", err, "backoff", backoff)
			time.Sleep(backoff)
			continue
		}
	}

	return 0, fmt.Errorf("telegram send failed after %d attempts: %w", maxSendRetries+1, lastErr)
}
