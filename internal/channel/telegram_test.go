package channel

import (
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestToInbound(t *testing.T) {
	update := tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID: 10,
			Date:      1756368000,
			Text:      "привет",
			From:      &tgbotapi.User{ID: 42},
			Chat:      &tgbotapi.Chat{ID: -1001},
		},
	}

	msg, ok := toInbound(update)
	if !ok {
		t.Fatal("expected a message")
	}
	if msg.ChatID != -1001 || msg.UserID != 42 || msg.MessageID != 10 || msg.Text != "привет" {
		t.Errorf("unexpected conversion: %+v", msg)
	}
	if msg.ReplyTo != nil {
		t.Errorf("no reply expected: %+v", msg.ReplyTo)
	}
}

func TestToInbound_ReplyRef(t *testing.T) {
	update := tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID: 11,
			Text:      "а подробнее?",
			From:      &tgbotapi.User{ID: 42},
			Chat:      &tgbotapi.Chat{ID: -1001},
			ReplyToMessage: &tgbotapi.Message{
				MessageID: 9,
				Text:      "краткий ответ",
				From:      &tgbotapi.User{ID: 777},
			},
		},
	}

	msg, ok := toInbound(update)
	if !ok {
		t.Fatal("expected a message")
	}
	if msg.ReplyTo == nil {
		t.Fatal("expected a reply ref")
	}
	if msg.ReplyTo.MessageID != 9 || msg.ReplyTo.UserID != 777 || msg.ReplyTo.Text != "краткий ответ" {
		t.Errorf("unexpected reply ref: %+v", msg.ReplyTo)
	}
}

func TestToInbound_SkipsNonMessages(t *testing.T) {
	if _, ok := toInbound(tgbotapi.Update{}); ok {
		t.Error("update without message must be skipped")
	}
	if _, ok := toInbound(tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1}}}); ok {
		t.Error("message without sender must be skipped")
	}
}

func TestSplitChunks(t *testing.T) {
	short := "короткое сообщение"
	if got := splitChunks(short); len(got) != 1 || got[0] != short {
		t.Errorf("short text must stay one chunk: %v", got)
	}

	long := strings.Repeat("line of text here\n", 600) // well over two chunks
	chunks := splitChunks(long)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	var total int
	for i, c := range chunks {
		if len(c) > maxMsgLen {
			t.Errorf("chunk %d over limit: %d bytes", i, len(c))
		}
		// Newline boundaries are preferred, so non-final chunks end mid-line
		// only when no newline fell in the window.
		if i < len(chunks)-1 && !strings.HasSuffix(c, "here") {
			t.Errorf("chunk %d not cut at a line boundary: %q", i, c[len(c)-20:])
		}
		total += len(c)
	}
	if total != len(long) {
		t.Errorf("chunks must cover the whole text: %d != %d", total, len(long))
	}

	noNewlines := strings.Repeat("x", maxMsgLen+100)
	chunks = splitChunks(noNewlines)
	if len(chunks) != 2 || len(chunks[0]) != maxMsgLen {
		t.Errorf("text without newlines must hard-cut at the limit: %d chunks", len(chunks))
	}
}
