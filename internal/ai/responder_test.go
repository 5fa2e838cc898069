package ai

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"groupbot/internal/domain"
	"groupbot/internal/gateway"
	"groupbot/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newTestResponder(apiBase string) *Responder {
	gw := gateway.New(testLogger(), metrics.NewCollector())
	return NewResponder(Config{
		APIKey:      "test-key",
		APIBase:     apiBase,
		Model:       "deepseek-chat",
		MaxTokens:   999,
		Temperature: 1.5,
	}, gw, testLogger())
}

func TestResponder_Respond(t *testing.T) {
	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "ответ модели"}},
			},
		})
	}))
	defer srv.Close()

	r := newTestResponder(srv.URL)
	history := []domain.HistoryEntry{
		{Role: domain.RoleUser, Content: "раньше"},
		{Role: domain.RoleAssistant, Content: "было"},
	}

	got := r.Respond(context.Background(), history, "что по курсу?")
	if got != "ответ модели" {
		t.Fatalf("unexpected reply: %q", got)
	}

	// system + 2 history + query
	if len(captured.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(captured.Messages))
	}
	if captured.Messages[0].Role != domain.RoleSystem {
		t.Errorf("first message must be the system prompt, got %s", captured.Messages[0].Role)
	}
	if last := captured.Messages[3]; last.Role != domain.RoleUser || last.Content != "что по курсу?" {
		t.Errorf("query must be the final user turn, got %+v", last)
	}
	if captured.Model != "deepseek-chat" || captured.MaxTokens != 999 || captured.Temperature != 1.5 {
		t.Errorf("model parameters not forwarded: %+v", captured)
	}
}

func TestResponder_ErrorEmbeddedInReply(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "model down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := newTestResponder(srv.URL)
	got := r.Respond(context.Background(), nil, "вопрос")

	if !strings.HasPrefix(got, "Ошибка") {
		t.Errorf("failure must surface as a user-visible reply, got %q", got)
	}
	if hits != modelAttempts {
		t.Errorf("expected %d attempts, got %d", modelAttempts, hits)
	}
}

func TestResponder_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	r := newTestResponder(srv.URL)
	got := r.Respond(context.Background(), nil, "вопрос")
	if got != "Ошибка получения ответа от AI" {
		t.Errorf("unexpected reply for empty choices: %q", got)
	}
}
