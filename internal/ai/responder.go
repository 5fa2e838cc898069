// Package ai turns conversation context plus a query into a model reply via
// an OpenAI-compatible chat completions endpoint.
package ai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"groupbot/internal/domain"
	"groupbot/internal/gateway"
)

// modelAttempts is the bounded retry budget for model calls. Unlike the
// generic gateway policy there is no deliberate delay between attempts; the
// per-call timeout is the only pacing.
const modelAttempts = 3

// Responder implements domain.Responder against a DeepSeek/OpenAI-style API.
type Responder struct {
	apiKey       string
	apiBase      string
	model        string
	maxTokens    int
	temperature  float64
	systemPrompt string

	gw     *gateway.Gateway
	logger *slog.Logger
}

type Config struct {
	APIKey       string
	APIBase      string
	Model        string
	MaxTokens    int
	Temperature  float64
	SystemPrompt string
}

func NewResponder(cfg Config, gw *gateway.Gateway, logger *slog.Logger) *Responder {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.deepseek.com"
	}
	if cfg.Model == "" {
		cfg.Model = "deepseek-chat"
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt()
	}
	return &Responder{
		apiKey:       cfg.APIKey,
		apiBase:      cfg.APIBase,
		model:        cfg.Model,
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
		systemPrompt: cfg.SystemPrompt,
		gw:           gw,
		logger:       logger,
	}
}

func defaultSystemPrompt() string {
	return fmt.Sprintf(
		"Ты ироничный и надменный помощник в Telegram-группе. Сегодня %s. "+
			"Отвечай коротко, с сарказмом, но по делу.",
		time.Now().Format("2006-01-02"))
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Respond builds the prompt (system instruction, history verbatim, the query
// as the final user turn) and calls the model. It always returns a string:
// on exhausted retries the failure reason is embedded in a user-visible
// reply, so the router never needs a separate error path.
func (r *Responder) Respond(ctx context.Context, history []domain.HistoryEntry, query string) string {
	messages := make([]chatMessage, 0, len(history)+2)
	messages = append(messages, chatMessage{Role: domain.RoleSystem, Content: r.systemPrompt})
	for _, h := range history {
		messages = append(messages, chatMessage{Role: h.Role, Content: h.Content})
	}
	messages = append(messages, chatMessage{Role: domain.RoleUser, Content: query})

	r.logger.Info("ai request", "query_len", len(query), "history", len(history))

	var resp chatResponse
	err := r.gw.JSON(ctx, gateway.Request{
		Method: http.MethodPost,
		URL:    r.apiBase + "/chat/completions",
		Header: http.Header{"Authorization": {"Bearer " + r.apiKey}},
		Body: chatRequest{
			Model:       r.model,
			Messages:    messages,
			MaxTokens:   r.maxTokens,
			Temperature: r.temperature,
		},
		Retry: &gateway.RetryPolicy{Attempts: modelAttempts, BaseDelay: 0},
	}, &resp)
	if err != nil {
		r.logger.Error("ai request failed", "err", err)
		return fmt.Sprintf("Ошибка, ёбана: %v", err)
	}

	if len(resp.Choices) == 0 {
		return "Ошибка получения ответа от AI"
	}
	return resp.Choices[0].Message.Content
}
