// Package router classifies every incoming message into exactly one handling
// path (command, template trigger, AI query, or ignore) and orchestrates the
// store, the responder, and the transport. The router itself is stateless;
// all state lives in the conversation store.
package router

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"

	"groupbot/internal/config"
	"groupbot/internal/digest"
	"groupbot/internal/domain"
	"groupbot/internal/metrics"
	"groupbot/internal/sports"
)

// emptyQueryReply is the rebuke for a mention with nothing after it.
const emptyQueryReply = "И хуле ты мне пишешь пустоту, петушара?"

type Router struct {
	transport domain.Transport
	store     domain.ChatStore
	responder domain.Responder
	sports    *sports.Client
	digest    *digest.Composer
	metrics   *metrics.Collector
	logger    *slog.Logger

	version       string
	trackedChatID int64
	historyLimit  int
	targetUserID  int64
	reaction      string
	teams         map[string]int64
	triggers      *triggerTable
	commands      map[string]handlerFunc
}

type Config struct {
	Version       string
	TrackedChatID int64
	HistoryLimit  int
	TargetUserID  int64
	Reaction      string
	Teams         map[string]int64
	Triggers      []config.TriggerRule
	FirstCity     string // probe city for /test
}

func New(cfg Config, transport domain.Transport, store domain.ChatStore,
	responder domain.Responder, sportsClient *sports.Client, composer *digest.Composer,
	collector *metrics.Collector, logger *slog.Logger) *Router {

	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 30
	}
	r := &Router{
		transport:     transport,
		store:         store,
		responder:     responder,
		sports:        sportsClient,
		digest:        composer,
		metrics:       collector,
		logger:        logger,
		version:       cfg.Version,
		trackedChatID: cfg.TrackedChatID,
		historyLimit:  cfg.HistoryLimit,
		targetUserID:  cfg.TargetUserID,
		reaction:      cfg.Reaction,
		teams:         cfg.Teams,
		triggers:      newTriggerTable(cfg.Triggers, rand.Float64, rand.IntN),
	}
	r.registerCommands(cfg.FirstCity)
	return r
}

// HandleMessage is the per-message state machine. Nothing here may crash the
// dispatch loop: every fault is logged with the message context, counted,
// and swallowed; at most the user gets no reply.
func (r *Router) HandleMessage(ctx context.Context, msg domain.InboundMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			r.metrics.Errors.Inc()
			r.logger.Error("panic while handling message",
				"chat_id", msg.ChatID, "user_id", msg.UserID,
				"text", truncate(msg.Text, 50), "panic", rec)
		}
	}()

	// 1. Nothing to do without text or a sender.
	if msg.Text == "" || msg.UserID == 0 {
		return
	}

	r.metrics.Messages.Inc()
	r.logger.Info("message received",
		"chat_id", msg.ChatID, "user_id", msg.UserID, "text", truncate(msg.Text, 50))

	// 2. Registered command token: dispatch and stop.
	if name, ok := r.commandName(msg.Text); ok {
		if handler, registered := r.commands[name]; registered {
			handler(ctx, msg)
			return
		}
	}

	// 3. Persist the inbound message when this is the tracked chat.
	if msg.ChatID == r.trackedChatID {
		r.persist(ctx, msg.ChatID, msg.UserID, msg.MessageID, domain.RoleUser, msg.Text)
	}

	// 4. Reaction side effect, independent of the routing outcome.
	r.applyReaction(ctx, msg)

	// 5. Template triggers short-circuit AI routing.
	if reply, ok := r.triggers.match(msg.Text); ok {
		r.replyAndTrack(ctx, msg, reply)
		return
	}

	// 6–7. AI addressing; anything else is silently ignored.
	r.handleAI(ctx, msg)
}

// commandName extracts a leading "/command" or "/command@botname" token.
// Commands addressed to a different bot are not ours.
func (r *Router) commandName(text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", false
	}
	name := strings.TrimPrefix(fields[0], "/")
	if at := strings.Index(name, "@"); at >= 0 {
		if !strings.EqualFold(name[at+1:], r.transport.BotUsername()) {
			return "", false
		}
		name = name[:at]
	}
	return strings.ToLower(name), name != ""
}

func (r *Router) applyReaction(ctx context.Context, msg domain.InboundMessage) {
	if r.targetUserID == 0 || msg.UserID != r.targetUserID || r.reaction == "" {
		return
	}
	if err := r.transport.SetReaction(ctx, msg.ChatID, msg.MessageID, r.reaction); err != nil {
		r.logger.Warn("cannot set reaction", "chat_id", msg.ChatID, "err", err)
	}
}

// handleAI runs the AI-addressing check and the model round trip. Only the
// tracked chat is AI-routed.
func (r *Router) handleAI(ctx context.Context, msg domain.InboundMessage) {
	if msg.ChatID != r.trackedChatID {
		return
	}

	mention := "@" + r.transport.BotUsername()
	isTagged := containsFold(msg.Text, mention)
	isReplyToBot := msg.ReplyTo != nil && msg.ReplyTo.UserID == r.transport.BotID()
	if !isTagged && !isReplyToBot {
		return
	}

	query := msg.Text
	if isTagged {
		query = stripFold(query, mention)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		r.replyAndTrack(ctx, msg, emptyQueryReply)
		return
	}

	history, err := r.store.ActiveHistory(ctx, msg.ChatID, r.historyLimit)
	if err != nil {
		// Degrade to an empty context rather than dropping the reply.
		r.logger.Warn("cannot load chat history", "chat_id", msg.ChatID, "err", err)
		history = nil
	}
	if isReplyToBot && msg.ReplyTo.Text != "" {
		history = append(history, domain.HistoryEntry{
			Role:    domain.RoleAssistant,
			Content: msg.ReplyTo.Text,
		})
	}

	r.metrics.AIRequests.Inc()
	response := r.responder.Respond(ctx, history, query)
	r.replyAndTrack(ctx, msg, response)
}

// replyAndTrack replies to the message and persists the assistant turn when
// the chat is tracked.
func (r *Router) replyAndTrack(ctx context.Context, msg domain.InboundMessage, text string) {
	sentID, err := r.transport.Reply(ctx, msg.ChatID, msg.MessageID, text)
	if err != nil {
		r.metrics.Errors.Inc()
		r.logger.Error("cannot send reply", "chat_id", msg.ChatID, "err", err)
		return
	}
	if msg.ChatID == r.trackedChatID {
		r.persist(ctx, msg.ChatID, r.transport.BotID(), sentID, domain.RoleAssistant, text)
	}
}

// persist is the best-effort history write: a lost write never blocks
// message delivery.
func (r *Router) persist(ctx context.Context, chatID, userID, messageID int64, role, content string) {
	if err := r.store.Append(ctx, chatID, userID, messageID, role, content); err != nil {
		r.logger.Error("cannot store message", "chat_id", chatID, "role", role, "err", err)
	}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// stripFold removes every occurrence of token from s, matching
// case-insensitively while preserving the case of the remaining text.
func stripFold(s, token string) string {
	lower := strings.ToLower(s)
	token = strings.ToLower(token)
	var b strings.Builder
	for {
		i := strings.Index(lower, token)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		s = s[i+len(token):]
		lower = lower[i+len(token):]
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
