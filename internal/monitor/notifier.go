// Package monitor watches the bot's own health and tells the admin when
// something is wrong.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"groupbot/internal/domain"
	"groupbot/internal/metrics"
)

// Notifier sends operational messages to the admin chat. When disabled or
// without an admin chat it degrades to logging only.
type Notifier struct {
	transport   domain.Transport
	store       domain.ChatStore
	metrics     *metrics.Collector
	logger      *slog.Logger
	adminChatID int64
	enabled     bool
}

func NewNotifier(transport domain.Transport, store domain.ChatStore,
	collector *metrics.Collector, logger *slog.Logger, adminChatID int64, enabled bool) *Notifier {
	return &Notifier{
		transport:   transport,
		store:       store,
		metrics:     collector,
		logger:      logger,
		adminChatID: adminChatID,
		enabled:     enabled && adminChatID != 0,
	}
}

// NotifyStartup posts the startup banner to the admin chat.
func (n *Notifier) NotifyStartup(ctx context.Context, version string) {
	n.notify(ctx, fmt.Sprintf("🚀 Бот запущен\n\n🤖 Версия: %s\n🕒 %s",
		version, time.Now().Format("2006-01-02 15:04:05")))
}

// NotifyShutdown posts the shutdown notice with the final uptime.
func (n *Notifier) NotifyShutdown(ctx context.Context) {
	s := n.metrics.Snapshot()
	n.notify(ctx, fmt.Sprintf("🛑 Бот остановлен\n\n⏱️ Время работы: %s",
		s.Uptime.Round(time.Second)))
}

// HealthCheck is the periodic job: it probes the database and logs memory
// usage. A failed probe is counted and escalated to the admin chat.
func (n *Notifier) HealthCheck(ctx context.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	memMB := float64(m.Alloc) / 1024 / 1024

	if err := n.store.Healthy(ctx); err != nil {
		n.metrics.Errors.Inc()
		n.logger.Error("health check failed", "err", err, "memory_mb", memMB)
		n.notify(ctx, fmt.Sprintf("⚠️ Проблема со здоровьем бота\n\n🗃️ База данных: %v", err))
		return
	}

	n.logger.Info("health check ok",
		"memory_mb", fmt.Sprintf("%.2f", memMB),
		"goroutines", runtime.NumGoroutine(),
		"uptime", n.metrics.Snapshot().Uptime.Round(time.Second))
}

func (n *Notifier) notify(ctx context.Context, text string) {
	if !n.enabled {
		return
	}
	if _, err := n.transport.SendText(ctx, n.adminChatID, text); err != nil {
		n.logger.Warn("cannot notify admin", "err", err)
	}
}
