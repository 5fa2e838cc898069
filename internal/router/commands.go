package router

import (
	"context"
	"fmt"
	"time"

	"groupbot/internal/domain"
)

type handlerFunc func(ctx context.Context, msg domain.InboundMessage)

const slowCommandThreshold = 5 * time.Second

// instrument is the wrapping combinator applied to every command at
// registration time: it counts the invocation, times it, and turns handler
// errors into logged-and-counted non-events.
func (r *Router) instrument(name string, h func(context.Context, domain.InboundMessage) error) handlerFunc {
	return func(ctx context.Context, msg domain.InboundMessage) {
		r.metrics.Commands.Inc()
		start := time.Now()
		err := h(ctx, msg)
		if elapsed := time.Since(start); elapsed > slowCommandThreshold {
			r.logger.Warn("slow command", "command", name, "elapsed", elapsed)
		}
		if err != nil {
			r.metrics.Errors.Inc()
			r.logger.Error("command failed", "command", name, "chat_id", msg.ChatID, "err", err)
		}
	}
}

func (r *Router) registerCommands(firstCity string) {
	r.commands = make(map[string]handlerFunc)
	register := func(name string, h func(context.Context, domain.InboundMessage) error) {
		r.commands[name] = r.instrument(name, h)
	}

	register("start", r.cmdStart)
	register("version", r.cmdVersion)
	register("reset", r.cmdReset)
	register("stats", r.cmdStats)
	register("test", r.cmdTest(firstCity))

	for name, teamID := range r.teams {
		register(name, r.teamCommand(name, teamID))
	}
}

func (r *Router) cmdStart(ctx context.Context, msg domain.InboundMessage) error {
	r.replyAndTrack(ctx, msg, fmt.Sprintf("Привет, я бот версии %s", r.version))
	return nil
}

func (r *Router) cmdVersion(ctx context.Context, msg domain.InboundMessage) error {
	r.replyAndTrack(ctx, msg, fmt.Sprintf("Версия бота: %s", r.version))
	return nil
}

func (r *Router) cmdReset(ctx context.Context, msg domain.InboundMessage) error {
	if _, err := r.store.ResetEpoch(ctx, msg.ChatID); err != nil {
		return fmt.Errorf("reset epoch: %w", err)
	}
	r.replyAndTrack(ctx, msg, "Контекст для AI сброшен, мудила. Начинаем с чистого листа!")
	return nil
}

func (r *Router) cmdStats(ctx context.Context, msg domain.InboundMessage) error {
	s := r.metrics.Snapshot()
	uptime := s.Uptime.Round(time.Second)
	hours := int(uptime.Hours())
	minutes := int(uptime.Minutes()) % 60
	seconds := int(uptime.Seconds()) % 60

	text := fmt.Sprintf(
		"📊 Статистика бота:\n\n"+
			"⏱️ Время работы: %dч %dм %dс\n"+
			"💾 Использование памяти: %.2f МБ\n"+
			"💬 Обработано сообщений: %d\n"+
			"⌨️ Выполнено команд: %d\n"+
			"🌐 API-запросов: %d\n"+
			"🧠 AI-запросов: %d\n"+
			"🗄️ Операций с БД: %d\n"+
			"❌ Ошибок: %d\n\n"+
			"🤖 Версия бота: %s",
		hours, minutes, seconds, s.MemoryMB,
		s.Messages, s.Commands, s.APIRequests, s.AIRequests,
		s.DBOperations, s.Errors, r.version)

	_, err := r.transport.Reply(ctx, msg.ChatID, msg.MessageID, text)
	return err
}

// cmdTest probes the database and the external APIs and reports a ✅/❌ line
// per subsystem.
func (r *Router) cmdTest(probeCity string) func(context.Context, domain.InboundMessage) error {
	return func(ctx context.Context, msg domain.InboundMessage) error {
		dbStatus := "Работает ✅"
		if err := r.store.Healthy(ctx); err != nil {
			r.logger.Error("database health check failed", "err", err)
			dbStatus = "Ошибка ❌"
		}

		weatherStatus := "Работает ✅"
		if probeCity == "" {
			weatherStatus = "Не настроено ⚠️"
		} else if _, err := r.digest.Weather(ctx, probeCity); err != nil {
			weatherStatus = "Ошибка ❌"
		}

		currencyStatus := "Работает ✅"
		if rates, err := r.digest.Rates(ctx); err != nil || allZero(rates) {
			currencyStatus = "Ошибка ❌"
		}

		text := fmt.Sprintf(
			"🧪 Тест системы:\n\n"+
				"🤖 Бот: Онлайн ✅\n"+
				"🗃️ База данных: %s\n"+
				"🌤️ API погоды: %s\n"+
				"💱 API валют: %s\n\n"+
				"📋 Версия: %s",
			dbStatus, weatherStatus, currencyStatus, r.version)

		_, err := r.transport.Reply(ctx, msg.ChatID, msg.MessageID, text)
		return err
	}
}

func allZero(rates map[string]float64) bool {
	for _, v := range rates {
		if v != 0 {
			return false
		}
	}
	return true
}

// teamCommand builds the handler for one configured team.
func (r *Router) teamCommand(name string, teamID int64) func(context.Context, domain.InboundMessage) error {
	return func(ctx context.Context, msg domain.InboundMessage) error {
		if teamID == 0 {
			r.replyAndTrack(ctx, msg, "Команда не найдена, мудила!")
			return nil
		}

		report, err := r.sports.TeamReport(ctx, name, teamID)
		if err != nil {
			r.logger.Warn("fixtures unavailable", "team", name, "err", err)
			r.replyAndTrack(ctx, msg, "Не удалось получить данные о матчах. Пиздец какой-то!")
			return nil
		}

		r.replyAndTrack(ctx, msg, report)
		return nil
	}
}
