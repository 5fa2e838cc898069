package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"groupbot/internal/ai"
	"groupbot/internal/channel"
	"groupbot/internal/config"
	"groupbot/internal/digest"
	"groupbot/internal/gateway"
	"groupbot/internal/history"
	"groupbot/internal/metrics"
	"groupbot/internal/monitor"
	"groupbot/internal/router"
	"groupbot/internal/schedule"
	"groupbot/internal/sports"

	"github.com/spf13/cobra"
)

var (
	version    = "3.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "groupbot",
		Short: "Groupbot: Telegram group chat bot with AI replies and a daily digest",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.groupbot/config.json)")

	root.AddCommand(runCmd())
	root.AddCommand(versionCmd())
	root.AddCommand(initCmd())
	root.AddCommand(backupCmd())
	root.AddCommand(restoreCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the bot version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists: %s", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("config initialized", "path", cfgPath)
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bot (polling + scheduler). Press Ctrl+C to stop.",
		RunE:  runBot,
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func setupLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

func runBot(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = setupLogger(cfg.General.LogLevel)

	loc, err := config.LoadLocation(cfg.General.Timezone)
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector()
	gw := gateway.New(logger, collector)

	store, err := history.NewStore(cfg.History.DBPath, logger, collector)
	if err != nil {
		return fmt.Errorf("history store: %w", err)
	}
	defer store.Close()

	responder := ai.NewResponder(ai.Config{
		APIKey:       cfg.AI.APIKey,
		APIBase:      cfg.AI.APIBase,
		Model:        cfg.AI.Model,
		MaxTokens:    cfg.AI.MaxTokens,
		Temperature:  cfg.AI.Temperature,
		SystemPrompt: cfg.AI.SystemPrompt,
	}, gw, logger)

	sportsClient := sports.NewClient(cfg.Sports.APIKey, cfg.Sports.APIBase, gw, logger)

	composer := digest.NewComposer(digest.Config{
		WeatherKey:    cfg.Weather.APIKey,
		WeatherBase:   cfg.Weather.APIBase,
		CurrencyURL:   cfg.Currency.URL,
		CurrencyCodes: cfg.Currency.Codes,
		CryptoBase:    cfg.Crypto.APIBase,
		Coins:         cfg.Crypto.Coins,
		Cities:        cfg.Digest.Cities,
	}, gw, logger)

	telegram, err := channel.NewTelegram(cfg.Telegram.Token, logger)
	if err != nil {
		return err
	}

	triggerRules, err := config.LoadTriggers(cfg.Triggers, logger)
	if err != nil {
		return fmt.Errorf("triggers: %w", err)
	}

	firstCity := ""
	if len(cfg.Digest.Cities) > 0 {
		firstCity = cfg.Digest.Cities[0].Query
	}

	rt := router.New(router.Config{
		Version:       version,
		TrackedChatID: cfg.History.TrackedChatID,
		HistoryLimit:  cfg.History.Limit,
		TargetUserID:  cfg.Telegram.TargetUserID,
		Reaction:      cfg.Telegram.TargetReaction,
		Teams:         cfg.Sports.Teams,
		Triggers:      triggerRules,
		FirstCity:     firstCity,
	}, telegram, store, responder, sportsClient, composer, collector, logger)

	notifier := monitor.NewNotifier(telegram, store, collector, logger,
		cfg.Monitor.AdminChatID, cfg.Monitor.Enabled)

	sched := schedule.New(loc, collector, logger)
	if err := registerJobs(sched, cfg, composer, telegram, store, notifier, cfgPath); err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		go func() {
			logger.Info("metrics endpoint listening", "addr", cfg.Metrics.Addr)
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				logger.Error("metrics server error", "err", err)
			}
		}()
	}

	go sched.Start(ctx)

	go func() {
		if err := telegram.Run(ctx, rt.HandleMessage); err != nil {
			logger.Error("telegram polling error", "err", err)
			stop()
		}
	}()

	notifier.NotifyStartup(ctx, version)
	logger.Info("bot started", "version", version, "tracked_chat", cfg.History.TrackedChatID)

	<-ctx.Done()
	logger.Info("shutting down...")

	// Signal context is done; use a fresh one for the farewell and the drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sched.Stop()
	telegram.Drain(10 * time.Second)
	notifier.NotifyShutdown(shutdownCtx)

	logger.Info("shutdown complete")
	return nil
}

// registerJobs wires the scheduled work: the morning digest, the nightly
// history purge, the periodic health check, and the nightly backup.
func registerJobs(sched *schedule.Scheduler, cfg *config.Config, composer *digest.Composer,
	telegram *channel.Telegram, store *history.Store, notifier *monitor.Notifier, cfgPath string) error {

	if cfg.Digest.Enabled && cfg.Digest.ChatID != 0 {
		err := sched.Add("digest", cfg.Digest.CronExpr, func(ctx context.Context) {
			text := composer.Compose(ctx)
			if _, err := telegram.SendText(ctx, cfg.Digest.ChatID, text); err != nil {
				logger.Error("cannot send digest", "err", err)
			}
		})
		if err != nil {
			return err
		}
	}

	err := sched.Add("purge", "0 0 * * *", func(ctx context.Context) {
		deleted, err := store.PurgeOlderThan(ctx, cfg.History.RetentionDays)
		if err != nil {
			logger.Error("history purge failed", "err", err)
			return
		}
		logger.Info("history purged", "deleted", deleted, "retention_days", cfg.History.RetentionDays)
	})
	if err != nil {
		return err
	}

	if err := sched.Add("health", "*/30 * * * *", notifier.HealthCheck); err != nil {
		return err
	}

	if cfg.Backup.Enabled {
		err := sched.Add("backup", cfg.Backup.CronExpr, func(ctx context.Context) {
			runScheduledBackup(cfg, cfgPath)
		})
		if err != nil {
			return err
		}
	}

	return nil
}
