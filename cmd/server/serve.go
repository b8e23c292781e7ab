package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/lojf/weatherbot/internal/agent"
	"github.com/lojf/weatherbot/internal/bot"
	"github.com/lojf/weatherbot/internal/config"
	"github.com/lojf/weatherbot/internal/db"
	"github.com/lojf/weatherbot/internal/logutil"
	"github.com/lojf/weatherbot/internal/tools"
	"github.com/lojf/weatherbot/internal/web"
)

func serve(ctx context.Context, v *viper.Viper, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logutil.New(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.Logger
	slog.SetDefault(log)

	if cfg.Reload && cfg.ConfigFile != "" {
		watchConfig(v, logger)
	}

	reg := tools.NewRegistry(
		tools.NewWeatherTool(cfg.OpenWeatherAPIKey, log).WithBaseURL(cfg.OpenWeatherBaseURL),
	)
	runner := agent.NewOpenAIRunner(agent.WeatherAgent(reg), agent.OpenAIConfig{
		APIKey:   cfg.OpenAIAPIKey,
		BaseURL:  cfg.OpenAIBaseURL,
		Model:    cfg.OpenAIModel,
		MaxTurns: cfg.AgentMaxTurns,
	}, log)

	client := bot.NewClient(cfg.TelegramBotToken, log).WithBaseURL(cfg.TelegramAPIBaseURL)
	if !client.HasToken() {
		log.Warn("telegram_token_missing", "hint", "replies will not be delivered until TELEGRAM_BOT_TOKEN is set")
	}
	if cfg.TelegramSecretToken == "" {
		log.Warn("webhook_secret_missing", "hint", "TELEGRAM_SECRET_TOKEN unset; webhook requests are not authenticated")
	}

	var journal bot.Journal
	if cfg.DBPath != "" {
		j, err := db.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer j.Close()
		journal = j
		j.StartPruneLoop(ctx, time.Hour, cfg.JournalRetention, log)
		log.Info("journal_ready", "path", cfg.DBPath, "retention", cfg.JournalRetention.String())
	}

	dispatcher := bot.NewDispatcher(runner, client, journal, log)
	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: web.Router(web.Deps{
			Updates:       dispatcher,
			WebhookSecret: cfg.TelegramSecretToken,
			BotUsername:   cfg.TelegramBotUsername,
			Logger:        log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server_started", "addr", srv.Addr, "model", cfg.OpenAIModel)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen %s: %w", srv.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("server_stopping")
	shutCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// watchConfig re-reads the config file on change and applies LOG_LEVEL.
// Everything else needs a restart.
func watchConfig(v *viper.Viper, logger *logutil.Logger) {
	v.OnConfigChange(func(e fsnotify.Event) {
		level, err := logutil.ParseLevel(v.GetString("log_level"))
		if err != nil {
			logger.Warn("config_reload_invalid", "file", e.Name, "error", err.Error())
			return
		}
		logger.Level.Set(level)
		logger.Info("config_reloaded", "file", e.Name, "log_level", level.String())
	})
	v.WatchConfig()
}
