package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fieldbill/internal/api"
	"fieldbill/internal/config"
	"fieldbill/internal/dashboard"
	"fieldbill/internal/database"
	"fieldbill/internal/events"
	"fieldbill/internal/google"
	"fieldbill/internal/metrics"
	"fieldbill/internal/notify"
	"fieldbill/internal/service"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	// Variables already set in the environment take precedence over .env.
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("FIELDBILL_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger = newLogger(cfg)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	client := dashboard.NewClient(cfg.Dashboard.BaseURL, cfg.Dashboard.APIKey, cfg.DashboardTimeout())
	var rdb *redis.Client
	if cfg.Redis.Address != "" && cfg.Dashboard.CacheTTLSeconds > 0 {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		client.UseRedisCache(rdb, cfg.CacheTTL())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewEventBus(logger)

	rules, err := config.LoadRules(cfg.Rules.Path)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Rules.Path).Msg("load rules error")
	}
	policy, err := rules.Policy()
	if err != nil {
		logger.Fatal().Err(err).Msg("rules policy error")
	}
	previews, err := service.NewPreviewService(client, db, bus, policy, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create preview service error")
	}

	err = config.WatchRules(ctx, cfg.Rules.Path, cfg.RulesReloadInterval(), logger, func(r *config.RulesConfig) {
		p, err := r.Policy()
		if err != nil {
			logger.Error().Err(err).Msg("rules policy error")
			return
		}
		if err := previews.SetPolicy(p); err != nil {
			logger.Error().Err(err).Msg("apply rules error")
		}
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("watch rules error")
	}

	var docs api.DocumentSender
	if cfg.Telegram.Enabled {
		bot, err := notify.NewBotAPI(cfg.Telegram.BotToken, cfg.Telegram.Debug)
		if err != nil {
			logger.Fatal().Err(err).Msg("create telegram bot error")
		}
		notifier := notify.New(bot, cfg.Telegram.ManagerChats, notify.DefaultRetryConfig(), logger)
		bus.Subscribe(events.CoverageGapsDetected, notifier.HandleCoverageGaps)
		docs = notifier
		logger.Info().Int("chats", len(cfg.Telegram.ManagerChats)).Msg("telegram notifications enabled")
	}

	if cfg.Google.Enabled {
		sheets, err := google.NewSheetsService(ctx, cfg.Google.CredentialsFile, cfg.Google.SpreadsheetID, cfg.Google.SheetName, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("create sheets service error")
		}
		bus.Subscribe(events.PreviewGenerated, sheets.HandlePreviewGenerated)
		logger.Info().Str("spreadsheet", cfg.Google.SpreadsheetID).Msg("google sheets export enabled")
	}

	backup := database.NewBackupService(db, cfg.Database.Backup, &logger)
	go backup.Start(ctx)

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, client, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	server := api.NewHTTPServer(api.Options{
		Port:               cfg.Server.Port,
		APIKeys:            cfg.Server.APIKeys,
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
		RateLimitBurst:     cfg.Server.RateLimitBurst,
		MaxJobsPerPreview:  cfg.Server.MaxJobsPerPreview,
	}, previews, docs, logger)

	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			logger.Error().Err(err).Msg("api shutdown error")
		}
	}()

	logger.Info().Int("port", cfg.Server.Port).Msg("fieldbill started")
	if err := server.Start(); err != nil {
		logger.Error().Err(err).Msg("api server error")
		stop()
	}
	logger.Info().Msg("fieldbill stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Log.Format == "json" {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Str("service", "fieldbill").Logger()
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, client *dashboard.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		if err := client.HealthCheck(ctxPing); err != nil {
			http.Error(w, "dashboard not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
