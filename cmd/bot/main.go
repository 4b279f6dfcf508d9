package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/diamondheist/diamondbackend/internal/bot"
	"github.com/diamondheist/diamondbackend/internal/config"
	"github.com/diamondheist/diamondbackend/internal/pkg/db"
	"github.com/diamondheist/diamondbackend/internal/pkg/lock"
	"github.com/diamondheist/diamondbackend/internal/pkg/urlsign"
	"github.com/diamondheist/diamondbackend/internal/repository"
	"github.com/diamondheist/diamondbackend/internal/server"
	"github.com/diamondheist/diamondbackend/internal/service"
)

func main() {
	// Load .env file if it exists (for local development)
	_ = godotenv.Load()

	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Set log level from environment
	logLevel := os.Getenv("LOG_LEVEL")
	switch logLevel {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().Msg("Starting DiamondHeist bot backend")

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Redis only backs webhook dedupe; run without it rather than refuse
	// to start.
	var deduper server.Deduper
	var redisCheck func(ctx context.Context) error
	rdb, err := db.NewRedis(ctx, &cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, webhook dedupe disabled")
	} else {
		defer rdb.Close()
		deduper = server.NewRedisDeduper(rdb, cfg.Webhook.DedupeTTL)
		redisCheck = func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(dbPool.Pool)
	blobRepo := repository.NewBlobRepository(dbPool.Pool)
	ledgerRepo := repository.NewLedgerRepository(dbPool.Pool)

	signer := urlsign.New([]byte(cfg.Storage.SigningSecret), cfg.Storage.PublicBaseURL)

	// The telebot client is created before the services so the media
	// mirror can reuse it for profile photo fetches.
	client, err := bot.NewClient(&cfg.Bot)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Telegram client")
	}

	mediaService := service.NewMediaService(
		client,
		blobRepo,
		signer,
		cfg.Storage.Bucket,
		cfg.Storage.SignedURLTTL,
		cfg.Media.MirrorTimeout,
	)

	userLocks := lock.NewUserLock()
	provisioningService := service.NewProvisioningService(userRepo, ledgerRepo, mediaService, userLocks)

	telegramBot, err := bot.New(&bot.Dependencies{
		Client:       client,
		Config:       cfg,
		Provisioning: provisioningService,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize bot")
	}

	if err := telegramBot.RegisterWebhook(); err != nil {
		log.Fatal().Err(err).Msg("Failed to register webhook")
	}

	srv := server.New(&server.Dependencies{
		Config:     cfg,
		Dispatcher: telegramBot,
		Deduper:    deduper,
		Blobs:      blobRepo,
		Signer:     signer,
		DBCheck:    dbPool.HealthCheck,
		RedisCheck: redisCheck,
		BotReady: func() bool {
			return telegramBot.Me() != nil
		},
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Shutdown complete")
}

// runMigrations creates the database schema if it doesn't exist
func runMigrations(ctx context.Context, pool *db.Pool) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			doc JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_referred_by ON users ((doc->>'referredBy'))`,
		`CREATE TABLE IF NOT EXISTS blobs (
			key TEXT PRIMARY KEY,
			content_type TEXT NOT NULL,
			data BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS referral_credits (
			id BIGSERIAL PRIMARY KEY,
			referrer_id TEXT NOT NULL,
			referred_id TEXT NOT NULL,
			amount BIGINT NOT NULL,
			status VARCHAR(20) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_referral_credits_referrer ON referral_credits (referrer_id, created_at DESC)`,
	}

	for _, migration := range migrations {
		if _, err := pool.Exec(ctx, migration); err != nil {
			return err
		}
	}

	log.Info().Msg("Database migrations completed")
	return nil
}
