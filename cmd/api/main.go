package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"intake_backend/internal/email"
	"intake_backend/internal/events"
	"intake_backend/internal/faq"
	apphttp "intake_backend/internal/http"
	"intake_backend/internal/http/router"
	"intake_backend/internal/intake"
	"intake_backend/internal/leads/repository"
	"intake_backend/internal/notification"
	"intake_backend/internal/sessions"
	"intake_backend/internal/studies"
	"intake_backend/platform/config"
	"intake_backend/platform/db"
	"intake_backend/platform/logger"
	"intake_backend/platform/qdrant"
	"intake_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// geminiEmbeddingSize is the vector width of the text-embedding-004 model.
const geminiEmbeddingSize = 768

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	sessionStore := initSessionStore(ctx, cfg, pool, log)

	sender := initEmailSender(cfg, log)

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	// Notification module subscribes to domain events (not HTTP-facing)
	notificationModule := notification.NewModule(sender, cfg.GetHandoffNotifyAddress(), log)
	notificationModule.RegisterHandlers(eventBus)

	leadStore := repository.New(pool)
	loader := studies.NewLoader(cfg.GetStudiesDir())

	intakeModule := intake.NewModule(leadStore, sessionStore, loader, cfg.GetDefaultStudyID(), val, log)
	intakeModule.Service().SetEventBus(eventBus)

	if cfg.IsFAQEnabled() {
		faqSvc, err := initFAQ(ctx, cfg, log)
		if err != nil {
			log.Error("failed to initialize FAQ service", "error", err)
			panic("failed to initialize FAQ service: " + err.Error())
		}
		intakeModule.Service().SetFAQ(faqSvc)
		log.Info("FAQ answering enabled", "model", cfg.GetGeminiModel(), "collection", cfg.GetQdrantCollection())
	} else {
		log.Warn("FAQ answering disabled; GEMINI_API_KEY or QDRANT_URL not configured")
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			intakeModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// initSessionStore prefers Redis with a sliding TTL and falls back to the
// sessions table when REDIS_URL is not set.
func initSessionStore(ctx context.Context, cfg config.SessionConfig, pool *pgxpool.Pool, log *logger.Logger) sessions.Store {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; storing sessions in Postgres")
		return sessions.NewPostgresStore(pool)
	}

	var store sessions.Store
	if err := withRetry(ctx, log, "redis connection", 5, 2*time.Second, func() error {
		client, err := sessions.NewRedisClient(ctx, cfg.GetRedisURL())
		if err != nil {
			return err
		}
		store = sessions.NewRedisStore(client, cfg.GetSessionTTL())
		return nil
	}); err != nil {
		log.Error("failed to connect to redis, storing sessions in Postgres", "error", err)
		return sessions.NewPostgresStore(pool)
	}

	log.Info("redis session store initialized", "ttl", cfg.GetSessionTTL())
	return store
}

func initEmailSender(cfg config.EmailConfig, log *logger.Logger) email.Sender {
	if !cfg.GetEmailEnabled() {
		log.Warn("email disabled; handoff alerts will not be sent")
		return email.NoopSender{}
	}
	return email.NewSMTPSender(
		cfg.GetSMTPHost(),
		cfg.GetSMTPPort(),
		cfg.GetSMTPUsername(),
		cfg.GetSMTPPassword(),
		cfg.GetEmailFromAddress(),
	)
}

func initFAQ(ctx context.Context, cfg config.FAQConfig, log *logger.Logger) (*faq.Service, error) {
	gemini, err := faq.NewGemini(ctx, cfg.GetGeminiAPIKey(), cfg.GetGeminiModel(), cfg.GetGeminiEmbedModel())
	if err != nil {
		return nil, err
	}

	vectors := qdrant.NewClient(qdrant.Config{
		BaseURL:    cfg.GetQdrantURL(),
		APIKey:     cfg.GetQdrantAPIKey(),
		Collection: cfg.GetQdrantCollection(),
	})
	if err := vectors.EnsureCollection(ctx, geminiEmbeddingSize); err != nil {
		return nil, err
	}

	return faq.NewService(gemini, vectors, gemini, cfg.GetFAQTopK(), log), nil
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
