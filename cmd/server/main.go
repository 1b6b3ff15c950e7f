package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizlive-backend/internal/config"
	"github.com/stemsi/quizlive-backend/internal/database"
	"github.com/stemsi/quizlive-backend/internal/gateway"
	"github.com/stemsi/quizlive-backend/internal/handler"
	"github.com/stemsi/quizlive-backend/internal/logger"
	"github.com/stemsi/quizlive-backend/internal/relay"
	"github.com/stemsi/quizlive-backend/internal/repository"
	"github.com/stemsi/quizlive-backend/internal/router"
	"github.com/stemsi/quizlive-backend/internal/service"
	"github.com/stemsi/quizlive-backend/internal/validator"
	"github.com/stemsi/quizlive-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Bool("persistence", cfg.PersistenceEnabled).
		Msg("Starting QuizLive Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	awardPolicy, err := relay.ParseAwardPolicy(cfg.AwardPolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid RELAY_AWARD_POLICY")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Optional Persistence ──────────────────────────────────────────
	var (
		pool     *pgxpool.Pool
		rdb      *redis.Client
		recorder relay.Recorder = relay.NopRecorder{}
		audit    *service.AuditService
		persist  *worker.PersistWorker
		quizSvc  *service.QuizService
	)
	if cfg.PersistenceEnabled {
		pool, err = database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()

		rdb, err = database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()

		quizSvc = service.NewQuizService(repository.NewQuizRepository(pool))
		audit = service.NewAuditService(rdb, cfg.AuditBuffer, log)
		persist = worker.NewPersistWorker(repository.NewSessionRepository(pool), rdb, log)
		recorder = audit
	}

	// ─── Relay + Gateway ───────────────────────────────────────────────
	rl := relay.New(relay.Options{
		Store:       relay.StoreOptions{MaxAttempts: cfg.CodeAttempts},
		AwardPolicy: awardPolicy,
		OwnerGrace:  cfg.OwnerGracePeriod,
		Recorder:    recorder,
		Logger:      log,
	})
	gw := gateway.New(rl, gateway.Options{
		SendBuffer:      cfg.WSSendBuffer,
		WriteTimeout:    cfg.WSWriteTimeout,
		PongTimeout:     cfg.WSPongTimeout,
		PingInterval:    cfg.WSPingInterval,
		MaxMessageBytes: cfg.WSMaxMessageBytes,
	}, log)

	// ─── Initialize Services & Handlers ────────────────────────────────
	authService := service.NewAuthService(cfg)
	if cfg.TeacherPIN == "" && cfg.TeacherPINHash == "" {
		log.Warn().Msg("No TEACHER_PIN configured, teacher login is disabled")
	}

	handlers := &router.Handlers{
		Auth:    handler.NewAuthHandler(authService, log),
		Quiz:    handler.NewQuizHandler(quizSvc, log),
		Session: handler.NewSessionHandler(service.NewSessionService(rl.Store())),
		WS:      handler.NewWSHandler(gw, authService, log, cfg.AllowedOrigins),
		System:  handler.NewSystemHandler(rl, rdb, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	auditCtx, auditCancel := context.WithCancel(context.Background())
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	if audit != nil {
		go audit.Start(auditCtx)
		go func() {
			persist.Start(workerCtx)
			close(workerDone)
		}()
	} else {
		close(workerDone)
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(ctx, authService, handlers, cfg)

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// 1. End every session and flush session-ended to connected clients.
	// Hijacked websocket connections are not tracked by srv.Shutdown.
	log.Info().
		Int("sessions", rl.Sessions()).
		Int("connections", gw.Clients()).
		Msg("Closing live sessions")
	if err := gw.Shutdown(shutdownCtx, relay.ReasonServerClosing); err != nil {
		log.Error().Err(err).Msg("Gateway shutdown error")
	}

	// 2. Stop accepting new HTTP requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 3. Stop the audit publisher first so its final flush reaches Redis,
	// then let the worker drain the queue.
	auditCancel()
	if audit != nil {
		select {
		case <-audit.Done():
		case <-shutdownCtx.Done():
			log.Warn().Msg("Audit publisher did not finish flushing")
		}
	}
	workerCancel()
	<-workerDone

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
