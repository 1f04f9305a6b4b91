package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/r0o773rm1n41/dme-backend/internal/admission"
	"github.com/r0o773rm1n41/dme-backend/internal/clock"
	"github.com/r0o773rm1n41/dme-backend/internal/config"
	"github.com/r0o773rm1n41/dme-backend/internal/coordinator"
	"github.com/r0o773rm1n41/dme-backend/internal/database"
	"github.com/r0o773rm1n41/dme-backend/internal/finalizer"
	"github.com/r0o773rm1n41/dme-backend/internal/fsm"
	"github.com/r0o773rm1n41/dme-backend/internal/handler"
	"github.com/r0o773rm1n41/dme-backend/internal/ingestor"
	"github.com/r0o773rm1n41/dme-backend/internal/logger"
	"github.com/r0o773rm1n41/dme-backend/internal/observability"
	"github.com/r0o773rm1n41/dme-backend/internal/push"
	"github.com/r0o773rm1n41/dme-backend/internal/questionserver"
	"github.com/r0o773rm1n41/dme-backend/internal/repository"
	"github.com/r0o773rm1n41/dme-backend/internal/router"
	"github.com/r0o773rm1n41/dme-backend/internal/scheduler"
	"github.com/r0o773rm1n41/dme-backend/internal/service"
	"github.com/r0o773rm1n41/dme-backend/internal/validator"
	"github.com/r0o773rm1n41/dme-backend/internal/worker"
	"github.com/rs/zerolog"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting dme-backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Civil Clock & Calendar ─────────────────────────────────────────
	clk, err := clock.New(cfg.QuizZone, cfg.QuizLiveHour, cfg.QuizLiveMinute)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build quiz clock")
	}

	// ─── Initialize Repositories ────────────────────────────────────────
	adminRepo := repository.NewAdminRepository(pool)
	roleRepo := repository.NewRoleRepository(pool)
	quizRepo := repository.NewQuizRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	paymentRepo := repository.NewPaymentRepository(pool)
	winnerRepo := repository.NewWinnerRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	participantRepo := repository.NewParticipantRepository(pool)

	// ─── Ephemeral Coordinator ───────────────────────────────────────────
	coord := coordinator.New(rdb, log)

	// ─── Push Channel ────────────────────────────────────────────────────
	hub := push.NewHub(log)
	notifier := push.NewNotifier(rdb, hub, log)

	// ─── Lifecycle FSM ───────────────────────────────────────────────────
	quizFSM := fsm.New(quizRepo, auditRepo, notifier)

	// ─── Observability Hooks ─────────────────────────────────────────────
	hooks := observability.NewHooks(rdb, auditRepo, log)
	antiCheatWorker := observability.NewAntiCheatWorker(pool, rdb, log)

	// ─── Progress Worker (diagnostic, non-blocking) ──────────────────────
	progressWorker := worker.NewProgressWorker(pool, rdb, log)

	// ─── Admission Service / Question Server / Answer Ingestor ───────────
	admissionService := admission.New(clk, quizRepo, paymentRepo, attemptRepo, coord, hooks)
	questionServer := questionserver.New(clk, attemptRepo, questionRepo, quizRepo, coord, progressWorker)
	answerIngestor := ingestor.New(clk, quizRepo, attemptRepo, questionRepo, coord, hooks, progressWorker)

	// ─── Finalizer ────────────────────────────────────────────────────────
	quizFinalizer := finalizer.New(clk, finalizer.NewPoolTxBeginner(pool), quizRepo, questionRepo, paymentRepo, participantRepo,
		attemptRepo, winnerRepo, coord, quizFSM, notifier, log)

	// ─── Scheduler ────────────────────────────────────────────────────────
	lifecycleScheduler := scheduler.New(clk, quizRepo, quizFSM, coord, quizFinalizer, log)

	// ─── Services ─────────────────────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb)
	adminService := service.NewAdminService(adminRepo, roleRepo)
	participantService := service.NewParticipantService(participantRepo)

	// ─── Handlers ─────────────────────────────────────────────────────────
	// Admin account/role provisioning is deliberately non-interactive
	// (cmd/seed, cmd/fix-super-admin) rather than exposed over HTTP — the
	// admin API surface here is limited to the operational controls above:
	// manual FSM override, disaster-recovery force-finalize, audit reads,
	// and participant session resets.
	handlers := &router.Handlers{
		Auth:    handler.NewAuthHandler(authService, participantService, adminService),
		Quiz:    handler.NewQuizHandler(clk, admissionService, questionServer, answerIngestor, participantService, quizRepo, attemptRepo, questionRepo, winnerRepo),
		Admin:   handler.NewAdminHandler(clk, authService, quizFSM, quizFinalizer, coord, quizRepo, auditRepo),
		Webhook: handler.NewWebhookHandler(clk, cfg, coord, paymentRepo, log),
		Monitor: handler.NewMonitorHandler(rdb, hub, quizRepo, log),
		WS:      handler.NewWSHandler(clk, hub, answerIngestor, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ───────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	go notifier.Start(workerCtx)
	go antiCheatWorker.Start(workerCtx)
	go progressWorker.Start(workerCtx)
	go lifecycleScheduler.Start(workerCtx)

	// ─── Setup Router ────────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ──────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ───────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ───────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
