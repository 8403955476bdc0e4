package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/ussd-gateway-go/internal/audit"
	"github.com/openclaw/ussd-gateway-go/internal/config"
	"github.com/openclaw/ussd-gateway-go/internal/database"
	"github.com/openclaw/ussd-gateway-go/internal/database/migrate"
	"github.com/openclaw/ussd-gateway-go/internal/definition"
	"github.com/openclaw/ussd-gateway-go/internal/handler"
	"github.com/openclaw/ussd-gateway-go/internal/httputil"
	"github.com/openclaw/ussd-gateway-go/internal/jobs"
	"github.com/openclaw/ussd-gateway-go/internal/metrics"
	"github.com/openclaw/ussd-gateway-go/internal/middleware"
	"github.com/openclaw/ussd-gateway-go/internal/redis"
	"github.com/openclaw/ussd-gateway-go/internal/repository"
	"github.com/openclaw/ussd-gateway-go/internal/service"
	"github.com/openclaw/ussd-gateway-go/internal/template"
	"github.com/openclaw/ussd-gateway-go/internal/validation"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("database connected")

	if cfg.AutoMigrate {
		if err := migrate.Up(db.SQL()); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
	}

	redisClient, err := redis.NewClient(context.Background(), cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	defRepo := repository.NewDefinitionRepository(db.DB)
	sessionRepo := repository.NewSessionRepository(db.DB)
	varRepo := repository.NewVariableRepository(db.DB)
	auditRepo := repository.NewAuditRepository(db.DB)
	callLogRepo := repository.NewApiCallLogRepository(db.DB)
	blockRepo := repository.NewBlockRepository(db.DB)
	attemptRepo := repository.NewFailedAttemptRepository(db.DB)

	defs, err := loadDefinitions(cfg.DefinitionsFile, defRepo)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load flow definitions")
	}

	m := metrics.New()
	templates := template.New(template.WithCurrencySymbol(cfg.CurrencySymbol))
	validator := validation.New()
	masker := audit.NewMasker(cfg.PinMenuCodes(), cfg.MaskPosition)

	securityService := service.NewSecurityService(blockRepo, attemptRepo, nil, m)
	sessionService := service.NewSessionService(db, sessionRepo, varRepo)
	variables := service.NewVariableStore(varRepo, cfg.EncryptionKey)
	orchestrator := service.NewOrchestrator(
		defs, callLogRepo, templates, &http.Client{}, securityService, m,
		service.OrchestratorConfig{
			DefaultTimeout: cfg.APIDefaultTimeout(),
			DefaultRetries: cfg.APIDefaultRetryCount,
			BaseDelay:      cfg.APIRetryBaseDelay(),
			MaxDelay:       cfg.APIRetryMaxDelay(),
		},
	)
	engine := service.NewFlowEngine(
		defs, sessionRepo, variables, orchestrator, templates, validator, securityService, masker,
	)
	locker := service.NewSessionLocker(
		redis.NewLocker(redisClient.Client, config.SessionLockPoll), config.SessionLockTTL,
	)
	limiter := service.NewPhoneLimiter(redisClient.Client, cfg.PhoneRateLimitPerMin)
	trail := audit.NewTrail(auditRepo, masker)

	ussdService := service.NewUSSDService(
		defs, sessionService, engine, securityService, locker, limiter, trail, m, cfg.RequestDeadline(),
	)
	adminService := service.NewAdminService(
		sessionService, variables, auditRepo, callLogRepo, securityService, masker,
	)

	ussdHandler := handler.NewUSSDHandler(ussdService)
	adminHandler := handler.NewAdminHandler(adminService)

	adminBodyLimit := middleware.NewBodyLimitMiddleware(0)
	ussdBodyLimit := middleware.NewBodyLimitMiddleware(
		config.USSDMaxBodySize, middleware.WithProtocolReject(service.InvalidRequestResponse),
	)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)
	adminAuthMiddleware := middleware.NewAdminAuthMiddleware(cfg.AdminAPIKeyHash)
	adminRateLimiter := middleware.NewAdminRateLimiter(0)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(securityHeadersMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if err := db.Ping(r.Context()); err != nil {
			log.Warn().Err(err).Msg("health check: database unreachable")
			status, code = "degraded", http.StatusServiceUnavailable
		}
		if err := redisClient.Ping(r.Context()); err != nil {
			log.Warn().Err(err).Msg("health check: redis unreachable")
			status, code = "degraded", http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, code, map[string]any{
			"status":    status,
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Handle("/metrics", m.Handler())

	r.Route("/api/v1/ussd", func(r chi.Router) {
		r.Use(ussdBodyLimit.Handler)
		r.Post("/", ussdHandler.Handle)
		r.Post("/callback", ussdHandler.Callback)
	})

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(adminBodyLimit.Handler)
		r.Use(adminRateLimiter.Handler)
		r.Use(adminAuthMiddleware.Handler)
		r.Mount("/", adminHandler.Routes())
	})

	cleanupJob := jobs.NewCleanupJob(
		sessionRepo, blockRepo, attemptRepo, cfg.SessionTimeout(), config.CleanupJobInterval,
	)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// loadDefinitions serves flows from path when set, otherwise from Postgres.
// A flow file with structural problems refuses to start.
func loadDefinitions(path string, repo repository.DefinitionRepository) (service.DefinitionStore, error) {
	if path == "" {
		log.Info().Msg("serving flow definitions from database")
		return repo, nil
	}

	store, err := definition.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if problems := definition.CheckAll(store.Bundles()); len(problems) > 0 {
		lines := make([]string, len(problems))
		for i, p := range problems {
			lines[i] = p.String()
		}
		return nil, fmt.Errorf("%s: %d problem(s):\n%s", path, len(problems), strings.Join(lines, "\n"))
	}

	log.Info().Str("file", path).Int("apps", len(store.Bundles())).Msg("serving flow definitions from file")
	return store, nil
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
