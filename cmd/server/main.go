package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/coldorg/coldbot/backend/internal/access"
	"github.com/coldorg/coldbot/backend/internal/api"
	"github.com/coldorg/coldbot/backend/internal/api/handlers"
	"github.com/coldorg/coldbot/backend/internal/auth"
	"github.com/coldorg/coldbot/backend/internal/captcha"
	"github.com/coldorg/coldbot/backend/internal/config"
	"github.com/coldorg/coldbot/backend/internal/database"
	"github.com/coldorg/coldbot/backend/internal/health"
	"github.com/coldorg/coldbot/backend/internal/middleware"
	"github.com/coldorg/coldbot/backend/internal/migration"
	"github.com/coldorg/coldbot/backend/internal/prediction"
	"github.com/coldorg/coldbot/backend/internal/ratelimit"
	"github.com/coldorg/coldbot/backend/internal/repository"
	"github.com/coldorg/coldbot/backend/internal/services"
	"github.com/coldorg/coldbot/backend/pkg/utils"
)

const healthInterval = 30 * time.Second

var migrate = flag.Bool("migrate", false, "Run database migrations before serving")

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := utils.InitLogger(cfg.Log.Level)
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info("Starting coldbot backend...")

	dbManager, err := database.NewManager(&database.Config{
		DatabaseURL: cfg.Database.URL,
		RedisURL:    cfg.Redis.URL,
		LogLevel:    cfg.Log.Level,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database manager")
	}
	defer dbManager.Close()

	if *migrate {
		if err := migration.NewRunner(dbManager.DB, migration.Embedded(), logger).RunMigrations(); err != nil {
			logger.WithError(err).Fatal("Database migration failed")
		}
	}

	repos := repository.NewRepositoryManager(dbManager.DB)
	cache := database.NewCache(dbManager.Redis, logger)

	// Sessions
	authClient := auth.NewClient(cfg.Auth.URL, cfg.Auth.AnonKey, logger)
	var resolver auth.Resolver
	if cfg.Auth.JWTSecret != "" {
		resolver = auth.NewTokenVerifier(cfg.Auth.JWTSecret)
		logger.Info("Access tokens verified locally")
	} else {
		resolver = auth.NewCachingResolver(authClient, cache, cfg.Auth.SessionCacheTTL, logger)
	}
	sessions := auth.NewSessions(resolver)
	admins := access.NewAdminList(cfg.Admin.Emails)

	// Rate limiting
	chatLimiter := newLimiter(cfg, dbManager, logger)
	authLimiter := ratelimit.NewInMemory(cfg.RateLimit.Requests, cfg.RateLimit.Interval, ratelimit.WithCleanup(cfg.RateLimit.Interval))

	predictor := prediction.NewClient(prediction.Config{
		URL:        cfg.Prediction.URL,
		APIKey:     cfg.Prediction.APIKey,
		Username:   cfg.Prediction.Username,
		Password:   cfg.Prediction.Password,
		Timeout:    cfg.Prediction.Timeout,
		MaxRetries: cfg.Prediction.MaxRetries,
	}, logger)
	captchaVerifier := captcha.NewVerifier(cfg.Captcha.SecretKey, logger)

	// Services
	chatService := services.NewChatService(predictor, chatLimiter, repos.Conversations, repos.Turns, logger)
	historyService := services.NewHistoryService(repos.Exchanges, admins, logger)
	feedbackService := services.NewFeedbackService(repos.Exchanges, repos.Feedback, logger)
	conversationService := services.NewConversationService(repos.Conversations, repos.Exchanges, logger)
	dashboardService := services.NewDashboardService(&services.DashboardRepositories{
		Conversations: repos.Conversations,
		Exchanges:     repos.Exchanges,
		Feedback:      repos.Feedback,
		Profiles:      repos.Profiles,
	}, cache, logger)

	// Health
	probes := append(health.DatabaseProbes(dbManager),
		health.Probe{Name: "prediction", Check: predictor.Ping},
		health.Probe{Name: "auth", Check: authClient.Ping},
	)
	healthChecker := health.NewHealthChecker(cache, logger, probes...)
	go healthChecker.PeriodicHealthCheck(ctx, healthInterval)

	cookies := auth.CookieOptions{
		Secure:        strings.HasPrefix(cfg.Site.URL, "https://"),
		MaxAge:        30 * 24 * time.Hour,
		SessionExpiry: cfg.Session.Expiry,
	}

	router := api.NewRouter(&api.Dependencies{
		Sessions:    sessions,
		Admins:      admins,
		Gate:        middleware.NewGate(middleware.DefaultGateConfig(), admins, logger),
		AuthLimiter: authLimiter,
		Chat:        handlers.NewChatHandler(chatService, logger),
		Admin:       handlers.NewAdminHandler(sessions, admins, dashboardService, feedbackService, logger),
		Feedback:    handlers.NewFeedbackHandler(feedbackService, logger),
		History:     handlers.NewHistoryHandler(historyService, conversationService, logger),
		Auth:        handlers.NewAuthHandler(authClient, captchaVerifier, repos.Profiles, admins, cfg.Site.URL, cookies, logger),
		Meta:        handlers.NewMetaHandler(healthChecker, cfg.Captcha.SiteKey, cfg.Server.WebRoot),
		StaticDir:   staticDir(cfg.Server.WebRoot),
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.WithField("port", cfg.Server.Port).Info("Server listening")
	if err := runServer(ctx, srv, cfg.Server.ShutdownTimeout); err != nil {
		logger.WithError(err).Fatal("Server error")
	}
	logger.Info("Server stopped")
}

func newLimiter(cfg *config.Config, dbManager *database.Manager, logger *logrus.Logger) ratelimit.Limiter {
	if cfg.RateLimit.Backend == "redis" && dbManager.Redis != nil {
		logger.Info("Using redis rate limiter")
		return ratelimit.NewRedis(dbManager.Redis, cfg.RateLimit.Requests, cfg.RateLimit.Interval, logger)
	}
	return ratelimit.NewInMemory(cfg.RateLimit.Requests, cfg.RateLimit.Interval, ratelimit.WithCleanup(cfg.RateLimit.Interval))
}

func staticDir(webRoot string) string {
	if webRoot == "" {
		return ""
	}
	return strings.TrimRight(webRoot, "/") + "/static"
}

func runServer(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
