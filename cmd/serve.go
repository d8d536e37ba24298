package cmd

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vibast-solutions/ms-go-parish-auth/app/controller"
	authgrpc "github.com/vibast-solutions/ms-go-parish-auth/app/grpc"
	"github.com/vibast-solutions/ms-go-parish-auth/app/middleware"
	"github.com/vibast-solutions/ms-go-parish-auth/app/notifier"
	"github.com/vibast-solutions/ms-go-parish-auth/app/repository"
	"github.com/vibast-solutions/ms-go-parish-auth/app/service"
	"github.com/vibast-solutions/ms-go-parish-auth/config"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	healthCheckInterval = 15 * time.Second
	tokenPurgeInterval  = time.Hour
	shutdownTimeout     = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  `Start the HTTP (Echo) API and the gRPC health endpoint.`,
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := repository.Open(cfg.DSN())
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := newRedisClient(ctx, cfg)
	if rdb != nil {
		defer rdb.Close()
	}

	userRepo := repository.NewUserRepository(db)
	refreshTokenRepo := repository.NewRefreshTokenRepository(db)
	tokens := service.NewTokenService(cfg.JWT)
	authService := service.NewAuthService(
		userRepo,
		refreshTokenRepo,
		tokens,
		service.NewPasswordHasher(cfg.Password.BcryptCost),
		newNotifier(cfg),
		cfg,
	)

	reporter := authgrpc.NewHealthReporter(db)
	go reporter.Run(ctx, healthCheckInterval)
	go purgeExpiredTokens(ctx, refreshTokenRepo)
	go startGRPCServer(ctx, cfg, reporter)

	startHTTPServer(ctx, cfg, db, rdb, tokens, authService)
}

func newRedisClient(ctx context.Context, cfg *config.Config) *redis.Client {
	if cfg.Redis.Addr == "" {
		logrus.Info("REDIS_ADDR not set, rate limiting is per-process")
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logrus.WithError(err).Warn("Redis unreachable, rate limiting falls back to per-process")
	}
	return rdb
}

func newNotifier(cfg *config.Config) service.Notifier {
	if cfg.Mailer.WebhookURL != "" {
		logrus.WithField("url", cfg.Mailer.WebhookURL).Info("Delivering notifications through webhook")
		return notifier.NewWebhookNotifier(cfg.Mailer.WebhookURL, cfg.Mailer.Timeout)
	}
	logrus.Warn("MAILER_WEBHOOK_URL not set, notifications are only logged")
	return notifier.NewLogNotifier(logrus.StandardLogger())
}

func purgeExpiredTokens(ctx context.Context, repo *repository.RefreshTokenRepository) {
	ticker := time.NewTicker(tokenPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := repo.DeleteExpired(ctx, time.Now())
			if err != nil {
				logrus.WithError(err).Warn("Failed to purge expired refresh tokens")
				continue
			}
			if removed > 0 {
				logrus.WithField("count", removed).Info("Purged expired refresh tokens")
			}
		}
	}
}

func startHTTPServer(ctx context.Context, cfg *config.Config, db *sql.DB, rdb *redis.Client, tokens *service.TokenService, authService service.AuthService) {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins:     []string{cfg.ClientURL},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAccept},
		AllowCredentials: true,
	}))

	sessions := controller.NewSessionBinder(cfg.IsProduction(), cfg.JWT.AccessTokenTTL, cfg.JWT.RefreshTokenTTL)
	authController := controller.NewAuthController(authService, sessions, !cfg.IsProduction())
	healthController := controller.NewHealthController(db)
	authMiddleware := middleware.NewAuthMiddleware(tokens)
	limiter := middleware.NewRateLimiter(rdb, cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)

	registerRoutes(e, authController, healthController, authMiddleware, limiter)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logrus.WithError(err).Error("HTTP server shutdown failed")
		}
	}()

	httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
	logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
	if err := e.Start(httpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logrus.WithError(err).Fatal("Failed to start HTTP server")
	}
	logrus.Info("HTTP server stopped")
}

func registerRoutes(
	e *echo.Echo,
	authController *controller.AuthController,
	healthController *controller.HealthController,
	authMiddleware *middleware.AuthMiddleware,
	limiter *middleware.RateLimiter,
) {
	e.GET("/health", healthController.Health)

	auth := e.Group("/auth")
	auth.POST("/signup", authController.Signup, limiter.Middleware)
	auth.POST("/login", authController.Login, limiter.Middleware)
	auth.POST("/verify-email", authController.VerifyEmail, limiter.Middleware)
	auth.POST("/forgot-password", authController.ForgotPassword, limiter.Middleware)
	auth.POST("/reset-password/:token", authController.ResetPassword)
	auth.POST("/logout", authController.Logout)
	auth.POST("/refresh-token", authController.RefreshToken)

	authProtected := auth.Group("")
	authProtected.Use(authMiddleware.RequireAuth)
	authProtected.GET("/check-auth", authController.CheckAuth)
	authProtected.POST("/resend-verification", authController.ResendVerification)
	authProtected.POST("/reauth", authController.Reauth)
	authProtected.POST("/change-password", authController.ChangePassword)
	authProtected.POST("/change-email/request", authController.RequestEmailChange)
	authProtected.POST("/change-email/confirm", authController.ConfirmEmailChange)
	authProtected.POST("/delete-account", authController.DeleteAccount)
	authProtected.POST("/update-profile", authController.UpdateProfile)
}

func startGRPCServer(ctx context.Context, cfg *config.Config, reporter *authgrpc.HealthReporter) {
	grpcAddr := net.JoinHostPort(cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to listen on gRPC port")
	}

	grpcServer := authgrpc.NewServer(reporter)
	go func() {
		<-ctx.Done()
		grpcServer.GracefulStop()
	}()

	logrus.WithField("addr", grpcAddr).Info("Starting gRPC server")
	if err := grpcServer.Serve(lis); err != nil {
		logrus.WithError(err).Fatal("Failed to start gRPC server")
	}
}
