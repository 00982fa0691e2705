package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boxinggym/walkin-backend/internal/config"
	"github.com/boxinggym/walkin-backend/internal/database"
	"github.com/boxinggym/walkin-backend/internal/handlers"
	"github.com/boxinggym/walkin-backend/internal/middleware"
	"github.com/boxinggym/walkin-backend/internal/monitoring"
	"github.com/boxinggym/walkin-backend/internal/realtime"
	"github.com/boxinggym/walkin-backend/internal/services"
	"github.com/boxinggym/walkin-backend/pkg/jwt"
	"github.com/boxinggym/walkin-backend/pkg/payments"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting walk-in booking backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Realtime broker (optional)
	var (
		redisClient *redis.Client
		changes     interface {
			services.ChangePublisher
			realtime.Subscriber
		} = realtime.NoopPublisher{}
	)
	if cfg.Redis.URL != "" {
		redisClient, err = realtime.NewRedisClient(cfg.Redis.URL, cfg.Redis.PoolSize)
		if err != nil {
			logger.Fatalf("Failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
		changes = realtime.NewRedisPublisher(redisClient, cfg.Redis.ChannelPrefix, logger)
		logger.Info("Realtime updates enabled")
	} else {
		logger.Warn("REDIS_URL not set, realtime updates disabled")
	}

	// Payment provider
	var provider payments.Provider
	signatureHeader := payments.MockSignatureHeader
	switch cfg.Payment.Provider {
	case "stripe":
		provider = payments.NewStripeProvider(payments.StripeConfig{
			SecretKey:     cfg.Payment.StripeSecretKey,
			WebhookSecret: cfg.Payment.StripeWebhookKey,
		}, logger)
		signatureHeader = "Stripe-Signature"
	default:
		provider = payments.NewMockProvider(cfg.Payment.MockWebhookSecret)
		logger.Warn("Using mock payment provider")
	}

	// Repositories
	stores := services.Stores{
		Members:       database.NewMemberRepository(db.DB),
		Classes:       database.NewClassRepository(db.DB),
		Bookings:      database.NewBookingRepository(db.DB),
		Payments:      database.NewPaymentRepository(db.DB, logger),
		PaymentEvents: database.NewPaymentEventRepository(db.DB, logger),
	}

	// Services
	logger.Info("Initializing services...")
	monitor := monitoring.NewMonitor()
	auditService := services.NewAuditService(db, logger)
	var auditor services.Auditor
	if cfg.Security.EnableAuditLog {
		auditor = auditService
	}
	loc := cfg.Booking.Location()

	bookingService := services.NewBookingService(stores, provider, changes, auditor, monitor, services.BookingOptions{
		Currency:       cfg.Payment.Currency,
		CashTimeout:    cfg.Booking.CashTimeout,
		Location:       loc,
		SweepBatchSize: cfg.Booking.SweepBatchSize,
	}, logger)
	memberService := services.NewMemberService(stores.Members, stores.Payments, auditor, loc, logger)
	classService := services.NewClassService(stores.Classes, logger)
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenExpiry)

	// Start cron jobs
	cronService := services.NewCronService(bookingService, services.CronSchedule{
		CashExpiry: cfg.Booking.ExpirySweepSpec,
		NoShows:    cfg.Booking.NoShowSweepSpec,
	}, loc, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}

	// Handlers
	kioskHandler := handlers.NewKioskHandler(bookingService, memberService, classService, logger)
	adminHandler := handlers.NewAdminHandler(bookingService, memberService, classService, auditService, logger)
	webhookHandler := handlers.NewWebhookHandler(bookingService, signatureHeader, logger)
	jobsHandler := handlers.NewJobsHandler(cronService, auditor, logger)
	realtimeHandler := handlers.NewRealtimeHandler(changes, bookingService, logger)

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	if cfg.Security.EnableRequestLog {
		router.Use(middleware.RequestLogger(logger))
	}
	router.Use(monitor.GinMiddleware())

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Ops endpoints
	router.GET("/health", healthCheckHandler(db, redisClient))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	onReject := func(c *gin.Context, code string) {
		if auditor == nil {
			return
		}
		auditor.LogStaffAction(c.Request.Context(), services.AuditStaffTokenRejected, "staff", uuid.Nil, services.RequestMeta{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}, map[string]interface{}{
			"code": code,
			"path": c.Request.URL.Path,
		})
	}

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Walk-in kiosk (public)
		kioskHandler.RegisterRoutes(v1.Group("/kiosk"))

		// Payment provider callbacks (signed)
		v1.POST("/webhooks/"+provider.Name(), webhookHandler.HandleEvent)

		// Front desk and admin (staff token)
		admin := v1.Group("/admin")
		admin.Use(middleware.StaffAuth(jwtService, logger, onReject))
		admin.Use(middleware.RequireRole(jwt.RoleStaff))
		{
			adminHandler.RegisterRoutes(admin)
			admin.GET("/realtime", realtimeHandler.Stream)

			jobs := admin.Group("/jobs")
			jobs.Use(middleware.RequireRole(jwt.RoleAdmin))
			jobsHandler.RegisterRoutes(jobs)
		}
	}

	// Create HTTP server. No WriteTimeout: it would cut realtime streams.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop cron service
	logger.Info("Stopping cron service...")
	cronService.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// healthCheckHandler reports database and redis reachability
func healthCheckHandler(db database.DB, redisClient *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		body := gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"redis":     "disabled",
			"version":   version,
			"timestamp": time.Now().Unix(),
		}

		if err := db.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "unhealthy"
			body["database"] = "unhealthy"
			body["error"] = err.Error()
		}

		if redisClient != nil {
			body["redis"] = "healthy"
			if err := realtime.HealthCheck(ctx, redisClient); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "unhealthy"
				body["redis"] = "unhealthy"
			}
		}

		c.JSON(status, body)
	}
}
