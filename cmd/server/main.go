package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/tourbook/booking-backend/internal/config"
	"github.com/tourbook/booking-backend/internal/database"
	"github.com/tourbook/booking-backend/internal/gateway"
	"github.com/tourbook/booking-backend/internal/handlers"
	"github.com/tourbook/booking-backend/internal/middleware"
	"github.com/tourbook/booking-backend/internal/models"
	"github.com/tourbook/booking-backend/internal/services"
	"github.com/tourbook/booking-backend/pkg/jwt"
	"github.com/tourbook/booking-backend/pkg/mq"
	"github.com/tourbook/booking-backend/pkg/retry"
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

	logger.Info("Starting TourBook booking backend")
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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, auditDB, err := openStore(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatalf("Failed to open booking store: %v", err)
	}
	defer store.Close()

	// Booking events
	var publisher services.EventPublisher = services.NoopEventPublisher{}
	if cfg.RabbitMQ.Enabled() {
		mqPublisher, err := mq.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			logger.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer mqPublisher.Close()
		publisher = services.NewRabbitEventPublisher(mqPublisher)
		logger.WithField("exchange", cfg.RabbitMQ.Exchange).Info("Booking events enabled")
	}

	// Payment event dedupe
	var deduper services.EventDeduper = services.NewMemoryEventDeduper()
	if cfg.Redis.Enabled() {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		deduper = services.NewRedisEventDeduper(redisClient, cfg.Redis.DedupTTL)
		logger.Info("Redis event dedupe enabled")
	}

	// Payment gateway
	var paymentGateway gateway.PaymentGateway
	var mockGateway *gateway.MockGateway
	if cfg.Stripe.Enabled() {
		paymentGateway, err = gateway.NewStripeGateway(&gateway.StripeGatewayConfig{
			SecretKey:  cfg.Stripe.SecretKey,
			SuccessURL: cfg.Stripe.SuccessURL,
			CancelURL:  cfg.Stripe.CancelURL,
			Currency:   cfg.Stripe.Currency,
		})
		if err != nil {
			logger.Fatalf("Failed to initialize Stripe: %v", err)
		}
	} else {
		mockGateway = gateway.NewMockGateway("")
		paymentGateway = mockGateway
		logger.Warn("STRIPE_SECRET_KEY not set, using mock payment gateway")
	}

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)
	auditService := services.NewAuditService(auditDB, logger)
	availabilityService := services.NewAvailabilityService(store, logger)
	bookingService := services.NewBookingService(store, &retry.Config{
		MaxRetries:      cfg.Admission.MaxRetries,
		InitialInterval: cfg.Admission.InitialInterval,
		MaxInterval:     cfg.Admission.MaxInterval,
		Multiplier:      2.0,
		JitterFactor:    0.2,
	}, auditService, publisher, logger).WithHoldTTL(cfg.Holds.PendingTTL)
	checkoutService := services.NewCheckoutService(store, availabilityService, paymentGateway, logger)
	paymentEventService := services.NewPaymentEventService(bookingService, store, deduper, logger)

	cronService := services.NewCronService(store, auditService, publisher, cfg.Holds.SweepSpec, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}

	// Initialize handlers
	tourHandler := handlers.NewTourHandler(availabilityService, logger)
	bookingHandler := handlers.NewBookingHandler(bookingService, auditService, logger)
	checkoutHandler := handlers.NewCheckoutHandler(checkoutService, logger)
	webhookHandler := handlers.NewWebhookHandler(paymentEventService, cfg.Stripe.WebhookSecret, logger)

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(store, cfg.Store.Driver))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Public
		v1.GET("/tours/:id/check-availability", tourHandler.CheckAvailability)
		v1.POST("/payments/webhook", webhookHandler.HandleStripeWebhook)
		if mockGateway != nil && cfg.Server.Environment != "production" {
			mockPaymentHandler := handlers.NewMockPaymentHandler(paymentEventService, mockGateway, logger)
			v1.POST("/payments/mock/:sessionId/complete", mockPaymentHandler.CompleteSession)
		}

		// Authenticated
		authenticated := v1.Group("")
		authenticated.Use(middleware.AuthMiddleware(jwtService, logger))
		{
			authenticated.POST("/checkout/session", checkoutHandler.CreateSession)
			authenticated.GET("/bookings/me", bookingHandler.ListMyBookings)
			authenticated.GET("/bookings/:id", bookingHandler.GetBooking)
			authenticated.POST("/bookings/:id/cancel", bookingHandler.CancelBooking)

			// Admin only
			admin := authenticated.Group("")
			admin.Use(middleware.RequireRole(middleware.RoleAdmin))
			{
				admin.POST("/bookings", bookingHandler.CreateBooking)
				admin.GET("/bookings", bookingHandler.ListBookings)
				admin.PATCH("/bookings/:id", bookingHandler.UpdateBooking)
				admin.GET("/bookings/:id/history", bookingHandler.GetBookingHistory)
				admin.GET("/jobs", func(c *gin.Context) {
					c.JSON(http.StatusOK, cronService.GetJobStatus())
				})
			}
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
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
	cronService.Stop()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// openStore connects the configured booking store. The second return value
// is the SQL handle used for audit rows, nil for the other drivers.
func openStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (database.BookingStore, database.DB, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		logger.Info("Connecting to PostgreSQL...")
		db, err := database.NewConnection(cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Store.AutoMigrate {
			if err := database.EnsureSchema(ctx, db.DB); err != nil {
				db.Close()
				return nil, nil, err
			}
		}
		logger.Info("PostgreSQL connection established")
		return database.NewPostgresBookingStore(db.DB), db, nil

	case config.StoreDriverMongo:
		logger.Info("Connecting to MongoDB...")
		client, err := database.NewMongoConnection(ctx, cfg.Mongo)
		if err != nil {
			return nil, nil, err
		}
		mongoDB := client.Database(cfg.Mongo.Database)
		if cfg.Store.AutoMigrate {
			if err := database.EnsureMongoIndexes(ctx, mongoDB); err != nil {
				_ = client.Disconnect(context.Background())
				return nil, nil, err
			}
		}
		logger.WithField("database", cfg.Mongo.Database).Info("MongoDB connection established")
		return database.NewMongoBookingStore(client, mongoDB), nil, nil

	case config.StoreDriverMemory:
		logger.Warn("Using in-memory booking store, data is lost on restart")
		store := database.NewMemoryBookingStore()
		store.AddTour(models.Tour{ID: "demo-tour", Name: "Demo Tour", MaxGroupSize: 10, Price: 50})
		store.AddUser("demo-user")
		return store, nil, nil
	}

	return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(store database.BookingStore, driver string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"store":  driver,
				"error":  err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"store":     driver,
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
