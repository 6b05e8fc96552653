package main

import (
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"kelasku_app/internal/config"
	"kelasku_app/internal/handlers"
	"kelasku_app/internal/middleware"
	"kelasku_app/internal/services"
	"kelasku_app/internal/tasks"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, using system environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to parse configuration: %v", err)
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := services.InitDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := services.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	cache, err := services.NewRedisCache(cfg.RedisURL)
	if err != nil {
		log.Warnf("Redis unavailable, caching disabled: %v", err)
		cache = nil
	}

	authClient, err := services.InitFirebase(cfg.FirebaseCredentialsPath)
	if err != nil {
		log.Warnf("Firebase initialization failed: %v", err)
		log.Warn("Auth features will not work until valid credentials are provided")
	}

	// Lifecycle engine wiring
	gateway := services.NewTripayClient(cfg.Tripay)
	transactions := services.NewGormTransactionStore(db)
	enrollments := services.NewEnrollmentService(services.NewGormEnrollmentStore(db))
	catalog := services.NewGormCatalog(db, cache)
	notifier := tasks.NewPaymentNotificationQueue(db)
	engine := services.NewTransactionService(transactions, enrollments, notifier, gateway, catalog)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.CustomErrorHandler
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())

	authHandler := handlers.NewAuthHandler(authClient, cfg.Env == "production")
	webhookHandler := handlers.NewWebhookHandler(gateway, engine)
	transactionHandler := handlers.NewTransactionHandler(engine, transactions, cache)

	// Public routes. The callback endpoint authenticates with its own HMAC
	// signature, never with a session.
	e.POST("/callbacks/tripay", webhookHandler.TripayCallback)
	e.POST("/auth/login", authHandler.HandleLogin)
	e.POST("/auth/logout", authHandler.HandleLogout)

	// Authenticated buyer routes
	api := e.Group("/api")
	api.Use(middleware.RequireAuth(authClient, db))
	api.POST("/transactions", transactionHandler.CreateTransaction)
	api.GET("/transactions/:id", transactionHandler.GetTransaction)

	// Admin routes
	admin := api.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	admin.POST("/transactions/:id/approve", transactionHandler.ApproveCashTransaction)
	admin.POST("/transactions/:id/reject", transactionHandler.RejectCashTransaction)

	log.Infof("Server starting on port %s", cfg.Port)
	e.Logger.Fatal(e.Start(":" + cfg.Port))
}
