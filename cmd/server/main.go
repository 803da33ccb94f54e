package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/skry/backend/docs"
	"github.com/skry/backend/internal/database"
	"github.com/skry/backend/internal/handlers"
	mW "github.com/skry/backend/internal/middleware"
	"github.com/skry/backend/internal/modules"
	"github.com/skry/backend/internal/services"
	"github.com/skry/backend/internal/storage"
)

// @title Skry Ad Cam Backend API
// @version 1.0
// @description API for the Skry ad capture and analysis platform
// @host localhost:4000
// @BasePath /api
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env
	viper.ReadInConfig()        // read .env file

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "SKRY_JWT_SECRET")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	viper.BindEnv("google.client_id", "GOOGLE_CLIENT_ID")

	viper.BindEnv("stripe.secret_key", "STRIPE_SECRET_KEY")
	viper.BindEnv("stripe.webhook_secret", "STRIPE_WEBHOOK_SECRET")
	viper.BindEnv("frontend_url", "FRONTEND_URL")

	viper.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	viper.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	viper.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	viper.BindEnv("storage.bucket", "STORAGE_BUCKET")
	viper.BindEnv("storage.use_ssl", "STORAGE_USE_SSL")

	viper.SetDefault("jwt.expiry_hours", 24)
	viper.SetDefault("argon2.time", 1)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)
	viper.SetDefault("argon2.salt_length", 16)

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "Skry Ad Cam Backend API"
	docs.SwaggerInfo.Description = "API for the Skry ad capture and analysis platform"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:4000"
	docs.SwaggerInfo.BasePath = "/api"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize infrastructure
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	store, err := storage.NewS3Storage()
	if err != nil {
		log.Fatalf("Failed to initialize object storage: %v", err)
	}

	visionService := services.NewVisionService()
	defer visionService.Close()

	// Initialize services
	shardService := services.NewShardService(db)
	authService := services.NewAuthService(db, redisClient, shardService, services.NewIDTokenVerifier())
	paymentService := services.NewPaymentService(db, shardService)
	scanService := services.NewScanService(db, redisClient, shardService, store, visionService)

	shardHandler := handlers.NewShardHandler(shardService)
	paymentHandler := handlers.NewPaymentHandler(paymentService)
	scanHandler := handlers.NewScanHandler(scanService)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Module registry
	registry := modules.NewRegistry()
	registry.Register(modules.Module{
		Metadata: modules.Metadata{
			ID:          "ad-cam",
			Name:        "Skry Ad Cam",
			Description: "Capture and analyze ads across platforms",
			Version:     "1.0.0",
		},
		Routes: func(r chi.Router) {
			r.Use(mW.RequireModule("ad-cam"))
			r.Post("/analyze", scanHandler.Analyze)
			r.Get("/history", scanHandler.History)
		},
	})

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "service": "Skry Ad Cam Backend"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:4000/swagger/doc.json"),
	))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/google", authService.GoogleLogin)
		r.Post("/auth/logout", authService.Logout)

		// Stripe calls this; authenticity comes from the signature header.
		r.Post("/payments/webhook", paymentHandler.Webhook)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/auth/me", authService.Me)
			r.Get("/modules", registry.ListHandler)

			r.Get("/shards/balance", shardHandler.Balance)
			r.Get("/shards/history", shardHandler.History)

			r.Post("/payments/create-checkout-session", paymentHandler.CreateCheckoutSession)

			registry.Mount(r)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "4000"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
