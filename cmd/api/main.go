package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"linebot-backend/cmd"
	"linebot-backend/internal/api"
	"linebot-backend/internal/conversation"
	"linebot-backend/internal/database"
	"linebot-backend/internal/dify"
	"linebot-backend/internal/line"
	"linebot-backend/internal/messaging"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type APIConfig struct {
	DatabaseURL            string `env:"DATABASE_URL,notEmpty,required"`
	LineChannelSecret      string `env:"LINE_CHANNEL_SECRET"`
	LineChannelAccessToken string `env:"LINE_CHANNEL_ACCESS_TOKEN"`
	LineAPIBase            string `env:"LINE_API_BASE" envDefault:"https://api.line.me"`
	DifyAPIBase            string `env:"DIFY_API_BASE,notEmpty,required"`
	DifyAPIKey             string `env:"DIFY_API_KEY,notEmpty,required"`
	RabbitMQURL            string `env:"RABBITMQ_URL"`
	APIPort                string `env:"API_PORT" envDefault:"8001"`
	SummaryBatchSize       int    `env:"SUMMARY_BATCH_SIZE" envDefault:"80"`
}

func main() {
	log.Println("Starting API Server...")

	cmd.LoadEnvFile()

	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	if cfg.LineChannelSecret == "" {
		// The webhook handler rejects deliveries until this is configured.
		log.Println("Warning: LINE_CHANNEL_SECRET is not set, webhook requests will be rejected")
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	var publisher messaging.Publisher = messaging.NewInMemoryPublisher()
	if cfg.RabbitMQURL != "" {
		publisher, err = messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
	}
	defer publisher.Close()

	lineClient := line.NewClient(cfg.LineAPIBase, cfg.LineChannelAccessToken)
	difyClient := dify.NewClient(cfg.DifyAPIBase, cfg.DifyAPIKey)

	pipeline := conversation.NewPipeline(db, difyClient, lineClient, publisher, cfg.SummaryBatchSize)

	// --- Chi Router Setup ---
	r := chi.NewRouter()

	// Middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)                    // Log requests
	r.Use(middleware.Recoverer)                 // Recover from panics
	r.Use(middleware.Timeout(60 * time.Second)) // Set request timeout

	// API Handlers (dependency injection)
	api.NewWebhookService(cfg.LineChannelSecret, pipeline).AddRoutes(r)
	api.NewAdminService(db).AddRoutes(r)

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: r,
	}

	// Goroutine for graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("API server listening on port %s", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
	}

	log.Println("Server stopped.")
}
