package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm/logger"

	"github.com/sentinela-saude/sentinela/internal/audit"
	"github.com/sentinela-saude/sentinela/internal/classifier"
	"github.com/sentinela-saude/sentinela/internal/config"
	"github.com/sentinela-saude/sentinela/internal/database"
	"github.com/sentinela-saude/sentinela/internal/events"
	"github.com/sentinela-saude/sentinela/internal/handlers"
	"github.com/sentinela-saude/sentinela/internal/jobs"
	"github.com/sentinela-saude/sentinela/internal/metrics"
	"github.com/sentinela-saude/sentinela/internal/middleware"
	"github.com/sentinela-saude/sentinela/internal/notify"
	"github.com/sentinela-saude/sentinela/internal/services"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it (this is fine if using environment variables): %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting Sentinela %s...", handlers.Version)

	// Initialize database
	if err := database.Connect(cfg.DatabaseURL, logger.Warn); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	db := database.DB

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Bootstrap the tenant owned by the admin account
	tenant, err := database.EnsureTenant(db, cfg.TenantName, cfg.OversightName, cfg.OversightEmail)
	if err != nil {
		log.Fatalf("Failed to initialize tenant: %v", err)
	}
	if tenant.OversightEmail == "" {
		log.Printf("Warning: tenant %q has no oversight contact, escalations will be refused", tenant.Name)
	}

	// Initialize metrics
	m := metrics.New()

	// Initialize notifications: e-mail first, Slack mirrors it when configured
	catalog, err := notify.DefaultCatalog()
	if err != nil {
		log.Fatalf("Failed to load notification templates: %v", err)
	}
	var dispatcher notify.Dispatcher = notify.NewEmailDispatcher(catalog, notify.EmailConfig{
		APIKey:        cfg.SendGridAPIKey,
		FromEmail:     cfg.MailFrom,
		FromName:      cfg.MailFromName,
		ShadowAddress: cfg.ShadowEmail,
	})
	if cfg.SendGridAPIKey == "" {
		log.Printf("E-mail delivery is DISABLED (no SendGrid key), messages are logged only")
	}
	if cfg.ShadowEmail != "" {
		log.Printf("Shadow mode: every e-mail goes to %s", cfg.ShadowEmail)
	}
	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		slackClient := notify.NewSlackClient(cfg.SlackBotToken)
		channelID, err := notify.NewChannelResolver(slackClient).Resolve(context.Background(), cfg.SlackChannel)
		if err != nil {
			log.Printf("Warning: Slack mirror disabled: %v", err)
		} else {
			dispatcher = notify.NewSlackMirror(dispatcher, slackClient, channelID)
			log.Printf("Slack mirror enabled on channel %s", cfg.SlackChannel)
		}
	}

	// Initialize lifecycle event publisher
	var publisher events.Publisher = events.Nop{}
	var natsPublisher *events.NATSPublisher
	if cfg.NATSURL != "" {
		natsPublisher, err = events.NewNATSPublisher(events.NATSConfig{URL: cfg.NATSURL})
		if err != nil {
			log.Printf("Warning: NATS unavailable, lifecycle events disabled: %v", err)
		} else {
			publisher = natsPublisher
			log.Printf("Publishing lifecycle events to %s", cfg.NATSURL)
		}
	}

	if cfg.OpenAIAPIKey == "" {
		log.Printf("Warning: OPENAI_API_KEY is not set, incidents will be stored pending classification")
	}

	// Initialize services
	svc := services.New(services.Deps{
		DB:         db,
		Dispatcher: dispatcher,
		Classifier: classifier.New(classifier.Config{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		}),
		Audit:     audit.NewDBSink(db),
		Events:    publisher,
		Metrics:   m,
		Clock:     time.Now,
		PublicURL: cfg.PublicURL,
	})

	// Start the deadline sweep
	sweep := jobs.NewDeadlineSweep(svc.Alerts, cfg.SweepSchedule, time.Now, m)
	if err := sweep.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start deadline sweep: %v", err)
	}

	// Initialize JWT authentication
	passwordHash := ""
	if cfg.AdminPassword != "" {
		passwordHash, err = middleware.HashPassword(cfg.AdminPassword)
		if err != nil {
			log.Fatalf("Failed to hash admin password: %v", err)
		}
	}
	jwtAuthMiddleware := middleware.NewJWTAuthMiddleware(&middleware.JWTAuthConfig{
		Enabled:           cfg.AuthEnabled,
		AdminUsername:     cfg.AdminUsername,
		AdminPasswordHash: passwordHash,
		AdminTenantID:     tenant.ID,
		JWTSecret:         cfg.JWTSecret,
		JWTExpiryHours:    cfg.JWTExpiryHours,
		SkipPaths:         handlers.PublicPaths,
	})
	if cfg.AuthEnabled {
		log.Printf("JWT authentication enabled for user: %s", cfg.AdminUsername)
	} else {
		log.Printf("Warning: authentication is DISABLED, every request acts as admin of %q", tenant.Name)
	}

	authz, err := middleware.NewAuthorizer()
	if err != nil {
		log.Fatalf("Failed to initialize authorizer: %v", err)
	}

	// Setup HTTP routes
	mux := http.NewServeMux()
	handlers.NewHTTPHandler(db, m.Handler()).SetupRoutes(mux)
	handlers.NewAuthHandler(jwtAuthMiddleware).SetupRoutes(mux)
	handlers.NewAPIHandler(svc, sweep, authz).SetupRoutes(mux)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handlers.Chain(mux, jwtAuthMiddleware, middleware.NewCORSMiddleware(cfg.CORSOrigins...)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start HTTP server
	go func() {
		log.Printf("Starting HTTP server on port %d", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	log.Printf("Health check endpoint: http://localhost:%d/health", cfg.HTTPPort)
	log.Printf("API base URL: http://localhost:%d/api", cfg.HTTPPort)
	log.Printf("Deadline sweep schedule: %s", cfg.SweepSchedule)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("Received shutdown signal, cleaning up...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Graceful shutdown
	log.Println("Shutting down HTTP server...")
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}

	log.Println("Stopping deadline sweep...")
	if err := sweep.Stop(ctx); err != nil {
		log.Printf("Warning: deadline sweep did not stop in time: %v", err)
	}

	if natsPublisher != nil {
		natsPublisher.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	log.Println("Shutdown complete")
}
