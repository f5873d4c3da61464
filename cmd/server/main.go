package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"aichat/internal/auth"
	"aichat/internal/config"
	"aichat/internal/domain/services"
	"aichat/internal/handler"
	"aichat/internal/middleware"
	"aichat/internal/provider/anthropic"
	"aichat/internal/provider/openrouter"
	"aichat/internal/repository/postgres"
	"aichat/internal/service/chat"
	"aichat/internal/service/usage"
	"aichat/internal/storage"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}

	var logOut io.Writer = os.Stdout
	if cfg.LogDir != "" {
		logFile, err := config.SetupLogFile(cfg.LogDir, cfg.LogMaxFiles)
		if err != nil {
			log.Fatalf("Failed to set up log file: %v", err)
		}
		defer logFile.Close()
		logOut = io.MultiWriter(os.Stdout, logFile)
	}

	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
	)

	// Session token issuer
	issuer, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.CookieSecure)
	if err != nil {
		log.Fatalf("Failed to create token issuer: %v", err)
	}

	// Create pgx connection pool
	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	logger.Info("database connected",
		"max_conns", 25,
		"min_conns", 5,
	)

	// Create repositories
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: postgres.NewTableNames(cfg.TablePrefix),
		Logger: logger,
	}
	userRepo := postgres.NewUserRepository(repoConfig)
	convRepo := postgres.NewConversationRepository(repoConfig)
	msgRepo := postgres.NewMessageRepository(repoConfig)
	fileRepo := postgres.NewFileRepository(repoConfig)
	cursorRepo := postgres.NewCursorRepository(repoConfig)
	txManager := postgres.NewTransactionManager(pool)

	// Upload blob store
	blobs, err := storage.NewDiskStore(cfg.UploadDir)
	if err != nil {
		log.Fatalf("Failed to create upload store: %v", err)
	}

	// LLM providers. Anthropic is optional and checked first so claude-*
	// models bypass the OpenRouter relay when a native key is configured.
	orClient := openrouter.NewClient(openrouter.Options{
		BaseURL:  cfg.OpenRouterBaseURL,
		APIKey:   cfg.OpenRouterAPIKey,
		Referer:  cfg.HTTPReferer,
		AppTitle: cfg.AppTitle,
	}, logger)

	providers := []services.LLMProvider{}
	if cfg.AnthropicAPIKey != "" {
		anthropicProvider, err := anthropic.NewProvider(cfg.AnthropicAPIKey)
		if err != nil {
			log.Fatalf("Failed to create anthropic provider: %v", err)
		}
		providers = append(providers, anthropicProvider)
		logger.Info("anthropic provider enabled")
	}
	providers = append(providers, orClient)

	// Pricing table backed by the provider catalog
	prices, err := usage.NewPriceTable(orClient, cfg.PricingCacheTTL, logger)
	if err != nil {
		log.Fatalf("Failed to load pricing table: %v", err)
	}

	// Chat service
	chatService := chat.NewService(chat.Deps{
		Conversations: convRepo,
		Messages:      msgRepo,
		Files:         fileRepo,
		Cursors:       cursorRepo,
		Blobs:         blobs,
		Providers:     providers,
		Prices:        prices,
		Config:        cfg,
		Logger:        logger,
	})

	// Create handlers
	authHandler := handler.NewAuthHandler(userRepo, issuer, logger)
	convHandler := handler.NewConversationHandler(convRepo, msgRepo, cursorRepo, txManager, logger)
	fileHandler := handler.NewFileHandler(fileRepo, blobs, cfg, logger)
	modelsHandler := handler.NewModelsHandler(orClient, logger)
	chatHandler := handler.NewChatHandler(chatService, logger)
	healthHandler := handler.NewHealthHandler(pool)

	logger.Info("services initialized")

	// Create HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	// Health check and metrics
	mux.HandleFunc("GET /api/health", healthHandler.Check)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Auth routes
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/auth/logout", authHandler.Logout)
	mux.HandleFunc("GET /api/auth/me", authHandler.Me)

	// Conversation routes
	mux.HandleFunc("GET /api/conversations", convHandler.List)
	mux.HandleFunc("POST /api/conversations", convHandler.Create)
	mux.HandleFunc("PATCH /api/conversations/{id}", convHandler.Rename)
	mux.HandleFunc("DELETE /api/conversations/{id}", convHandler.Delete)
	mux.HandleFunc("GET /api/conversations/{id}/messages", convHandler.Messages)

	// File routes
	mux.HandleFunc("POST /api/files", fileHandler.Upload)
	mux.HandleFunc("GET /api/files/{id}/raw", fileHandler.Raw)
	mux.HandleFunc("GET /api/files/{id}/download", fileHandler.Download)

	// Model catalog
	mux.HandleFunc("GET /api/models", modelsHandler.List)

	// Chat routes
	mux.HandleFunc("POST /api/chat", chatHandler.Complete)
	mux.HandleFunc("POST /api/chat/stream", chatHandler.Stream)

	// Build middleware chain
	var httpHandler http.Handler = mux

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS → Logging → Recovery → Auth → Routes
	httpHandler = middleware.Auth(issuer, userRepo,
		"/api/auth/login",
		"/api/auth/logout",
		"/api/health",
		"/metrics",
	)(httpHandler)
	httpHandler = middleware.Recovery(logger)(httpHandler)
	httpHandler = middleware.Logging(logger)(httpHandler)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
	})
	httpHandler = corsHandler.Handler(httpHandler)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled to allow long-lived NDJSON streams
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	logger.Info("server listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}
