// AIcare - dental appointment booking dialogue server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/aicare/internal/api"
	"github.com/ashureev/aicare/internal/app"
	"github.com/ashureev/aicare/internal/config"
	"github.com/ashureev/aicare/internal/identity"
	"github.com/ashureev/aicare/internal/middleware"
	"github.com/ashureev/aicare/internal/probe"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	level.Set(cfg.LogLevel)

	slog.Info("Starting server", "port", cfg.Port, "grpc_port", cfg.GRPCPort, "dev", cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	a, err := app.Build(ctx, cfg, "http", logger)
	if err != nil {
		slog.Error("Failed to initialize dialogue engine", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			slog.Error("Failed to close components", "error", closeErr)
		}
	}()
	a.Start(ctx)

	// Initialize handlers.
	dialogueHandler := api.NewHandler(a.Engine, api.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		AllowedOrigin:      cfg.FrontendURL,
		IsDev:              cfg.IsDevelopment(),
	}, logger)
	defer dialogueHandler.Close()

	healthHandler := api.NewHealthHandler(map[string]api.Pinger{
		"store":      a.Store,
		"generation": a.Generation,
	}, 5*time.Second, logger)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(middleware.CORSOptions{AllowedOrigins: cfg.AllowedOrigins}))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// Dialogue routes need a caller identity.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(identity.Options{
			IsDev:           cfg.IsDevelopment(),
			TrustUserHeader: cfg.TrustUserHeader,
		}))
		dialogueHandler.RegisterRoutes(r)
	})

	// Create server. Websocket conversations are long lived, so no
	// WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// gRPC health.
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		slog.Error("Failed to listen for gRPC", "error", err)
		os.Exit(1)
	}
	grpcSrv, healthSrv := probe.NewServer()
	go probe.Watch(ctx, healthSrv, a.Generation, probe.DefaultInterval, logger)
	grpcDone := make(chan struct{})
	go func() {
		defer close(grpcDone)
		if err := probe.Serve(ctx, grpcSrv, lis, logger); err != nil {
			slog.Error("gRPC server failed", "error", err)
		}
	}()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dialogueHandler.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	<-grpcDone

	slog.Info("Server stopped successfully")
}
