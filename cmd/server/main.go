// Mentor - goal coaching conversation server
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

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/agent"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/api"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/cascade"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/config"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/health"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/identity"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/llm"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/mentor"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/middleware"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/progress"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/realtime"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/store"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "llm_provider", cfg.LLM.Provider)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	var sessions store.SessionStore = repo
	if cfg.Session.Backend == "redis" {
		redisSessions, err := store.NewRedisSessionStore(ctx, cfg.Session.RedisAddr, cfg.Session.RedisPrefix)
		if err != nil {
			slog.Error("Failed to connect to Redis session store", "error", err, "addr", cfg.Session.RedisAddr)
			os.Exit(1)
		}
		defer func() {
			if closeErr := redisSessions.Close(); closeErr != nil {
				slog.Warn("Failed to close Redis session store", "error", closeErr)
			}
		}()
		sessions = redisSessions
		slog.Info("Conversation sessions stored in Redis", "addr", cfg.Session.RedisAddr)
	}

	thresholds, err := progress.LoadThresholds(cfg.AvatarThresholdsPath)
	if err != nil {
		slog.Error("Failed to load avatar thresholds", "error", err, "path", cfg.AvatarThresholdsPath)
		os.Exit(1)
	}

	completer, err := llm.New(ctx, llm.Config{
		Provider:    llm.Provider(cfg.LLM.Provider),
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey(),
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	})
	if err != nil {
		slog.Error("Failed to initialize language model", "error", err)
		os.Exit(1)
	}

	conversationLogger, err := agent.NewConversationLogger(agent.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}

	// Initialize services.
	hub := realtime.NewHub()
	defer hub.Close()

	cc := cascade.New(repo, sessions, repo,
		cascade.WithRewards(cascade.Rewards{
			Action:    cfg.Rewards.Action,
			Milestone: cfg.Rewards.Milestone,
			Goal:      cfg.Rewards.Goal,
		}),
		cascade.WithThresholds(thresholds),
		cascade.WithLogger(logger),
	)
	engine := mentor.NewEngine(repo, sessions, repo, cc, completer,
		mentor.Config{HistoryLimit: cfg.HistoryLimit},
		mentor.WithNotifier(hub),
		mentor.WithLogger(logger),
	)

	// Initialize handlers.
	apiHandler := api.NewHandler(repo, engine.Resolver(), cc, thresholds)
	agentHandler := agent.NewHandler(agent.NewService(engine, repo, conversationLogger), cfg)
	defer agentHandler.Close()
	wsHandler := realtime.NewWebSocketHandler(hub, engine, repo, cfg.AllowedOrigins, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Public routes.
	apiHandler.RegisterPublicRoutes(r)

	// Everything else carries an anonymous identity.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))
		apiHandler.RegisterRoutes(r)
		agentHandler.RegisterRoutes(r)
		r.Get("/ws/mentor", wsHandler.ServeHTTP)
	})

	// Create server. Chat turns wait on the model, so writes get a generous
	// timeout; the socket hijacks the connection and is unaffected.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.LLM.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start recompute worker.
	recomputer := worker.NewRecomputer(repo,
		worker.WithThresholds(thresholds),
		worker.WithPendingTTL(cfg.Worker.PendingTTL),
		worker.WithSessions(sessions),
		worker.WithLogger(logger),
	)
	workerDone := recomputer.Start(ctx, cfg.Worker.Interval)

	// Start gRPC health server (optional).
	var healthSrv *health.Server
	if cfg.GRPCHealthPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCHealthPort)
		if err != nil {
			slog.Error("Failed to listen for gRPC health", "error", err, "port", cfg.GRPCHealthPort)
			os.Exit(1)
		}
		healthSrv = health.NewServer(repo, 0, logger)
		go func() {
			if err := healthSrv.Serve(ctx, lis); err != nil {
				slog.Error("gRPC health server failed", "error", err)
			}
		}()
	}

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

	if healthSrv != nil {
		healthSrv.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	<-workerDone

	slog.Info("Server stopped successfully")
}
