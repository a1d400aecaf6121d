package main

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"cleantree/internal/auth"
	"cleantree/internal/config"
	"cleantree/internal/domain/services"
	"cleantree/internal/handler"
	"cleantree/internal/handler/sse"
	"cleantree/internal/middleware"
	"cleantree/internal/repository"
	"cleantree/internal/seed"
	"cleantree/internal/service"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" || cfg.Debug {
		logLevel = slog.LevelDebug
	}
	var logFile io.Writer
	if cfg.LogDir != "" {
		f, err := config.SetupLogFile(cfg.LogDir, "tree", config.MaxLogFiles)
		if err != nil {
			log.Fatalf("Failed to set up log file: %v", err)
		}
		defer f.Close()
		logFile = f
	}
	logger := config.NewLogger("prod", logLevel, os.Stdout, logFile)
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"store", cfg.Store,
		"table_prefix", cfg.TablePrefix,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Auth is optional for the demo server
	verifier, err := auth.NewVerifier(cfg.JWKSURL, cfg.JWTSecret, logger)
	if err != nil {
		log.Fatalf("Failed to create JWT verifier: %v", err)
	}
	if verifier != nil {
		defer verifier.Close()
	} else {
		logger.Warn("authentication disabled: neither JWKS_URL nor JWT_SECRET is set")
	}

	store, err := repository.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.Store, err)
	}
	defer store.Close()

	feed := service.NewFeed()
	treeService := service.NewTreeService(store.Trees, store.TxManager, feed, service.Simulation{
		Latency:     cfg.SimulatedLatency,
		FailureRate: cfg.SimulatedFailureRate,
	}, logger)
	if cfg.SimulatedLatency > 0 || cfg.SimulatedFailureRate > 0 {
		logger.Warn("round-trip simulation enabled",
			"latency", cfg.SimulatedLatency,
			"failure_rate", cfg.SimulatedFailureRate,
		)
	}

	if err := seedIfEmpty(ctx, treeService, cfg, logger); err != nil {
		log.Fatalf("Failed to seed %s: %v", cfg.DefaultTree, err)
	}

	origins := strings.Split(cfg.CORSOrigins, ",")

	// Create HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()
	handler.NewTreeHandler(treeService, logger).Register(mux)
	handler.NewFeedHandler(treeService, sse.DefaultConfig(), origins, logger).Register(mux)

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS → Recovery → Auth → Routes
	var h http.Handler = mux
	if verifier != nil {
		h = middleware.AuthMiddleware(verifier, logger)(h)
	}
	h = middleware.Recovery(logger)(h)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "Last-Event-ID"},
		AllowCredentials: true,
	})
	h = corsHandler.Handler(h)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled to allow long-lived SSE streams
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// seedIfEmpty loads the configured fixture when the store holds no trees.
func seedIfEmpty(ctx context.Context, svc services.TreeService, cfg *config.Config, logger *slog.Logger) error {
	if cfg.SeedFixture == "" {
		return nil
	}
	trees, err := svc.ListTrees(ctx)
	if err != nil {
		return err
	}
	if len(trees) > 0 {
		logger.Debug("store already holds trees, skipping seed", "trees", len(trees))
		return nil
	}
	data, err := seed.Resolve(cfg.SeedFixture)
	if err != nil {
		return err
	}
	if err := svc.Seed(ctx, cfg.DefaultTree, data); err != nil {
		return err
	}
	logger.Info("seeded empty store", "tree_id", cfg.DefaultTree, "fixture", cfg.SeedFixture, "items", seed.Count(data))
	return nil
}
