package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Web5design/MediaCrusher/internal/api"
	"github.com/Web5design/MediaCrusher/internal/api/handler"
	"github.com/Web5design/MediaCrusher/internal/config"
	"github.com/Web5design/MediaCrusher/internal/dispatcher"
	"github.com/Web5design/MediaCrusher/internal/downloader"
	"github.com/Web5design/MediaCrusher/internal/history"
	"github.com/Web5design/MediaCrusher/internal/pipeline"
	"github.com/Web5design/MediaCrusher/internal/worker"
	"github.com/Web5design/MediaCrusher/pkg/mediacrush"
	"github.com/Web5design/MediaCrusher/pkg/reddit"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("mediacrusher %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting mediacrusher",
		"version", Version,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Open reply history
	store, err := history.Open(cfg.History.Path, logger)
	if err != nil {
		logger.Error("failed to open reply history", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Initialize clients
	redditClient := reddit.NewClient(reddit.Config{
		BaseURL:          cfg.Reddit.BaseURL,
		Username:         cfg.Reddit.Username,
		Password:         cfg.Reddit.Password,
		UserAgent:        cfg.Reddit.UserAgent,
		Timeout:          cfg.Reddit.Timeout,
		SessionCachePath: cfg.Reddit.SessionCachePath,
		SessionCacheKey:  cfg.Reddit.SessionCacheKey,
	})

	loginCtx, cancelLogin := context.WithTimeout(context.Background(), cfg.Reddit.Timeout)
	if err := redditClient.Login(loginCtx); err != nil {
		cancelLogin()
		logger.Error("reddit login failed", "error", err)
		os.Exit(1)
	}
	cancelLogin()

	crushClient := mediacrush.New(mediacrush.Config{
		BaseURL:   cfg.MediaCrush.BaseURL,
		Timeout:   cfg.MediaCrush.Timeout,
		UserAgent: cfg.Download.UserAgent,
	})

	dl := downloader.NewHTTPDownloader(cfg.Download)

	compliments, err := pipeline.NewCompliments(cfg.Compliments)
	if err != nil {
		logger.Error("failed to build compliment table", "error", err)
		os.Exit(1)
	}

	// Initialize workflow engine
	engine := pipeline.NewEngine(
		pipeline.EngineConfig{
			ServiceDomain: cfg.MediaCrush.Domain,
			PollTimeout:   cfg.MediaCrush.PollTimeout,
		},
		dl,
		crushClient,
		redditClient,
		store,
		compliments,
		logger,
	)

	// Initialize worker pool
	pool := worker.NewPool(
		worker.Config{
			Workers:   cfg.Worker.Count,
			QueueSize: cfg.Worker.QueueSize,
		},
		engine,
		logger,
	)
	pool.Start()

	// Start mention dispatcher
	dispatchCtx, cancelDispatch := context.WithCancel(context.Background())
	disp := dispatcher.New(
		cfg.Dispatcher,
		cfg.Reddit.SummonToken,
		cfg.Reddit.Username,
		redditClient,
		redditClient,
		pool,
		logger,
	)
	go disp.Start(dispatchCtx)

	// Setup status API
	statusHandler := handler.NewStatusHandler(store, disp, logger)
	router := api.NewRouter(statusHandler, cfg.Server.APIKey)

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	// Stop polling for new mentions
	cancelDispatch()

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting new requests
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Stop workers. Cancels in-flight runs and waits for them to return.
	if err := pool.Stop(25 * time.Second); err != nil {
		logger.Error("worker pool shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
