// Command sori is the Bible read-aloud tracking server. It serves the
// progress API, the leaderboard, and the WebSocket endpoint that follows a
// reader verse by verse through live speech transcripts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/podonamu/sori/internal/bible"
	"github.com/podonamu/sori/internal/config"
	"github.com/podonamu/sori/internal/health"
	"github.com/podonamu/sori/internal/match"
	"github.com/podonamu/sori/internal/observe"
	"github.com/podonamu/sori/internal/progress"
	pgstore "github.com/podonamu/sori/internal/progress/postgres"
	"github.com/podonamu/sori/internal/resilience"
	"github.com/podonamu/sori/internal/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "sori: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "sori: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("sori starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "sori"})
	if err != nil {
		slog.Error("init telemetry", "err", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(ctx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()

	data, err := bible.Load(cfg.Bible.DataPath)
	if err != nil {
		slog.Error("load verse data", "path", cfg.Bible.DataPath, "err", err)
		return 1
	}

	var (
		store  progress.Store
		checks []health.Checker
	)
	if cfg.Store.PostgresDSN != "" {
		pg, err := pgstore.NewStore(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			slog.Error("connect progress store", "err", err)
			return 1
		}
		defer pg.Close()
		store = progress.NewBreakerStore(pg, resilience.CircuitBreakerConfig{
			Name:         "progress-store",
			MaxFailures:  5,
			ResetTimeout: 30 * time.Second,
		})
		checks = append(checks, health.Checker{Name: "database", Check: pg.Ping})
		slog.Info("progress store ready", "backend", "postgres")
	} else {
		store = progress.NewMemStore()
		slog.Warn("no postgres_dsn configured; progress is kept in memory and lost on restart")
	}

	srv := server.New(server.Config{
		Verses:      data,
		Store:       store,
		Engine:      match.NewEngine(cfg.Matching.EngineOptions()...),
		Metrics:     observe.DefaultMetrics(),
		Speech:      cfg.Speech,
		Logger:      logger,
		ReadyChecks: checks,
	})

	// Matching, speech, and log level settings apply to new sessions without
	// a restart. Everything else (listen address, store, data path) needs one.
	watcher, err := config.NewWatcher(*configPath, func(old, next *config.Config) {
		d := config.Diff(old, next)
		if d.Empty() {
			return
		}
		if d.LogLevelChanged {
			slog.SetDefault(newLogger(d.NewLogLevel))
		}
		if d.MatchingChanged {
			srv.SetEngine(match.NewEngine(next.Matching.EngineOptions()...))
		}
		if d.SpeechChanged {
			srv.SetSpeech(next.Speech)
		}
		slog.Info("configuration reloaded",
			"log_level_changed", d.LogLevelChanged,
			"matching_changed", d.MatchingChanged,
			"speech_changed", d.SpeechChanged,
		)
	})
	if err != nil {
		slog.Error("watch config", "err", err)
		return 1
	}
	defer watcher.Stop()

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server ready", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
