// Command quillor is the local voice-dictation server: a WebSocket endpoint
// that accepts streamed microphone audio and returns progressively refined
// text (raw transcript, rule-polished, optionally LLM-polished).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/quillor/quillor/internal/asr"
	"github.com/quillor/quillor/internal/asr/whisper"
	"github.com/quillor/quillor/internal/config"
	"github.com/quillor/quillor/internal/observe"
	"github.com/quillor/quillor/internal/server"
)

// version is stamped by the build; "dev" for local builds.
var version = "dev"

const defaultConfigPath = "config.yaml"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", defaultConfigPath, "path to the YAML configuration file")
	listenAddr := flag.String("listen", "", "override server.listen_addr from the config")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist) && *configPath == defaultConfigPath:
		// No config file is fine for a local tool; run on defaults.
		cfg = config.Default()
	case errors.Is(err, os.ErrNotExist):
		fmt.Fprintf(os.Stderr, "quillor: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		return 1
	default:
		fmt.Fprintf(os.Stderr, "quillor: %v\n", err)
		return 1
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Log.Level))
	logger := newLogger(cfg.Log, level)
	slog.SetDefault(logger)

	slog.Info("quillor starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Log.Level,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	shutdownObserve, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "quillor",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownObserve(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown failed", "err", err)
		}
	}()

	// ── Models ────────────────────────────────────────────────────────────────
	registry := asr.NewRegistry(whisper.Factory(cfg.ASR.ModelDir))
	if cfg.ASR.Warmup {
		if err := warmupModel(ctx, registry, cfg.ASR.DefaultModel); err != nil {
			slog.Error("model warmup failed", "model_id", cfg.ASR.DefaultModel, "err", err)
			return 1
		}
	}

	// ── LLM polishing client (optional) ───────────────────────────────────────
	serverOpts := []server.Option{server.WithLogger(logger)}
	llmClient, err := cfg.LLM.NewLLMClient()
	if err != nil {
		slog.Error("failed to build llm client", "err", err)
		return 1
	}
	if llmClient != nil {
		serverOpts = append(serverOpts, server.WithLLMClient(llmClient))
		slog.Info("llm polishing enabled", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)
	}

	// ── Server ────────────────────────────────────────────────────────────────
	srv := server.New(ctx, *cfg, registry, serverOpts...)
	defer func() {
		if err := srv.Close(); err != nil {
			slog.Warn("server close", "err", err)
		}
	}()

	// ── Config hot reload ─────────────────────────────────────────────────────
	if _, statErr := os.Stat(*configPath); statErr == nil {
		watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
			diff := config.Diff(old, new)
			if diff.LogLevelChanged {
				level.Set(slogLevel(diff.NewLogLevel))
				slog.Info("log level changed", "level", diff.NewLogLevel)
			}
			srv.ApplyConfig(*new)
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer watcher.Stop()
		}
	}

	// ── HTTP listeners ────────────────────────────────────────────────────────
	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serve(gctx, httpSrv) })

	if cfg.Server.MetricsAddr != "" {
		metricsSrv := &http.Server{
			Addr:              cfg.Server.MetricsAddr,
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error { return serve(gctx, metricsSrv) })
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "err", err)
		return 1
	}

	slog.Info("quillor stopped")
	return 0
}

// serve runs one HTTP listener until gctx is cancelled, then drains it.
func serve(ctx context.Context, s *http.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	}
}

// warmupModel loads the default model and runs a second of silence through
// it so the first real utterance does not pay the native warm-up cost.
func warmupModel(ctx context.Context, registry *asr.Registry, modelID string) error {
	t, err := registry.Get(modelID)
	if err != nil {
		return err
	}
	if w, ok := t.(interface{ Warmup(context.Context) error }); ok {
		return w.Warmup(ctx)
	}
	return nil
}

// newLogger builds the process logger: stderr by default, a rotating file
// via lumberjack when log.file is set.
func newLogger(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	var out io.Writer = os.Stderr
	if cfg.File != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
