// Package server is the WebSocket front door: one HTTP mux carrying the /ws
// dictation endpoint, the health probes, and Prometheus metrics, plus the
// per-connection session controller and its VAD scheduler.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quillor/quillor/internal/asr"
	"github.com/quillor/quillor/internal/config"
	"github.com/quillor/quillor/internal/health"
	"github.com/quillor/quillor/internal/llm"
	"github.com/quillor/quillor/internal/observe"
	"github.com/quillor/quillor/internal/plugin"
	"github.com/quillor/quillor/internal/polish"
	"github.com/quillor/quillor/internal/prompts"
)

// Server owns all process-wide state the sessions share: the model registry
// and gate, the plugin chain, the prompt store, the staged polisher, and the
// runtime-reconfigurable LLM client. It replaces the scattering of globals a
// quick prototype would reach for; everything is constructed in main and
// handed down.
type Server struct {
	cfgMu    sync.RWMutex
	cfg      config.Config
	logger   *slog.Logger
	metrics  *observe.Metrics
	registry *asr.Registry
	gate     *asr.Gate
	plugins  *plugin.Chain
	store    *prompts.Store
	polisher *polish.Staged

	llmMu sync.RWMutex
	llm   llm.Client
}

// Option customises a Server.
type Option func(*Server)

// WithLogger sets the base logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics sets the metrics instance. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLLMClient sets the initial LLM client for background polishing.
func WithLLMClient(c llm.Client) Option {
	return func(s *Server) { s.llm = c }
}

// New assembles a Server. The plugin chain is discovered and loaded here;
// models load lazily per session through registry.
func New(ctx context.Context, cfg config.Config, registry *asr.Registry, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		registry: registry,
		gate:     asr.NewGate(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	storePath := cfg.Prompts.StorePath
	if storePath == "" {
		if p, err := prompts.DefaultStorePath(); err == nil {
			storePath = p
		} else {
			s.logger.Warn("prompt store disabled, no user config dir", "error", err)
		}
	}
	s.store = prompts.NewStore(storePath, s.logger)

	s.plugins = plugin.NewChain(cfg.Plugins.Dir, s.logger)
	s.plugins.LoadAll(ctx)

	polishOpts := []polish.StagedOption{polish.WithLogger(s.logger)}
	if s.llm != nil {
		polishOpts = append(polishOpts, polish.WithLLMClient(s.llm))
	}
	s.polisher = polish.NewStaged(s.store, polishOpts...)

	return s
}

// Handler returns the HTTP handler tree, wrapped in the tracing and metrics
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/metrics", promhttp.Handler())
	health.New(
		health.Checker{Name: "model", Check: s.checkModel},
		health.Checker{Name: "llm", Check: s.checkLLM},
	).Register(mux)
	return observe.Middleware(s.metrics)(mux)
}

// Close unloads plugins and closes all loaded models.
func (s *Server) Close() error {
	s.plugins.Unload(context.Background())
	return s.registry.Close()
}

// checkModel reports readiness of the default ASR model. The registry caches
// loads, so only the first probe pays the load cost.
func (s *Server) checkModel(_ context.Context) error {
	cfg := s.config()
	_, err := s.registry.Get(cfg.ASR.DefaultModel)
	return err
}

// checkLLM pings the configured LLM endpoint. No client means polishing is
// disabled, which is a healthy state for a local dictation server.
func (s *Server) checkLLM(ctx context.Context) error {
	client := s.llmClient()
	if client == nil {
		return nil
	}
	_, err := client.HealthCheck(ctx)
	return err
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	// Local tool: clients connect from app webviews and helper processes
	// with arbitrary origins.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "session ended")

	logger := observe.Logger(r.Context()).With("remote", r.RemoteAddr)
	logger.Info("client connected")

	sess := newSession(s, conn, logger)
	sess.run(r.Context())

	conn.Close(websocket.StatusNormalClosure, "bye")
	logger.Info("client disconnected")
}

// config returns a copy of the current configuration. Sessions read it at
// start so a hot reload never changes a recording mid-utterance.
func (s *Server) config() config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// ApplyConfig installs hot-reloadable settings from a freshly loaded config.
// Only the audio VAD knobs and the LLM block take effect here; everything
// else needs a restart. Intended as the config watcher's onChange hook.
func (s *Server) ApplyConfig(next config.Config) {
	cur := s.config()
	diff := config.Diff(&cur, &next)
	if !diff.Changed() {
		return
	}

	s.cfgMu.Lock()
	s.cfg.Audio = next.Audio
	s.cfg.LLM = next.LLM
	s.cfgMu.Unlock()

	if diff.LLMChanged {
		if !next.LLM.Enabled {
			s.llmMu.Lock()
			s.llm = nil
			s.llmMu.Unlock()
			s.polisher.SetLLMClient(nil)
			s.logger.Info("llm polishing disabled by config reload")
		} else if err := s.configureLLM(next.LLM.ClientConfig()); err != nil {
			s.logger.Error("config reload: llm reconfigure failed", "error", err)
		}
	}
	if diff.AudioChanged {
		s.logger.Info("audio settings reloaded",
			"silence_threshold", next.Audio.SilenceThreshold,
			"silence_duration_ms", next.Audio.SilenceDurationMS)
	}
}

// llmClient returns the current LLM client, nil when none is configured.
func (s *Server) llmClient() llm.Client {
	s.llmMu.RLock()
	defer s.llmMu.RUnlock()
	return s.llm
}

// configureLLM applies a runtime config_llm update. An existing
// OpenAI-compatible client is updated in place so in-flight requests finish
// against the old endpoint; anything else is replaced wholesale.
func (s *Server) configureLLM(cfg llm.Config) error {
	s.llmMu.Lock()
	defer s.llmMu.Unlock()

	if compat, ok := s.llm.(*llm.CompatClient); ok {
		if err := compat.UpdateConfig(cfg); err != nil {
			return err
		}
		return nil
	}

	client, err := llm.NewCompatClient(cfg)
	if err != nil {
		return err
	}
	s.llm = client
	s.polisher.SetLLMClient(client)
	return nil
}
