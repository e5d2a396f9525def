package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/quillor/quillor/internal/asr"
	"github.com/quillor/quillor/internal/audio"
	"github.com/quillor/quillor/internal/history"
	"github.com/quillor/quillor/internal/llm"
	"github.com/quillor/quillor/internal/polish"
	"github.com/quillor/quillor/internal/prompts"
)

// Final transcription deadlines. Timestamp mode performs two model passes
// (recognition then alignment), so it gets double.
const (
	finalTimeout           = 30 * time.Second
	finalTimeoutTimestamps = 60 * time.Second
)

// Final statuses reported to metrics.
const (
	statusOK      = "ok"
	statusEmpty   = "empty"
	statusTimeout = "timeout"
	statusError   = "error"
)

// sessionSettings is captured once per start message and immutable until the
// next start.
type sessionSettings struct {
	enablePolish  bool
	useLLMPolish  bool
	useTimestamps bool
	modelID       string
	language      string
	scene         *polish.Scene
}

// session is the per-connection controller. The message loop is the only
// goroutine mutating session fields; the VAD scheduler and background polish
// goroutines touch nothing but the accumulator and the serialised send path.
type session struct {
	srv    *Server
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	acc         *audio.Accumulator
	recording   bool
	settings    sessionSettings
	transcriber asr.Transcriber
	vad         *vadScheduler

	// finalDeadline overrides the stop transcription deadline when non-zero.
	finalDeadline time.Duration

	// bg tracks in-flight LLM polish tasks. They are detached at teardown:
	// the session never waits on them, it only keeps them referenced.
	bg sync.WaitGroup
}

func newSession(srv *Server, conn *websocket.Conn, logger *slog.Logger) *session {
	return &session{
		srv:    srv,
		conn:   conn,
		logger: logger,
		acc:    audio.NewAccumulator(),
	}
}

// run processes the connection until it closes. Errors from individual
// messages close this connection only; the HTTP handler recovers nothing
// further, so a broken session can never take down another.
func (s *session) run(ctx context.Context) {
	defer s.teardown(ctx)

	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			s.logger.Debug("connection closed", "reason", err)
			return
		}

		switch typ {
		case websocket.MessageBinary:
			s.handleAudio(ctx, data)
		case websocket.MessageText:
			if err := s.handleMessage(ctx, data); err != nil {
				s.logger.Error("message handling failed, closing session", "error", err)
				s.conn.Close(websocket.StatusInternalError, "internal error")
				return
			}
		}
	}
}

func (s *session) teardown(ctx context.Context) {
	if s.vad != nil {
		s.vad.stop()
		s.vad = nil
	}
	if s.recording {
		s.recording = false
		s.srv.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)
	}
	// Background polish tasks outlive the session; their sends fail
	// harmlessly once the connection is gone.
}

// send serialises one outbound message. All writers go through here so
// partial emissions never interleave with final or control replies.
func (s *session) send(ctx context.Context, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("server: marshal %T: %w", msg, err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.conn.Write(writeCtx, websocket.MessageText, data)
}

// ─── audio ──────────────────────────────────────────────────────────────────

func (s *session) handleAudio(ctx context.Context, frame []byte) {
	if !s.recording {
		return
	}
	s.srv.metrics.RecordAudioFrame(ctx, frameFormat(frame))
	s.acc.Append(frame)
}

func frameFormat(frame []byte) string {
	if len(frame) == 0 {
		return "empty"
	}
	switch frame[0] {
	case audio.FormatFloat32:
		return "float32"
	case audio.FormatInt16:
		return "int16"
	default:
		return "legacy"
	}
}

// ─── control messages ───────────────────────────────────────────────────────

func (s *session) handleMessage(ctx context.Context, data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("server: parse control message: %w", err)
	}

	switch env.Type {
	case "start":
		return s.handleStart(ctx, &env)
	case "stop":
		return s.handleStop(ctx)
	case "config_llm":
		return s.handleConfigLLM(ctx, &env)
	case "test_llm_connection":
		return s.handleTestLLM(ctx)
	case "analyze_history":
		return s.handleAnalyzeHistory(ctx, &env)
	case "get_default_prompts":
		return s.send(ctx, promptsMsg{Type: "default_prompts", Prompts: prompts.Defaults()})
	case "get_custom_prompts":
		return s.send(ctx, promptsMsg{Type: "custom_prompts", Prompts: s.srv.store.Custom()})
	case "save_custom_prompt":
		return s.handleSavePrompt(ctx, &env)
	default:
		s.logger.Debug("ignoring unknown message type", "type", env.Type)
		return nil
	}
}

func (s *session) handleStart(ctx context.Context, env *envelope) error {
	// A start while recording restarts the utterance.
	if s.vad != nil {
		s.vad.stop()
		s.vad = nil
	}
	if !s.recording {
		s.srv.metrics.ActiveSessions.Add(ctx, 1)
	}

	s.acc.Reset()
	cfg := s.srv.config()

	enablePolish := bool(env.EnablePolish)
	modelID := env.ModelID
	if modelID == "" {
		modelID = cfg.ASR.DefaultModel
	}
	langCode := env.Language
	if langCode == "" {
		langCode = cfg.ASR.Language
	}

	scene := env.Scene
	if env.ActiveApp != nil {
		if scene == nil {
			scene = &polish.Scene{}
		}
		scene.ActiveApp = *env.ActiveApp
	}

	language := asr.MapLanguage(langCode)
	s.settings = sessionSettings{
		enablePolish:  enablePolish,
		useLLMPolish:  bool(env.UseLLMPolish),
		useTimestamps: bool(env.UseTimestamps),
		modelID:       modelID,
		language:      language,
		scene:         scene,
	}

	t, err := s.srv.registry.Get(modelID)
	if err != nil {
		// Record without a model: partials and the final degrade to empty
		// rather than erroring the whole session.
		s.logger.Error("model load failed", "model_id", modelID, "error", err)
	}
	s.transcriber = t

	s.recording = true
	s.vad = newVADScheduler(
		s.acc,
		cfg.Audio.SilenceThreshold,
		time.Duration(cfg.Audio.SilenceDurationMS)*time.Millisecond,
		func(ctx context.Context, samples []float32) (string, error) {
			res, err := s.transcribeLocked(ctx, t, samples, language, false, "partial")
			return res.Text, err
		},
		func(text string) {
			s.srv.metrics.RecordPartial(ctx)
			if err := s.send(ctx, partialMsg{Type: "partial", Text: text}); err != nil {
				s.logger.Warn("partial send failed", "error", err)
			}
		},
		s.logger,
	)
	s.vad.start(ctx)

	s.logger.Info("recording started",
		"model_id", modelID,
		"language", langCode,
		"enable_polish", enablePolish,
		"use_llm_polish", bool(env.UseLLMPolish),
		"use_timestamps", bool(env.UseTimestamps))
	return nil
}

func (s *session) handleStop(ctx context.Context) error {
	// Join the VAD goroutine first so no partial can race the final.
	if s.vad != nil {
		s.vad.stop()
		s.vad = nil
	}
	if s.recording {
		s.recording = false
		s.srv.metrics.ActiveSessions.Add(ctx, -1)
	}

	snapshot := s.acc.Snapshot()
	if len(snapshot) == 0 {
		return s.sendFinal(ctx, "", "", polish.MethodNone, statusEmpty)
	}

	if dir := s.srv.config().Audio.DebugDumpDir; dir != "" {
		if path, err := audio.DumpWAV(dir, snapshot); err != nil {
			s.logger.Warn("debug dump failed", "error", err)
		} else {
			s.logger.Debug("utterance dumped", "path", path)
		}
	}

	res, status := s.finalTranscription(ctx, snapshot)
	if status != statusOK {
		return s.sendFinal(ctx, "", "", polish.MethodNone, status)
	}

	raw := res.Text
	if s.settings.useTimestamps && len(res.Words) > 0 {
		raw = polish.PunctuateWords(res.Words)
	}
	if raw == "" {
		return s.sendFinal(ctx, "", "", polish.MethodNone, statusEmpty)
	}

	if !s.settings.enablePolish {
		out := s.srv.plugins.Process(ctx, raw)
		return s.sendFinal(ctx, out, raw, polish.MethodNone, statusOK)
	}

	polished, method := s.srv.polisher.Quick(raw, s.settings.scene)
	out := s.srv.plugins.Process(ctx, polished)
	if err := s.sendFinal(ctx, out, raw, method, statusOK); err != nil {
		return err
	}

	if s.settings.useLLMPolish && s.srv.polisher.HasLLM() {
		s.spawnBackgroundPolish(ctx, raw, s.settings.scene)
	}
	return nil
}

// finalTranscription runs the authoritative model pass under the gate with a
// hard deadline. On timeout the in-flight call keeps the gate until the
// native code returns; its result is discarded. The transcriber and settings
// are captured into locals here: the abandoned goroutine may outlive a
// subsequent start that rewrites the session fields.
func (s *session) finalTranscription(ctx context.Context, samples []float32) (asr.Result, string) {
	t := s.transcriber
	if t == nil {
		return asr.Result{}, statusError
	}
	language := s.settings.language
	timestamps := s.settings.useTimestamps

	timeout := finalTimeout
	mode := "final"
	if timestamps {
		timeout = finalTimeoutTimestamps
		mode = "final_timestamps"
	}
	if s.finalDeadline > 0 {
		timeout = s.finalDeadline
	}

	type outcome struct {
		res asr.Result
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := s.transcribeLocked(ctx, t, samples, language, timestamps, mode)
		ch <- outcome{res, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case o := <-ch:
		if o.err != nil {
			s.logger.Error("final transcription failed", "error", o.err)
			return asr.Result{}, statusError
		}
		return o.res, statusOK
	case <-timer.C:
		s.logger.Warn("final transcription timed out", "timeout", timeout)
		return asr.Result{}, statusTimeout
	case <-ctx.Done():
		return asr.Result{}, statusError
	}
}

// transcribeLocked performs one model call under the process-wide gate and
// records its latency. The transcriber and language come in as arguments so
// callers that outlive the message loop never read session fields.
func (s *session) transcribeLocked(ctx context.Context, t asr.Transcriber, samples []float32, language string, timestamps bool, mode string) (asr.Result, error) {
	if t == nil {
		return asr.Result{}, fmt.Errorf("server: no model loaded")
	}

	start := time.Now()
	var res asr.Result
	err := s.srv.gate.With(func() error {
		var err error
		if timestamps {
			res, err = t.TranscribeWithTimestamps(ctx, samples, audio.SampleRate, language)
		} else {
			res, err = t.Transcribe(ctx, samples, audio.SampleRate, language)
		}
		return err
	})
	s.srv.metrics.ASRDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("mode", mode)))
	return res, err
}

func (s *session) sendFinal(ctx context.Context, text, original string, method polish.Method, status string) error {
	s.srv.metrics.RecordFinal(ctx, status, string(method))
	return s.send(ctx, finalMsg{
		Type:         "final",
		Text:         text,
		OriginalText: original,
		PolishMethod: string(method),
	})
}

// spawnBackgroundPolish fires the LLM stage. The goroutine is tracked but
// never joined: it outlives stop and even disconnect, and a failed send of
// the eventual polish_update is logged, not raised.
func (s *session) spawnBackgroundPolish(ctx context.Context, raw string, scene *polish.Scene) {
	bgCtx := context.WithoutCancel(ctx)
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()

		start := time.Now()
		out, err := s.srv.polisher.Background(bgCtx, raw, scene)
		s.srv.metrics.LLMDuration.Record(bgCtx, time.Since(start).Seconds())
		if err != nil {
			s.srv.metrics.RecordLLMError(bgCtx)
			s.logger.Warn("llm polish failed, keeping rule-polished text", "error", err)
			return
		}

		out = s.srv.plugins.Process(bgCtx, out)
		if err := s.send(bgCtx, polishUpdateMsg{Type: "polish_update", Text: out}); err != nil {
			s.logger.Debug("polish_update send failed", "error", err)
			return
		}
		s.srv.metrics.PolishUpdates.Add(bgCtx, 1)
	}()
}

// ─── llm and prompt management ──────────────────────────────────────────────

func (s *session) handleConfigLLM(ctx context.Context, env *envelope) error {
	if env.Config == nil {
		return s.send(ctx, ackMsg{Type: "config_llm_ack", Error: "missing config"})
	}

	cfg := llm.Config{
		APIURL:      env.Config.APIURL,
		APIKey:      env.Config.APIKey,
		Model:       env.Config.Model,
		Temperature: env.Config.Temperature,
		MaxTokens:   env.Config.MaxTokens,
		Timeout:     time.Duration(env.Config.TimeoutSeconds) * time.Second,
	}
	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return s.send(ctx, ackMsg{Type: "config_llm_ack", Error: err.Error()})
	}

	if err := s.srv.configureLLM(cfg); err != nil {
		return s.send(ctx, ackMsg{Type: "config_llm_ack", Error: err.Error()})
	}

	s.logger.Info("llm reconfigured", "api_url", cfg.APIURL, "model", cfg.Model)
	return s.send(ctx, ackMsg{Type: "config_llm_ack", Success: true})
}

func (s *session) handleTestLLM(ctx context.Context) error {
	client := s.srv.llmClient()
	if client == nil {
		return s.send(ctx, llmTestResultMsg{
			Type:  "test_llm_connection_result",
			Error: "llm not configured",
		})
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	latency, err := client.HealthCheck(checkCtx)
	if err != nil {
		return s.send(ctx, llmTestResultMsg{
			Type:  "test_llm_connection_result",
			Error: err.Error(),
		})
	}
	return s.send(ctx, llmTestResultMsg{
		Type:      "test_llm_connection_result",
		Success:   true,
		LatencyMS: latency.Milliseconds(),
	})
}

func (s *session) handleAnalyzeHistory(ctx context.Context, env *envelope) error {
	analyzer := history.NewAnalyzer(s.srv.llmClient(), s.logger)
	result := analyzer.Analyze(ctx, env.Entries, env.AppName, env.ExistingTerms)
	return s.send(ctx, analysisResultMsg{Type: "analysis_result", Result: result})
}

func (s *session) handleSavePrompt(ctx context.Context, env *envelope) error {
	if env.SceneType == "" {
		return s.send(ctx, savePromptAckMsg{
			Type:  "save_custom_prompt_ack",
			Error: "missing scene_type",
		})
	}

	var err error
	if env.Prompt == nil {
		err = s.srv.store.Reset(env.SceneType)
	} else {
		err = s.srv.store.Set(env.SceneType, *env.Prompt)
	}
	if err != nil {
		return s.send(ctx, savePromptAckMsg{
			Type:      "save_custom_prompt_ack",
			SceneType: env.SceneType,
			Error:     err.Error(),
		})
	}
	return s.send(ctx, savePromptAckMsg{
		Type:      "save_custom_prompt_ack",
		Success:   true,
		SceneType: env.SceneType,
	})
}
