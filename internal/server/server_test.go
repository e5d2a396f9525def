package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/quillor/quillor/internal/asr"
	asrmock "github.com/quillor/quillor/internal/asr/mock"
	"github.com/quillor/quillor/internal/config"
	llmmock "github.com/quillor/quillor/internal/llm/mock"
)

// newTestServer spins up a Server backed by the given transcriber and
// returns a connected WebSocket client.
func newTestServer(t *testing.T, mt *asrmock.Transcriber, opts ...Option) *websocket.Conn {
	t.Helper()

	cfg := config.Default()
	cfg.Audio.SilenceDurationMS = 300
	cfg.Prompts.StorePath = filepath.Join(t.TempDir(), "prompts.json")
	cfg.Plugins.Dir = ""

	registry := asr.NewRegistry(func(string) (asr.Transcriber, error) {
		return mt, nil
	})

	srv := New(context.Background(), *cfg, registry, opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(func() { _ = srv.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "test done") })
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func sendBinary(t *testing.T, conn *websocket.Conn, frame []byte) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageBinary, frame); err != nil {
		t.Fatalf("write binary: %v", err)
	}
}

// readMsg reads one text message within d and decodes it.
func readMsg(t *testing.T, conn *websocket.Conn, d time.Duration) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	return m
}

// expectSilence asserts that no message arrives within d.
func expectSilence(t *testing.T, conn *websocket.Conn, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err == nil {
		t.Fatalf("unexpected message: %s", data)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("read failed for the wrong reason: %v", err)
	}
}

// readUntil skips messages until one of the given type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string, d time.Duration) map[string]any {
	t.Helper()
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("no %q message before deadline", msgType)
		}
		m := readMsg(t, conn, remaining)
		if m["type"] == msgType {
			return m
		}
	}
}

func TestStopWithoutAudio_EmitsOneEmptyFinal(t *testing.T) {
	t.Parallel()

	conn := newTestServer(t, &asrmock.Transcriber{})

	sendJSON(t, conn, `{"type":"start"}`)
	sendJSON(t, conn, `{"type":"stop"}`)

	m := readMsg(t, conn, 2*time.Second)
	if m["type"] != "final" {
		t.Fatalf("first message type = %v, want final", m["type"])
	}
	if m["text"] != "" {
		t.Errorf("final text = %q, want empty", m["text"])
	}
	if m["polish_method"] != "none" {
		t.Errorf("polish_method = %v, want none", m["polish_method"])
	}

	expectSilence(t, conn, 300*time.Millisecond)
}

func TestNoPolish_RawEqualsOriginal(t *testing.T) {
	t.Parallel()

	mt := &asrmock.Transcriber{Results: []asr.Result{{Text: "hello world"}}}
	conn := newTestServer(t, mt)

	// enable_polish arrives as a string from older clients.
	sendJSON(t, conn, `{"type":"start","enable_polish":"false"}`)
	sendBinary(t, conn, floatFrame(noise(0.2)))
	sendJSON(t, conn, `{"type":"stop"}`)

	m := readUntil(t, conn, "final", 5*time.Second)
	if m["polish_method"] != "none" {
		t.Errorf("polish_method = %v, want none", m["polish_method"])
	}
	if m["text"] != m["original_text"] {
		t.Errorf("text %q != original_text %q", m["text"], m["original_text"])
	}
	if m["text"] != "hello world" {
		t.Errorf("text = %q, want %q", m["text"], "hello world")
	}
}

func TestRulePolish_AppliedToFinal(t *testing.T) {
	t.Parallel()

	mt := &asrmock.Transcriber{Results: []asr.Result{{Text: "嗯今天天气很好"}}}
	conn := newTestServer(t, mt)

	sendJSON(t, conn, `{"type":"start","enable_polish":true}`)
	sendBinary(t, conn, floatFrame(noise(0.2)))
	sendJSON(t, conn, `{"type":"stop"}`)

	m := readUntil(t, conn, "final", 5*time.Second)
	if m["polish_method"] != "rules" {
		t.Errorf("polish_method = %v, want rules", m["polish_method"])
	}
	if m["text"] != "今天天气很好。" {
		t.Errorf("text = %q, want %q", m["text"], "今天天气很好。")
	}
	if m["original_text"] != "嗯今天天气很好" {
		t.Errorf("original_text = %q, want raw transcript", m["original_text"])
	}
}

func TestLLMFailure_NoPolishUpdate(t *testing.T) {
	t.Parallel()

	mt := &asrmock.Transcriber{Results: []asr.Result{{Text: "hello there"}}}
	failing := &llmmock.Client{Err: errors.New("connection refused")}
	conn := newTestServer(t, mt, WithLLMClient(failing))

	sendJSON(t, conn, `{"type":"start","enable_polish":true,"use_llm_polish":true}`)
	sendBinary(t, conn, floatFrame(noise(0.2)))
	sendJSON(t, conn, `{"type":"stop"}`)

	m := readUntil(t, conn, "final", 5*time.Second)
	if m["polish_method"] != "rules" {
		t.Errorf("polish_method = %v, want rules", m["polish_method"])
	}

	expectSilence(t, conn, 500*time.Millisecond)
}

func TestPolishUpdate_ArrivesAfterFinal(t *testing.T) {
	t.Parallel()

	mt := &asrmock.Transcriber{Results: []asr.Result{{Text: "um hello there"}}}
	working := &llmmock.Client{Reply: "Hello there!"}
	conn := newTestServer(t, mt, WithLLMClient(working))

	sendJSON(t, conn, `{"type":"start","enable_polish":true,"use_llm_polish":true}`)
	sendBinary(t, conn, floatFrame(noise(0.2)))
	sendJSON(t, conn, `{"type":"stop"}`)

	first := readUntil(t, conn, "final", 5*time.Second)
	if first["polish_method"] != "rules" {
		t.Errorf("final polish_method = %v, want rules", first["polish_method"])
	}

	update := readUntil(t, conn, "polish_update", 5*time.Second)
	if update["text"] != "Hello there!" {
		t.Errorf("polish_update text = %q, want %q", update["text"], "Hello there!")
	}

	// At most one update per utterance.
	expectSilence(t, conn, 500*time.Millisecond)
}

func TestPartialDuringRecording(t *testing.T) {
	t.Parallel()

	mt := &asrmock.Transcriber{Results: []asr.Result{{Text: "partial text"}}}
	conn := newTestServer(t, mt)

	sendJSON(t, conn, `{"type":"start"}`)
	sendBinary(t, conn, floatFrame(noise(0.5)))
	sendBinary(t, conn, floatFrame(quiet(0.5)))

	m := readUntil(t, conn, "partial", 3*time.Second)
	if m["text"] != "partial text" {
		t.Errorf("partial text = %q, want %q", m["text"], "partial text")
	}

	sendJSON(t, conn, `{"type":"stop"}`)
	readUntil(t, conn, "final", 5*time.Second)
}

func TestTimestampsMode_PauseAwarePunctuation(t *testing.T) {
	t.Parallel()

	mt := &asrmock.Transcriber{Results: []asr.Result{{
		Text: "今天天气",
		Words: []asr.Word{
			{Word: "今天", Start: 0, End: 500 * time.Millisecond},
			{Word: "天气", Start: 2200 * time.Millisecond, End: 2600 * time.Millisecond},
		},
	}}}
	conn := newTestServer(t, mt)

	sendJSON(t, conn, `{"type":"start","enable_polish":false,"use_timestamps":true}`)
	sendBinary(t, conn, floatFrame(noise(0.2)))
	sendJSON(t, conn, `{"type":"stop"}`)

	m := readUntil(t, conn, "final", 5*time.Second)
	if !strings.Contains(m["text"].(string), "今天。") {
		t.Errorf("text = %q, want a sentence break after 今天", m["text"])
	}
}

func TestInt16Frame_Decoded(t *testing.T) {
	t.Parallel()

	mt := &asrmock.Transcriber{Results: []asr.Result{{Text: "sixteen bit"}}}
	conn := newTestServer(t, mt)

	sendJSON(t, conn, `{"type":"start","enable_polish":false}`)

	// 0.2 s of full-scale int16 square wave.
	n := 3200
	frame := make([]byte, 1+2*n)
	frame[0] = 0x02
	for i := range n {
		frame[1+i*2] = 0xff
		frame[2+i*2] = 0x7f
	}
	sendBinary(t, conn, frame)
	sendJSON(t, conn, `{"type":"stop"}`)

	m := readUntil(t, conn, "final", 5*time.Second)
	if m["text"] != "sixteen bit" {
		t.Errorf("text = %q, want %q", m["text"], "sixteen bit")
	}
}

func TestUnknownMessageType_Ignored(t *testing.T) {
	t.Parallel()

	conn := newTestServer(t, &asrmock.Transcriber{})

	sendJSON(t, conn, `{"type":"definitely_not_a_thing"}`)
	sendJSON(t, conn, `{"type":"get_default_prompts"}`)

	m := readMsg(t, conn, 2*time.Second)
	if m["type"] != "default_prompts" {
		t.Fatalf("connection did not survive unknown message, got %v", m["type"])
	}
}

func TestPromptManagement(t *testing.T) {
	t.Parallel()

	conn := newTestServer(t, &asrmock.Transcriber{})

	sendJSON(t, conn, `{"type":"get_default_prompts"}`)
	defaults := readMsg(t, conn, 2*time.Second)
	prompts, ok := defaults["prompts"].(map[string]any)
	if !ok {
		t.Fatalf("default_prompts missing prompts map: %v", defaults)
	}
	if g, _ := prompts["general"].(string); g == "" {
		t.Fatalf("default_prompts missing general prompt: %v", prompts)
	}

	sendJSON(t, conn, `{"type":"save_custom_prompt","scene_type":"coding","prompt":"只修正术语。"}`)
	ack := readMsg(t, conn, 2*time.Second)
	if ack["type"] != "save_custom_prompt_ack" || ack["success"] != true {
		t.Fatalf("save ack = %v", ack)
	}

	sendJSON(t, conn, `{"type":"get_custom_prompts"}`)
	custom := readMsg(t, conn, 2*time.Second)
	cp, _ := custom["prompts"].(map[string]any)
	if cp["coding"] != "只修正术语。" {
		t.Errorf("custom coding prompt = %v", cp["coding"])
	}

	// A null prompt resets to the default.
	sendJSON(t, conn, `{"type":"save_custom_prompt","scene_type":"coding","prompt":null}`)
	reset := readMsg(t, conn, 2*time.Second)
	if reset["success"] != true {
		t.Fatalf("reset ack = %v", reset)
	}

	sendJSON(t, conn, `{"type":"get_custom_prompts"}`)
	after := readMsg(t, conn, 2*time.Second)
	ap, _ := after["prompts"].(map[string]any)
	if _, still := ap["coding"]; still {
		t.Errorf("custom prompt survived reset: %v", ap)
	}
}

func TestTestLLMConnection_Unconfigured(t *testing.T) {
	t.Parallel()

	conn := newTestServer(t, &asrmock.Transcriber{})

	sendJSON(t, conn, `{"type":"test_llm_connection"}`)
	m := readMsg(t, conn, 2*time.Second)
	if m["type"] != "test_llm_connection_result" {
		t.Fatalf("type = %v", m["type"])
	}
	if m["success"] != false {
		t.Errorf("success = %v, want false", m["success"])
	}
}

func TestConfigLLM_ThenHealthCheck(t *testing.T) {
	t.Parallel()

	// Fake OpenAI-compatible endpoint for the health check.
	fake := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/models") {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":[{"id":"test-model"}]}`))
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(fake.Close)

	conn := newTestServer(t, &asrmock.Transcriber{})

	sendJSON(t, conn, `{"type":"config_llm","config":{"api_url":"`+fake.URL+`/v1","model":"test-model"}}`)
	ack := readMsg(t, conn, 2*time.Second)
	if ack["type"] != "config_llm_ack" || ack["success"] != true {
		t.Fatalf("config_llm ack = %v", ack)
	}

	sendJSON(t, conn, `{"type":"test_llm_connection"}`)
	res := readMsg(t, conn, 5*time.Second)
	if res["success"] != true {
		t.Errorf("health check failed: %v", res)
	}
}

func TestAnalyzeHistory_LocalOnly(t *testing.T) {
	t.Parallel()

	conn := newTestServer(t, &asrmock.Transcriber{})

	sendJSON(t, conn, `{"type":"analyze_history","app_name":"Terminal","entries":[
		{"text":"deploy the staging cluster"},
		{"text":"check staging logs"},
		{"text":"restart staging"}
	]}`)
	m := readMsg(t, conn, 5*time.Second)
	if m["type"] != "analysis_result" {
		t.Fatalf("type = %v", m["type"])
	}
	result, _ := m["result"].(map[string]any)
	if result["app_name"] != "Terminal" {
		t.Errorf("app_name = %v", result["app_name"])
	}
	if result["analyzed_count"] != float64(3) {
		t.Errorf("analyzed_count = %v, want 3", result["analyzed_count"])
	}
	keywords, _ := result["keywords"].([]any)
	found := false
	for _, k := range keywords {
		if kw, ok := k.(map[string]any); ok && kw["term"] == "staging" {
			found = true
		}
	}
	if !found {
		t.Errorf("keywords missing frequent term: %v", keywords)
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Prompts.StorePath = filepath.Join(t.TempDir(), "prompts.json")
	cfg.Plugins.Dir = ""

	registry := asr.NewRegistry(func(string) (asr.Transcriber, error) {
		return &asrmock.Transcriber{}, nil
	})
	srv := New(context.Background(), *cfg, registry)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(func() { _ = srv.Close() })

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestReadyz_ReportsModelLoadFailure(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Prompts.StorePath = filepath.Join(t.TempDir(), "prompts.json")
	cfg.Plugins.Dir = ""

	registry := asr.NewRegistry(func(string) (asr.Transcriber, error) {
		return nil, errors.New("model file missing")
	})
	srv := New(context.Background(), *cfg, registry)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(func() { _ = srv.Close() })

	resp, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestStartWithoutEnablePolish_DefaultsOff(t *testing.T) {
	t.Parallel()

	mt := &asrmock.Transcriber{Results: []asr.Result{{Text: "嗯今天天气很好"}}}
	conn := newTestServer(t, mt)

	sendJSON(t, conn, `{"type":"start"}`)
	sendBinary(t, conn, floatFrame(noise(0.2)))
	sendJSON(t, conn, `{"type":"stop"}`)

	m := readUntil(t, conn, "final", 5*time.Second)
	if m["polish_method"] != "none" {
		t.Errorf("polish_method = %v, want none", m["polish_method"])
	}
	if m["text"] != "嗯今天天气很好" {
		t.Errorf("text = %q, want the raw transcript untouched", m["text"])
	}
}

func TestFinalTranscription_TimeoutDiscardsInFlightCall(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Prompts.StorePath = filepath.Join(t.TempDir(), "prompts.json")
	cfg.Plugins.Dir = ""

	mt := &asrmock.Transcriber{
		Delay:   200 * time.Millisecond,
		Results: []asr.Result{{Text: "too late"}},
	}
	registry := asr.NewRegistry(func(string) (asr.Transcriber, error) { return mt, nil })
	srv := New(context.Background(), *cfg, registry)
	t.Cleanup(func() { _ = srv.Close() })

	s := newSession(srv, nil, slog.Default())
	s.transcriber = mt
	s.settings = sessionSettings{language: "zh"}
	s.finalDeadline = 20 * time.Millisecond

	res, status := s.finalTranscription(context.Background(), noise(0.2))
	if status != statusTimeout {
		t.Fatalf("status = %q, want %q", status, statusTimeout)
	}
	if res.Text != "" {
		t.Errorf("timed-out result carried text %q", res.Text)
	}

	// A fresh start may rewrite the session while the abandoned call is
	// still inside the model; the call works on values captured before it
	// was spawned and must not observe these writes.
	s.settings = sessionSettings{language: "en", useTimestamps: true}
	s.transcriber = nil

	// Let the abandoned call run to completion inside the test.
	time.Sleep(250 * time.Millisecond)
	if got := mt.Calls(); got != 1 {
		t.Errorf("model calls = %d, want exactly 1", got)
	}
}
