package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeEndpoint serves the two OpenAI-compatible routes the client uses and
// records the last completion request body.
type fakeEndpoint struct {
	mu       sync.Mutex
	reply    string
	status   int
	lastBody map[string]any
}

func newFakeEndpoint(reply string) *fakeEndpoint {
	return &fakeEndpoint{reply: reply, status: http.StatusOK}
}

func (f *fakeEndpoint) body() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastBody
}

func (f *fakeEndpoint) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": []any{}})
	})
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.lastBody = body
		f.mu.Unlock()
		if f.status != http.StatusOK {
			w.WriteHeader(f.status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"model":  body["model"],
			"choices": []any{
				map[string]any{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]any{"role": "assistant", "content": f.reply},
				},
			},
		})
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeEndpoint) (*CompatClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	c, err := NewCompatClient(Config{APIURL: srv.URL, Model: "test-model"})
	if err != nil {
		t.Fatalf("NewCompatClient: %v", err)
	}
	return c, srv
}

func TestCompatClient_ChatCompletion(t *testing.T) {
	t.Parallel()
	f := newFakeEndpoint("polished text")
	c, _ := newTestClient(t, f)

	got, err := Polish(context.Background(), c, "fix the text", "raw text")
	if err != nil {
		t.Fatalf("Polish: %v", err)
	}
	if got != "polished text" {
		t.Errorf("Polish = %q, want %q", got, "polished text")
	}

	if f.body()["model"] != "test-model" {
		t.Errorf("model = %v, want test-model", f.body()["model"])
	}
	msgs, ok := f.body()["messages"].([]any)
	if !ok || len(msgs) != 2 {
		t.Fatalf("messages = %v, want 2 entries", f.body()["messages"])
	}
	first := msgs[0].(map[string]any)
	if first["role"] != "system" || first["content"] != "fix the text" {
		t.Errorf("system message = %v", first)
	}
}

func TestCompatClient_UpdateConfigSwitchesEndpoint(t *testing.T) {
	t.Parallel()
	f1 := newFakeEndpoint("from first")
	f2 := newFakeEndpoint("from second")
	c, _ := newTestClient(t, f1)
	srv2 := httptest.NewServer(f2.handler())
	t.Cleanup(srv2.Close)

	if err := c.UpdateConfig(Config{APIURL: srv2.URL, Model: "other-model"}); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}

	got, err := c.ChatCompletion(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}
	if got != "from second" {
		t.Errorf("reply = %q, want %q", got, "from second")
	}
	if f2.body()["model"] != "other-model" {
		t.Errorf("model = %v, want other-model", f2.body()["model"])
	}
}

func TestCompatClient_ErrorStatus(t *testing.T) {
	t.Parallel()
	f := newFakeEndpoint("unused")
	f.status = http.StatusInternalServerError
	c, _ := newTestClient(t, f)

	if _, err := c.ChatCompletion(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}); err == nil {
		t.Fatal("expected error from 500 response")
	}
}

func TestCompatClient_HealthCheck(t *testing.T) {
	t.Parallel()
	f := newFakeEndpoint("unused")
	c, _ := newTestClient(t, f)

	latency, err := c.HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if latency <= 0 {
		t.Errorf("latency = %v, want > 0", latency)
	}

	f.status = http.StatusServiceUnavailable
	if _, err := c.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected error from unavailable endpoint")
	}
}

func TestConfig_Sanitize(t *testing.T) {
	t.Parallel()
	var cfg Config
	cfg.Sanitize()
	def := DefaultConfig()
	if cfg != def {
		t.Errorf("zero config sanitized to %+v, want defaults %+v", cfg, def)
	}

	cfg = Config{APIURL: "http://example.com/v1/", Model: "m"}
	cfg.Sanitize()
	if strings.HasSuffix(cfg.APIURL, "/") {
		t.Errorf("trailing slash kept: %q", cfg.APIURL)
	}
	if cfg.Timeout != 10*time.Second {
		t.Errorf("timeout = %v, want default 10s", cfg.Timeout)
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	if err := (Config{Model: "m"}).Validate(); err == nil {
		t.Error("expected error for missing api_url")
	}
	if err := (Config{APIURL: "http://x"}).Validate(); err == nil {
		t.Error("expected error for missing model")
	}
	if err := (Config{APIURL: "http://x", Model: "m"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
