package asr

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Factory constructs a Transcriber for a model identifier. Loading is
// typically expensive (reads model weights), so the Registry calls a Factory
// at most once per id for concurrent requests.
type Factory func(modelID string) (Transcriber, error)

// Registry is the process-wide cache of loaded models, keyed by model id.
// Models are loaded lazily on first reference and never evicted: a small
// number of distinct models is expected over a process lifetime, and all
// sessions referencing the same id share one instance.
type Registry struct {
	factory Factory

	mu     sync.RWMutex
	models map[string]Transcriber

	group singleflight.Group
}

// NewRegistry returns a Registry that loads models through factory.
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		factory: factory,
		models:  make(map[string]Transcriber),
	}
}

// Get returns the Transcriber for modelID, loading it on first reference.
// Concurrent calls for the same id are collapsed into a single load.
func (r *Registry) Get(modelID string) (Transcriber, error) {
	if modelID == "" {
		return nil, fmt.Errorf("asr: model id must not be empty")
	}

	r.mu.RLock()
	t, ok := r.models[modelID]
	r.mu.RUnlock()
	if ok {
		return t, nil
	}

	v, err, _ := r.group.Do(modelID, func() (any, error) {
		// Re-check under the flight: another caller may have completed a
		// load between the RUnlock above and entering the group.
		r.mu.RLock()
		t, ok := r.models[modelID]
		r.mu.RUnlock()
		if ok {
			return t, nil
		}

		slog.Info("loading model", "model_id", modelID)
		t, err := r.factory(modelID)
		if err != nil {
			return nil, fmt.Errorf("asr: load model %q: %w", modelID, err)
		}

		r.mu.Lock()
		r.models[modelID] = t
		r.mu.Unlock()
		slog.Info("model loaded", "model_id", modelID)
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Transcriber), nil
}

// Close closes every loaded model. Called once at shutdown.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for id, t := range r.models {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("asr: close model %q: %w", id, err)
		}
	}
	r.models = make(map[string]Transcriber)
	return firstErr
}
