// Package whisper backs the [asr.Transcriber] interface with the whisper.cpp
// CGO bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// Model files are the standard ggml format, resolved from a model directory
// as ggml-<id>.bin (so model id "base" maps to ggml-base.bin).
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/quillor/quillor/internal/asr"
)

// Compile-time assertion that Transcriber satisfies asr.Transcriber.
var _ asr.Transcriber = (*Transcriber)(nil)

// Transcriber wraps one loaded whisper.cpp model.
//
// The model itself may be shared, but a whisper context is not safe for
// concurrent use and every call here creates a fresh one. Callers must still
// serialise invocations through the process-wide [asr.Gate]: concurrent
// entry into the native code from different OS threads has crashed the
// process before.
type Transcriber struct {
	model whisperlib.Model
	path  string
}

// ModelPath resolves a model id to its ggml file inside dir.
func ModelPath(dir, modelID string) string {
	return filepath.Join(dir, "ggml-"+modelID+".bin")
}

// Factory returns an [asr.Factory] loading ggml models from dir.
func Factory(dir string) asr.Factory {
	return func(modelID string) (asr.Transcriber, error) {
		return New(ModelPath(dir, modelID))
	}
}

// New loads the ggml model at path. The caller must call Close when the
// transcriber is no longer needed.
func New(path string) (*Transcriber, error) {
	if path == "" {
		return nil, errors.New("whisper: model path must not be empty")
	}
	model, err := whisperlib.New(path)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", path, err)
	}
	return &Transcriber{model: model, path: path}, nil
}

// Close releases the native model.
func (t *Transcriber) Close() error {
	if t.model != nil {
		return t.model.Close()
	}
	return nil
}

// Transcribe recognises speech in samples. language empty means auto-detect.
func (t *Transcriber) Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) (asr.Result, error) {
	return t.run(ctx, samples, language, false)
}

// TranscribeWithTimestamps recognises speech and aligns word-level time
// spans using whisper's token timestamps.
func (t *Transcriber) TranscribeWithTimestamps(ctx context.Context, samples []float32, sampleRate int, language string) (asr.Result, error) {
	return t.run(ctx, samples, language, true)
}

func (t *Transcriber) run(ctx context.Context, samples []float32, language string, timestamps bool) (asr.Result, error) {
	if err := ctx.Err(); err != nil {
		return asr.Result{}, fmt.Errorf("whisper: %w", err)
	}

	wctx, err := t.model.NewContext()
	if err != nil {
		return asr.Result{}, fmt.Errorf("whisper: create context: %w", err)
	}

	if language != "" {
		if err := wctx.SetLanguage(language); err != nil {
			slog.Warn("whisper: failed to set language, using auto-detect",
				"language", language, "error", err)
		}
	}
	if timestamps {
		wctx.SetTokenTimestamps(true)
	}

	// Process blocks for the whole inference; the native code offers no
	// cancellation hook, so ctx is only honoured between calls.
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return asr.Result{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var (
		parts []string
		words []asr.Word
	)
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return asr.Result{}, fmt.Errorf("whisper: read segment: %w", err)
		}

		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
		if !timestamps {
			continue
		}
		for _, tok := range segment.Tokens {
			if !wctx.IsText(tok) {
				continue
			}
			w := strings.TrimSpace(tok.Text)
			if w == "" {
				continue
			}
			words = append(words, asr.Word{
				Word:  w,
				Start: tok.Start,
				End:   tok.End,
			})
		}
	}

	return asr.Result{Text: strings.Join(parts, " "), Words: words}, nil
}

// Warmup runs one second of silence through the model so the first real
// utterance does not pay the native warm-up cost. Call under the gate.
func (t *Transcriber) Warmup(ctx context.Context) error {
	silence := make([]float32, 16000)
	_, err := t.Transcribe(ctx, silence, 16000, "")
	return err
}
