// Package asr defines the transcription abstraction the session pipeline is
// built on: a normalised [Transcriber] interface, the process-wide [Gate]
// serialising model access, and a lazy [Registry] of loaded models.
//
// Backends return a single typed [Result] regardless of what shape the
// underlying engine produces, so the session code never branches on result
// shape.
package asr

import (
	"context"
	"time"
)

// Word is one recognised word with its time span in the utterance.
type Word struct {
	Word  string
	Start time.Duration
	End   time.Duration
}

// Result is the normalised output of a transcription call. Words is non-nil
// only for timestamp-mode calls on backends that support alignment.
type Result struct {
	Text  string
	Words []Word
}

// Transcriber is the abstraction over any speech-recognition backend.
//
// Implementations are not required to be safe for concurrent invocation;
// callers must serialise access through the process-wide [Gate]. Both methods
// block for the duration of the model call, so callers on a latency-sensitive
// path should run them on their own goroutine and honour ctx.
type Transcriber interface {
	// Transcribe recognises speech in samples (mono float32 PCM at
	// sampleRate Hz). language is the model's language name; empty means
	// auto-detect.
	Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) (Result, error)

	// TranscribeWithTimestamps recognises speech and additionally aligns
	// word-level time spans. Backends without alignment support return a
	// Result with nil Words.
	TranscribeWithTimestamps(ctx context.Context, samples []float32, sampleRate int, language string) (Result, error)

	// Close releases the backend's resources.
	Close() error
}
