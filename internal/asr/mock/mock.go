// Package mock provides a scripted in-memory Transcriber for tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/quillor/quillor/internal/asr"
)

// Compile-time assertion that Transcriber satisfies asr.Transcriber.
var _ asr.Transcriber = (*Transcriber)(nil)

// Transcriber returns scripted results and records every call. The zero
// value is usable and returns empty results.
//
// Results are consumed in order; when the script runs out the last entry
// repeats. Err, when set, is returned by every call instead. Delay, when
// set, holds each call open for that long (or until ctx is cancelled),
// useful for exercising serialisation and timeout paths.
type Transcriber struct {
	mu      sync.Mutex
	Results []asr.Result
	Err     error
	Delay   time.Duration

	calls       int
	inFlight    int
	maxInFlight int
	closed      bool
}

// Calls returns how many transcription calls have been made.
func (t *Transcriber) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// MaxConcurrent returns the highest number of calls that were ever inside
// the transcriber at the same time.
func (t *Transcriber) MaxConcurrent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxInFlight
}

// Closed reports whether Close has been called.
func (t *Transcriber) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Transcriber) next(ctx context.Context) (asr.Result, error) {
	if err := ctx.Err(); err != nil {
		return asr.Result{}, err
	}

	t.mu.Lock()
	t.calls++
	t.inFlight++
	if t.inFlight > t.maxInFlight {
		t.maxInFlight = t.inFlight
	}
	delay := t.Delay
	scriptErr := t.Err
	var res asr.Result
	if scriptErr == nil && len(t.Results) > 0 {
		i := t.calls - 1
		if i >= len(t.Results) {
			i = len(t.Results) - 1
		}
		res = t.Results[i]
	}
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.inFlight--
		t.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return asr.Result{}, ctx.Err()
		}
	}
	if scriptErr != nil {
		return asr.Result{}, scriptErr
	}
	return res, nil
}

// Transcribe returns the next scripted result.
func (t *Transcriber) Transcribe(ctx context.Context, _ []float32, _ int, _ string) (asr.Result, error) {
	return t.next(ctx)
}

// TranscribeWithTimestamps returns the next scripted result unchanged, Words
// included when the script provides them.
func (t *Transcriber) TranscribeWithTimestamps(ctx context.Context, _ []float32, _ int, _ string) (asr.Result, error) {
	return t.next(ctx)
}

// Close marks the transcriber closed.
func (t *Transcriber) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}
