package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/quillor/quillor/internal/audio"
)

// checkInterval is how often the scheduler inspects the accumulator.
const checkInterval = 100 * time.Millisecond

// minWindow is the shortest snapshot worth classifying: 100 ms at 16 kHz.
// Shorter windows are statistically unreliable for RMS.
const minWindow = audio.SampleRate / 10

// vadScheduler watches one session's accumulator and triggers a partial
// transcription once enough consecutive silent windows have passed and new
// audio exists since the last trigger.
//
// It owns a single goroutine. The transcribe function is called from that
// goroutine, so partial transcriptions for one session never overlap; the
// process-wide gate inside transcribe prevents cross-session overlap.
type vadScheduler struct {
	acc        *audio.Accumulator
	threshold  float64
	frames     int // consecutive silent ticks before a trigger
	transcribe func(ctx context.Context, samples []float32) (string, error)
	emit       func(text string)
	logger     *slog.Logger

	done     chan struct{}
	finished chan struct{}
	stopOnce sync.Once
}

// newVADScheduler wires a scheduler; call start to begin ticking.
// silenceDuration is rounded down to whole check intervals, minimum one.
func newVADScheduler(
	acc *audio.Accumulator,
	threshold float64,
	silenceDuration time.Duration,
	transcribe func(ctx context.Context, samples []float32) (string, error),
	emit func(text string),
	logger *slog.Logger,
) *vadScheduler {
	frames := int(silenceDuration / checkInterval)
	if frames < 1 {
		frames = 1
	}
	return &vadScheduler{
		acc:        acc,
		threshold:  threshold,
		frames:     frames,
		transcribe: transcribe,
		emit:       emit,
		logger:     logger,
		done:       make(chan struct{}),
		finished:   make(chan struct{}),
	}
}

// start launches the scheduler goroutine. ctx bounds transcription calls;
// stop ends the loop.
func (v *vadScheduler) start(ctx context.Context) {
	go v.run(ctx)
}

// stop ends the loop and waits for the goroutine to exit. An in-flight
// transcription is allowed to finish, its result discarded. Safe to call
// more than once.
func (v *vadScheduler) stop() {
	v.stopOnce.Do(func() { close(v.done) })
	<-v.finished
}

func (v *vadScheduler) run(ctx context.Context) {
	defer close(v.finished)

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	var (
		silenceFrames int
		lastTriggered int
		lastEmitted   string
	)

	for {
		select {
		case <-v.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snapshot := v.acc.Snapshot()
		if len(snapshot) < minWindow {
			continue
		}

		// Classify only the newest 100 ms.
		if audio.IsSilence(snapshot[len(snapshot)-minWindow:], v.threshold) {
			silenceFrames++
		} else {
			silenceFrames = 0
		}

		if silenceFrames < v.frames || len(snapshot) <= lastTriggered {
			continue
		}

		text, err := v.transcribe(ctx, snapshot)
		silenceFrames = 0
		if err != nil {
			// A missed partial is not fatal; the final transcription at
			// stop is authoritative.
			v.logger.Warn("partial transcription failed", "error", err)
			continue
		}

		select {
		case <-v.done:
			// Stopped while transcribing; the final path owns output now.
			return
		default:
		}

		if text != "" && text != lastEmitted {
			v.emit(text)
			lastEmitted = text
			lastTriggered = len(snapshot)
		}
	}
}
