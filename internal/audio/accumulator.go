// Package audio provides the per-session audio buffer, the wire-format
// decoder for inbound PCM frames, energy-based silence classification, and
// optional WAV debug dumps.
//
// All audio in Quillor is mono float32 PCM at 16 kHz. Clients may send
// samples in several wire encodings (see [DecodeFrame]); everything past the
// decoder works on normalised float32 samples in [-1, 1].
package audio

import (
	"encoding/binary"
	"math"
	"sync"
)

// SampleRate is the fixed sample rate for all session audio, in Hz.
const SampleRate = 16000

// Wire-format tags carried in the first byte of a binary audio frame.
const (
	// FormatFloat32 tags a frame whose remaining bytes are little-endian
	// float32 PCM.
	FormatFloat32 byte = 0x01

	// FormatInt16 tags a frame whose remaining bytes are little-endian
	// int16 PCM, scaled to float32 by dividing by 32767.
	FormatInt16 byte = 0x02
)

// DecodeFrame converts one binary wire frame into float32 samples.
//
// The first byte selects the encoding: [FormatFloat32] or [FormatInt16].
// Any other leading byte means the frame predates the format tag and the
// entire payload is little-endian float32 PCM with no byte stripped.
// Frames of one byte or less carry no audio and decode to nil.
func DecodeFrame(frame []byte) []float32 {
	if len(frame) <= 1 {
		return nil
	}

	switch frame[0] {
	case FormatFloat32:
		return bytesToFloat32(frame[1:])
	case FormatInt16:
		return int16ToFloat32(frame[1:])
	default:
		// Legacy frame: the leading byte is audio data, keep it.
		return bytesToFloat32(frame)
	}
}

// bytesToFloat32 reinterprets little-endian float32 bytes as samples.
// A trailing partial sample is ignored.
func bytesToFloat32(b []byte) []float32 {
	n := len(b) / 4
	samples := make([]float32, n)
	for i := range n {
		bits := binary.LittleEndian.Uint32(b[i*4 : i*4+4])
		samples[i] = math.Float32frombits(bits)
	}
	return samples
}

// int16ToFloat32 converts little-endian int16 PCM to float32 in [-1, 1].
// A trailing odd byte is ignored.
func int16ToFloat32(b []byte) []float32 {
	n := len(b) / 2
	samples := make([]float32, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(b[i*2 : i*2+2]))
		samples[i] = float32(sample) / 32767.0
	}
	return samples
}

// Accumulator owns the growing raw-sample buffer for one recording session.
// It is append-only between resets: both the VAD scheduler and the final
// transcription need the entire utterance, not a sliding window.
//
// Safe for concurrent use: the session loop appends while the VAD scheduler
// snapshots.
type Accumulator struct {
	mu      sync.Mutex
	samples []float32
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Append decodes a binary wire frame and appends its samples to the buffer.
// Malformed or empty frames are silently ignored.
func (a *Accumulator) Append(frame []byte) {
	samples := DecodeFrame(frame)
	if len(samples) == 0 {
		return
	}
	a.mu.Lock()
	a.samples = append(a.samples, samples...)
	a.mu.Unlock()
}

// Snapshot returns a copy of the accumulated samples. The returned slice is
// owned by the caller and never mutated by subsequent appends.
func (a *Accumulator) Snapshot() []float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.samples) == 0 {
		return nil
	}
	out := make([]float32, len(a.samples))
	copy(out, a.samples)
	return out
}

// Len returns the number of accumulated samples.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.samples)
}

// Reset clears the buffer to empty.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	a.samples = a.samples[:0]
	a.mu.Unlock()
}
