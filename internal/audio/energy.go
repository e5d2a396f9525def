package audio

import "math"

// DefaultSilenceThreshold is the RMS level below which a window counts as
// silence, on the float32 amplitude scale (samples in [-1, 1]).
const DefaultSilenceThreshold = 0.01

// RMS computes the root-mean-square energy of a sample window.
// An empty window has zero energy.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// IsSilence reports whether the window's RMS energy is below threshold.
//
// Callers should not pass windows shorter than 10 ms (160 samples at 16 kHz);
// shorter windows are statistically unreliable. That guard belongs to the
// caller, not here.
func IsSilence(samples []float32, threshold float64) bool {
	return RMS(samples) < threshold
}
