package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// DumpWAV writes samples as a 16-bit mono WAV file into dir, named by the
// current time. Used for debugging mis-recognised utterances when
// server.debug_dump_dir is configured. Returns the path written.
func DumpWAV(dir string, samples []float32) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("audio: create dump dir: %w", err)
	}

	path := filepath.Join(dir, time.Now().Format("20060102-150405.000")+".wav")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("audio: create dump file: %w", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, SampleRate, 16, 1, 1)

	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: SampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(samples)),
	}
	for i, s := range samples {
		switch {
		case s > 1:
			s = 1
		case s < -1:
			s = -1
		}
		buf.Data[i] = int(s * 32767)
	}

	if err := enc.Write(buf); err != nil {
		return "", fmt.Errorf("audio: write dump: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("audio: finalise dump: %w", err)
	}
	return path, nil
}
