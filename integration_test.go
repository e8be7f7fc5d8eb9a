package audiosync

import (
	"context"
	"io"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/vishal2612200/audiosync/internal/ladder"
	"github.com/vishal2612200/audiosync/internal/supervisor"
	"github.com/vishal2612200/audiosync/internal/wavfixture"
)

// fileSource replays samples already loaded into memory (from a WAV
// fixture) in fixed-size chunks, standing in for a real capture/decode
// backend in an end-to-end test driven entirely from disk.
type fileSource struct {
	samples []float64
	chunk   int
	pos     int
}

func (s *fileSource) Read(ctx context.Context) ([]float64, error) {
	if s.pos >= len(s.samples) {
		return nil, io.EOF
	}
	n := s.chunk
	if s.pos+n > len(s.samples) {
		n = len(s.samples) - s.pos
	}
	out := s.samples[s.pos : s.pos+n]
	s.pos += n
	return out, nil
}

func (s *fileSource) Close() error { return nil }

// TestSyncFromWAVFixturesMatchesKnownLag exercises the full producer ->
// buffer -> ladder -> correlator path against WAV files on disk instead of
// a live device/subprocess, round-tripping through the same encoder/
// decoder the real adapters would read.
func TestSyncFromWAVFixturesMatchesKnownLag(t *testing.T) {
	const sampleRate = 4000
	l, err := ladder.New(sampleRate, 5)
	if err != nil {
		t.Fatalf("ladder.New() error = %v", err)
	}

	base := make([]float64, l.Capacity())
	for i := range base {
		base[i] = 0.6 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate))
	}
	const shift = 80
	delayed := make([]float64, l.Capacity())
	copy(delayed[shift:], base[:l.Capacity()-shift])

	dir := t.TempDir()
	refPath := filepath.Join(dir, "reference.wav")
	candPath := filepath.Join(dir, "candidate.wav")
	if err := wavfixture.WriteMono(refPath, base, sampleRate); err != nil {
		t.Fatalf("WriteMono(reference) error = %v", err)
	}
	if err := wavfixture.WriteMono(candPath, delayed, sampleRate); err != nil {
		t.Fatalf("WriteMono(candidate) error = %v", err)
	}

	refSamples, refRate, err := wavfixture.ReadMono(refPath)
	if err != nil {
		t.Fatalf("ReadMono(reference) error = %v", err)
	}
	candSamples, candRate, err := wavfixture.ReadMono(candPath)
	if err != nil {
		t.Fatalf("ReadMono(candidate) error = %v", err)
	}
	if refRate != sampleRate || candRate != sampleRate {
		t.Fatalf("sample rates = (%d, %d), want %d", refRate, candRate, sampleRate)
	}

	result := supervisor.Sync(context.Background(), supervisor.Config{
		Ladder:      l,
		Threshold:   1.0,
		SampleRate:  sampleRate,
		JoinTimeout: 5 * time.Second,
		Capture:     &fileSource{samples: refSamples, chunk: 97},
		Download:    &fileSource{samples: candSamples, chunk: 131},
	})

	if result.Outcome != ladder.Matched {
		t.Fatalf("Outcome = %v, want Matched", result.Outcome)
	}
	if result.LagSamples != shift {
		t.Fatalf("LagSamples = %d, want %d", result.LagSamples, shift)
	}
}
