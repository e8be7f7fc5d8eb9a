// Package audiosync is the embedding façade: GetLag runs one full capture-
// versus-download synchronization attempt against a real sound device and
// a real decode subprocess, and reports the estimated lag in samples.
package audiosync

import (
	"context"
	"log/slog"

	"github.com/vishal2612200/audiosync/internal/capture"
	"github.com/vishal2612200/audiosync/internal/decode"
	"github.com/vishal2612200/audiosync/internal/ladder"
	"github.com/vishal2612200/audiosync/internal/supervisor"
)

// DefaultSampleRateHz is the fixed mono sample rate every internal
// interval constant is expressed in multiples of.
const DefaultSampleRateHz = 48000

// DefaultThreshold is MIN_CONFIDENCE, applied uniformly across every rung.
const DefaultThreshold = 9000.0

// Options configures GetLag. A zero SampleRateHz, Threshold, or FFmpegPath
// selects the default sample rate, threshold, or decode command; the ladder
// is always the default one. DeviceIndex is passed to capture unchanged: a
// negative value auto-selects the output-sink monitor (falling back to the
// default input device), while 0 selects device index 0.
type Options struct {
	SampleRateHz int
	Threshold    float64
	FFmpegPath   string
	DeviceIndex  int
	Log          *slog.Logger
}

// GetLag runs one synchronization attempt between a capture of the default
// capture source (the output-sink monitor if one exists, else the default
// input device) and a decode of url, and returns the estimated lag in
// samples. ok is false for NoMatch, Failed, or SetupFailure — the caller
// cannot distinguish those cases from the boolean alone, matching the
// embedding interface's "distinguished sentinel" contract. No state is
// retained between calls.
func GetLag(ctx context.Context, url string) (int, bool) {
	return GetLagWithOptions(ctx, url, Options{DeviceIndex: -1})
}

// GetLagWithOptions is GetLag with explicit tuning; see Options.
func GetLagWithOptions(ctx context.Context, url string, opts Options) (int, bool) {
	sampleRate := opts.SampleRateHz
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRateHz
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	capDevice, err := capture.Open(capture.DeviceOptions{
		SampleRateHz: sampleRate,
		DeviceIndex:  opts.DeviceIndex,
		Log:          log,
	})
	if err != nil {
		log.Error("capture setup failed", "err", err)
		return 0, false
	}

	decodeSource, err := decode.Start(ctx, decode.Options{
		FFmpegPath:   opts.FFmpegPath,
		URL:          url,
		SampleRateHz: sampleRate,
		Log:          log,
	})
	if err != nil {
		log.Error("decode setup failed", "err", err)
		_ = capDevice.Close()
		return 0, false
	}

	result := supervisor.Sync(ctx, supervisor.Config{
		Ladder:     ladder.Default(sampleRate),
		Threshold:  threshold,
		SampleRate: sampleRate,
		Capture:    capDevice,
		Download:   decodeSource,
		Log:        log,
	})

	if result.Outcome != ladder.Matched {
		return 0, false
	}
	return result.LagSamples, true
}
