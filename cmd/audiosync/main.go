// Command audiosync estimates the lag in milliseconds between a local
// capture device and a remote media URL.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vishal2612200/audiosync/internal/capture"
	"github.com/vishal2612200/audiosync/internal/decode"
	"github.com/vishal2612200/audiosync/internal/ladder"
	"github.com/vishal2612200/audiosync/internal/supervisor"
)

func main() {
	sampleRate := flag.Int("sample-rate", 48000, "Mono sample rate in Hz")
	threshold := flag.Float64("threshold", 9000, "MIN_CONFIDENCE applied uniformly across ladder rungs")
	joinTimeout := flag.Duration("join-timeout", 0, "Bound on waiting for both producers to exit (0 = default, 2x the ladder's longest interval)")
	deviceIndex := flag.Int("device", -1, "Input device index (-1 = output-sink monitor if found, else system default input)")
	ffmpegPath := flag.String("ffmpeg", "", "Path to the decode binary (empty = \"ffmpeg\" on PATH)")
	flag.Parse()

	if flag.NArg() != 1 {
		die("usage: audiosync [flags] <URL>")
	}
	url := flag.Arg(0)

	log := slog.Default()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	capDevice, err := capture.Open(capture.DeviceOptions{
		SampleRateHz: *sampleRate,
		DeviceIndex:  *deviceIndex,
		Log:          log,
	})
	if err != nil {
		die("capture setup failed: %v", err)
	}

	decodeSource, err := decode.Start(ctx, decode.Options{
		FFmpegPath:   *ffmpegPath,
		URL:          url,
		SampleRateHz: *sampleRate,
		Log:          log,
	})
	if err != nil {
		_ = capDevice.Close()
		die("decode setup failed: %v", err)
	}

	result := supervisor.Sync(ctx, supervisor.Config{
		Ladder:      ladder.Default(*sampleRate),
		Threshold:   *threshold,
		SampleRate:  *sampleRate,
		JoinTimeout: *joinTimeout,
		Capture:     capDevice,
		Download:    decodeSource,
		Log:         log,
	})

	switch result.Outcome {
	case ladder.Matched:
		lagMS := result.LagSamples * 1000 / *sampleRate
		fmt.Printf("RESULT: lag=%dms, confidence=%v\n", lagMS, result.Confidence)
		os.Exit(0)
	case ladder.NoMatch:
		fmt.Println("RESULT: no match")
		os.Exit(0)
	case ladder.Failed:
		die("sync failed: %v", result.Err)
	default:
		die("sync returned unexpected outcome %v", result.Outcome)
	}
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
