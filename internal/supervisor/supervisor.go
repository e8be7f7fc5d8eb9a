// Package supervisor launches the capture and download producers, drives
// the Matcher, propagates the stop flag, joins the producers within a
// bounded timeout, and reports the final outcome.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vishal2612200/audiosync/internal/buffer"
	"github.com/vishal2612200/audiosync/internal/ladder"
	"github.com/vishal2612200/audiosync/internal/producer"
)

// ErrJoinTimeout is logged (not returned as Err) when a producer fails to
// exit within the Supervisor's join timeout; the producer's name is recorded
// in RunResult.Leaked, and the timeout is non-fatal to the reported result.
var ErrJoinTimeout = errors.New("supervisor: producer did not exit before join timeout")

// Config parameterizes one Sync run.
type Config struct {
	// Ladder is the escalating prefix-length schedule; its last rung
	// also fixes both SampleBuffers' capacity.
	Ladder ladder.Ladder
	// Threshold is MIN_CONFIDENCE.
	Threshold float64
	// JoinTimeout bounds how long Sync waits for both producers to exit
	// after the stop flag is set. Defaults to 2x the ladder's capacity
	// expressed in wall-clock at the nominal sample rate when zero.
	JoinTimeout time.Duration
	// SampleRate is only used to compute the default JoinTimeout; it does
	// not otherwise affect Sync.
	SampleRate int

	Capture  producer.Source
	Download producer.Source

	Log *slog.Logger
}

// RunResult is the terminal outcome of a Sync call.
type RunResult struct {
	Outcome    ladder.Outcome
	LagSamples int
	Confidence float64
	RungIndex  int
	Err        error
	// Leaked names producers that did not join within JoinTimeout.
	Leaked []string
}

// Sync allocates both SampleBuffers, spawns the capture and download
// producers, drives the Matcher to completion, and joins both producers
// before returning.
func Sync(ctx context.Context, cfg Config) RunResult {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	if err := cfg.Ladder.Validate(); err != nil {
		return RunResult{Outcome: ladder.Failed, Err: fmt.Errorf("supervisor: %w", err)}
	}
	if cfg.Capture == nil || cfg.Download == nil {
		return RunResult{Outcome: ladder.Failed, Err: errors.New("supervisor: both producer sources are required")}
	}

	capacity := cfg.Ladder.Capacity()
	state := buffer.NewState()
	captureBuf := buffer.NewBuffer(state, buffer.Capture, capacity)
	downloadBuf := buffer.NewBuffer(state, buffer.Download, capacity)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	captureDone := make(chan struct{})
	downloadDone := make(chan struct{})
	go func() {
		defer close(captureDone)
		_ = producer.Run(runCtx, "capture", cfg.Capture, captureBuf, state, cfg.Ladder, log)
	}()
	go func() {
		defer close(downloadDone)
		_ = producer.Run(runCtx, "download", cfg.Download, downloadBuf, state, cfg.Ladder, log)
	}()

	matcher := ladder.Matcher{Threshold: cfg.Threshold}
	result := matcher.Run(state, captureBuf, downloadBuf, cfg.Ladder)
	log.Info("match attempt finished",
		"outcome", result.Outcome.String(),
		"rung", result.RungIndex,
		"rung_samples", result.RungSamples,
		"lag_samples", result.LagSamples,
		"confidence", result.Confidence,
	)

	// The Matcher always leaves the stop flag set on every exit path, but
	// propagate it again defensively in case a future Matcher variant
	// returns without doing so.
	state.Stop(nil)
	cancel()

	timeout := cfg.JoinTimeout
	if timeout <= 0 {
		timeout = joinTimeoutFor(cfg.SampleRate, capacity)
	}
	deadlineCtx, deadlineCancel := context.WithTimeout(context.Background(), timeout)
	defer deadlineCancel()

	var leaked []string
	for _, producerJoin := range []struct {
		name string
		done <-chan struct{}
	}{{"capture", captureDone}, {"download", downloadDone}} {
		select {
		case <-producerJoin.done:
		case <-deadlineCtx.Done():
			leaked = append(leaked, producerJoin.name)
		}
	}
	if len(leaked) > 0 {
		log.Warn("producer did not exit before join timeout", "err", ErrJoinTimeout, "timeout", timeout, "leaked", leaked)
	}

	return RunResult{
		Outcome:    result.Outcome,
		LagSamples: result.LagSamples,
		Confidence: result.Confidence,
		RungIndex:  result.RungIndex,
		Err:        result.Err,
		Leaked:     leaked,
	}
}

func joinTimeoutFor(sampleRate, capacitySamples int) time.Duration {
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	longestInterval := time.Duration(capacitySamples) * time.Second / time.Duration(sampleRate)
	return 2 * longestInterval
}
