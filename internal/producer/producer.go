// Package producer implements the single loop both the capture and the
// download producers run: append mono samples from a Source into a
// buffer, checkpoint at each ladder rung, and honor a cooperative stop
// request.
package producer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/vishal2612200/audiosync/internal/buffer"
	"github.com/vishal2612200/audiosync/internal/ladder"
)

// Source is the uniform contract a producer backend satisfies: block until
// the next chunk of mono float64 samples at the configured sample rate is
// available, or report io.EOF at a natural end of stream, or any other
// error as a fatal AdapterFailure. Read must itself honor ctx cancellation
// promptly — the poll period the spec calls for is "at least once per
// backend read".
type Source interface {
	Read(ctx context.Context) ([]float64, error)
	// Close releases backend resources (a device handle, a subprocess).
	// It is always called once, whether Run exits cleanly, on overflow,
	// on a fatal error, or because ctx was canceled.
	Close() error
}

// Run drives buf from src until the buffer fills, the run's stop flag is
// observed, src reports io.EOF, or src reports a fatal error. It
// checkpoints (signals the shared condition variable) whenever the
// buffer's watermark reaches or passes the next unreached rung in rungs.
//
// Run's own return value is informational only — the authoritative outcome
// is what it did to state: a clean exit or Overflow leaves state's stop
// flag for the Matcher/Supervisor to observe as a plain stop, while a
// fatal backend error calls state.Stop(err) itself so the Supervisor
// reports Failed(err).
func Run(ctx context.Context, name string, src Source, buf *buffer.Buffer, state *buffer.State, rungs ladder.Ladder, log *slog.Logger) error {
	log = nonNilLogger(log)
	defer func() {
		if err := src.Close(); err != nil {
			log.Warn("producer backend close failed", "producer", name, "err", err)
		}
	}()

	nextRung := 0
	for {
		if stopped, _ := state.Stopped(); stopped {
			log.Debug("producer observed stop flag", "producer", name, "written", buf.Watermark())
			return nil
		}

		samples, err := src.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				log.Debug("producer source ended", "producer", name, "written", buf.Watermark())
				return nil
			}
			wrapped := fmt.Errorf("producer %s: %w", name, err)
			log.Error("producer backend failure", "producer", name, "err", err)
			state.Stop(wrapped)
			return wrapped
		}

		if err := buf.Append(samples); err != nil {
			if errors.Is(err, buffer.ErrOverflow) {
				// Overflow is a normal stream end: keep the part of the
				// chunk that still fits so the buffer fills, signal once
				// and exit.
				if room := buf.Capacity() - buf.Watermark(); room > 0 {
					_ = buf.Append(samples[:room])
				}
				buf.Checkpoint()
				log.Debug("producer buffer full", "producer", name, "written", buf.Watermark())
				return nil
			}
			wrapped := fmt.Errorf("producer %s: %w", name, err)
			state.Stop(wrapped)
			return wrapped
		}

		for nextRung < len(rungs) && buf.Watermark() >= rungs[nextRung] {
			buf.Checkpoint()
			nextRung++
		}

		if buf.Full() {
			buf.Checkpoint()
			log.Debug("producer buffer full", "producer", name, "written", buf.Watermark())
			return nil
		}
	}
}

func nonNilLogger(log *slog.Logger) *slog.Logger {
	if log == nil {
		return slog.Default()
	}
	return log
}
