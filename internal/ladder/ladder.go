// Package ladder implements the escalating prefix-length schedule and the
// Matcher that drives the Correlator across it, stopping at the first rung
// whose confidence crosses the configured threshold.
package ladder

import (
	"errors"
	"fmt"

	"github.com/cwbudde/algo-approx"

	"github.com/vishal2612200/audiosync/internal/buffer"
	"github.com/vishal2612200/audiosync/internal/correlate"
)

// ErrInvalidLadder is returned by New and Validate when the ladder is
// empty, a rung is non-positive, or the rung lengths are not strictly
// increasing.
var ErrInvalidLadder = errors.New("ladder: invalid rung sequence")

// Ladder is the ordered sequence of prefix lengths I0 < I1 < ... < Ik-1 at
// which a match attempt is made. The last rung also determines the
// SampleBuffer capacity for a run.
type Ladder []int

// New validates and returns a ladder built from base and steps: rungs are
// base, 2*base, ... up to and including steps*base. Preserved as a
// constructor parameter per the spec's "Ladder configurability" design
// note, rather than hard-coded.
func New(base int, steps int) (Ladder, error) {
	if base <= 0 || steps <= 0 {
		return nil, fmt.Errorf("%w: base=%d steps=%d must be positive", ErrInvalidLadder, base, steps)
	}
	rungs := make(Ladder, steps)
	for i := range rungs {
		rungs[i] = base * (i + 1)
	}
	return rungs, rungs.Validate()
}

// Default returns the reference ladder: 3*SR, 6*SR, 9*SR, 12*SR, 15*SR.
func Default(sampleRate int) Ladder {
	rungs, err := New(3*sampleRate, 5)
	if err != nil {
		// sampleRate > 0 is the only precondition New can fail on, and
		// callers of Default are expected to pass a valid sample rate.
		panic(err)
	}
	return rungs
}

// Validate checks that the ladder is strictly increasing and non-empty.
func (l Ladder) Validate() error {
	if len(l) == 0 {
		return fmt.Errorf("%w: empty ladder", ErrInvalidLadder)
	}
	for i, n := range l {
		if n <= 0 {
			return fmt.Errorf("%w: rung %d is non-positive (%d)", ErrInvalidLadder, i, n)
		}
		if i > 0 && n <= l[i-1] {
			return fmt.Errorf("%w: rung %d (%d) does not exceed rung %d (%d)", ErrInvalidLadder, i, n, i-1, l[i-1])
		}
	}
	return nil
}

// Capacity returns the final rung, i.e. the capacity each SampleBuffer
// must be allocated with for this ladder.
func (l Ladder) Capacity() int {
	return l[len(l)-1]
}

// Outcome classifies a Run's result.
type Outcome int

const (
	// NoMatch means every rung was attempted (or the run was stopped
	// before any rung was reachable) without crossing the threshold.
	NoMatch Outcome = iota
	// Matched means a rung's confidence crossed the threshold.
	Matched
	// Failed means a fatal error (an AdapterFailure surfaced by a
	// producer, or a setup failure) ended the run before a result could
	// be determined.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case NoMatch:
		return "NoMatch"
	case Matched:
		return "Matched"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result is the outcome of one Matcher.Run invocation.
type Result struct {
	Outcome     Outcome
	LagSamples  int
	Confidence  float64
	RungIndex   int
	RungSamples int
	Err         error
}

// DisplayPercent is a fast, approximate "how close to threshold" figure
// suitable for progress logging only — not a statistically normalized
// confidence. It reuses the teacher's exp-decay display-score shape
// (analysis.Metrics.Similarity = exp(-4*Score)) with algo-approx's fast
// exponential in place of math.Exp, computing exp(-2*(1 - confidence/
// threshold)): about 0.135 at zero confidence, 1 at the threshold, and
// above 1 once confidence overshoots it. A non-positive threshold gives 0.
func (r Result) DisplayPercent(threshold float64) float64 {
	if threshold <= 0 {
		return 0
	}
	ratio := r.Confidence / threshold
	shortfall := float32(1.0 - ratio)
	return float64(approx.FastExp(-2 * shortfall))
}

// Matcher drives a Ladder against two buffers, invoking the Correlator at
// each rung once both buffers have delivered it.
type Matcher struct {
	// Threshold is MIN_CONFIDENCE: the single real value applied
	// uniformly across rungs. Correlator confidence is not normalized, so
	// the threshold is amplitude-sensitive: the same signals at a larger
	// amplitude reach it more easily.
	Threshold float64
}

// Run attempts each rung of rungs in order against bufA/bufB, synchronized
// through state. It returns as soon as a rung's confidence meets or
// exceeds the threshold, setting state's stop flag on its way out in every
// case — a successful match, an exhausted ladder, or a run stopped
// elsewhere (an AdapterFailure) before every rung could be attempted.
func (m Matcher) Run(state *buffer.State, bufA, bufB *buffer.Buffer, rungs Ladder) Result {
	for i, n := range rungs {
		if ready := state.WaitForRung(n); !ready {
			if stopped, err := state.Stopped(); stopped && err != nil {
				return Result{Outcome: Failed, Err: err, RungIndex: i, RungSamples: n}
			}
			return Result{Outcome: NoMatch, RungIndex: i, RungSamples: n}
		}

		a, err := bufA.ReadPrefix(n)
		if err != nil {
			continue
		}
		b, err := bufB.ReadPrefix(n)
		if err != nil {
			continue
		}

		padded := paddedLength(n)
		res, err := correlate.Correlate(zeroPad(a, padded), zeroPad(b, padded))
		if err != nil {
			// NumericFailure: skip this rung, continue to the next one.
			continue
		}

		if res.Confidence >= m.Threshold {
			state.Stop(nil)
			return Result{
				Outcome:     Matched,
				LagSamples:  foldLag(res.Lag, padded, n),
				Confidence:  res.Confidence,
				RungIndex:   i,
				RungSamples: n,
			}
		}
	}

	state.Stop(nil)
	return Result{Outcome: NoMatch, RungIndex: len(rungs) - 1, RungSamples: rungs[len(rungs)-1]}
}

// paddedLength returns 2*n-1 rounded up to the next power of two, the
// zero-padding policy the Matcher owns per spec.md §4.2 step 2.
func paddedLength(n int) int {
	return nextPow2(2*n - 1)
}

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func zeroPad(x []float64, length int) []float64 {
	out := make([]float64, length)
	copy(out, x)
	return out
}

// foldLag maps a circular lag in [0, padded) back to the signed range
// [-(n-1), n-1], the interpretation RunResult documents for lag_samples.
func foldLag(d, padded, n int) int {
	if d < n {
		return d
	}
	return d - padded
}
