// Package correlate implements the frequency-domain circular
// cross-correlation that estimates the lag between two equal-length mono
// sample vectors.
package correlate

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	algofft "github.com/cwbudde/algo-fft"
)

// ErrInsufficientData is returned when the inputs are shorter than two
// samples.
var ErrInsufficientData = errors.New("correlate: insufficient data")

// ErrNumericFailure is returned when the underlying FFT backend refuses to
// set up a plan or execute a transform for the requested length.
var ErrNumericFailure = errors.New("correlate: numeric failure")

// planLock serializes FFT plan construction/destruction only. Per the
// correlator's concurrency contract, transform execution (Forward/Inverse)
// never runs under this lock. If algo-fft's plan lifecycle is ever made
// thread-safe on its own, this lock becomes a no-op and can be removed.
var planLock sync.Mutex

// Result is the outcome of a single correlation.
type Result struct {
	// Lag is the sample offset in [0, n) at which b appears delayed
	// relative to a, where n is len(a) == len(b).
	Lag int
	// Confidence is the peak magnitude of the correlation surface. It is
	// not normalized: it scales with input amplitude.
	Confidence float64
}

// Correlate computes the lag and confidence between a and b, which must
// already be zero-padded by the caller to a common length n (see the
// Matcher, which owns the padding policy).
func Correlate(a, b []float64) (Result, error) {
	n := len(a)
	if n != len(b) {
		return Result{}, fmt.Errorf("correlate: length mismatch: %d vs %d", n, len(b))
	}
	if n < 2 {
		return Result{}, ErrInsufficientData
	}

	fwd, inv, err := newTransform(n)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrNumericFailure, err)
	}

	bins := n/2 + 1
	specA := make([]complex128, bins)
	specB := make([]complex128, bins)
	if err := fwd(specA, a); err != nil {
		return Result{}, fmt.Errorf("%w: forward(a): %v", ErrNumericFailure, err)
	}
	if err := fwd(specB, b); err != nil {
		return Result{}, fmt.Errorf("%w: forward(b): %v", ErrNumericFailure, err)
	}

	// Cross-power spectrum: conj(A[k]) * B[k]. A literal magnitude-only
	// weighting (A[k] * |B[k]|) discards B's phase and therefore cannot
	// satisfy the shift-law property below, since rotating b leaves
	// |B[k]| unchanged for every k; conjugate multiplication is the
	// magnitude-weighted product that actually carries the lag.
	//
	// The conjugate must land on a, not b: IFFT(FFT(p)*conj(FFT(q)))
	// peaks at index d when p[n] = q[n-d], i.e. it reports how far the
	// *first* argument is delayed relative to the second. Lag is defined
	// here as how far b is delayed relative to a, so a takes the
	// conjugate and b does not.
	product := make([]complex128, bins)
	for k := range product {
		product[k] = cmplx.Conj(specA[k]) * specB[k]
	}

	r := make([]float64, n)
	if err := inv(r, product); err != nil {
		return Result{}, fmt.Errorf("%w: inverse: %v", ErrNumericFailure, err)
	}

	confidence := math.Abs(r[0])
	lag := 0
	for i := 1; i < n; i++ {
		if v := math.Abs(r[i]); v > confidence {
			confidence = v
			lag = i
		}
	}

	return Result{Lag: lag, Confidence: confidence}, nil
}

type forwardFunc func(dst []complex128, src []float64) error
type inverseFunc func(dst []float64, src []complex128) error

// newTransform builds a fresh, unshared real-FFT plan pair for length n,
// preferring the fast plan and falling back to the safe one exactly as
// analysis.getLagFFTPlan does in the teacher repository. The plan is not
// retained past this call: scratch and plan objects are scoped to one
// Correlate invocation and released (by the garbage collector, there being
// no explicit Close in algo-fft) on every exit path.
func newTransform(n int) (forwardFunc, inverseFunc, error) {
	planLock.Lock()
	fast, fastErr := algofft.NewFastPlanReal64(n)
	var safe *algofft.PlanRealT[float64, complex128]
	var safeErr error
	if fastErr != nil {
		if !errors.Is(fastErr, algofft.ErrNotImplemented) {
			planLock.Unlock()
			return nil, nil, fastErr
		}
		safe, safeErr = algofft.NewPlanReal64(n)
	}
	planLock.Unlock()

	switch {
	case fast != nil:
		return func(dst []complex128, src []float64) error {
				fast.Forward(dst, src)
				return nil
			}, func(dst []float64, src []complex128) error {
				fast.Inverse(dst, src)
				return nil
			}, nil
	case safe != nil:
		return safe.Forward, safe.Inverse, nil
	default:
		return nil, nil, safeErr
	}
}
