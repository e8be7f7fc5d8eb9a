package correlate

import (
	"math"
	"math/rand"
	"testing"
)

func TestCorrelateIdentityPeaksAtZero(t *testing.T) {
	const n = 4096
	x := makeSine(n, 440.0, 48000)

	res, err := Correlate(x, x)
	if err != nil {
		t.Fatalf("Correlate() error = %v", err)
	}
	if res.Lag != 0 {
		t.Fatalf("Lag = %d, want 0", res.Lag)
	}
	if res.Confidence <= 0 {
		t.Fatalf("Confidence = %f, want > 0", res.Confidence)
	}
}

func TestCorrelateShiftLaw(t *testing.T) {
	const n = 4096
	x := randomSignal(n, 7)

	for _, d := range []int{0, 1, 237, n - 1} {
		y := rotate(x, d)
		res, err := Correlate(x, y)
		if err != nil {
			t.Fatalf("Correlate() error = %v", err)
		}
		if res.Lag != d {
			t.Fatalf("rotate(%d): Lag = %d, want %d", d, res.Lag, d)
		}
	}
}

func TestCorrelateInsufficientData(t *testing.T) {
	_, err := Correlate([]float64{1}, []float64{1})
	if err == nil {
		t.Fatalf("expected ErrInsufficientData, got nil")
	}
}

func TestCorrelateLengthMismatch(t *testing.T) {
	_, err := Correlate([]float64{1, 2, 3}, []float64{1, 2})
	if err == nil {
		t.Fatalf("expected an error for mismatched lengths")
	}
}

func makeSine(n int, freq float64, sampleRate int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
	}
	return out
}

func randomSignal(n int, seed int64) []float64 {
	r := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = r.Float64()*2 - 1
	}
	return out
}

// rotate returns x circularly shifted right by d: rotate(x, d)[i] == x[i-d mod n].
func rotate(x []float64, d int) []float64 {
	n := len(x)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[(i+d)%n] = x[i]
	}
	return out
}
