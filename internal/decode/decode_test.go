package decode

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"
)

func encodeF32LE(samples []float32) []byte {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(s))
	}
	return buf
}

func TestSourceReadDecodesFloat32LE(t *testing.T) {
	want := []float32{0.25, -0.5, 1.0, -1.0}
	s := &Source{stdout: bytes.NewReader(encodeF32LE(want))}

	out, err := s.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(out) != len(want) {
		t.Fatalf("len(out) = %d, want %d", len(out), len(want))
	}
	for i, v := range want {
		if out[i] != float64(v) {
			t.Fatalf("out[%d] = %v, want %v", i, out[i], float64(v))
		}
	}
}

func TestSourceReadReturnsEOFOnEmptyStream(t *testing.T) {
	s := &Source{stdout: bytes.NewReader(nil)}
	_, err := s.Read(context.Background())
	if !errors.Is(err, io.EOF) {
		t.Fatalf("Read() error = %v, want io.EOF", err)
	}
}

func TestSourceReadHandlesShortFinalChunk(t *testing.T) {
	want := []float32{1, 2, 3}
	s := &Source{stdout: bytes.NewReader(encodeF32LE(want))}

	out, err := s.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(out) != len(want) {
		t.Fatalf("len(out) = %d, want %d", len(out), len(want))
	}

	_, err = s.Read(context.Background())
	if !errors.Is(err, io.EOF) {
		t.Fatalf("second Read() error = %v, want io.EOF", err)
	}
}

func TestSourceReadRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &Source{stdout: bytes.NewReader(encodeF32LE([]float32{1}))}

	_, err := s.Read(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Read() error = %v, want context.Canceled", err)
	}
}

func TestSourceCloseIsNilSafeWithoutProcess(t *testing.T) {
	s := &Source{}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v, want nil", err)
	}
}

func TestStartRejectsMissingURL(t *testing.T) {
	_, err := Start(context.Background(), Options{SampleRateHz: 48000})
	if err == nil {
		t.Fatalf("Start() error = nil, want error for missing URL")
	}
}

func TestStartRejectsNonPositiveSampleRate(t *testing.T) {
	_, err := Start(context.Background(), Options{URL: "https://example.invalid/a.mp3"})
	if err == nil {
		t.Fatalf("Start() error = nil, want error for non-positive sample rate")
	}
}
