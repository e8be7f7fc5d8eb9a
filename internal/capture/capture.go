// Package capture implements the local capture producer backend: it reads
// mono float64 chunks from a sound device through PortAudio, resampling
// them to the configured rate when the device's native rate differs. By
// default it targets the system's default output sink's monitor (loopback)
// device, so capture reflects what is currently playing rather than a
// microphone; see resolveInputDevice for the fallback when no such device
// is exposed.
//
// The resample decision is made once, at Open, and fixed for the life of
// the Device — this package never re-evaluates or adapts it mid-stream,
// which is the "does not adapt its sample rate at runtime" the producer
// contract requires alongside "resample or reject streams that do not
// match".
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	dspresample "github.com/cwbudde/algo-dsp/dsp/resample"
	"github.com/gordonklaus/portaudio"
)

// ErrNoInputDevice is returned when no default (or requested) input device
// is available on the host.
var ErrNoInputDevice = errors.New("capture: no input device available")

// monitorNameMarkers are the host-API naming conventions PortAudio surfaces
// a loopback-of-output-sink device under: PulseAudio/PipeWire append
// ".monitor" to the sink's own device name and prefix the description with
// "Monitor of ...", and WASAPI loopback devices carry "(loopback)". Any of
// these indicates the device taps what the sink is currently playing rather
// than a physical input.
var monitorNameMarkers = []string{".monitor", "monitor of", "(loopback)"}

func isMonitorDevice(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range monitorNameMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// framesPerBuffer is the PortAudio callback chunk size: 20ms at 48kHz,
// matching the frame size conventional for low-latency capture loops.
const framesPerBuffer = 960

// stream abstracts the PortAudio stream surface this package needs, so
// tests can substitute a fake without a real sound card.
type stream interface {
	Start() error
	Stop() error
	Close() error
	Read() error
}

// Device reads mono samples from a local input device and satisfies
// producer.Source. Exactly one goroutine may call Read.
type Device struct {
	stream   stream
	raw      []float32
	resample func([]float64) []float64
	log      *slog.Logger
	started  bool
}

// DeviceOptions configures Open.
type DeviceOptions struct {
	// SampleRateHz is the producer's target sample rate; if the device's
	// native rate differs, samples are resampled to this rate.
	SampleRateHz int
	// DeviceIndex selects an input device by index into portaudio.Devices(),
	// bypassing monitor-source auto-selection entirely; 0 is a valid index.
	// A negative value (the CLI's default) lets Open search for the default output sink's monitor
	// (loopback) device first, falling back to the host's default input
	// device — logged as a degraded capture source, see resolveInputDevice.
	DeviceIndex int
	Log         *slog.Logger
}

// Open initializes PortAudio, resolves the input device, and opens a mono
// input stream. The caller owns the returned Device and must call Close
// exactly once.
func Open(opts DeviceOptions) (*Device, error) {
	if opts.SampleRateHz <= 0 {
		return nil, fmt.Errorf("capture: sample rate must be positive, got %d", opts.SampleRateHz)
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("capture: initialize portaudio: %w", err)
	}

	devices, err := portaudio.Devices()
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("capture: list devices: %w", err)
	}
	dev, err := resolveInputDevice(devices, opts.DeviceIndex, log)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	raw := make([]float32, framesPerBuffer)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      dev.DefaultSampleRate,
		FramesPerBuffer: framesPerBuffer,
	}
	paStream, err := portaudio.OpenStream(params, raw)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("capture: open stream on %q: %w", dev.Name, err)
	}

	d := &Device{stream: paStream, raw: raw, log: log}
	if int(dev.DefaultSampleRate) != opts.SampleRateHz {
		resampler, err := dspresample.NewForRates(
			dev.DefaultSampleRate,
			float64(opts.SampleRateHz),
			dspresample.WithQuality(dspresample.QualityBest),
		)
		if err != nil {
			paStream.Close()
			portaudio.Terminate()
			return nil, fmt.Errorf("capture: build resampler %.0f->%d Hz: %w", dev.DefaultSampleRate, opts.SampleRateHz, err)
		}
		d.resample = resampler.Process
		log.Info("capture device resampling enabled", "device", dev.Name, "native_hz", dev.DefaultSampleRate, "target_hz", opts.SampleRateHz)
	}

	if err := paStream.Start(); err != nil {
		paStream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("capture: start stream on %q: %w", dev.Name, err)
	}
	d.started = true
	log.Info("capture device started", "device", dev.Name)
	return d, nil
}

// resolveInputDevice picks the stream's capture source. An explicit index
// is honored as-is. Otherwise it searches for the default output sink's
// monitor (loopback) device — what the capture side of the producer
// contract actually requires, since the system measures lag between what
// is playing and what a remote viewer receives, not between a microphone
// and a remote viewer. If no monitor device is exposed by the host API
// (common on hosts without PulseAudio/PipeWire/WASAPI loopback support),
// this falls back to the plain default input device and logs the
// degradation: capture then reflects room/microphone audio instead of the
// played-back signal, which is a real divergence from the source that
// should be played into the pipeline, not a silent equivalence.
func resolveInputDevice(devices []*portaudio.DeviceInfo, index int, log *slog.Logger) (*portaudio.DeviceInfo, error) {
	if index >= 0 {
		if index >= len(devices) {
			return nil, fmt.Errorf("%w: index %d out of range (%d devices)", ErrNoInputDevice, index, len(devices))
		}
		if devices[index].MaxInputChannels < 1 {
			return nil, fmt.Errorf("%w: device %d has no input channels", ErrNoInputDevice, index)
		}
		return devices[index], nil
	}

	for _, dev := range devices {
		if dev.MaxInputChannels >= 1 && isMonitorDevice(dev.Name) {
			log.Info("capture using output-sink monitor device", "device", dev.Name)
			return dev, nil
		}
	}

	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoInputDevice, err)
	}
	log.Warn("no output-sink monitor device found, falling back to default input device; captured audio will reflect the microphone/room, not the played-back signal", "device", dev.Name)
	return dev, nil
}

// Read blocks for one PortAudio buffer's worth of samples and returns them
// as mono float64, resampled to the target rate if needed. It satisfies
// producer.Source.
func (d *Device) Read(ctx context.Context) ([]float64, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if err := d.stream.Read(); err != nil {
		return nil, fmt.Errorf("capture: device read: %w", err)
	}
	out := make([]float64, len(d.raw))
	for i, s := range d.raw {
		out[i] = float64(s)
	}
	if d.resample != nil {
		out = d.resample(out)
	}
	return out, nil
}

// Close stops and closes the PortAudio stream and terminates the PortAudio
// session. It satisfies producer.Source and is safe to call exactly once.
func (d *Device) Close() error {
	var errs []error
	if d.started {
		if err := d.stream.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop: %w", err))
		}
	}
	if err := d.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("terminate: %w", err))
	}
	return errors.Join(errs...)
}
