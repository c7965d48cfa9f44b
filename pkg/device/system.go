// Package device implements the live audio interfaces on top of miniaudio.
package device

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/lokutor-ai/voicepal/pkg/live"
)

// ErrClosed is returned when scheduling on a closed device.
var ErrClosed = errors.New("audio device closed")

// System opens playback and capture devices on a shared malgo context.
type System struct {
	logger live.Logger

	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

func NewSystem(logger live.Logger) *System {
	if logger == nil {
		logger = &live.NoOpLogger{}
	}
	return &System{logger: logger}
}

func (s *System) context() (*malgo.AllocatedContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return s.ctx, nil
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		s.logger.Debug("miniaudio", "message", msg)
	})
	if err != nil {
		return nil, classify("init audio context", err)
	}
	s.ctx = ctx
	return ctx, nil
}

// CheckSupport verifies an audio backend is available and a capture device exists.
func (s *System) CheckSupport() error {
	ctx, err := s.context()
	if err != nil {
		return err
	}
	devices, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return live.Fail(live.CategoryNotSupported, "enumerate capture devices", err)
	}
	if len(devices) == 0 {
		return live.Fail(live.CategoryDevice, "enumerate capture devices", nil)
	}
	return nil
}

// OpenOutput starts a mono playback device rendering a mixer at sampleRate.
func (s *System) OpenOutput(sampleRate int) (live.OutputDevice, error) {
	ctx, err := s.context()
	if err != nil {
		return nil, err
	}
	out := newOutput(sampleRate)

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = 1
	cfg.SampleRate = uint32(sampleRate)
	cfg.Alsa.NoMMap = 1

	dev, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: out.onData,
		Stop: func() { s.logger.Debug("playback device stopped") },
	})
	if err != nil {
		return nil, classify("open output", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, classify("start output", err)
	}
	out.device = dev
	s.logger.Info("playback device opened", "rate", sampleRate)
	return out, nil
}

// OpenInput opens the default microphone at its native rate. Capture begins
// on Start.
func (s *System) OpenInput(frameSamples int) (live.InputDevice, error) {
	ctx, err := s.context()
	if err != nil {
		return nil, err
	}
	in := newInput(frameSamples)

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	cfg.SampleRate = 0 // device native rate
	cfg.Alsa.NoMMap = 1

	dev, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: in.onData,
	})
	if err != nil {
		return nil, classify("open input", err)
	}
	in.device = dev
	in.rate = int(dev.SampleRate())
	s.logger.Info("capture device opened", "rate", in.rate, "frame", frameSamples)
	return in, nil
}

// Close releases the malgo context. Devices must be closed first.
func (s *System) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return nil
	}
	err := s.ctx.Uninit()
	s.ctx.Free()
	s.ctx = nil
	return err
}

// classify wraps a miniaudio result in a live.Failure.
func classify(op string, err error) error {
	var res malgo.Result
	if !errors.As(err, &res) {
		return fmt.Errorf("%s: %w", op, err)
	}
	switch res {
	case malgo.ErrAccessDenied:
		return live.Fail(live.CategoryPermission, op, err)
	case malgo.ErrNoDevice, malgo.ErrDoesNotExist, malgo.ErrBusy, malgo.ErrAlreadyInUse,
		malgo.ErrUnavailable, malgo.ErrFailedToOpenBackendDevice, malgo.ErrFailedToStartBackendDevice:
		return live.Fail(live.CategoryDevice, op, err)
	case malgo.ErrNoBackend, malgo.ErrFailedToInitBackend, malgo.ErrAPINotFound, malgo.ErrNotImplemented,
		malgo.ErrFormatNotSupported, malgo.ErrDeviceTypeNotSupported, malgo.ErrShareModeNotSupported:
		return live.Fail(live.CategoryNotSupported, op, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
