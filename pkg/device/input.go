package device

import (
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/lokutor-ai/voicepal/pkg/audio"
	"github.com/lokutor-ai/voicepal/pkg/live"
)

// Input is a capture device that regroups driver buffers into fixed-size
// frames before handing them to the consumer.
type Input struct {
	framer *audio.Framer
	tap    *audio.Analyser
	device *malgo.Device
	rate   int

	alive     atomic.Bool
	onFrame   atomic.Pointer[func([]float32)]
	dropped   atomic.Uint64
	closeOnce sync.Once
}

func newInput(frameSamples int) *Input {
	in := &Input{
		framer: audio.NewFramer(frameSamples),
		tap:    audio.NewAnalyser(audio.DefaultFFTSize, 0.8),
	}
	in.alive.Store(true)
	return in
}

// onData runs on the miniaudio thread.
func (in *Input) onData(_, pInput []byte, _ uint32) {
	if !in.alive.Load() {
		return
	}
	fn := in.onFrame.Load()
	if fn == nil {
		return
	}
	dropped := in.framer.Write(pInput, func(frame []float32) {
		in.tap.Write(frame)
		(*fn)(frame)
	})
	if dropped > 0 {
		in.dropped.Add(uint64(dropped))
	}
}

func (in *Input) SampleRate() int {
	return in.rate
}

// Start installs the frame consumer and starts the device.
func (in *Input) Start(onFrame func(samples []float32)) error {
	if !in.alive.Load() {
		return ErrClosed
	}
	in.onFrame.Store(&onFrame)
	if in.device == nil {
		return nil
	}
	if err := in.device.Start(); err != nil {
		in.onFrame.Store(nil)
		return classify("start input", err)
	}
	return nil
}

func (in *Input) Analyser() live.Analyser {
	return in.tap
}

// Dropped returns the number of samples lost to buffer overflow.
func (in *Input) Dropped() uint64 {
	return in.dropped.Load()
}

// Close stops capture and releases the device. Frames arriving afterwards are ignored.
func (in *Input) Close() error {
	in.closeOnce.Do(func() {
		in.alive.Store(false)
		in.onFrame.Store(nil)
		if in.device != nil {
			_ = in.device.Stop()
			in.device.Uninit()
		}
	})
	return nil
}
