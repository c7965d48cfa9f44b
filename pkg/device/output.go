package device

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/lokutor-ai/voicepal/pkg/audio"
	"github.com/lokutor-ai/voicepal/pkg/live"
)

// Output is a playback device whose render callback pulls from a Mixer. The
// device clock is the number of frames the callback has rendered.
type Output struct {
	mixer  *audio.Mixer
	tap    *audio.Analyser
	device *malgo.Device

	alive     atomic.Bool
	scratch   []float32
	closeOnce sync.Once
}

func newOutput(sampleRate int) *Output {
	tap := audio.NewAnalyser(audio.DefaultFFTSize, 0.8)
	o := &Output{
		mixer: audio.NewMixer(sampleRate, tap),
		tap:   tap,
	}
	o.alive.Store(true)
	return o
}

// onData runs on the miniaudio thread.
func (o *Output) onData(pOutput, _ []byte, frameCount uint32) {
	if !o.alive.Load() {
		clear(pOutput)
		return
	}
	n := int(frameCount)
	if cap(o.scratch) < n {
		o.scratch = make([]float32, n)
	}
	buf := o.scratch[:n]
	o.mixer.Render(buf)
	copy(pOutput, audio.EncodePCM16(buf))
}

func (o *Output) Now() time.Duration {
	return o.mixer.Now()
}

func (o *Output) Schedule(samples []float32, at time.Duration, onEnded func()) (live.Source, error) {
	if !o.alive.Load() {
		return nil, ErrClosed
	}
	return o.mixer.Schedule(samples, at, onEnded), nil
}

func (o *Output) Analyser() live.Analyser {
	return o.tap
}

// Close stops rendering, drops every voice and releases the device.
func (o *Output) Close() error {
	o.closeOnce.Do(func() {
		o.alive.Store(false)
		o.mixer.Clear()
		if o.device != nil {
			_ = o.device.Stop()
			o.device.Uninit()
		}
		o.tap.Reset()
	})
	return nil
}
