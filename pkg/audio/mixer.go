package audio

import (
	"sync"
	"sync/atomic"
	"time"
)

// Mixer renders voices scheduled at absolute positions on a frame clock. The
// clock only advances when Render is called, so it tracks what the device has
// actually pulled.
type Mixer struct {
	rate     int
	rendered atomic.Uint64

	mu     sync.Mutex
	voices map[uint64]*voice
	nextID uint64
	tap    *Analyser

	// Dispatch runs completion callbacks. It defaults to a new goroutine per
	// callback so Render never blocks on consumer locks.
	Dispatch func(func())
}

type voice struct {
	start   uint64
	samples []float32
	onEnded func()
}

// Voice is a handle on a scheduled buffer.
type Voice struct {
	m  *Mixer
	id uint64
}

// NewMixer creates a mixer for mono audio at rate. tap may be nil.
func NewMixer(rate int, tap *Analyser) *Mixer {
	return &Mixer{
		rate:     rate,
		voices:   make(map[uint64]*voice),
		tap:      tap,
		Dispatch: func(fn func()) { go fn() },
	}
}

// Now returns the device clock: the playback position of the next frame to render.
func (m *Mixer) Now() time.Duration {
	return Duration(int(m.rendered.Load()), m.rate)
}

// SampleRate returns the mixer rate.
func (m *Mixer) SampleRate() int {
	return m.rate
}

// Schedule queues samples to start at device time at. A start in the past is
// moved to the next rendered frame. onEnded fires once the last sample has been
// rendered; it does not fire for stopped voices.
func (m *Mixer) Schedule(samples []float32, at time.Duration, onEnded func()) *Voice {
	start := Frames(at, m.rate)

	m.mu.Lock()
	defer m.mu.Unlock()
	if now := m.rendered.Load(); start < now {
		start = now
	}
	m.nextID++
	id := m.nextID
	m.voices[id] = &voice{start: start, samples: samples, onEnded: onEnded}
	return &Voice{m: m, id: id}
}

// Stop removes the voice. Stopping a finished or stopped voice is a no-op.
func (v *Voice) Stop() {
	if v == nil || v.m == nil {
		return
	}
	v.m.mu.Lock()
	delete(v.m.voices, v.id)
	v.m.mu.Unlock()
}

// Active returns the number of voices that have not finished or been stopped.
func (m *Mixer) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

// Clear stops every voice without firing completion callbacks.
func (m *Mixer) Clear() {
	m.mu.Lock()
	m.voices = make(map[uint64]*voice)
	m.mu.Unlock()
}

// Render mixes the next len(dst) frames into dst and advances the clock.
func (m *Mixer) Render(dst []float32) {
	for i := range dst {
		dst[i] = 0
	}
	var ended []func()

	m.mu.Lock()
	from := m.rendered.Load()
	to := from + uint64(len(dst))
	for id, v := range m.voices {
		end := v.start + uint64(len(v.samples))
		if v.start < to && end > from {
			lo := max(v.start, from)
			hi := min(end, to)
			for f := lo; f < hi; f++ {
				dst[f-from] += v.samples[f-v.start]
			}
		}
		if end <= to {
			delete(m.voices, id)
			if v.onEnded != nil {
				ended = append(ended, v.onEnded)
			}
		}
	}
	m.rendered.Store(to)
	m.mu.Unlock()

	for i, s := range dst {
		if s > 1 {
			dst[i] = 1
		} else if s < -1 {
			dst[i] = -1
		}
	}
	if m.tap != nil {
		m.tap.Write(dst)
	}
	for _, fn := range ended {
		m.Dispatch(fn)
	}
}
