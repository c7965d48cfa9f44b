package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func syncMixer(rate int) *Mixer {
	m := NewMixer(rate, nil)
	m.Dispatch = func(fn func()) { fn() }
	return m
}

func filled(n int, v float32) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func TestMixerClockAdvancesWithRender(t *testing.T) {
	m := syncMixer(1000)
	assert.Equal(t, time.Duration(0), m.Now())

	m.Render(make([]float32, 250))
	assert.Equal(t, 250*time.Millisecond, m.Now())
}

func TestMixerPlacesVoicesAtStartFrame(t *testing.T) {
	m := syncMixer(1000)
	ended := 0
	m.Schedule(filled(4, 0.25), 2*time.Millisecond, func() { ended++ })

	out := make([]float32, 8)
	m.Render(out)
	assert.Equal(t, []float32{0, 0, 0.25, 0.25, 0.25, 0.25, 0, 0}, out)
	assert.Equal(t, 1, ended)
	assert.Equal(t, 0, m.Active())
}

func TestMixerBackToBackVoicesAreGapless(t *testing.T) {
	m := syncMixer(1000)
	m.Schedule(filled(3, 0.5), 0, nil)
	m.Schedule(filled(3, -0.5), 3*time.Millisecond, nil)

	out := make([]float32, 6)
	m.Render(out)
	assert.Equal(t, []float32{0.5, 0.5, 0.5, -0.5, -0.5, -0.5}, out)
}

func TestMixerVoiceSpansRenders(t *testing.T) {
	m := syncMixer(1000)
	ended := false
	m.Schedule(filled(6, 0.1), 0, func() { ended = true })

	m.Render(make([]float32, 4))
	assert.False(t, ended)
	assert.Equal(t, 1, m.Active())

	m.Render(make([]float32, 4))
	assert.True(t, ended)
}

func TestMixerLateStartMovesToNow(t *testing.T) {
	m := syncMixer(1000)
	m.Render(make([]float32, 10))
	m.Schedule(filled(2, 0.3), 0, nil)

	out := make([]float32, 3)
	m.Render(out)
	assert.InDelta(t, 0.3, out[0], 1e-6)
	assert.InDelta(t, 0.3, out[1], 1e-6)
	assert.Equal(t, float32(0), out[2])
}

func TestMixerStopSuppressesCallback(t *testing.T) {
	m := syncMixer(1000)
	ended := false
	v := m.Schedule(filled(2, 0.9), 0, func() { ended = true })
	v.Stop()
	v.Stop()

	out := make([]float32, 2)
	m.Render(out)
	assert.Equal(t, []float32{0, 0}, out)
	assert.False(t, ended)
}

func TestMixerClampsAndTaps(t *testing.T) {
	tap := NewAnalyser(16, 0)
	m := NewMixer(1000, tap)
	m.Dispatch = func(fn func()) { fn() }
	m.Schedule(filled(2, 0.8), 0, nil)
	m.Schedule(filled(2, 0.8), 0, nil)

	out := make([]float32, 2)
	m.Render(out)
	assert.Equal(t, []float32{1, 1}, out)

	m.Clear()
	require.Equal(t, 0, m.Active())
}
