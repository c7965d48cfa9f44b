package live

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lokutor-ai/voicepal/pkg/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunk(d time.Duration) []byte {
	n := int(d * audio.PlaybackSampleRate / time.Second)
	return make([]byte, n*audio.BytesPerSample)
}

func TestPlaybackGaplessScenario(t *testing.T) {
	out := newFakeOutput()
	out.SetNow(10 * time.Second)
	p := NewPlaybackScheduler(out, audio.PlaybackSampleRate, nil, nil)

	var starts []time.Duration
	for _, d := range []time.Duration{500 * time.Millisecond, 300 * time.Millisecond, 400 * time.Millisecond} {
		start, err := p.Enqueue(chunk(d))
		require.NoError(t, err)
		starts = append(starts, start)
	}

	assert.Equal(t, []time.Duration{10 * time.Second, 10500 * time.Millisecond, 10800 * time.Millisecond}, starts)
	assert.Equal(t, 11200*time.Millisecond, p.Cursor())
	assert.Equal(t, starts, out.Starts())
	assert.Equal(t, 3, p.Active())
}

func TestPlaybackStartsAreMonotonic(t *testing.T) {
	out := newFakeOutput()
	p := NewPlaybackScheduler(out, audio.PlaybackSampleRate, nil, nil)

	durations := []time.Duration{40 * time.Millisecond, 120 * time.Millisecond, 10 * time.Millisecond, 250 * time.Millisecond}
	var prevStart, prevDur time.Duration
	for i, d := range durations {
		// the device clock drifts forward between arrivals
		out.SetNow(time.Duration(i) * 30 * time.Millisecond)
		start, err := p.Enqueue(chunk(d))
		require.NoError(t, err)
		if i > 0 {
			assert.GreaterOrEqual(t, start, prevStart+prevDur)
		}
		prevStart, prevDur = start, d
	}
}

func TestPlaybackLateChunkStartsNow(t *testing.T) {
	out := newFakeOutput()
	p := NewPlaybackScheduler(out, audio.PlaybackSampleRate, nil, nil)

	_, err := p.Enqueue(chunk(100 * time.Millisecond))
	require.NoError(t, err)

	out.SetNow(2 * time.Second)
	start, err := p.Enqueue(chunk(100 * time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, start)
}

func TestPlaybackFlushResetsCursor(t *testing.T) {
	out := newFakeOutput()
	out.SetNow(5 * time.Second)
	p := NewPlaybackScheduler(out, audio.PlaybackSampleRate, nil, nil)

	for i := 0; i < 3; i++ {
		_, err := p.Enqueue(chunk(time.Second))
		require.NoError(t, err)
	}
	require.Equal(t, 8*time.Second, p.Cursor())

	assert.Equal(t, 3, p.Flush())
	assert.Equal(t, time.Duration(0), p.Cursor())
	assert.Equal(t, 0, p.Active())
	for _, src := range out.Sources() {
		assert.True(t, src.Stopped())
	}

	out.SetNow(5200 * time.Millisecond)
	start, err := p.Enqueue(chunk(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 5200*time.Millisecond, start, "the next chunk starts now, not at the stale cursor")
}

func TestPlaybackCompletionRemovesSource(t *testing.T) {
	out := newFakeOutput()
	p := NewPlaybackScheduler(out, audio.PlaybackSampleRate, nil, nil)

	_, err := p.Enqueue(chunk(10 * time.Millisecond))
	require.NoError(t, err)
	_, err = p.Enqueue(chunk(10 * time.Millisecond))
	require.NoError(t, err)

	out.Sources()[0].End()
	assert.Equal(t, 1, p.Active())
	out.Sources()[1].End()
	assert.Equal(t, 0, p.Active())
}

func TestPlaybackConcurrentCompletion(t *testing.T) {
	out := newFakeOutput()
	p := NewPlaybackScheduler(out, audio.PlaybackSampleRate, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		_, err := p.Enqueue(chunk(5 * time.Millisecond))
		require.NoError(t, err)
		src := out.Sources()[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			src.End()
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Flush()
	}()
	wg.Wait()

	assert.Equal(t, 0, p.Active())
}

func TestPlaybackScheduleErrorRollsBackCursor(t *testing.T) {
	out := newFakeOutput()
	p := NewPlaybackScheduler(out, audio.PlaybackSampleRate, nil, nil)

	_, err := p.Enqueue(chunk(time.Second))
	require.NoError(t, err)

	out.scheduleErr = errors.New("device gone")
	_, err = p.Enqueue(chunk(time.Second))
	require.Error(t, err)
	assert.Equal(t, time.Second, p.Cursor())
	assert.Equal(t, 1, p.Active())
}

func TestPlaybackRejectsEmptyAndClosed(t *testing.T) {
	out := newFakeOutput()
	p := NewPlaybackScheduler(out, audio.PlaybackSampleRate, nil, nil)

	_, err := p.Enqueue(nil)
	assert.ErrorIs(t, err, errEmptyChunk)

	_, err = p.Enqueue(chunk(time.Second))
	require.NoError(t, err)

	p.Close()
	p.Close()
	assert.True(t, out.Sources()[0].Stopped())

	_, err = p.Enqueue(chunk(time.Second))
	assert.ErrorIs(t, err, errSchedulerClosed)
}
