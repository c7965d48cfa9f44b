package live

import (
	"errors"
	"sync"
	"time"

	"github.com/lokutor-ai/voicepal/pkg/audio"
)

var (
	errEmptyChunk      = errors.New("empty audio chunk")
	errSchedulerClosed = errors.New("playback scheduler closed")
)

// PlaybackScheduler places inbound chunks back to back on the output device
// clock and tracks every source that has not finished yet.
type PlaybackScheduler struct {
	out     OutputDevice
	rate    int
	logger  Logger
	metrics Metrics

	mu      sync.Mutex
	cursor  time.Duration
	epoch   uint64
	sources map[*scheduled]struct{}
	closed  bool
}

type scheduled struct {
	src Source
}

func NewPlaybackScheduler(out OutputDevice, sampleRate int, logger Logger, metrics Metrics) *PlaybackScheduler {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if metrics == nil {
		metrics = NoOpMetrics{}
	}
	return &PlaybackScheduler{
		out:     out,
		rate:    sampleRate,
		logger:  logger,
		metrics: metrics,
		sources: make(map[*scheduled]struct{}),
	}
}

// Enqueue decodes a PCM16 chunk and schedules it at max(cursor, now). It
// returns the assigned start time.
func (p *PlaybackScheduler) Enqueue(pcm []byte) (time.Duration, error) {
	samples := audio.DecodePCM16(pcm)
	if len(samples) == 0 {
		return 0, errEmptyChunk
	}
	dur := audio.Duration(len(samples), p.rate)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, errSchedulerClosed
	}
	start := max(p.cursor, p.out.Now())
	p.cursor = start + dur
	epoch := p.epoch
	entry := &scheduled{}
	p.sources[entry] = struct{}{}
	p.mu.Unlock()

	src, err := p.out.Schedule(samples, start, func() { p.finished(entry) })

	p.mu.Lock()
	_, live := p.sources[entry]
	switch {
	case err != nil:
		delete(p.sources, entry)
		if p.epoch == epoch && p.cursor == start+dur {
			p.cursor = start
		}
	case live:
		entry.src = src
	}
	stale := err == nil && !live && p.epoch != epoch
	active := len(p.sources)
	p.mu.Unlock()

	if err != nil {
		return 0, err
	}
	if stale {
		// flushed while the device call was in flight
		src.Stop()
	}
	p.metrics.ChunkScheduled(dur)
	p.metrics.ActiveSources(active)
	return start, nil
}

func (p *PlaybackScheduler) finished(entry *scheduled) {
	p.mu.Lock()
	delete(p.sources, entry)
	active := len(p.sources)
	p.mu.Unlock()
	p.metrics.ActiveSources(active)
}

// Flush stops every scheduled source and rewinds the cursor so the next chunk
// starts immediately. It returns the number of sources stopped.
func (p *PlaybackScheduler) Flush() int {
	p.mu.Lock()
	old := p.detachLocked()
	p.mu.Unlock()
	return stopAll(old)
}

// Close flushes and rejects further chunks. It is idempotent.
func (p *PlaybackScheduler) Close() {
	p.mu.Lock()
	p.closed = true
	old := p.detachLocked()
	p.mu.Unlock()
	stopAll(old)
	p.metrics.ActiveSources(0)
}

func (p *PlaybackScheduler) detachLocked() map[*scheduled]struct{} {
	old := p.sources
	p.sources = make(map[*scheduled]struct{})
	p.cursor = 0
	p.epoch++
	return old
}

func stopAll(set map[*scheduled]struct{}) int {
	for e := range set {
		if e.src != nil {
			e.src.Stop()
		}
	}
	return len(set)
}

// Cursor returns the end of the last scheduled chunk, or 0 after a flush.
func (p *PlaybackScheduler) Cursor() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Active returns the number of sources scheduled or playing.
func (p *PlaybackScheduler) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sources)
}
