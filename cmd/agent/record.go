package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/lokutor-ai/voicepal/pkg/audio"
	"github.com/lokutor-ai/voicepal/pkg/live"
)

const recordQueueDepth = 256

// recordingDialer tees each session's outbound microphone audio and inbound
// character audio into two WAV files named after the session ID.
type recordingDialer struct {
	next    live.Dialer
	dir     string
	micRate int
	botRate int
	logger  live.Logger
}

func (d *recordingDialer) Dial(ctx context.Context, req live.DialRequest, sink live.EventSink) (live.RemoteChannel, error) {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create record dir: %w", err)
	}
	base := filepath.Join(d.dir, req.SessionID)
	mic, err := audio.CreateRecorder(base+"-mic.wav", d.micRate)
	if err != nil {
		return nil, err
	}
	bot, err := audio.CreateRecorder(base+"-bot.wav", d.botRate)
	if err != nil {
		_ = mic.Close()
		return nil, err
	}

	rec := newRecordingChannel(mic, bot, d.logger)
	ch, err := d.next.Dial(ctx, req, func(ev live.ChannelEvent) {
		if ev.Type == live.ChannelMessage {
			if pcm := ev.Message.Audio(); len(pcm) > 0 {
				rec.record(bot, pcm)
			}
		}
		sink(ev)
	})
	if err != nil {
		rec.finish()
		return nil, err
	}
	rec.RemoteChannel = ch
	d.logger.Info("recording session", "mic", base+"-mic.wav", "bot", base+"-bot.wav")
	return rec, nil
}

type recordedChunk struct {
	to  *audio.Recorder
	pcm []byte
}

// recordingChannel hands audio to a writer goroutine so file I/O stays off
// the capture thread. Chunks that do not fit the queue are dropped.
type recordingChannel struct {
	live.RemoteChannel
	mic    *audio.Recorder
	bot    *audio.Recorder
	logger live.Logger

	mu      sync.Mutex
	closed  bool
	chunks  chan recordedChunk
	written chan struct{}
}

func newRecordingChannel(mic, bot *audio.Recorder, logger live.Logger) *recordingChannel {
	c := &recordingChannel{
		mic:     mic,
		bot:     bot,
		logger:  logger,
		chunks:  make(chan recordedChunk, recordQueueDepth),
		written: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *recordingChannel) writeLoop() {
	defer close(c.written)
	for chunk := range c.chunks {
		if err := chunk.to.WritePCM16(chunk.pcm); err != nil {
			c.logger.Debug("recording write failed", "error", err)
		}
	}
}

func (c *recordingChannel) record(to *audio.Recorder, pcm []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.chunks <- recordedChunk{to: to, pcm: pcm}:
	default:
		c.logger.Debug("recording queue full, chunk dropped", "bytes", len(pcm))
	}
}

func (c *recordingChannel) SendAudio(pcm []byte) error {
	c.record(c.mic, pcm)
	return c.RemoteChannel.SendAudio(pcm)
}

// finish drains the queue and finalizes both files. It is safe to call twice.
func (c *recordingChannel) finish() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.written
		return
	}
	c.closed = true
	close(c.chunks)
	c.mu.Unlock()

	<-c.written
	if err := c.mic.Close(); err != nil {
		c.logger.Warn("finalize mic recording", "error", err)
	}
	if err := c.bot.Close(); err != nil {
		c.logger.Warn("finalize bot recording", "error", err)
	}
}

func (c *recordingChannel) Close() error {
	err := c.RemoteChannel.Close()
	c.finish()
	return err
}
