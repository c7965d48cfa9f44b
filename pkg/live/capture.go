package live

import (
	"sync/atomic"

	"github.com/lokutor-ai/voicepal/pkg/audio"
	"golang.org/x/time/rate"
)

// CaptureLine conditions microphone frames and forwards the ones that pass
// the gate to the remote channel. Process runs on the audio thread.
type CaptureLine struct {
	session    *SessionState
	channel    RemoteChannel
	nativeRate int
	targetRate int
	threshold  float64
	logger     Logger
	metrics    Metrics

	sent    atomic.Uint64
	sendLog rate.Sometimes
}

func NewCaptureLine(session *SessionState, channel RemoteChannel, nativeRate int, cfg Config, logger Logger, metrics Metrics) *CaptureLine {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if metrics == nil {
		metrics = NoOpMetrics{}
	}
	every := cfg.SendLogEvery
	if every <= 0 {
		every = 1
	}
	return &CaptureLine{
		session:    session,
		channel:    channel,
		nativeRate: nativeRate,
		targetRate: cfg.CaptureSampleRate,
		threshold:  cfg.NoiseGateThreshold,
		logger:     logger,
		metrics:    metrics,
		sendLog:    rate.Sometimes{Every: every},
	}
}

// Process handles one native-rate frame and reports whether it was sent.
func (c *CaptureLine) Process(samples []float32) bool {
	if !c.session.Alive() {
		return false
	}

	resampled := audio.Resample(samples, c.nativeRate, c.targetRate)
	peak := audio.Peak(resampled)

	if reason, ok := c.session.Gate(peak, c.threshold); !ok {
		c.metrics.FrameGated(reason)
		return false
	}

	pcm := audio.EncodePCM16(resampled)
	if err := c.channel.SendAudio(pcm); err != nil {
		c.logger.Warn("dropping audio frame", "session", c.session.ID, "error", err)
		c.metrics.FrameGated(GateSendFailed)
		return false
	}

	n := c.sent.Add(1)
	c.metrics.FrameSent(len(pcm))
	c.sendLog.Do(func() {
		c.logger.Debug("sending audio", "session", c.session.ID, "frames", n, "peak", peak)
	})
	return true
}

// Sent returns the number of frames forwarded so far.
func (c *CaptureLine) Sent() uint64 {
	return c.sent.Load()
}
