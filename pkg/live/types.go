package live

import (
	"context"
	"time"
)

type Logger interface {
	Debug(msg string, args ...interface{})

	Info(msg string, args ...interface{})

	Warn(msg string, args ...interface{})

	Error(msg string, args ...interface{})
}

type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, args ...interface{}) {}
func (n *NoOpLogger) Info(msg string, args ...interface{})  {}
func (n *NoOpLogger) Warn(msg string, args ...interface{})  {}
func (n *NoOpLogger) Error(msg string, args ...interface{}) {}

type ConnectionState string

const (
	Disconnected ConnectionState = "DISCONNECTED"
	Connecting   ConnectionState = "CONNECTING"
	Connected    ConnectionState = "CONNECTED"
	Errored      ConnectionState = "ERROR"
)

// GateReason says why a capture frame was not transmitted.
type GateReason string

const (
	GateNotConnected GateReason = "not_connected"
	GateGreeting     GateReason = "greeting"
	GateMuted        GateReason = "muted"
	GateNoise        GateReason = "noise"
	GateSendFailed   GateReason = "send_failed"
)

// Metrics receives counters from the session. Implementations must be safe
// for concurrent use; capture methods are called from the audio thread.
type Metrics interface {
	FrameSent(bytes int)
	FrameGated(reason GateReason)
	ChunkScheduled(d time.Duration)
	Interrupted()
	StateChanged(state ConnectionState)
	SessionFailed(kind ErrorKind)
	ActiveSources(n int)
}

type NoOpMetrics struct{}

func (NoOpMetrics) FrameSent(int)                {}
func (NoOpMetrics) FrameGated(GateReason)        {}
func (NoOpMetrics) ChunkScheduled(time.Duration) {}
func (NoOpMetrics) Interrupted()                 {}
func (NoOpMetrics) StateChanged(ConnectionState) {}
func (NoOpMetrics) SessionFailed(ErrorKind)      {}
func (NoOpMetrics) ActiveSources(int)            {}

// Analyser exposes a byte-scaled spectrum of recent audio.
type Analyser interface {
	Bins() int
	ByteFrequencyData(dst []byte) int
}

// Source is one scheduled playback buffer.
type Source interface {
	Stop()
}

// OutputDevice plays scheduled buffers against its own clock.
type OutputDevice interface {
	// Now is the device clock: time elapsed since the device started rendering.
	Now() time.Duration
	// Schedule starts samples at device time at. onEnded fires asynchronously
	// after natural completion, never after Stop.
	Schedule(samples []float32, at time.Duration, onEnded func()) (Source, error)
	Analyser() Analyser
	Close() error
}

// InputDevice delivers fixed-size microphone frames at the device's native rate.
type InputDevice interface {
	SampleRate() int
	// Start begins capture; onFrame runs on the audio thread and must not block.
	Start(onFrame func(samples []float32)) error
	Analyser() Analyser
	Close() error
}

// AudioSystem acquires audio devices.
type AudioSystem interface {
	CheckSupport() error
	OpenOutput(sampleRate int) (OutputDevice, error)
	OpenInput(frameSamples int) (InputDevice, error)
}

// NetworkProbe reports whether the remote endpoint is reachable.
type NetworkProbe interface {
	Check(ctx context.Context) error
}

type ChannelEventType string

const (
	ChannelOpened  ChannelEventType = "OPENED"
	ChannelMessage ChannelEventType = "MESSAGE"
	ChannelClosed  ChannelEventType = "CLOSED"
	ChannelFailed  ChannelEventType = "FAILED"
)

// ChannelEvent is one inbound signal from a remote channel. Message is set for
// ChannelMessage, Err for ChannelFailed.
type ChannelEvent struct {
	Type    ChannelEventType
	Message *ServerMessage
	Err     error
}

// EventSink receives channel events. The controller binds one per session;
// it never blocks once the session has been torn down.
type EventSink func(ChannelEvent)

// ServerMessage mirrors the inbound message shape of the streaming endpoint.
type ServerMessage struct {
	ServerContent *ServerContent `json:"serverContent,omitempty"`
}

type ServerContent struct {
	ModelTurn    *Content `json:"modelTurn,omitempty"`
	TurnComplete bool     `json:"turnComplete,omitempty"`
	Interrupted  bool     `json:"interrupted,omitempty"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts,omitempty"`
}

type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

// Blob carries raw bytes; JSON encodes Data as base64.
type Blob struct {
	MIMEType string `json:"mimeType,omitempty"`
	Data     []byte `json:"data,omitempty"`
}

// Audio returns the inline audio of the first model-turn part, if any.
func (m *ServerMessage) Audio() []byte {
	if m == nil || m.ServerContent == nil || m.ServerContent.ModelTurn == nil {
		return nil
	}
	parts := m.ServerContent.ModelTurn.Parts
	if len(parts) == 0 || parts[0].InlineData == nil {
		return nil
	}
	return parts[0].InlineData.Data
}

// TextTurn is a scripted client turn.
type TextTurn struct {
	Role         string
	Text         string
	TurnComplete bool
}

// RemoteChannel is an open connection to the streaming endpoint. Sends never
// block on network I/O.
type RemoteChannel interface {
	SendText(turn TextTurn) error
	SendAudio(pcm []byte) error
	Close() error
}

// DialRequest configures a channel for one session.
type DialRequest struct {
	SessionID string
	Character CharacterProfile
}

// Dialer opens remote channels. The returned channel reports lifecycle through
// sink, starting with ChannelOpened.
type Dialer interface {
	Dial(ctx context.Context, req DialRequest, sink EventSink) (RemoteChannel, error)
}

type Config struct {
	CaptureSampleRate  int
	PlaybackSampleRate int
	// CaptureFrameSamples is the microphone frame size at the native rate.
	CaptureFrameSamples int
	// NoiseGateThreshold is a calibration value: frames with a lower peak
	// amplitude are not transmitted.
	NoiseGateThreshold float64
	MeterInterval      time.Duration
	OutputCeiling      float64
	InputCeiling       float64
	TalkingThreshold   float64
	InputSmoothing     float64
	// SendLogEvery logs one of every N transmitted frames.
	SendLogEvery int
}

func DefaultConfig() Config {
	return Config{
		CaptureSampleRate:   16000,
		PlaybackSampleRate:  24000,
		CaptureFrameSamples: 4096,
		NoiseGateThreshold:  0.025,
		MeterInterval:       time.Second / 60,
		OutputCeiling:       100,
		InputCeiling:        80, // mic energy runs weaker than playback
		TalkingThreshold:    0.1,
		InputSmoothing:      0.3,
		SendLogEvery:        50,
	}
}
