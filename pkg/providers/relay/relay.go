// Package relay opens live sessions through a websocket proxy that holds the
// provider credentials and forwards the Live API message shapes unchanged.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/lokutor-ai/voicepal/pkg/live"
	"github.com/lokutor-ai/voicepal/pkg/providers/stream"
)

const readLimit = 10 * 1024 * 1024

type Config struct {
	// URL is the proxy endpoint, ws:// or wss://.
	URL string
	// Token is sent as a bearer credential when set.
	Token       string
	Model       string
	OutboxDepth int
	InputRate   int
}

// Dialer implements live.Dialer.
type Dialer struct {
	cfg    Config
	logger live.Logger
}

func NewDialer(cfg Config, logger live.Logger) *Dialer {
	if cfg.InputRate == 0 {
		cfg.InputRate = 16000
	}
	if logger == nil {
		logger = &live.NoOpLogger{}
	}
	return &Dialer{cfg: cfg, logger: logger}
}

func (d *Dialer) Dial(ctx context.Context, req live.DialRequest, sink live.EventSink) (live.RemoteChannel, error) {
	u, err := url.Parse(d.cfg.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return nil, live.Fail(live.CategoryConnection, "dial relay", fmt.Errorf("invalid relay url %q", d.cfg.URL))
	}
	q := u.Query()
	if req.SessionID != "" {
		q.Set("session", req.SessionID)
	}
	u.RawQuery = q.Encode()

	opts := &websocket.DialOptions{}
	if d.cfg.Token != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + d.cfg.Token}}
	}

	conn, resp, err := websocket.Dial(ctx, u.String(), opts)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, live.Fail(live.CategoryCredential, "dial relay", err)
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			return nil, live.Fail(live.CategoryNetwork, "dial relay", err)
		}
		return nil, live.Fail(live.CategoryConnection, "dial relay", err)
	}
	conn.SetReadLimit(readLimit)

	t := &transport{
		conn:     conn,
		ctx:      context.Background(),
		mimeType: fmt.Sprintf("audio/pcm;rate=%d", d.cfg.InputRate),
	}
	if err := wsjson.Write(ctx, conn, setupFor(d.cfg.Model, req.Character)); err != nil {
		conn.CloseNow()
		return nil, live.Fail(live.CategoryConnection, "relay setup", err)
	}

	d.logger.Info("relay session opened", "session", req.SessionID, "url", d.cfg.URL, "voice", req.Character.VoiceID)
	ch := stream.New("relay", t, sink, d.cfg.OutboxDepth, d.logger)
	ch.Start()
	return ch, nil
}

type setupMessage struct {
	Setup setup `json:"setup"`
}

type setup struct {
	Model             string           `json:"model,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig"`
	SystemInstruction *live.Content    `json:"systemInstruction,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string     `json:"responseModalities"`
	SpeechConfig       speechConfig `json:"speechConfig"`
}

type speechConfig struct {
	VoiceConfig struct {
		PrebuiltVoiceConfig struct {
			VoiceName string `json:"voiceName"`
		} `json:"prebuiltVoiceConfig"`
	} `json:"voiceConfig"`
}

func setupFor(model string, p live.CharacterProfile) setupMessage {
	var s setup
	s.Model = model
	s.GenerationConfig.ResponseModalities = []string{"AUDIO"}
	s.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName = p.VoiceID
	if p.SystemInstruction != "" {
		s.SystemInstruction = &live.Content{Parts: []live.Part{{Text: p.SystemInstruction}}}
	}
	return setupMessage{Setup: s}
}

type clientContentMessage struct {
	ClientContent struct {
		Turns        []live.Content `json:"turns"`
		TurnComplete bool           `json:"turnComplete"`
	} `json:"clientContent"`
}

type realtimeInputMessage struct {
	RealtimeInput struct {
		Audio live.Blob `json:"audio"`
	} `json:"realtimeInput"`
}

type inboundMessage struct {
	SetupComplete *struct{} `json:"setupComplete,omitempty"`
	Error         *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
	live.ServerMessage
}

type transport struct {
	conn     *websocket.Conn
	ctx      context.Context
	mimeType string
}

func (t *transport) Read() (stream.Inbound, error) {
	var msg inboundMessage
	if err := wsjson.Read(t.ctx, t.conn, &msg); err != nil {
		if status := websocket.CloseStatus(err); status != -1 {
			return stream.Inbound{}, fmt.Errorf("%w: status=%d", stream.ErrRemoteClosed, status)
		}
		return stream.Inbound{}, err
	}
	if msg.Error != nil {
		return stream.Inbound{}, fmt.Errorf("relay error: %s", msg.Error.Message)
	}
	in := stream.Inbound{Ready: msg.SetupComplete != nil}
	if msg.ServerContent != nil {
		sm := msg.ServerMessage
		in.Message = &sm
	}
	return in, nil
}

func (t *transport) WriteText(turn live.TextTurn) error {
	var m clientContentMessage
	m.ClientContent.Turns = []live.Content{{Role: turn.Role, Parts: []live.Part{{Text: turn.Text}}}}
	m.ClientContent.TurnComplete = turn.TurnComplete
	return wsjson.Write(t.ctx, t.conn, m)
}

func (t *transport) WriteAudio(pcm []byte) error {
	var m realtimeInputMessage
	m.RealtimeInput.Audio = live.Blob{MIMEType: t.mimeType, Data: pcm}
	return wsjson.Write(t.ctx, t.conn, m)
}

// Close drops the socket without waiting for the peer's close frame.
func (t *transport) Close() error {
	return t.conn.CloseNow()
}
