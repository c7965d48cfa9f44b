// Package gemini opens live sessions against the Gemini Live API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/gorilla/websocket"
	"github.com/lokutor-ai/voicepal/pkg/live"
	"github.com/lokutor-ai/voicepal/pkg/providers/stream"
	"google.golang.org/genai"
)

const (
	DefaultModel      = "gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultAPIVersion = "v1beta"
)

type Config struct {
	APIKey string
	Model  string
	// BaseURL overrides the service endpoint; a ws:// or wss:// scheme is kept as is.
	BaseURL     string
	APIVersion  string
	OutboxDepth int
	// InputRate is the sample rate of outbound PCM.
	InputRate int
}

func DefaultConfig() Config {
	return Config{
		Model:       DefaultModel,
		APIVersion:  DefaultAPIVersion,
		OutboxDepth: stream.DefaultOutboxDepth,
		InputRate:   16000,
	}
}

// Dialer implements live.Dialer.
type Dialer struct {
	cfg    Config
	logger live.Logger
}

func NewDialer(cfg Config, logger live.Logger) *Dialer {
	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = def.APIVersion
	}
	if cfg.InputRate == 0 {
		cfg.InputRate = def.InputRate
	}
	if logger == nil {
		logger = &live.NoOpLogger{}
	}
	return &Dialer{cfg: cfg, logger: logger}
}

func (d *Dialer) Dial(ctx context.Context, req live.DialRequest, sink live.EventSink) (live.RemoteChannel, error) {
	if d.cfg.APIKey == "" {
		return nil, live.Fail(live.CategoryCredential, "dial gemini", nil)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  d.cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    d.cfg.BaseURL,
			APIVersion: d.cfg.APIVersion,
		},
	})
	if err != nil {
		return nil, live.Fail(live.CategoryConnection, "create gemini client", err)
	}

	session, err := client.Live.Connect(ctx, d.cfg.Model, connectConfig(req.Character))
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) {
			return nil, live.Fail(live.CategoryNetwork, "connect gemini", err)
		}
		return nil, live.Fail(live.CategoryConnection, "connect gemini", err)
	}

	d.logger.Info("gemini session opened", "session", req.SessionID, "model", d.cfg.Model, "voice", req.Character.VoiceID)
	t := &transport{session: session, mimeType: fmt.Sprintf("audio/pcm;rate=%d", d.cfg.InputRate)}
	ch := stream.New("gemini", t, sink, d.cfg.OutboxDepth, d.logger)
	ch.Start()
	return ch, nil
}

func connectConfig(p live.CharacterProfile) *genai.LiveConnectConfig {
	cfg := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: p.VoiceID},
			},
		},
	}
	if p.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(p.SystemInstruction, genai.RoleUser)
	}
	return cfg
}

type transport struct {
	session  *genai.Session
	mimeType string
}

func (t *transport) Read() (stream.Inbound, error) {
	msg, err := t.session.Receive()
	if err != nil {
		// 1006 is synthesized locally when the socket drops without a close frame.
		var ce *websocket.CloseError
		if errors.As(err, &ce) && ce.Code != websocket.CloseAbnormalClosure {
			return stream.Inbound{}, fmt.Errorf("%w: code=%d text=%q", stream.ErrRemoteClosed, ce.Code, ce.Text)
		}
		return stream.Inbound{}, err
	}
	return stream.Inbound{
		Ready:   msg.SetupComplete != nil,
		Message: toServerMessage(msg),
	}, nil
}

func (t *transport) WriteText(turn live.TextTurn) error {
	return t.session.SendClientContent(genai.LiveClientContentInput{
		Turns:        []*genai.Content{genai.NewContentFromText(turn.Text, genai.Role(turn.Role))},
		TurnComplete: genai.Ptr(turn.TurnComplete),
	})
}

func (t *transport) WriteAudio(pcm []byte) error {
	return t.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: pcm, MIMEType: t.mimeType},
	})
}

func (t *transport) Close() error {
	return t.session.Close()
}

// toServerMessage keeps the server content; other message kinds yield nil.
func toServerMessage(msg *genai.LiveServerMessage) *live.ServerMessage {
	if msg == nil || msg.ServerContent == nil {
		return nil
	}
	sc := msg.ServerContent
	out := &live.ServerMessage{ServerContent: &live.ServerContent{
		TurnComplete: sc.TurnComplete,
		Interrupted:  sc.Interrupted,
	}}
	if sc.ModelTurn != nil {
		turn := &live.Content{Role: sc.ModelTurn.Role}
		// Nil parts stay as empty placeholders so part indices are preserved.
		for _, p := range sc.ModelTurn.Parts {
			if p == nil {
				turn.Parts = append(turn.Parts, live.Part{})
				continue
			}
			part := live.Part{Text: p.Text}
			if p.InlineData != nil {
				part.InlineData = &live.Blob{MIMEType: p.InlineData.MIMEType, Data: p.InlineData.Data}
			}
			turn.Parts = append(turn.Parts, part)
		}
		out.ServerContent.ModelTurn = turn
	}
	return out
}
