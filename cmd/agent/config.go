package main

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/lokutor-ai/voicepal/pkg/live"
	"github.com/lokutor-ai/voicepal/pkg/netcheck"
	"github.com/lokutor-ai/voicepal/pkg/providers/gemini"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	providerGemini = "gemini"
	providerRelay  = "relay"
)

type settings struct {
	APIKey      string
	Provider    string
	Model       string
	RelayURL    string
	RelayToken  string
	Character   string
	NoiseGate   float64
	ProbeAddr   string
	NoProbe     bool
	MetricsAddr string
	RecordDir   string
	LogLevel    string
	LogJSON     bool
}

func setupFlags(flags *pflag.FlagSet) {
	def := live.DefaultConfig()
	flags.String("provider", providerGemini, "Remote channel: gemini or relay")
	flags.String("model", gemini.DefaultModel, "Live model name")
	flags.String("relay-url", "", "Relay endpoint (ws:// or wss://) when --provider=relay")
	flags.String("relay-token", "", "Bearer token for the relay")
	flags.StringP("character", "c", live.DefaultCharacter, fmt.Sprintf("Character persona (%s)", strings.Join(live.CharacterNames(), ", ")))
	flags.Float64("noise-gate", def.NoiseGateThreshold, "Minimum peak amplitude of a transmitted microphone frame")
	flags.String("probe-addr", "", "host:port dialed to check reachability before connecting")
	flags.Bool("no-probe", false, "Skip the reachability check")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	flags.String("record-dir", "", "Write microphone and character audio of each session as WAV files")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.Bool("log-json", false, "Log JSON instead of console output")
}

// newViper reads flags and VOICEPAL_* environment variables. The API key also
// falls back to GEMINI_API_KEY and API_KEY.
func newViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("VOICEPAL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("api-key", "VOICEPAL_API_KEY", "GEMINI_API_KEY", "API_KEY"); err != nil {
		return nil, err
	}
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("error binding flags: %w", err)
	}
	return v, nil
}

func loadSettings(v *viper.Viper) (settings, error) {
	s := settings{
		APIKey:      v.GetString("api-key"),
		Provider:    strings.ToLower(v.GetString("provider")),
		Model:       v.GetString("model"),
		RelayURL:    v.GetString("relay-url"),
		RelayToken:  v.GetString("relay-token"),
		Character:   v.GetString("character"),
		NoiseGate:   v.GetFloat64("noise-gate"),
		ProbeAddr:   v.GetString("probe-addr"),
		NoProbe:     v.GetBool("no-probe"),
		MetricsAddr: v.GetString("metrics-addr"),
		RecordDir:   v.GetString("record-dir"),
		LogLevel:    v.GetString("log-level"),
		LogJSON:     v.GetBool("log-json"),
	}

	switch s.Provider {
	case providerGemini:
	case providerRelay:
		if s.RelayURL == "" {
			return s, fmt.Errorf("--relay-url is required for the relay provider")
		}
	default:
		return s, fmt.Errorf("unknown provider %q", s.Provider)
	}
	if s.NoiseGate < 0 || s.NoiseGate >= 1 {
		return s, fmt.Errorf("noise gate %.3f out of range [0, 1)", s.NoiseGate)
	}
	if _, err := live.LookupCharacter(s.Character); err != nil {
		return s, err
	}
	if s.ProbeAddr == "" {
		s.ProbeAddr = defaultProbeAddr(s)
	}
	return s, nil
}

// defaultProbeAddr targets the host the session will dial.
func defaultProbeAddr(s settings) string {
	if s.Provider != providerRelay {
		return netcheck.DefaultAddress
	}
	u, err := url.Parse(s.RelayURL)
	if err != nil || u.Hostname() == "" {
		return netcheck.DefaultAddress
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "wss" {
			port = "443"
		}
	}
	return net.JoinHostPort(u.Hostname(), port)
}
