package main

import (
	"testing"

	"github.com/lokutor-ai/voicepal/pkg/netcheck"
	"github.com/lokutor-ai/voicepal/pkg/providers/gemini"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) (settings, error) {
	t.Helper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	setupFlags(flags)
	require.NoError(t, flags.Parse(args))
	v, err := newViper(flags)
	require.NoError(t, err)
	return loadSettings(v)
}

func TestDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "from-env")

	s, err := parse(t)
	require.NoError(t, err)
	assert.Equal(t, "from-env", s.APIKey)
	assert.Equal(t, providerGemini, s.Provider)
	assert.Equal(t, gemini.DefaultModel, s.Model)
	assert.Equal(t, "shinchan", s.Character)
	assert.InDelta(t, 0.025, s.NoiseGate, 1e-9)
	assert.Equal(t, netcheck.DefaultAddress, s.ProbeAddr)
}

func TestPrefixedEnvOverridesFallback(t *testing.T) {
	t.Setenv("API_KEY", "generic")
	t.Setenv("VOICEPAL_API_KEY", "specific")
	t.Setenv("VOICEPAL_NOISE_GATE", "0.05")

	s, err := parse(t)
	require.NoError(t, err)
	assert.Equal(t, "specific", s.APIKey)
	assert.InDelta(t, 0.05, s.NoiseGate, 1e-9)
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("VOICEPAL_CHARACTER", "shinchan")

	s, err := parse(t, "--character", "Bluey", "--noise-gate", "0.1")
	require.NoError(t, err)
	assert.Equal(t, "Bluey", s.Character)
	assert.InDelta(t, 0.1, s.NoiseGate, 1e-9)
}

func TestRelayProbeAddress(t *testing.T) {
	s, err := parse(t, "--provider", "relay", "--relay-url", "wss://relay.example.com/live")
	require.NoError(t, err)
	assert.Equal(t, "relay.example.com:443", s.ProbeAddr)

	s, err = parse(t, "--provider", "relay", "--relay-url", "ws://localhost:8080/live")
	require.NoError(t, err)
	assert.Equal(t, "localhost:8080", s.ProbeAddr)
}

func TestInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown provider", []string{"--provider", "carrier-pigeon"}},
		{"relay without url", []string{"--provider", "relay"}},
		{"gate out of range", []string{"--noise-gate", "1.5"}},
		{"unknown character", []string{"--character", "nobody"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(t, tt.args...)
			assert.Error(t, err)
		})
	}
}
