package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lokutor-ai/voicepal/pkg/device"
	"github.com/lokutor-ai/voicepal/pkg/live"
	"github.com/lokutor-ai/voicepal/pkg/logging"
	"github.com/lokutor-ai/voicepal/pkg/netcheck"
	"github.com/lokutor-ai/voicepal/pkg/providers/gemini"
	"github.com/lokutor-ai/voicepal/pkg/providers/relay"
	"github.com/lokutor-ai/voicepal/pkg/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "Note: No .env file found, using system environment variables")
	}
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "voicepal",
		Short:        "Talk to a character over a live duplex audio session",
		SilenceUsage: true,
	}
	setupFlags(cmd.Flags())

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		v, err := newViper(cmd.Flags())
		if err != nil {
			return err
		}
		s, err := loadSettings(v)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx, s, os.Stdin, cmd.OutOrStdout())
	}
	return cmd
}

func newDialer(s settings, cfg live.Config, logger *logging.Logger) live.Dialer {
	var d live.Dialer
	switch s.Provider {
	case providerRelay:
		d = relay.NewDialer(relay.Config{
			URL:       s.RelayURL,
			Token:     s.RelayToken,
			Model:     s.Model,
			InputRate: cfg.CaptureSampleRate,
		}, logger.With("relay"))
	default:
		d = gemini.NewDialer(gemini.Config{
			APIKey:    s.APIKey,
			Model:     s.Model,
			InputRate: cfg.CaptureSampleRate,
		}, logger.With("gemini"))
	}
	if s.RecordDir != "" {
		d = &recordingDialer{
			next:    d,
			dir:     s.RecordDir,
			micRate: cfg.CaptureSampleRate,
			botRate: cfg.PlaybackSampleRate,
			logger:  logger.With("recorder"),
		}
	}
	return d
}

func serveMetrics(addr string, registry *prometheus.Registry, logger live.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return srv
}

func run(ctx context.Context, s settings, in io.Reader, out io.Writer) error {
	logCfg := logging.DefaultConfig()
	logCfg.Level = s.LogLevel
	logCfg.Pretty = !s.LogJSON
	logger := logging.New(logCfg)

	character, err := live.LookupCharacter(s.Character)
	if err != nil {
		return err
	}

	cfg := live.DefaultConfig()
	cfg.NoiseGateThreshold = s.NoiseGate

	var metrics live.Metrics = live.NoOpMetrics{}
	if s.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		m, err := telemetry.NewMetrics(registry)
		if err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		metrics = m
		srv := serveMetrics(s.MetricsAddr, registry, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	system := device.NewSystem(logger.With("device"))
	defer system.Close()

	opts := live.Options{
		Config:    cfg,
		Logger:    logger.With("session"),
		Metrics:   metrics,
		Audio:     system,
		Dialer:    newDialer(s, cfg, logger),
		Character: character,
	}
	if !s.NoProbe {
		opts.Network = netcheck.New(s.ProbeAddr, 0)
	}
	ctrl := live.NewController(opts)
	defer ctrl.Close()

	fmt.Fprintf(out, "Calling %s (voice %s). Commands: m = mute, r = reconnect, q = quit\n", character.Name, character.VoiceID)

	// Connect blocks through device and channel acquisition; cancel aborts it.
	var connects sync.WaitGroup
	defer connects.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	connect := func() {
		connects.Add(1)
		go func() {
			defer connects.Done()
			ctrl.Connect(ctx)
		}()
	}

	commands := make(chan string)
	go readCommands(in, commands)

	connect()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(out, "\r\033[KShutting down...\n")
			ctrl.Disconnect()
			return nil

		case snap, ok := <-ctrl.Updates():
			if !ok {
				return nil
			}
			if snap.State == live.Errored {
				fmt.Fprintf(out, "\r\033[K%s\n", describeError(snap))
			}

		case cmd, ok := <-commands:
			if !ok {
				commands = nil
				continue
			}
			switch cmd {
			case "m":
				ctrl.ToggleMute()
			case "r":
				ctrl.Disconnect()
				connect()
			case "q":
				cancel()
			}

		case <-ticker.C:
			fmt.Fprintf(out, "\r\033[K%s", statusLine(ctrl.Snapshot()))
		}
	}
}

// readCommands forwards trimmed, lower-cased input lines until in is exhausted.
func readCommands(in io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		out <- strings.ToLower(strings.TrimSpace(scanner.Text()))
	}
}
