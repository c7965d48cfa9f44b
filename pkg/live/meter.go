package live

import (
	"context"
	"math"
	"sync/atomic"
	"time"
)

// LevelMeter turns spectrum taps into UI levels. Its values are telemetry
// only; the capture gate never reads them.
type LevelMeter struct {
	cfg    Config
	output Analyser
	input  Analyser

	outBuf   []byte
	inBuf    []byte
	smoothed float64

	volume     atomic.Uint64
	inputLevel atomic.Uint64
	talking    atomic.Bool
}

// NewLevelMeter creates a meter over the output and input taps. Either may be nil.
func NewLevelMeter(cfg Config, output, input Analyser) *LevelMeter {
	m := &LevelMeter{cfg: cfg, output: output, input: input}
	if output != nil {
		m.outBuf = make([]byte, output.Bins())
	}
	if input != nil {
		m.inBuf = make([]byte, input.Bins())
	}
	return m
}

// Sample reads both taps once. It must not be called concurrently with itself.
func (m *LevelMeter) Sample() {
	if m.output != nil {
		v := normalize(averageBins(m.output, m.outBuf), m.cfg.OutputCeiling)
		m.volume.Store(math.Float64bits(v))
		m.talking.Store(v > m.cfg.TalkingThreshold)
	}
	if m.input != nil {
		raw := normalize(averageBins(m.input, m.inBuf), m.cfg.InputCeiling)
		a := m.cfg.InputSmoothing
		m.smoothed = m.smoothed*(1-a) + raw*a
		m.inputLevel.Store(math.Float64bits(m.smoothed))
	}
}

// Run samples on every tick of cfg.MeterInterval until ctx is done.
func (m *LevelMeter) Run(ctx context.Context) {
	interval := m.cfg.MeterInterval
	if interval <= 0 {
		interval = time.Second / 60
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sample()
		}
	}
}

func (m *LevelMeter) Volume() float64 {
	return math.Float64frombits(m.volume.Load())
}

func (m *LevelMeter) InputLevel() float64 {
	return math.Float64frombits(m.inputLevel.Load())
}

func (m *LevelMeter) IsTalking() bool {
	return m.talking.Load()
}

func averageBins(a Analyser, buf []byte) float64 {
	n := a.ByteFrequencyData(buf)
	if n == 0 {
		return 0
	}
	var sum float64
	for _, b := range buf[:n] {
		sum += float64(b)
	}
	return sum / float64(n)
}

func normalize(v, ceiling float64) float64 {
	if ceiling <= 0 {
		return 0
	}
	v /= ceiling
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
