package audio

import (
	"encoding/binary"
	"math"
	"time"
)

const (
	// CaptureSampleRate is the rate outbound microphone audio is sent at.
	CaptureSampleRate = 16000
	// PlaybackSampleRate is the rate inbound assistant audio arrives at.
	PlaybackSampleRate = 24000
	// BytesPerSample for 16-bit PCM.
	BytesPerSample = 2
)

// EncodePCM16 converts float samples in [-1, 1] to little-endian signed 16-bit PCM.
// Out-of-range samples are clamped.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(s)))
	}
	return out
}

// DecodePCM16 converts little-endian signed 16-bit PCM to float samples in [-1, 1).
// A trailing odd byte is ignored.
func DecodePCM16(pcm []byte) []float32 {
	n := len(pcm) / BytesPerSample
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(v) / 32768.0
	}
	return out
}

func floatToInt16(s float32) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	if s < 0 {
		return int16(s * 0x8000)
	}
	return int16(s * 0x7FFF)
}

// Resample converts mono samples from one rate to another with linear
// interpolation. The output holds round(len(in) * to / from) samples.
func Resample(in []float32, from, to int) []float32 {
	if len(in) == 0 || from <= 0 || to <= 0 {
		return nil
	}
	if from == to {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}

	n := int(math.Round(float64(len(in)) * float64(to) / float64(from)))
	out := make([]float32, n)
	ratio := float64(from) / float64(to)
	last := len(in) - 1
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = in[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = in[idx] + (in[idx+1]-in[idx])*frac
	}
	return out
}

// Peak returns the largest absolute sample value.
func Peak(samples []float32) float64 {
	var peak float64
	for _, s := range samples {
		a := math.Abs(float64(s))
		if a > peak {
			peak = a
		}
	}
	return peak
}

// Duration returns how long n mono samples play at rate.
func Duration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}

// Frames converts a device-clock offset to a frame index at rate, rounding to
// the nearest frame.
func Frames(d time.Duration, rate int) uint64 {
	if d <= 0 || rate <= 0 {
		return 0
	}
	return uint64((int64(d)*int64(rate) + int64(time.Second)/2) / int64(time.Second))
}
