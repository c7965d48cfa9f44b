package audio

import (
	"github.com/smallnest/ringbuffer"
)

// Framer regroups variable-sized PCM16 device buffers into fixed-size frames.
type Framer struct {
	rb         *ringbuffer.RingBuffer
	frameBytes int
	scratch    []byte
}

// NewFramer creates a framer emitting frames of frameSamples mono samples.
func NewFramer(frameSamples int) *Framer {
	frameBytes := frameSamples * BytesPerSample
	return &Framer{
		rb:         ringbuffer.New(frameBytes * 4),
		frameBytes: frameBytes,
		scratch:    make([]byte, frameBytes),
	}
}

// Write buffers pcm and calls emit for every complete frame. Samples that do
// not fit in the buffer are dropped and reported through the returned count.
func (f *Framer) Write(pcm []byte, emit func(frame []float32)) (dropped int) {
	for len(pcm) > 0 {
		n, err := f.rb.Write(pcm)
		pcm = pcm[n:]
		for f.rb.Length() >= f.frameBytes {
			if _, rerr := f.rb.Read(f.scratch); rerr != nil {
				break
			}
			emit(DecodePCM16(f.scratch))
		}
		if err != nil && n == 0 {
			return len(pcm) / BytesPerSample
		}
	}
	return 0
}

// Reset discards buffered audio.
func (f *Framer) Reset() {
	f.rb.Reset()
}
