package live

import (
	"context"
	"sync"
	"time"
)

type fakeAnalyser struct {
	level byte
}

func (a *fakeAnalyser) Bins() int { return 8 }

func (a *fakeAnalyser) ByteFrequencyData(dst []byte) int {
	n := min(len(dst), 8)
	for i := 0; i < n; i++ {
		dst[i] = a.level
	}
	return n
}

type fakeSource struct {
	mu      sync.Mutex
	stopped bool
	ended   bool
	onEnded func()
}

func (s *fakeSource) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

// End simulates natural completion.
func (s *fakeSource) End() {
	s.mu.Lock()
	fire := !s.stopped && !s.ended
	s.ended = true
	s.mu.Unlock()
	if fire && s.onEnded != nil {
		s.onEnded()
	}
}

func (s *fakeSource) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fakeOutput struct {
	mu          sync.Mutex
	now         time.Duration
	starts      []time.Duration
	sources     []*fakeSource
	closed      int
	scheduleErr error
	analyser    *fakeAnalyser
}

func newFakeOutput() *fakeOutput {
	return &fakeOutput{analyser: &fakeAnalyser{}}
}

func (f *fakeOutput) Now() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeOutput) SetNow(d time.Duration) {
	f.mu.Lock()
	f.now = d
	f.mu.Unlock()
}

func (f *fakeOutput) Schedule(samples []float32, at time.Duration, onEnded func()) (Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scheduleErr != nil {
		return nil, f.scheduleErr
	}
	src := &fakeSource{onEnded: onEnded}
	f.starts = append(f.starts, at)
	f.sources = append(f.sources, src)
	return src, nil
}

func (f *fakeOutput) Sources() []*fakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeSource(nil), f.sources...)
}

func (f *fakeOutput) Starts() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.starts...)
}

func (f *fakeOutput) Analyser() Analyser { return f.analyser }

func (f *fakeOutput) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	return nil
}

func (f *fakeOutput) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeInput struct {
	mu       sync.Mutex
	rate     int
	onFrame  func([]float32)
	closed   int
	startErr error
	analyser *fakeAnalyser
}

func newFakeInput(rate int) *fakeInput {
	return &fakeInput{rate: rate, analyser: &fakeAnalyser{}}
}

func (f *fakeInput) SampleRate() int { return f.rate }

func (f *fakeInput) Start(onFrame func([]float32)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.onFrame = onFrame
	return nil
}

// Feed delivers a frame the way the audio thread would.
func (f *fakeInput) Feed(samples []float32) {
	f.mu.Lock()
	fn := f.onFrame
	f.mu.Unlock()
	if fn != nil {
		fn(samples)
	}
}

func (f *fakeInput) Analyser() Analyser { return f.analyser }

func (f *fakeInput) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	return nil
}

func (f *fakeInput) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeAudio struct {
	mu         sync.Mutex
	supportErr error
	outputErr  error
	inputErr   error
	startErr   error
	inputRate  int
	outputs    []*fakeOutput
	inputs     []*fakeInput
}

func (a *fakeAudio) CheckSupport() error { return a.supportErr }

func (a *fakeAudio) OpenOutput(int) (OutputDevice, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.outputErr != nil {
		return nil, a.outputErr
	}
	out := newFakeOutput()
	a.outputs = append(a.outputs, out)
	return out, nil
}

func (a *fakeAudio) OpenInput(int) (InputDevice, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.inputErr != nil {
		return nil, a.inputErr
	}
	rate := a.inputRate
	if rate == 0 {
		rate = 16000
	}
	in := newFakeInput(rate)
	in.startErr = a.startErr
	a.inputs = append(a.inputs, in)
	return in, nil
}

func (a *fakeAudio) Outputs() []*fakeOutput {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*fakeOutput(nil), a.outputs...)
}

func (a *fakeAudio) Inputs() []*fakeInput {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*fakeInput(nil), a.inputs...)
}

type fakeProbe struct {
	err error
}

func (p fakeProbe) Check(context.Context) error { return p.err }

type fakeChannel struct {
	mu      sync.Mutex
	texts   []TextTurn
	frames  int
	closed  int
	sendErr error
	sink    EventSink
	onText  func()
}

func (c *fakeChannel) SendText(turn TextTurn) error {
	c.mu.Lock()
	c.texts = append(c.texts, turn)
	hook := c.onText
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (c *fakeChannel) SendAudio(pcm []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.frames++
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	c.closed++
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) Texts() []TextTurn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]TextTurn(nil), c.texts...)
}

func (c *fakeChannel) Frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

func (c *fakeChannel) Closed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Emit pushes an event as the transport's reader goroutine would.
func (c *fakeChannel) Emit(ev ChannelEvent) {
	c.sink(ev)
}

type fakeDialer struct {
	mu       sync.Mutex
	err      error
	autoOpen bool
	onText   func()
	channels []*fakeChannel
	requests []DialRequest
	// gate, when set, holds Dial until it is closed.
	gate     chan struct{}
	dialing  chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context, req DialRequest, sink EventSink) (RemoteChannel, error) {
	if d.gate != nil {
		if d.dialing != nil {
			d.dialing <- struct{}{}
		}
		<-d.gate
	}
	d.mu.Lock()
	if d.err != nil {
		d.mu.Unlock()
		return nil, d.err
	}
	ch := &fakeChannel{sink: sink, onText: d.onText}
	d.channels = append(d.channels, ch)
	d.requests = append(d.requests, req)
	autoOpen := d.autoOpen
	d.mu.Unlock()

	if autoOpen {
		sink(ChannelEvent{Type: ChannelOpened})
	}
	return ch, nil
}

func (d *fakeDialer) Channels() []*fakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeChannel(nil), d.channels...)
}

func (d *fakeDialer) Last() *fakeChannel {
	chs := d.Channels()
	if len(chs) == 0 {
		return nil
	}
	return chs[len(chs)-1]
}

type fakeMetrics struct {
	NoOpMetrics
	mu         sync.Mutex
	states     []ConnectionState
	gated      map[GateReason]int
	sent       int
	interrupts int
	failures   []ErrorKind
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{gated: make(map[GateReason]int)}
}

func (m *fakeMetrics) FrameSent(int) {
	m.mu.Lock()
	m.sent++
	m.mu.Unlock()
}

func (m *fakeMetrics) FrameGated(r GateReason) {
	m.mu.Lock()
	m.gated[r]++
	m.mu.Unlock()
}

func (m *fakeMetrics) Interrupted() {
	m.mu.Lock()
	m.interrupts++
	m.mu.Unlock()
}

func (m *fakeMetrics) StateChanged(s ConnectionState) {
	m.mu.Lock()
	m.states = append(m.states, s)
	m.mu.Unlock()
}

func (m *fakeMetrics) SessionFailed(k ErrorKind) {
	m.mu.Lock()
	m.failures = append(m.failures, k)
	m.mu.Unlock()
}

func (m *fakeMetrics) States() []ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ConnectionState(nil), m.states...)
}

func (m *fakeMetrics) Gated(r GateReason) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gated[r]
}

func constant(n int, v float32) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = v
	}
	return s
}
