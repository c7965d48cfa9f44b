package live

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Options wires a Controller to its collaborators. Audio and Dialer are
// required; Network may be nil to skip the reachability probe.
type Options struct {
	Config    Config
	Logger    Logger
	Metrics   Metrics
	Audio     AudioSystem
	Network   NetworkProbe
	Dialer    Dialer
	Character CharacterProfile
	// NewID generates session IDs. Defaults to random UUIDs.
	NewID func() string
}

// Snapshot is a point-in-time view of the controller for the presentation layer.
type Snapshot struct {
	State          ConnectionState
	ErrorKind      ErrorKind
	Volume         float64
	InputLevel     float64
	IsTalking      bool
	IsMuted        bool
	IsGreetingOpen bool
	Character      string
	SessionID      string
}

// Controller owns the connection state machine and every resource of the
// current session. Its public methods never return errors; failures are
// classified and surfaced through Snapshot().ErrorKind.
type Controller struct {
	cfg     Config
	logger  Logger
	metrics Metrics
	audio   AudioSystem
	network NetworkProbe
	dialer  Dialer
	char    CharacterProfile
	newID   func() string

	mu         sync.Mutex
	state      ConnectionState
	errKind    ErrorKind
	res        *resources
	idleMuted  bool
	updates    chan Snapshot
	closed     bool
	goroutines sync.WaitGroup
}

const updatesBuffer = 16

var errAborted = errors.New("session torn down during connect")

func NewController(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = &NoOpLogger{}
	}
	if opts.Metrics == nil {
		opts.Metrics = NoOpMetrics{}
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Character.Name == "" {
		opts.Character, _ = LookupCharacter(DefaultCharacter)
	}
	if opts.Config == (Config{}) {
		opts.Config = DefaultConfig()
	}
	return &Controller{
		cfg:     opts.Config,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		audio:   opts.Audio,
		network: opts.Network,
		dialer:  opts.Dialer,
		char:    opts.Character,
		newID:   opts.NewID,
		state:   Disconnected,
		errKind: ErrorNone,
		updates: make(chan Snapshot, updatesBuffer),
	}
}

// resources is everything acquired for one session. Fields are attached one
// by one during Connect; anything attached after release is closed at once.
type resources struct {
	session *SessionState
	events  chan ChannelEvent
	ready   chan struct{}

	mu        sync.Mutex
	released  bool
	output    OutputDevice
	input     InputDevice
	channel   RemoteChannel
	scheduler *PlaybackScheduler
	meter     *LevelMeter
	stopMeter context.CancelFunc
}

func (r *resources) attach(fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return false
	}
	fn()
	return true
}

func (r *resources) release(logger Logger) {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return
	}
	r.released = true
	scheduler, input, channel, output, stopMeter := r.scheduler, r.input, r.channel, r.output, r.stopMeter
	r.mu.Unlock()

	if scheduler != nil {
		scheduler.Close()
	}
	if input != nil {
		if err := input.Close(); err != nil {
			logger.Warn("closing input device", "session", r.session.ID, "error", err)
		}
	}
	if channel != nil {
		if err := channel.Close(); err != nil {
			logger.Debug("closing remote channel", "session", r.session.ID, "error", err)
		}
	}
	if output != nil {
		if err := output.Close(); err != nil {
			logger.Warn("closing output device", "session", r.session.ID, "error", err)
		}
	}
	if stopMeter != nil {
		stopMeter()
	}
}

// Connect acquires the audio devices and opens the remote channel. It is a
// no-op while a session is connecting or connected, and after Close.
func (c *Controller) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.closed || c.state == Connecting || c.state == Connected {
		c.mu.Unlock()
		return
	}
	session := NewSessionState(c.newID(), c.char)
	session.SetMuted(c.idleMuted)
	res := &resources{
		session: session,
		events:  make(chan ChannelEvent, 64),
		ready:   make(chan struct{}),
	}
	c.res = res
	c.errKind = ErrorNone
	c.setStateLocked(Connecting)
	// dispatch takes one slot; Connect holds the other until it returns, so
	// the meter goroutine always joins a non-empty group.
	c.goroutines.Add(2)
	c.mu.Unlock()
	defer c.goroutines.Done()
	c.publish()

	go c.dispatch(res)

	c.logger.Info("connecting", "session", session.ID, "character", c.char.Name)
	if err := c.acquire(ctx, res); err != nil {
		if errors.Is(err, errAborted) || !session.Alive() {
			res.release(c.logger)
			c.logger.Debug("connect aborted", "session", session.ID)
			return
		}
		kind := Classify(err)
		c.logger.Error("connect failed", "session", session.ID, "kind", kind, "error", err)
		c.teardown(session, Errored, kind)
		return
	}
	close(res.ready)
}

// acquire runs the ordered acquisition steps. A step that finds the session
// already released returns errAborted.
func (c *Controller) acquire(ctx context.Context, res *resources) error {
	session := res.session

	if err := c.audio.CheckSupport(); err != nil {
		return err
	}
	if c.network != nil {
		if err := c.network.Check(ctx); err != nil {
			return err
		}
	}

	out, err := c.audio.OpenOutput(c.cfg.PlaybackSampleRate)
	if err != nil {
		return err
	}
	scheduler := NewPlaybackScheduler(out, c.cfg.PlaybackSampleRate, c.logger, c.metrics)
	if !res.attach(func() { res.output, res.scheduler = out, scheduler }) {
		out.Close()
		return errAborted
	}

	in, err := c.audio.OpenInput(c.cfg.CaptureFrameSamples)
	if err != nil {
		return err
	}
	if !res.attach(func() { res.input = in }) {
		in.Close()
		return errAborted
	}

	sink := func(ev ChannelEvent) {
		select {
		case res.events <- ev:
		case <-session.Done():
		}
	}
	ch, err := c.dialer.Dial(ctx, DialRequest{SessionID: session.ID, Character: session.Character}, sink)
	if err != nil {
		return err
	}
	if !res.attach(func() { res.channel = ch }) {
		ch.Close()
		return errAborted
	}

	capture := NewCaptureLine(session, ch, in.SampleRate(), c.cfg, c.logger, c.metrics)
	if err := in.Start(func(samples []float32) { capture.Process(samples) }); err != nil {
		return err
	}

	meter := NewLevelMeter(c.cfg, out.Analyser(), in.Analyser())
	meterCtx, stopMeter := context.WithCancel(context.Background())
	if !res.attach(func() { res.meter, res.stopMeter = meter, stopMeter }) {
		stopMeter()
		return errAborted
	}
	c.goroutines.Add(1)
	go func() {
		defer c.goroutines.Done()
		meter.Run(meterCtx)
	}()
	return nil
}

// dispatch is the single consumer of channel events for one session.
func (c *Controller) dispatch(res *resources) {
	defer c.goroutines.Done()
	done := res.session.Done()

	select {
	case <-res.ready:
	case <-done:
		return
	}
	for {
		select {
		case <-done:
			return
		case ev := <-res.events:
			c.handle(res, ev)
		}
	}
}

func (c *Controller) handle(res *resources, ev ChannelEvent) {
	session := res.session
	if !session.Alive() {
		return
	}

	switch ev.Type {
	case ChannelOpened:
		if !session.MarkConnected() {
			return
		}
		c.mu.Lock()
		if c.res == res {
			c.setStateLocked(Connected)
		}
		c.mu.Unlock()
		c.publish()
		c.logger.Info("connected", "session", session.ID)

		greeting := TextTurn{Role: "user", Text: session.Character.GreetingText, TurnComplete: true}
		if err := res.channel.SendText(greeting); err != nil {
			c.logger.Error("failed to send greeting", "session", session.ID, "error", err)
		}

	case ChannelMessage:
		c.handleMessage(res, ev.Message)

	case ChannelClosed:
		if session.Connected() {
			c.logger.Warn("remote closed the session", "session", session.ID)
			c.teardown(session, Errored, ErrorSessionEnded)
			return
		}
		c.teardown(session, Disconnected, ErrorNone)

	case ChannelFailed:
		kind := Classify(ev.Err)
		if kind == ErrorNone {
			kind = ErrorAPIConnectionFailed
		}
		c.logger.Error("remote channel failed", "session", session.ID, "kind", kind, "error", ev.Err)
		c.teardown(session, Errored, kind)
	}
}

func (c *Controller) handleMessage(res *resources, msg *ServerMessage) {
	if msg == nil || msg.ServerContent == nil {
		return
	}
	session := res.session

	if pcm := msg.Audio(); len(pcm) > 0 {
		if start, err := res.scheduler.Enqueue(pcm); err != nil {
			c.logger.Warn("failed to schedule audio", "session", session.ID, "error", err)
		} else {
			c.logger.Debug("audio scheduled", "session", session.ID, "start", start, "bytes", len(pcm))
		}
	}

	if msg.ServerContent.TurnComplete && session.OpenGreeting() {
		c.logger.Info("greeting finished, microphone open", "session", session.ID)
		c.publish()
	}

	if msg.ServerContent.Interrupted {
		n := res.scheduler.Flush()
		c.metrics.Interrupted()
		c.logger.Info("playback interrupted", "session", session.ID, "stopped", n)
	}
}

// teardown detaches session if it is still current, records the final state
// and releases its resources. It reports whether anything was torn down.
func (c *Controller) teardown(session *SessionState, final ConnectionState, kind ErrorKind) bool {
	c.mu.Lock()
	res := c.res
	if res == nil || res.session != session {
		c.mu.Unlock()
		return false
	}
	c.res = nil
	session.Invalidate()
	c.idleMuted = false
	c.errKind = kind
	c.setStateLocked(final)
	c.mu.Unlock()

	if kind != ErrorNone {
		c.metrics.SessionFailed(kind)
	}
	res.release(c.logger)
	c.logger.Info("session closed", "session", session.ID, "state", final, "kind", kind)
	c.publish()
	return true
}

// Disconnect tears down the current session, if any, and resets the
// controller to Disconnected. It is idempotent and safe from any goroutine,
// including session callbacks.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	res := c.res
	c.mu.Unlock()

	if res != nil && c.teardown(res.session, Disconnected, ErrorNone) {
		return
	}

	c.mu.Lock()
	changed := c.state != Disconnected || c.errKind != ErrorNone || c.idleMuted
	if c.res == nil {
		c.errKind = ErrorNone
		c.idleMuted = false
		c.setStateLocked(Disconnected)
	}
	c.mu.Unlock()
	if changed {
		c.publish()
	}
}

// ToggleMute flips the mute flag; the next capture frame observes it.
func (c *Controller) ToggleMute() {
	c.mu.Lock()
	var muted bool
	if c.res != nil {
		muted = c.res.session.ToggleMute()
	} else {
		c.idleMuted = !c.idleMuted
		muted = c.idleMuted
	}
	c.mu.Unlock()
	c.logger.Info("mute toggled", "muted", muted)
	c.publish()
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:     c.state,
		ErrorKind: c.errKind,
		IsMuted:   c.idleMuted,
		Character: c.char.Name,
	}
	if res := c.res; res != nil {
		snap.SessionID = res.session.ID
		snap.IsMuted = res.session.Muted()
		snap.IsGreetingOpen = res.session.GreetingOpen()
		res.mu.Lock()
		meter := res.meter
		res.mu.Unlock()
		if meter != nil {
			snap.Volume = meter.Volume()
			snap.InputLevel = meter.InputLevel()
			snap.IsTalking = meter.IsTalking()
		}
	}
	return snap
}

// Updates delivers a snapshot after every state, error, mute or greeting
// change. Slow readers lose the oldest snapshots. Level values are not
// pushed; poll Snapshot for meters.
func (c *Controller) Updates() <-chan Snapshot {
	return c.updates
}

func (c *Controller) publish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	snap := c.snapshotLocked()
	for {
		select {
		case c.updates <- snap:
			return
		default:
		}
		select {
		case <-c.updates:
		default:
		}
	}
}

// Close rejects further Connect calls, disconnects and waits for session
// goroutines, including an in-flight Connect, then closes Updates. It must
// not be called from a session callback.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.Disconnect()
	c.goroutines.Wait()

	c.mu.Lock()
	close(c.updates)
	c.mu.Unlock()
}

func (c *Controller) setStateLocked(s ConnectionState) {
	if c.state == s {
		return
	}
	c.state = s
	c.metrics.StateChanged(s)
}
