// Package stream pumps a live.RemoteChannel over a bidirectional message
// transport: a bounded outbox drained by one writer goroutine and a reader
// goroutine that turns inbound messages into channel events.
package stream

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/lokutor-ai/voicepal/pkg/live"
)

// DefaultOutboxDepth holds roughly ten seconds of 4096-sample capture frames.
const DefaultOutboxDepth = 64

// ErrRemoteClosed is wrapped by Transport.Read when the peer closed the
// connection with a close frame.
var ErrRemoteClosed = errors.New("remote closed the connection")

// Inbound is one decoded message. Ready marks the server's setup
// acknowledgement; Message may accompany it or stand alone.
type Inbound struct {
	Ready   bool
	Message *live.ServerMessage
}

// Transport is a connected socket. Read and the Write methods are each called
// from a single goroutine; Close may be called concurrently with both.
type Transport interface {
	Read() (Inbound, error)
	WriteText(turn live.TextTurn) error
	WriteAudio(pcm []byte) error
	Close() error
}

type frame struct {
	text  *live.TextTurn
	audio []byte
}

// Channel implements live.RemoteChannel. It reports exactly one terminal
// event (Closed or Failed) unless Close is called first, in which case it
// reports none.
type Channel struct {
	name      string
	transport Transport
	sink      live.EventSink
	logger    live.Logger

	outbox    chan frame
	done      chan struct{}
	closing   atomic.Bool
	opened    atomic.Bool
	closeOnce sync.Once
	endOnce   sync.Once
	closeErr  error
	wg        sync.WaitGroup
}

func New(name string, t Transport, sink live.EventSink, depth int, logger live.Logger) *Channel {
	if depth <= 0 {
		depth = DefaultOutboxDepth
	}
	if logger == nil {
		logger = &live.NoOpLogger{}
	}
	return &Channel{
		name:      name,
		transport: t,
		sink:      sink,
		logger:    logger,
		outbox:    make(chan frame, depth),
		done:      make(chan struct{}),
	}
}

// Start launches the reader and writer goroutines.
func (c *Channel) Start() {
	c.wg.Add(2)
	go c.readLoop()
	go c.writeLoop()
}

func (c *Channel) SendText(turn live.TextTurn) error {
	return c.enqueue(frame{text: &turn})
}

func (c *Channel) SendAudio(pcm []byte) error {
	return c.enqueue(frame{audio: pcm})
}

func (c *Channel) enqueue(f frame) error {
	if c.closing.Load() {
		return live.ErrChannelClosed
	}
	select {
	case c.outbox <- f:
		return nil
	case <-c.done:
		return live.ErrChannelClosed
	default:
		return live.ErrSendQueueFull
	}
}

// Close shuts the transport without reporting an event. It does not wait for
// the pump goroutines, so it is safe to call from the sink.
func (c *Channel) Close() error {
	c.shutdown()
	return c.closeErr
}

// Wait blocks until both pump goroutines have exited.
func (c *Channel) Wait() {
	c.wg.Wait()
}

func (c *Channel) shutdown() {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		close(c.done)
		c.closeErr = c.transport.Close()
	})
}

func (c *Channel) end(ev live.ChannelEvent) {
	c.endOnce.Do(func() {
		if c.closing.Load() {
			return
		}
		c.shutdown()
		c.sink(ev)
	})
}

func (c *Channel) readLoop() {
	defer c.wg.Done()
	for {
		in, err := c.transport.Read()
		if c.closing.Load() {
			return
		}
		if err != nil {
			if errors.Is(err, ErrRemoteClosed) {
				c.logger.Info("remote channel closed", "provider", c.name, "reason", err.Error())
				c.end(live.ChannelEvent{Type: live.ChannelClosed})
			} else {
				c.logger.Error("remote channel read failed", "provider", c.name, "error", err)
				c.end(live.ChannelEvent{Type: live.ChannelFailed, Err: fmt.Errorf("%s read: %w", c.name, err)})
			}
			return
		}
		if in.Ready && c.opened.CompareAndSwap(false, true) {
			c.logger.Debug("remote channel ready", "provider", c.name)
			c.sink(live.ChannelEvent{Type: live.ChannelOpened})
		}
		if in.Message != nil {
			c.sink(live.ChannelEvent{Type: live.ChannelMessage, Message: in.Message})
		}
	}
}

func (c *Channel) writeLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case f := <-c.outbox:
			var err error
			if f.text != nil {
				err = c.transport.WriteText(*f.text)
			} else {
				err = c.transport.WriteAudio(f.audio)
			}
			if err == nil {
				continue
			}
			if c.closing.Load() {
				return
			}
			c.logger.Error("remote channel write failed", "provider", c.name, "error", err)
			c.end(live.ChannelEvent{Type: live.ChannelFailed, Err: fmt.Errorf("%s write: %w", c.name, err)})
			return
		}
	}
}
