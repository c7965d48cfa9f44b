package live

import (
	"sync"
	"sync/atomic"
)

// SessionState holds the live flags shared by the capture callback, the
// playback scheduler, the meter and the controller. Every flag is atomic; the
// capture path reads them once per frame without locking.
type SessionState struct {
	ID        string
	Character CharacterProfile

	alive        atomic.Bool
	connected    atomic.Bool
	greetingOpen atomic.Bool
	muted        atomic.Bool

	done     chan struct{}
	doneOnce sync.Once
}

// NewSessionState returns a live session that is not yet connected.
func NewSessionState(id string, character CharacterProfile) *SessionState {
	s := &SessionState{
		ID:        id,
		Character: character,
		done:      make(chan struct{}),
	}
	s.alive.Store(true)
	return s
}

// Alive reports whether the session has not been invalidated.
func (s *SessionState) Alive() bool {
	return s.alive.Load()
}

// Done is closed when the session is invalidated.
func (s *SessionState) Done() <-chan struct{} {
	return s.done
}

// Invalidate marks the session dead. It returns false if it already was.
func (s *SessionState) Invalidate() bool {
	if !s.alive.CompareAndSwap(true, false) {
		return false
	}
	s.connected.Store(false)
	s.doneOnce.Do(func() { close(s.done) })
	return true
}

// MarkConnected flips the connected flag once. It fails on a dead session.
func (s *SessionState) MarkConnected() bool {
	if !s.Alive() {
		return false
	}
	return s.connected.CompareAndSwap(false, true)
}

func (s *SessionState) Connected() bool {
	return s.connected.Load() && s.alive.Load()
}

// OpenGreeting latches the greeting gate. Only the first call returns true.
func (s *SessionState) OpenGreeting() bool {
	return s.greetingOpen.CompareAndSwap(false, true)
}

func (s *SessionState) GreetingOpen() bool {
	return s.greetingOpen.Load()
}

func (s *SessionState) Muted() bool {
	return s.muted.Load()
}

func (s *SessionState) SetMuted(v bool) {
	s.muted.Store(v)
}

// ToggleMute flips the mute flag and returns the new value.
func (s *SessionState) ToggleMute() bool {
	for {
		old := s.muted.Load()
		if s.muted.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// Gate evaluates the transmission predicate for a frame with the given peak.
// It returns the first failing condition, or ok when the frame may be sent.
func (s *SessionState) Gate(peak, threshold float64) (reason GateReason, ok bool) {
	switch {
	case !s.Connected():
		return GateNotConnected, false
	case !s.GreetingOpen():
		return GateGreeting, false
	case s.Muted():
		return GateMuted, false
	case peak < threshold:
		return GateNoise, false
	}
	return "", true
}
