package live

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionGreetingLatchesOnce(t *testing.T) {
	s := NewSessionState("s", CharacterProfile{})
	assert.False(t, s.GreetingOpen())

	var wg sync.WaitGroup
	var wins sync.Map
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if s.OpenGreeting() {
				wins.Store(i, true)
			}
		}(i)
	}
	wg.Wait()

	n := 0
	wins.Range(func(any, any) bool { n++; return true })
	assert.Equal(t, 1, n)
	assert.True(t, s.GreetingOpen())
}

func TestSessionInvalidate(t *testing.T) {
	s := NewSessionState("s", CharacterProfile{})
	require.True(t, s.MarkConnected())
	require.False(t, s.MarkConnected())

	assert.True(t, s.Invalidate())
	assert.False(t, s.Invalidate())
	assert.False(t, s.Connected())
	assert.False(t, s.MarkConnected())

	select {
	case <-s.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestSessionGateOrder(t *testing.T) {
	s := NewSessionState("s", CharacterProfile{})
	reason, ok := s.Gate(1, 0.5)
	assert.False(t, ok)
	assert.Equal(t, GateNotConnected, reason)

	s.MarkConnected()
	s.OpenGreeting()
	assert.True(t, s.ToggleMute())
	reason, _ = s.Gate(1, 0.5)
	assert.Equal(t, GateMuted, reason)

	assert.False(t, s.ToggleMute())
	_, ok = s.Gate(0.5, 0.5)
	assert.True(t, ok)
}

func TestLookupCharacter(t *testing.T) {
	p, err := LookupCharacter(" Bluey ")
	require.NoError(t, err)
	assert.Equal(t, "Puck", p.VoiceID)
	assert.Equal(t, "Hello! Greet me as Bluey the puppy!", p.GreetingText)

	p, err = LookupCharacter(DefaultCharacter)
	require.NoError(t, err)
	assert.Equal(t, "Kore", p.VoiceID)

	_, err = LookupCharacter("garfield")
	assert.Error(t, err)
	assert.Equal(t, []string{"bluey", "shinchan"}, CharacterNames())
}
