package live

import (
	"fmt"
	"sort"
	"strings"
)

// CharacterProfile configures the remote persona for a session.
type CharacterProfile struct {
	Name              string
	VoiceID           string
	SystemInstruction string
	GreetingText      string
}

const DefaultCharacter = "shinchan"

var characters = map[string]CharacterProfile{
	"shinchan": {
		Name:    "shinchan",
		VoiceID: "Kore",
		SystemInstruction: "You are Shinchan Nohara, a 5-year-old kindergarten boy. You are funny, energetic, and slightly mischievous but very kind. " +
			"You are helping a user (who is a friend) practice English. Speak in simple, short sentences suitable for a beginner or a child. " +
			"If the user makes a mistake, gently correct them in a funny way. Do not be rude, just playful. Use words like 'Oho!', 'Hey hey!'. Keep responses concise.",
		GreetingText: "Hello! Greet me as Shinchan!",
	},
	"bluey": {
		Name:    "bluey",
		VoiceID: "Puck",
		SystemInstruction: "You are Bluey Heeler, a 6-year-old Blue Heeler puppy from Brisbane, Australia. You are imaginative, playful, and love games. " +
			"You are helping a user (who is a friend) practice English. Speak in simple, enthusiastic sentences. Be curious and ask questions about what games the user likes. " +
			"Use Australian expressions occasionally like 'G'day!' or 'No worries!'. If the user makes a mistake, help them kindly. Keep responses fun and concise.",
		GreetingText: "Hello! Greet me as Bluey the puppy!",
	},
}

// LookupCharacter returns the profile registered under name, case-insensitively.
func LookupCharacter(name string) (CharacterProfile, error) {
	p, ok := characters[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return CharacterProfile{}, fmt.Errorf("unknown character %q (have %s)", name, strings.Join(CharacterNames(), ", "))
	}
	return p, nil
}

// CharacterNames lists the registered characters in sorted order.
func CharacterNames() []string {
	names := make([]string, 0, len(characters))
	for n := range characters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
