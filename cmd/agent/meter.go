package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/lokutor-ai/voicepal/pkg/live"
)

const barWidth = 20

func bar(level float64) string {
	level = math.Max(0, math.Min(1, level))
	n := int(math.Round(level * barWidth))
	return strings.Repeat("█", n) + strings.Repeat("░", barWidth-n)
}

// statusLine renders the single-line terminal view of a snapshot.
func statusLine(s live.Snapshot) string {
	flags := ""
	if s.IsMuted {
		flags += " MUTED"
	}
	if s.IsTalking {
		flags += " talking"
	}
	if s.State == live.Connected && !s.IsGreetingOpen {
		flags += " greeting"
	}
	return fmt.Sprintf("[MIC %s] [BOT %s] %-12s%s", bar(s.InputLevel), bar(s.Volume), s.State, flags)
}

// describeError renders a failed snapshot for the terminal.
func describeError(s live.Snapshot) string {
	d := s.ErrorKind.Describe()
	line := fmt.Sprintf("%s: %s", d.Title, d.Message)
	switch s.ErrorKind.Recovery() {
	case live.RecoveryRetry:
		line += fmt.Sprintf(" [r] %s", d.Action)
	case live.RecoveryRecheckPermission:
		line += fmt.Sprintf(" [r] after you %s", strings.ToLower(d.Action))
	}
	return line
}
