package client

import (
	"regexp"
	"strings"
)

// Transcript trimming removes trailing prompt lines before a transcript is
// persisted, so that a restored tab does not stack a stale prompt on top of
// the fresh one printed by the new shell. Prompts are recognized by
// heuristic only; interior content is never touched.

var (
	ansiEscape     = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]|\x1b\][^\x07]*(\x07|\x1b\\)`)
	userHostPrompt = regexp.MustCompile(`^\S+@\S+:\S*\s*[$#>]\s*$`)
	barePrompt     = regexp.MustCompile(`^[$#>]\s*$`)
)

// stripANSI removes CSI and OSC escape sequences so prompt matching sees
// the plain text a user would.
func stripANSI(s string) string {
	return ansiEscape.ReplaceAllString(s, "")
}

// isPromptLine reports whether a single line looks like a shell prompt
// waiting for input: a bare $, # or >, a user@host:path$ style prompt, or
// an ANSI-colored line whose visible text ends in a prompt character.
func isPromptLine(line string) bool {
	plain := strings.TrimRight(stripANSI(strings.TrimRight(line, "\r")), " \t")
	if plain == "" {
		return false
	}
	if barePrompt.MatchString(plain) || userHostPrompt.MatchString(plain) {
		return true
	}
	if plain == line {
		return false
	}
	// The raw line carried escape sequences; treat it as a colored prompt
	// when the visible remainder ends with a prompt character.
	switch plain[len(plain)-1] {
	case '$', '#', '>', '%':
		return true
	}
	return false
}

// TrimTrailingPrompts returns the transcript with trailing prompt lines and
// trailing blank lines removed. A transcript consisting only of prompts
// collapses to the empty string. Everything above the trimmed tail is
// preserved byte for byte.
func TrimTrailingPrompts(transcript string) string {
	if transcript == "" {
		return ""
	}
	lines := strings.Split(transcript, "\n")
	end := len(lines)
	for end > 0 {
		line := lines[end-1]
		if strings.TrimSpace(stripANSI(line)) == "" || isPromptLine(line) {
			end--
			continue
		}
		break
	}
	if end == 0 {
		return ""
	}
	return strings.Join(lines[:end], "\n") + "\n"
}
