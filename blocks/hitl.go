package blocks

import (
	"regexp"
	"strings"
)

// hitlOpenPattern matches a bare [HITL_REQUIRED] opening tag for the
// unclosed-block fallback.
var hitlOpenPattern = regexp.MustCompile(`(?i)\[HITL_REQUIRED\]`)

// ExtractHITL returns the human-in-the-loop prompt from text, if present.
// A well-formed block yields the text between the tags. An opening tag
// without a closing tag yields the text up to the next blank line.
func ExtractHITL(text string) (prompt string, found bool) {
	if inner := rawBlocks(text, TagHITLRequired); len(inner) > 0 {
		return strings.TrimSpace(inner[0]), true
	}

	loc := hitlOpenPattern.FindStringIndex(text)
	if loc == nil {
		return "", false
	}

	rest := text[loc[1]:]
	if idx := strings.Index(rest, "\n\n"); idx >= 0 {
		rest = rest[:idx]
	}
	return strings.TrimSpace(rest), true
}
