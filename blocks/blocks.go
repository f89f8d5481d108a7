// Package blocks parses the tagged blocks agents embed in their free-form
// output: [GRAPH_UPDATE], [PRE_FLIGHT_CHECK], [PROCESS_KNOWLEDGE],
// [HITL_REQUIRED] and [AGENT_CONTEXT]. All parsers are pure and forgiving;
// malformed blocks are skipped, never fatal.
package blocks

import (
	"regexp"
	"strings"
)

// Block tag names.
const (
	TagGraphUpdate      = "GRAPH_UPDATE"
	TagPreFlightCheck   = "PRE_FLIGHT_CHECK"
	TagProcessKnowledge = "PROCESS_KNOWLEDGE"
	TagHITLRequired     = "HITL_REQUIRED"
	TagAgentContext     = "AGENT_CONTEXT"
)

// tagPatterns caches the compiled open/close patterns per tag.
var tagPatterns = map[string]*regexp.Regexp{}

func init() {
	for _, tag := range []string{TagGraphUpdate, TagPreFlightCheck, TagProcessKnowledge, TagHITLRequired, TagAgentContext} {
		tagPatterns[tag] = compileTag(tag)
	}
}

// compileTag builds a case-insensitive pattern matching [TAG]...[/TAG]
// with the inner content captured. Non-greedy so multiple blocks in one
// text each match separately.
func compileTag(tag string) *regexp.Regexp {
	escaped := regexp.QuoteMeta(tag)
	return regexp.MustCompile(`(?is)\[` + escaped + `\]\s*\n?(.*?)\[/` + escaped + `\]`)
}

// rawBlocks returns the inner content of every well-formed [tag] block in
// text, in order. An opening tag without a closing tag yields nothing.
func rawBlocks(text, tag string) []string {
	if text == "" {
		return nil
	}
	re, ok := tagPatterns[tag]
	if !ok {
		re = compileTag(tag)
	}
	matches := re.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// parseKeyValue splits a "key: value" line. Returns ok=false for lines
// without a colon.
func parseKeyValue(line string) (key, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:idx])
	value = strings.TrimSpace(line[idx+1:])
	if key == "" {
		return "", "", false
	}
	return key, value, true
}

// isIndented reports whether the original line starts with whitespace.
func isIndented(line string) bool {
	return len(line) > 0 && (line[0] == ' ' || line[0] == '\t')
}

// listItemPattern matches bullet ("- ", "* ") and numbered ("1. ", "2) ")
// list items, capturing the item text.
var listItemPattern = regexp.MustCompile(`^\s*(?:[-*]|\d+[.)])\s+(.*)$`)

// listItemText returns the text of a list-item line, or ok=false.
func listItemText(line string) (string, bool) {
	m := listItemPattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}
