package blocks

import (
	"regexp"
	"strings"
)

// ProcessKnowledgeBlock is one parsed [PROCESS_KNOWLEDGE] block: a fully
// structured lesson with trigger conditions and an optional checklist.
type ProcessKnowledgeBlock struct {
	Type        string
	Label       string
	Description string
	Priority    string
	ProcessType string

	TriggerToolNames       []string
	TriggerFilePatterns    []string
	TriggerActionKeywords  []string
	TriggerContextKeywords []string
	TriggerTriadNames      []string

	Checklist []ChecklistEntry
}

// ChecklistEntry is one checklist item with its required/file hints.
type ChecklistEntry struct {
	Item     string
	Required bool
	File     string
}

var (
	// requiredHintPattern matches a "required: true|false" hint, optionally
	// parenthesized, inside a checklist item.
	requiredHintPattern = regexp.MustCompile(`\(?\s*required:\s*(true|false)\s*\)?`)
	// fileHintPattern matches a "file: path" hint inside a checklist item.
	fileHintPattern = regexp.MustCompile(`\(?\s*file:\s*([^\s,)]+)\s*\)?`)
)

// ExtractProcessKnowledge parses every [PROCESS_KNOWLEDGE] block in text.
// Section header lines are unindented keys ending in ":"; their bodies are
// the indented lines that follow. Blocks without a label are skipped.
func ExtractProcessKnowledge(text string) []ProcessKnowledgeBlock {
	var out []ProcessKnowledgeBlock
	for _, raw := range rawBlocks(text, TagProcessKnowledge) {
		if pk, ok := parseProcessKnowledge(raw); ok {
			out = append(out, pk)
		}
	}
	return out
}

func parseProcessKnowledge(raw string) (ProcessKnowledgeBlock, bool) {
	var pk ProcessKnowledgeBlock
	section := ""

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if !isIndented(line) {
			key, value, ok := parseKeyValue(trimmed)
			if !ok {
				section = ""
				continue
			}
			if value == "" {
				// Unindented key with no value opens a section.
				section = strings.ToLower(key)
				continue
			}
			section = ""
			switch strings.ToLower(key) {
			case "type":
				pk.Type = value
			case "label":
				pk.Label = value
			case "description":
				pk.Description = value
			case "priority":
				pk.Priority = strings.ToUpper(value)
			case "process_type":
				pk.ProcessType = strings.ToLower(value)
			}
			continue
		}

		switch section {
		case "trigger_conditions":
			key, value, ok := parseKeyValue(trimmed)
			if !ok {
				continue
			}
			list := toStringList(coerceValue(strings.ToLower(key), value))
			switch strings.ToLower(key) {
			case "tool_names":
				pk.TriggerToolNames = list
			case "file_patterns":
				pk.TriggerFilePatterns = list
			case "action_keywords":
				pk.TriggerActionKeywords = list
			case "context_keywords":
				pk.TriggerContextKeywords = list
			case "triad_names":
				pk.TriggerTriadNames = list
			}
		case "checklist":
			if item, ok := listItemText(line); ok {
				pk.Checklist = append(pk.Checklist, parseChecklistEntry(item))
			}
		}
	}

	if pk.Label == "" {
		return ProcessKnowledgeBlock{}, false
	}
	return pk, true
}

// parseChecklistEntry pulls the required/file hints out of a checklist item
// line, leaving the remaining text as the item.
func parseChecklistEntry(item string) ChecklistEntry {
	entry := ChecklistEntry{}

	if m := requiredHintPattern.FindStringSubmatch(item); m != nil {
		entry.Required = m[1] == "true"
		item = requiredHintPattern.ReplaceAllString(item, "")
	}
	if m := fileHintPattern.FindStringSubmatch(item); m != nil {
		entry.File = m[1]
		item = fileHintPattern.ReplaceAllString(item, "")
	}

	item = strings.TrimSpace(item)
	item = strings.TrimPrefix(item, "item:")
	entry.Item = strings.Trim(strings.TrimSpace(item), ",()")
	return entry
}
