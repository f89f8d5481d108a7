package blocks

import (
	"regexp"
	"strings"
)

// Sections holds the bullet lists extracted from an agent's markdown
// sections.
type Sections struct {
	KeyFindings     []string
	Decisions       []string
	OpenQuestions   []string
	Recommendations []string
}

// Empty reports whether no section yielded any items.
func (s Sections) Empty() bool {
	return len(s.KeyFindings) == 0 && len(s.Decisions) == 0 &&
		len(s.OpenQuestions) == 0 && len(s.Recommendations) == 0
}

// sectionHeaderPattern matches "## Heading" lines, capturing the heading.
var sectionHeaderPattern = regexp.MustCompile(`^#{2,3}\s+(.+?)\s*$`)

// ExtractSections pulls the Key Findings, Decisions, Open Questions and
// Recommendations bullet lists out of markdown text. Continuation lines
// attach to the previous item; other headings end the current section.
func ExtractSections(text string) Sections {
	var sections Sections
	var current *[]string
	continuing := false

	for _, line := range strings.Split(text, "\n") {
		if m := sectionHeaderPattern.FindStringSubmatch(line); m != nil {
			continuing = false
			switch normalizeHeading(m[1]) {
			case "key findings", "findings":
				current = &sections.KeyFindings
			case "decisions":
				current = &sections.Decisions
			case "open questions", "questions":
				current = &sections.OpenQuestions
			case "recommendations":
				current = &sections.Recommendations
			default:
				current = nil
			}
			continue
		}

		if current == nil {
			continue
		}

		if item, ok := listItemText(line); ok {
			if item != "" {
				*current = append(*current, item)
				continuing = true
			}
			continue
		}

		// Continuation lines attach to the previous item. A blank line
		// ends the item, so later prose never leaks into the list.
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continuing = false
			continue
		}
		if continuing && len(*current) > 0 {
			(*current)[len(*current)-1] += " " + trimmed
		}
	}

	return sections
}

func normalizeHeading(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}
