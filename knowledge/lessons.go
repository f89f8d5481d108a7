package knowledge

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/triadworks/triads/blocks"
	"github.com/triadworks/triads/graph"
)

// Lesson sources.
const (
	SourceExplicit        = "explicit"
	SourceUserCorrection  = "user_correction"
	SourceRepeatedMistake = "repeated_mistake"
)

var (
	correctionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\byou missed\s+(.{3,80}?)(?:[.!?\n]|$)`),
		regexp.MustCompile(`(?i)\byou forgot\s+(.{3,80}?)(?:[.!?\n]|$)`),
		regexp.MustCompile(`(?i)\byou should have\s+(.{3,80}?)(?:[.!?\n]|$)`),
		regexp.MustCompile(`(?i)\bdon't forget\s+(.{3,80}?)(?:[.!?\n]|$)`),
		regexp.MustCompile(`(?i)\bremember to\s+(.{3,80}?)(?:[.!?\n]|$)`),
		regexp.MustCompile(`(?i)\bwhy didn't you\s+(.{3,80}?)(?:[.!?\n]|$)`),
	}

	repeatedPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(.{3,60}?)\s+again[.!?\n]`),
		regexp.MustCompile(`(?i)\b(.{3,60}?)\s+is still missing`),
		regexp.MustCompile(`(?i)\banother\s+(.{3,60}?)(?:[.!?\n]|$)`),
	}

	deploymentKeywords = []string{"deploy", "release", "production", "rollback", "ship"}
	securityKeywords   = []string{"security", "secret", "credential", "password", "token", "vulnerability", "injection"}

	lessonSlugPattern = regexp.MustCompile(`[^a-z0-9]+`)
)

// Lesson is one detected piece of process knowledge before it becomes a
// graph node.
type Lesson struct {
	Source      string
	Label       string
	Description string
	Priority    graph.Priority
	ProcessType graph.ProcessType

	Trigger   *graph.TriggerConditions
	Checklist []graph.ChecklistItem
}

// ExtractLessons runs the three detection methods over conversation
// text.
func ExtractLessons(text string) []Lesson {
	var lessons []Lesson

	for _, pk := range blocks.ExtractProcessKnowledge(text) {
		lessons = append(lessons, lessonFromBlock(pk))
	}
	for _, p := range correctionPatterns {
		for _, m := range p.FindAllStringSubmatch(text, -1) {
			lessons = append(lessons, Lesson{
				Source:      SourceUserCorrection,
				Label:       strings.TrimSpace(m[1]),
				Description: strings.TrimSpace(m[0]),
				ProcessType: graph.ProcessTypeWarning,
			})
		}
	}
	for _, p := range repeatedPatterns {
		for _, m := range p.FindAllStringSubmatch(text, -1) {
			lessons = append(lessons, Lesson{
				Source:      SourceRepeatedMistake,
				Label:       strings.TrimSpace(m[1]),
				Description: strings.TrimSpace(m[0]),
				ProcessType: graph.ProcessTypeWarning,
			})
		}
	}
	return lessons
}

func lessonFromBlock(pk blocks.ProcessKnowledgeBlock) Lesson {
	lesson := Lesson{
		Source:      SourceExplicit,
		Label:       pk.Label,
		Description: pk.Description,
		Priority:    graph.Priority(pk.Priority),
		ProcessType: graph.ProcessType(pk.ProcessType),
		Trigger: &graph.TriggerConditions{
			ToolNames:       pk.TriggerToolNames,
			FilePatterns:    pk.TriggerFilePatterns,
			ActionKeywords:  pk.TriggerActionKeywords,
			ContextKeywords: pk.TriggerContextKeywords,
			TriadNames:      pk.TriggerTriadNames,
		},
	}
	for _, entry := range pk.Checklist {
		lesson.Checklist = append(lesson.Checklist, graph.ChecklistItem{
			Item:     entry.Item,
			Required: entry.Required,
			File:     entry.File,
		})
	}
	return lesson
}

// AssignPriority resolves the lesson's priority: explicit beats source
// heuristics beats keyword heuristics.
func AssignPriority(lesson Lesson, triad string) graph.Priority {
	if graph.ValidPriority(lesson.Priority) {
		return lesson.Priority
	}
	switch lesson.Source {
	case SourceUserCorrection:
		return graph.PriorityCritical
	case SourceRepeatedMistake:
		return graph.PriorityHigh
	}

	text := strings.ToLower(lesson.Label + " " + lesson.Description)
	if triad == "deployment" && containsAny(text, deploymentKeywords) {
		return graph.PriorityCritical
	}
	if containsAny(text, securityKeywords) {
		return graph.PriorityHigh
	}
	return graph.PriorityLow
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// StoreLessons persists lessons into a triad's graph as ProcessKnowledge
// nodes. A lesson whose node already exists bumps the repetition count
// and re-derives confidence instead of duplicating.
func (h *Handler) StoreLessons(triad, agentName string, lessons []Lesson) (int, error) {
	if len(lessons) == 0 {
		return 0, nil
	}

	g, err := h.store.Load(triad)
	if err != nil {
		return 0, fmt.Errorf("load graph for triad %q: %w", triad, err)
	}

	now := time.Now().UTC()
	stored := 0
	for _, lesson := range lessons {
		if lesson.Label == "" {
			continue
		}
		priority := AssignPriority(lesson, triad)
		id := lessonNodeID(lesson.Label)

		if existing := g.FindNode(id); existing != nil {
			existing.RepetitionCount++
			existing.Confidence = InitialConfidence(lesson.Source, priority, existing.RepetitionCount)
			existing.Status = StatusForConfidence(existing.Confidence)
			existing.UpdatedBy = agentName
			existing.UpdatedAt = now
			g.Touch()
			stored++
			continue
		}

		confidence := InitialConfidence(lesson.Source, priority, 0)
		node := graph.Node{
			ID:          id,
			Type:        graph.NodeTypeConcept,
			Label:       lesson.Label,
			Description: lesson.Description,
			Confidence:  confidence,
			Priority:    priority,
			Status:      StatusForConfidence(confidence),
			CreatedBy:   agentName,
			CreatedAt:   now,
			UpdatedAt:   now,

			ProcessType:       processTypeOrDefault(lesson.ProcessType),
			Source:            lesson.Source,
			TriggerConditions: lesson.Trigger,
			Checklist:         lesson.Checklist,
		}
		if g.AddNode(node) {
			stored++
		}
	}

	if err := h.store.Save(triad, g); err != nil {
		return 0, fmt.Errorf("save graph for triad %q: %w", triad, err)
	}
	return stored, nil
}

func processTypeOrDefault(pt graph.ProcessType) graph.ProcessType {
	switch pt {
	case graph.ProcessTypeChecklist, graph.ProcessTypePattern,
		graph.ProcessTypeWarning, graph.ProcessTypeRequirement:
		return pt
	}
	return graph.ProcessTypeWarning
}

// lessonNodeID derives a stable node id from the lesson label so the
// same lesson lands on the same node.
func lessonNodeID(label string) string {
	slug := lessonSlugPattern.ReplaceAllString(strings.ToLower(label), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 60 {
		slug = strings.Trim(slug[:60], "-")
	}
	return "pk-" + slug
}
