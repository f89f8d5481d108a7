package router

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const (
	// snippetLimit caps how much of the prompt lands in telemetry.
	snippetLimit = 50

	// DefaultTelemetryMaxBytes rotates the log past this size.
	DefaultTelemetryMaxBytes = 10 * 1024 * 1024

	// telemetryGenerations is how many rotated files are kept.
	telemetryGenerations = 2
)

// TelemetryRecord is one routing decision on the JSONL log.
type TelemetryRecord struct {
	ID            string         `json:"id,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	SessionID     string         `json:"session_id,omitempty"`
	PromptSnippet string         `json:"prompt_snippet"`
	Triad         string         `json:"triad,omitempty"`
	Confidence    float64        `json:"confidence"`
	Method        string         `json:"method"`
	LatencyMS     int64          `json:"latency_ms"`
	Overridden    bool           `json:"overridden,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
}

// Telemetry appends routing decisions to a size-rotated JSONL file.
// Writes are best-effort; routing never fails on a telemetry error.
type Telemetry struct {
	path     string
	maxBytes int64
	enabled  bool
}

// NewTelemetry creates a telemetry writer. A zero maxBytes uses the
// default rotation size.
func NewTelemetry(path string, maxBytes int64, enabled bool) *Telemetry {
	if maxBytes <= 0 {
		maxBytes = DefaultTelemetryMaxBytes
	}
	return &Telemetry{path: path, maxBytes: maxBytes, enabled: enabled}
}

// Snippet truncates a prompt for logging.
func Snippet(prompt string) string {
	runes := []rune(prompt)
	if len(runes) <= snippetLimit {
		return prompt
	}
	return string(runes[:snippetLimit])
}

// Record appends one decision line, rotating first when the log is
// over size.
func (t *Telemetry) Record(rec TelemetryRecord) error {
	if t == nil || !t.enabled {
		return nil
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	rec.PromptSnippet = Snippet(rec.PromptSnippet)

	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return fmt.Errorf("create telemetry directory: %w", err)
	}
	t.rotateIfNeeded()

	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open telemetry log: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode telemetry record: %w", err)
	}
	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("append telemetry record: %w", err)
	}
	return nil
}

// rotateIfNeeded shifts the log down one generation when it exceeds
// the size limit. Two older generations are retained.
func (t *Telemetry) rotateIfNeeded() {
	info, err := os.Stat(t.path)
	if err != nil || info.Size() < t.maxBytes {
		return
	}
	for g := telemetryGenerations; g >= 1; g-- {
		src := t.generation(g - 1)
		dst := t.generation(g)
		if g == telemetryGenerations {
			os.Remove(dst)
		}
		os.Rename(src, dst)
	}
}

func (t *Telemetry) generation(g int) string {
	if g == 0 {
		return t.path
	}
	return fmt.Sprintf("%s.%d", t.path, g)
}

// TelemetryStats summarizes the current telemetry log.
type TelemetryStats struct {
	Total         int            `json:"total"`
	ByMethod      map[string]int `json:"by_method"`
	ByTriad       map[string]int `json:"by_triad"`
	AvgConfidence float64        `json:"avg_confidence"`
	AvgLatencyMS  float64        `json:"avg_latency_ms"`
}

// Stats reads the live log and aggregates it. Unparseable lines are
// skipped.
func (t *Telemetry) Stats() (*TelemetryStats, error) {
	stats := &TelemetryStats{
		ByMethod: map[string]int{},
		ByTriad:  map[string]int{},
	}

	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return nil, fmt.Errorf("open telemetry log: %w", err)
	}
	defer f.Close()

	var confSum, latSum float64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec TelemetryRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		stats.Total++
		stats.ByMethod[rec.Method]++
		if rec.Triad != "" {
			stats.ByTriad[rec.Triad]++
		}
		confSum += rec.Confidence
		latSum += float64(rec.LatencyMS)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan telemetry log: %w", err)
	}
	if stats.Total > 0 {
		stats.AvgConfidence = confSum / float64(stats.Total)
		stats.AvgLatencyMS = latSum / float64(stats.Total)
	}
	return stats, nil
}
