package workflow

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const (
	activeDir    = "instances"
	completedDir = "completed"
	abandonedDir = "abandoned"

	instanceSuffix = ".json"
	lockSuffix     = ".lock"

	maxSlugLen = 50

	filePerm = 0o644
	dirPerm  = 0o755
)

var (
	instanceIDPattern = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)
	slugStripPattern  = regexp.MustCompile(`[^a-z0-9]+`)
)

// Manager owns workflow instance files under a base directory. Active
// instances live in instances/, finished ones move to completed/ or
// abandoned/. All writes go through an advisory lock and an atomic
// rename.
type Manager struct {
	dir    string
	logger *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a Manager rooted at dir.
func NewManager(dir string, opts ...ManagerOption) *Manager {
	m := &Manager{
		dir:    dir,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Slugify reduces a title to a lowercase hyphenated slug capped at 50
// characters.
func Slugify(title string) string {
	slug := slugStripPattern.ReplaceAllString(strings.ToLower(title), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxSlugLen {
		slug = strings.Trim(slug[:maxSlugLen], "-")
	}
	if slug == "" {
		slug = "workflow"
	}
	return slug
}

// NewInstanceID builds a collision-resistant instance id from a title
// slug and a UTC timestamp with microsecond precision.
func NewInstanceID(title string, now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("%s-%s-%06d", Slugify(title), now.Format("20060102-150405"), now.Nanosecond()/1000)
}

// Create starts a new instance for a workflow type and persists it.
func (m *Manager) Create(schema *Schema, title, startedBy string) (*Instance, error) {
	now := time.Now().UTC()
	inst := &Instance{
		InstanceID:   NewInstanceID(title, now),
		WorkflowType: schema.WorkflowType,
		Metadata: Metadata{
			Title:     title,
			StartedBy: startedBy,
			StartedAt: now,
			Status:    StatusInProgress,
		},
		Progress: Progress{
			CompletedTriads: []CompletedTriad{},
			SkippedTriads:   []SkippedTriad{},
		},
		Deviations: []Deviation{},
	}
	if len(schema.Triads) > 0 {
		inst.Progress.CurrentTriad = schema.Triads[0].ID
	}

	if err := m.save(inst, activeDir); err != nil {
		return nil, err
	}
	m.logger.Info("workflow instance created",
		"instance_id", inst.InstanceID,
		"workflow_type", inst.WorkflowType)
	return inst, nil
}

// Load finds an instance by id, searching active, completed, then
// abandoned directories.
func (m *Manager) Load(id string) (*Instance, error) {
	if !instanceIDPattern.MatchString(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidInstanceID, id)
	}

	for _, sub := range []string{activeDir, completedDir, abandonedDir} {
		path := filepath.Join(m.dir, sub, id+instanceSuffix)
		inst, err := m.read(path)
		if err == nil {
			return inst, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load instance %s: %w", id, err)
		}
	}
	return nil, notFoundErr(id)
}

// Update applies a mutation to an active instance under the lock and
// persists the result.
func (m *Manager) Update(id string, mutate func(*Instance) error) (*Instance, error) {
	if !instanceIDPattern.MatchString(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidInstanceID, id)
	}

	path := filepath.Join(m.dir, activeDir, id+instanceSuffix)
	lock := flock.New(path + lockSuffix)
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("lock instance %s: %w", id, err)
	}
	defer lock.Unlock()

	inst, err := m.read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFoundErr(id)
		}
		return nil, fmt.Errorf("load instance %s: %w", id, err)
	}
	if err := mutate(inst); err != nil {
		return nil, err
	}
	if err := m.writeAtomic(path, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// MarkTriadCompleted appends a completion record and advances the
// current triad pointer to the next phase in the schema.
func (m *Manager) MarkTriadCompleted(schema *Schema, id, triadID string) (*Instance, error) {
	if schema.TriadIndex(triadID) < 0 {
		return nil, fmt.Errorf("unknown triad %q in workflow %q", triadID, schema.WorkflowType)
	}
	return m.Update(id, func(inst *Instance) error {
		now := time.Now().UTC()
		record := CompletedTriad{TriadID: triadID, CompletedAt: now}
		if len(inst.Progress.CompletedTriads) == 0 {
			record.DurationMinutes = now.Sub(inst.Metadata.StartedAt).Minutes()
		} else {
			last := inst.Progress.CompletedTriads[len(inst.Progress.CompletedTriads)-1]
			record.DurationMinutes = now.Sub(last.CompletedAt).Minutes()
		}
		inst.Progress.CompletedTriads = append(inst.Progress.CompletedTriads, record)

		if idx := schema.TriadIndex(triadID); idx+1 < len(schema.Triads) {
			inst.Progress.CurrentTriad = schema.Triads[idx+1].ID
		} else {
			inst.Progress.CurrentTriad = ""
		}
		return nil
	})
}

// MarkTriadSkipped appends a skip record.
func (m *Manager) MarkTriadSkipped(id, triadID, reason string) (*Instance, error) {
	return m.Update(id, func(inst *Instance) error {
		inst.Progress.SkippedTriads = append(inst.Progress.SkippedTriads, SkippedTriad{
			TriadID:   triadID,
			SkippedAt: time.Now().UTC(),
			Reason:    reason,
		})
		return nil
	})
}

// AddDeviation appends to the audit trail. Existing entries are never
// rewritten.
func (m *Manager) AddDeviation(id string, dev Deviation) (*Instance, error) {
	if dev.Timestamp.IsZero() {
		dev.Timestamp = time.Now().UTC()
	}
	return m.Update(id, func(inst *Instance) error {
		inst.Deviations = append(inst.Deviations, dev)
		return nil
	})
}

// MergeMetrics deep-merges a significance metrics payload into the
// instance. Nested maps merge key by key; scalars overwrite.
func (m *Manager) MergeMetrics(id string, metrics map[string]any) (*Instance, error) {
	return m.Update(id, func(inst *Instance) error {
		if inst.SignificanceMetrics == nil {
			inst.SignificanceMetrics = map[string]any{}
		}
		deepMerge(inst.SignificanceMetrics, metrics)
		return nil
	})
}

// Complete marks an active instance finished and moves it to completed/.
func (m *Manager) Complete(id string) (*Instance, error) {
	return m.finish(id, completedDir, func(inst *Instance, now time.Time) {
		inst.Metadata.Status = StatusCompleted
		inst.Metadata.CompletedAt = &now
		inst.Progress.CurrentTriad = ""
	})
}

// Abandon marks an active instance abandoned and moves it to abandoned/.
func (m *Manager) Abandon(id, reason string) (*Instance, error) {
	return m.finish(id, abandonedDir, func(inst *Instance, now time.Time) {
		inst.Metadata.Status = StatusAbandoned
		inst.Metadata.AbandonedAt = &now
		inst.Metadata.AbandonReason = reason
		inst.Progress.CurrentTriad = ""
	})
}

func (m *Manager) finish(id, destDir string, apply func(*Instance, time.Time)) (*Instance, error) {
	if !instanceIDPattern.MatchString(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidInstanceID, id)
	}

	srcPath := filepath.Join(m.dir, activeDir, id+instanceSuffix)
	lock := flock.New(srcPath + lockSuffix)
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("lock instance %s: %w", id, err)
	}
	defer lock.Unlock()

	inst, err := m.read(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFoundErr(id)
		}
		return nil, fmt.Errorf("load instance %s: %w", id, err)
	}

	apply(inst, time.Now().UTC())

	destPath := filepath.Join(m.dir, destDir, id+instanceSuffix)
	if err := m.writeAtomic(destPath, inst); err != nil {
		return nil, err
	}
	if err := os.Remove(srcPath); err != nil {
		return nil, fmt.Errorf("remove active instance %s: %w", id, err)
	}
	os.Remove(srcPath + lockSuffix)

	m.logger.Info("workflow instance finished",
		"instance_id", id, "status", inst.Metadata.Status)
	return inst, nil
}

// List returns instances in one state directory, newest started first.
func (m *Manager) List(status string) ([]*Instance, error) {
	sub := activeDir
	switch status {
	case StatusInProgress, "active", "":
		sub = activeDir
	case StatusCompleted:
		sub = completedDir
	case StatusAbandoned:
		sub = abandonedDir
	default:
		return nil, fmt.Errorf("unknown status %q", status)
	}

	pattern := filepath.Join(m.dir, sub, "*"+instanceSuffix)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}

	instances := make([]*Instance, 0, len(matches))
	for _, path := range matches {
		inst, err := m.read(path)
		if err != nil {
			m.logger.Warn("skipping unreadable instance", "path", path, "error", err)
			continue
		}
		instances = append(instances, inst)
	}
	sort.Slice(instances, func(i, j int) bool {
		return instances[i].Metadata.StartedAt.After(instances[j].Metadata.StartedAt)
	})
	return instances, nil
}

func (m *Manager) read(path string) (*Instance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var inst Instance
	if err := json.Unmarshal(data, &inst); err != nil {
		return nil, fmt.Errorf("decode instance: %w", err)
	}
	return &inst, nil
}

func (m *Manager) save(inst *Instance, sub string) error {
	if err := os.MkdirAll(filepath.Join(m.dir, sub), dirPerm); err != nil {
		return fmt.Errorf("create instance directory: %w", err)
	}
	path := filepath.Join(m.dir, sub, inst.InstanceID+instanceSuffix)
	lock := flock.New(path + lockSuffix)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock instance %s: %w", inst.InstanceID, err)
	}
	defer lock.Unlock()
	return m.writeAtomic(path, inst)
}

func (m *Manager) writeAtomic(path string, inst *Instance) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("create instance directory: %w", err)
	}

	data, err := json.MarshalIndent(inst, "", "  ")
	if err != nil {
		return fmt.Errorf("encode instance: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, ".instance-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write instance: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync instance: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close instance: %w", err)
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		return fmt.Errorf("chmod instance: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace instance: %w", err)
	}
	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
	return nil
}

func deepMerge(dst, src map[string]any) {
	for k, v := range src {
		if srcMap, ok := v.(map[string]any); ok {
			if dstMap, ok := dst[k].(map[string]any); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[k] = v
	}
}
