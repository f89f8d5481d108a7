// Package storage persists per-triad knowledge graphs as indented JSON
// files with advisory locking, atomic temp-file-rename writes, timestamped
// backup rotation, corruption detection and best-effort repair.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/triadworks/triads/graph"
)

const (
	// DefaultBackupRetention is the number of backups kept per triad.
	DefaultBackupRetention = 5

	graphSuffix = "_graph.json"
	backupInfix = ".backup."
	lockSuffix  = ".lock"
	backupStamp = "20060102T150405.000000000Z"
	filePerm    = 0o644
	dirPerm     = 0o755
)

// triadNamePattern guards against path traversal in triad names.
var triadNamePattern = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

// Store manages graph files under a single directory.
type Store struct {
	dir       string
	retention int
	logger    *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithBackupRetention sets how many backups are kept per triad.
func WithBackupRetention(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.retention = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a graph store rooted at dir. The directory is created on
// first write, not here.
func NewStore(dir string, opts ...StoreOption) *Store {
	s := &Store{
		dir:       dir,
		retention: DefaultBackupRetention,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// GraphPath returns the on-disk path for a triad's graph.
func (s *Store) GraphPath(triad string) string {
	return filepath.Join(s.dir, triad+graphSuffix)
}

func (s *Store) lockPath(triad string) string {
	return s.GraphPath(triad) + lockSuffix
}

func validateTriad(triad string) error {
	if !triadNamePattern.MatchString(triad) {
		return fmt.Errorf("%w: %q", ErrInvalidTriad, triad)
	}
	return nil
}

// loadOptions collects per-call Load behavior.
type loadOptions struct {
	autoRestore bool
}

// LoadOption configures a single Load call.
type LoadOption func(*loadOptions)

// WithAutoRestore makes Load fall back to the newest backup when the graph
// file is corrupt. Never enabled implicitly by writers.
func WithAutoRestore() LoadOption {
	return func(o *loadOptions) {
		o.autoRestore = true
	}
}

// Load reads a triad's graph under a shared lock. A missing file yields the
// empty-graph default without writing it. A corrupt file yields the newest
// backup when auto-restore is requested, otherwise the default.
func (s *Store) Load(triad string, opts ...LoadOption) (*graph.Graph, error) {
	if err := validateTriad(triad); err != nil {
		return nil, err
	}
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	path := s.GraphPath(triad)
	lock := flock.New(s.lockPath(triad))
	if err := lock.RLock(); err != nil {
		// Lock directory may not exist yet; treat as empty store.
		if errors.Is(err, os.ErrNotExist) {
			return graph.New(triad), nil
		}
		return nil, storageErr("lock", path, err)
	}
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return graph.New(triad), nil
		}
		return nil, storageErr("read", path, err)
	}

	g, err := decodeGraph(data)
	if err == nil {
		return g, nil
	}

	s.logger.Warn("Graph file corrupt",
		"triad", triad,
		"path", path,
		"error", err)

	if o.autoRestore {
		if restored, rerr := s.newestBackupGraph(triad); rerr == nil {
			s.logger.Info("Restored graph from backup", "triad", triad)
			return restored, nil
		}
	}

	return graph.New(triad), nil
}

// decodeGraph parses and structurally checks a serialized graph.
func decodeGraph(data []byte) (*graph.Graph, error) {
	var g graph.Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if g.Nodes == nil {
		g.Nodes = []graph.Node{}
	}
	if g.Links == nil {
		g.Links = []graph.Link{}
	}
	return &g, nil
}

// Save validates then atomically writes a triad's graph: exclusive lock,
// backup of the current file, temp file + fsync + rename, backup pruning.
// On any failure the original file is untouched and the temp file removed.
func (s *Store) Save(triad string, g *graph.Graph) error {
	if err := validateTriad(triad); err != nil {
		return err
	}

	g.Touch()
	if result := g.Validate(); !result.Valid {
		return fmt.Errorf("%w: %s", ErrValidation, joinIssues(result.Issues))
	}

	if err := os.MkdirAll(s.dir, dirPerm); err != nil {
		return storageErr("mkdir", s.dir, err)
	}

	path := s.GraphPath(triad)
	lock := flock.New(s.lockPath(triad))
	if err := lock.Lock(); err != nil {
		return storageErr("lock", path, err)
	}
	defer lock.Unlock()

	if err := s.backupLocked(triad); err != nil {
		return err
	}

	if err := s.writeAtomic(path, g); err != nil {
		return err
	}

	s.pruneBackupsLocked(triad)
	return nil
}

// writeAtomic writes the graph to a sibling temp file, fsyncs it, and
// renames it over the target.
func (s *Store) writeAtomic(path string, g *graph.Graph) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return storageErr("marshal", path, err)
	}

	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return storageErr("tempfile", path, err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return storageErr("write", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return storageErr("fsync", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return storageErr("close", tmpName, err)
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		os.Remove(tmpName)
		return storageErr("chmod", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return storageErr("rename", path, err)
	}

	// Best-effort directory fsync so the rename survives a crash.
	if d, err := os.Open(s.dir); err == nil {
		d.Sync()
		d.Close()
	}
	return nil
}

// backupLocked copies the current on-disk file (if any) to a timestamped
// backup. Caller holds the exclusive lock.
func (s *Store) backupLocked(triad string) error {
	path := s.GraphPath(triad)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return storageErr("read", path, err)
	}

	stamp := time.Now().UTC().Format(backupStamp)
	backupPath := path + backupInfix + stamp
	if err := os.WriteFile(backupPath, data, filePerm); err != nil {
		return storageErr("backup", backupPath, err)
	}
	return nil
}

// pruneBackupsLocked removes backups beyond the retention limit, oldest
// first. Failures are logged, not fatal: the write already succeeded.
func (s *Store) pruneBackupsLocked(triad string) {
	backups, err := s.ListBackups(triad)
	if err != nil || len(backups) <= s.retention {
		return
	}
	for _, b := range backups[s.retention:] {
		if err := os.Remove(b.Path); err != nil {
			s.logger.Warn("Failed to prune backup", "path", b.Path, "error", err)
		}
	}
}

// Backup describes one retained backup file.
type Backup struct {
	Path    string    `json:"path"`
	ModTime time.Time `json:"mod_time"`
	Size    int64     `json:"size"`
}

// ListBackups returns a triad's backups, newest first.
func (s *Store) ListBackups(triad string) ([]Backup, error) {
	if err := validateTriad(triad); err != nil {
		return nil, err
	}

	pattern := s.GraphPath(triad) + backupInfix + "*"
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, storageErr("glob", pattern, err)
	}

	backups := make([]Backup, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		backups = append(backups, Backup{Path: m, ModTime: info.ModTime(), Size: info.Size()})
	}

	// Backup names embed a monotonic UTC timestamp, so name order is age
	// order; sort newest first.
	sort.Slice(backups, func(i, j int) bool {
		return filepath.Base(backups[i].Path) > filepath.Base(backups[j].Path)
	})
	return backups, nil
}

// Restore replaces a triad's graph with the named backup, atomically and
// under the exclusive lock. The current file is backed up first.
func (s *Store) Restore(triad, backupPath string) error {
	if err := validateTriad(triad); err != nil {
		return err
	}

	// The backup must live in the store directory and belong to this triad.
	base := filepath.Base(backupPath)
	if !strings.HasPrefix(base, triad+graphSuffix+backupInfix) {
		return fmt.Errorf("%w: backup %q does not belong to triad %q", ErrNotFound, backupPath, triad)
	}
	resolved := filepath.Join(s.dir, base)

	data, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: backup %s", ErrNotFound, base)
		}
		return storageErr("read", resolved, err)
	}

	g, err := decodeGraph(data)
	if err != nil {
		return err
	}

	return s.Save(triad, g)
}

// newestBackupGraph loads the most recent backup that parses.
func (s *Store) newestBackupGraph(triad string) (*graph.Graph, error) {
	backups, err := s.ListBackups(triad)
	if err != nil {
		return nil, err
	}
	for _, b := range backups {
		data, err := os.ReadFile(b.Path)
		if err != nil {
			continue
		}
		if g, err := decodeGraph(data); err == nil {
			return g, nil
		}
	}
	return nil, ErrNotFound
}

// Triads lists the triads with a graph file on disk.
func (s *Store) Triads() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+graphSuffix))
	if err != nil {
		return nil, storageErr("glob", s.dir, err)
	}
	triads := make([]string, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimSuffix(filepath.Base(m), graphSuffix)
		if triadNamePattern.MatchString(name) {
			triads = append(triads, name)
		}
	}
	sort.Strings(triads)
	return triads, nil
}

func joinIssues(issues []graph.ValidationIssue) string {
	parts := make([]string, len(issues))
	for i, issue := range issues {
		parts[i] = issue.String()
	}
	return strings.Join(parts, "; ")
}
