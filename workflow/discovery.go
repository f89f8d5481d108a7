package workflow

import (
	"os"
	"path/filepath"
	"sort"
)

// Discovery locates triads on disk. A triad exists when the agents
// directory contains a subdirectory named after it.
type Discovery struct {
	agentsDir string
}

// NewDiscovery creates a Discovery over agentsDir. An empty directory
// path disables existence checks.
func NewDiscovery(agentsDir string) *Discovery {
	return &Discovery{agentsDir: agentsDir}
}

// Exists reports whether the triad has a directory on disk. With no
// configured agents directory every triad is assumed present.
func (d *Discovery) Exists(triadID string) bool {
	if d.agentsDir == "" {
		return true
	}
	info, err := os.Stat(filepath.Join(d.agentsDir, triadID))
	return err == nil && info.IsDir()
}

// List returns the triad directories found on disk, sorted.
func (d *Discovery) List() ([]string, error) {
	if d.agentsDir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(d.agentsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var triads []string
	for _, e := range entries {
		if e.IsDir() {
			triads = append(triads, e.Name())
		}
	}
	sort.Strings(triads)
	return triads, nil
}
