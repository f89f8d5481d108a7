package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triadworks/triads/graph"
)

func testGraph(triad string) *graph.Graph {
	g := graph.New(triad)
	now := time.Now().UTC()
	g.AddNode(graph.Node{ID: "n1", Type: graph.NodeTypeFinding, Label: "Finding one", Confidence: 0.8, CreatedAt: now, UpdatedAt: now})
	g.AddNode(graph.Node{ID: "n2", Type: graph.NodeTypeDecision, Label: "Decision one", Confidence: 0.9, CreatedAt: now, UpdatedAt: now})
	g.AddLink(graph.Link{Source: "n1", Target: "n2", Key: "motivates", CreatedAt: now, UpdatedAt: now})
	return g
}

func TestLoadMissingReturnsDefault(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "graphs"))

	g, err := store.Load("design")
	require.NoError(t, err)
	assert.Equal(t, "design", g.Meta.TriadName)
	assert.Empty(t, g.Nodes)

	// Load must not create the file.
	_, err = os.Stat(store.GraphPath("design"))
	assert.True(t, os.IsNotExist(err))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())
	g := testGraph("design")

	require.NoError(t, store.Save("design", g))

	loaded, err := store.Load("design")
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Meta.NodeCount)
	assert.Equal(t, 1, loaded.Meta.EdgeCount)
	require.NotNil(t, loaded.FindNode("n1"))
	assert.Equal(t, "Finding one", loaded.FindNode("n1").Label)

	// save(load(triad)) == load(triad) modulo _meta timestamps.
	require.NoError(t, store.Save("design", loaded))
	again, err := store.Load("design")
	require.NoError(t, err)
	assert.Equal(t, loaded.Nodes, again.Nodes)
	assert.Equal(t, loaded.Links, again.Links)
}

func TestSaveRejectsInvalidGraph(t *testing.T) {
	store := NewStore(t.TempDir())
	g := testGraph("design")
	g.Links = append(g.Links, graph.Link{Source: "n1", Target: "ghost", Key: "refs"})

	err := store.Save("design", g)
	require.ErrorIs(t, err, ErrValidation)

	// No side effect on disk.
	_, statErr := os.Stat(store.GraphPath("design"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestTriadNameGuard(t *testing.T) {
	store := NewStore(t.TempDir())

	for _, name := range []string{"../etc", "a/b", "a\\b", "a..b", "", "triad name"} {
		_, err := store.Load(name)
		assert.ErrorIs(t, err, ErrInvalidTriad, "name %q", name)
	}
}

func TestBackupRotation(t *testing.T) {
	store := NewStore(t.TempDir(), WithBackupRetention(3))

	// K writes with retention N leave min(K-1, N) backups: the first write
	// has nothing to back up.
	for i := 0; i < 6; i++ {
		g := testGraph("quality")
		require.NoError(t, store.Save("quality", g))
		time.Sleep(2 * time.Millisecond)
	}

	backups, err := store.ListBackups("quality")
	require.NoError(t, err)
	assert.Len(t, backups, 3)

	// Newest first, and all strictly older than or equal to the live file.
	for i := 1; i < len(backups); i++ {
		assert.GreaterOrEqual(t, filepath.Base(backups[i-1].Path), filepath.Base(backups[i].Path))
	}
}

func TestCorruptLoadReturnsDefault(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, store.Save("design", testGraph("design")))
	require.NoError(t, os.WriteFile(store.GraphPath("design"), []byte("{not json"), 0o644))

	g, err := store.Load("design")
	require.NoError(t, err)
	assert.Empty(t, g.Nodes, "corrupt file without auto-restore yields the default")
}

func TestCorruptLoadAutoRestore(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, store.Save("design", testGraph("design")))
	// Second save creates a backup of the first valid file.
	g2, err := store.Load("design")
	require.NoError(t, err)
	g2.AddNode(graph.Node{ID: "n3", Type: graph.NodeTypeEntity, Label: "Extra", CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()})
	require.NoError(t, store.Save("design", g2))

	require.NoError(t, os.WriteFile(store.GraphPath("design"), []byte("{not json"), 0o644))

	restored, err := store.Load("design", WithAutoRestore())
	require.NoError(t, err)
	assert.NotEmpty(t, restored.Nodes, "auto-restore must return the newest parsable backup")
}

func TestRestoreNamedBackup(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, store.Save("design", testGraph("design")))

	g2, err := store.Load("design")
	require.NoError(t, err)
	g2.AddNode(graph.Node{ID: "n3", Type: graph.NodeTypeEntity, Label: "Extra", CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()})
	require.NoError(t, store.Save("design", g2))

	backups, err := store.ListBackups("design")
	require.NoError(t, err)
	require.NotEmpty(t, backups)

	require.NoError(t, store.Restore("design", backups[len(backups)-1].Path))
	g3, err := store.Load("design")
	require.NoError(t, err)
	assert.Nil(t, g3.FindNode("n3"), "restore must bring back the older revision")
}

func TestRestoreRejectsForeignBackup(t *testing.T) {
	store := NewStore(t.TempDir())
	err := store.Restore("design", "/etc/passwd")
	assert.Error(t, err)
}

func TestConcurrentWritersSerialize(t *testing.T) {
	store := NewStore(t.TempDir())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g := testGraph("design")
			assert.NoError(t, store.Save("design", g))
		}()
	}
	wg.Wait()

	// After all writers complete the file is valid JSON matching one input.
	data, err := os.ReadFile(store.GraphPath("design"))
	require.NoError(t, err)
	var g graph.Graph
	require.NoError(t, json.Unmarshal(data, &g))
	assert.Equal(t, 2, g.Meta.NodeCount)
}

func TestCheckReportsCorruption(t *testing.T) {
	store := NewStore(t.TempDir())

	r, err := store.Check("design")
	require.NoError(t, err)
	assert.False(t, r.Exists)
	assert.True(t, r.Healthy())

	require.NoError(t, store.Save("design", testGraph("design")))
	r, err = store.Check("design")
	require.NoError(t, err)
	assert.True(t, r.Exists)
	assert.True(t, r.Healthy())

	require.NoError(t, os.WriteFile(store.GraphPath("design"), []byte("]["), 0o644))
	r, err = store.Check("design")
	require.NoError(t, err)
	assert.True(t, r.Corrupt)
	assert.False(t, r.Healthy())
}

func TestCheckAll(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, store.Save("design", testGraph("design")))
	require.NoError(t, store.Save("quality", testGraph("quality")))

	results, err := store.CheckAll()
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "design", results[0].Triad)
	assert.Equal(t, "quality", results[1].Triad)
}

func TestRepairDropsDanglersAndIsIdempotent(t *testing.T) {
	store := NewStore(t.TempDir())

	// Hand-write a broken graph: dangling edge, node missing a label,
	// stale counters.
	broken := map[string]any{
		"directed": true,
		"nodes": []map[string]any{
			{"id": "good", "type": "Finding", "label": "Kept", "confidence": 0.5},
			{"id": "broken", "type": "Finding", "label": "", "confidence": 0.5},
			{"id": "wild", "type": "Finding", "label": "Wild confidence", "confidence": 3.0},
		},
		"links": []map[string]any{
			{"source": "good", "target": "missing", "key": "refs"},
			{"source": "good", "target": "wild", "key": "refs"},
		},
		"_meta": map[string]any{"triad_name": "design", "node_count": 99, "edge_count": 99},
	}
	data, err := json.Marshal(broken)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(store.Dir(), 0o755))
	require.NoError(t, os.WriteFile(store.GraphPath("design"), data, 0o644))

	result, err := store.Repair("design")
	require.NoError(t, err)
	assert.True(t, result.Repaired)
	assert.Equal(t, 1, result.DroppedNodes)
	assert.Equal(t, 1, result.DroppedEdges)

	check, err := store.Check("design")
	require.NoError(t, err)
	assert.True(t, check.Healthy(), "validate(repair(G)) must hold: %v", check.Validation.Issues)

	// Second repair is a no-op.
	again, err := store.Repair("design")
	require.NoError(t, err)
	assert.False(t, again.Repaired)
	assert.Zero(t, again.DroppedNodes)
	assert.Zero(t, again.DroppedEdges)
}

func TestBackupCountAfterKWrites(t *testing.T) {
	store := NewStore(t.TempDir(), WithBackupRetention(5))

	for k := 1; k <= 3; k++ {
		require.NoError(t, store.Save("release", testGraph("release")))
		backups, err := store.ListBackups("release")
		require.NoError(t, err)
		assert.Len(t, backups, k-1, "after %d writes", k)
		time.Sleep(2 * time.Millisecond)
	}
}
