package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/glitch.audit/internal/audit"
	"github.com/banshee-data/glitch.audit/internal/config"
	"github.com/banshee-data/glitch.audit/internal/fsutil"
	"github.com/banshee-data/glitch.audit/internal/monitoring"
	"github.com/banshee-data/glitch.audit/internal/store"
	"github.com/banshee-data/glitch.audit/internal/testutil"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	monitoring.SetLogger(nil)
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	cmd.SetContext(context.Background())
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestVersionCommand(t *testing.T) {
	out, _, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "glitch-audit "), out)
}

func TestConfigValidate(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		out, _, err := runCLI(t, "config", "validate")
		require.NoError(t, err)
		assert.Contains(t, out, "defaults were used")
		assert.Contains(t, out, "Configuration valid")
	})

	t.Run("file", func(t *testing.T) {
		path := writeConfig(t, "seed = 3\n[clustering]\nmin_cluster_size = 10\n")
		out, _, err := runCLI(t, "--config", path, "config", "validate")
		require.NoError(t, err)
		assert.Contains(t, out, "Config path: "+path)
		assert.NotContains(t, out, "defaults were used")
	})

	t.Run("missing explicit file", func(t *testing.T) {
		_, _, err := runCLI(t, "-c", filepath.Join(t.TempDir(), "nope.toml"), "config", "validate")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nope.toml")
	})

	t.Run("invalid value", func(t *testing.T) {
		path := writeConfig(t, "[projection]\nn_neighbors = 1\n")
		_, _, err := runCLI(t, "-c", path, "config", "show")
		require.Error(t, err)
	})
}

func TestConfigShow(t *testing.T) {
	path := writeConfig(t, "seed = 9\n[clustering]\nmin_cluster_size = 17\n")
	out, _, err := runCLI(t, "-c", path, "config", "show")
	require.NoError(t, err)

	shown := writeConfig(t, out)
	cfg, err := config.LoadAuditConfig(shown)
	require.NoError(t, err)
	s, err := cfg.Resolve()
	require.NoError(t, err)
	assert.Equal(t, int64(9), s.Seed)
	assert.Equal(t, 17, s.Clustering.MinClusterSize)
	assert.Equal(t, config.Defaults().Projection, s.Projection)
}

func TestApplyRunFlags(t *testing.T) {
	cmd := newRunCommand(newCommandContext(new(string)))
	require.NoError(t, cmd.ParseFlags([]string{"--seed", "5", "--deep-dive", "4,2", "--skip-figures"}))

	var f runFlags
	f.seed, _ = cmd.Flags().GetInt64("seed")
	f.deepDive, _ = cmd.Flags().GetIntSlice("deep-dive")
	f.skipFigures, _ = cmd.Flags().GetBool("skip-figures")

	base := config.EmptyAuditConfig()
	cfg := applyRunFlags(cmd, *base, f)
	s, err := cfg.Resolve()
	require.NoError(t, err)

	assert.Equal(t, int64(5), s.Seed)
	assert.Equal(t, []int{4, 2}, s.DeepDiveClusters)
	assert.True(t, s.Visualization.Skip)
	assert.Equal(t, config.Defaults().Paths, s.Paths, "unchanged flags leave the config alone")
	assert.Nil(t, base.Seed, "the loaded config is not mutated")
}

func TestHistoryCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	t.Run("missing database", func(t *testing.T) {
		_, _, err := runCLI(t, "history", "--db", dbPath)
		require.Error(t, err)
	})

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	stats := []audit.ClusterStats{
		{ClusterID: 0, N: 60, TopLabel: "Koi_Fish", TopLabelCount: 30, Purity: 0.5, Ambiguity: 30, Entropy: 1, NLabels: 2},
	}
	_, err = st.RecordRun(context.Background(), store.RunRecord{
		RunID:      "run-a",
		CreatedAt:  time.Date(2026, 10, 1, 12, 0, 0, 0, time.Local),
		Samples:    60,
		Clusters:   1,
		Clustering: "hdbscan eom min_cluster_size=25 min_samples=5",
	}, stats)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	t.Run("list", func(t *testing.T) {
		out, _, err := runCLI(t, "history", "--db", dbPath)
		require.NoError(t, err)
		assert.Contains(t, out, "run-a")
		assert.Contains(t, out, "2026-10-01 12:00")
	})

	t.Run("one run", func(t *testing.T) {
		out, _, err := runCLI(t, "history", "--db", dbPath, "--run", "run-a")
		require.NoError(t, err)
		assert.Contains(t, out, "Koi_Fish (30)")
		assert.Contains(t, out, "min_cluster_size=25")
	})

	t.Run("disabled store", func(t *testing.T) {
		path := writeConfig(t, "[store]\npath = \"\"\n")
		_, _, err := runCLI(t, "-c", path, "history")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disabled")
	})
}

func TestRunCommand_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("runs UMAP and HDBSCAN")
	}

	root := t.TempDir()
	centres := testutil.OrthogonalCentres(3, 8, 10)
	X, blob := testutil.Blobs(centres, 40, 0.3, 1)
	names := []string{"Blip", "Tomte", "Whistle"}
	labels := make([]string, len(blob))
	for i, b := range blob {
		labels[i] = names[b]
	}

	mfs := fsutil.NewMemoryFileSystem()
	fx := testutil.WriteFixture(t, mfs, root, X, labels)
	for _, name := range mfs.Files(root) {
		data, err := mfs.ReadFile(name)
		require.NoError(t, err)
		require.NoError(t, os.MkdirAll(filepath.Dir(name), 0755))
		require.NoError(t, os.WriteFile(name, data, 0644))
	}

	cfgPath := writeConfig(t, fmt.Sprintf(`
[projection]
n_neighbors = 10
metric = "euclidean"

[clustering]
min_cluster_size = 15

[store]
path = %q
`, filepath.Join(root, "runs.db")))

	out, _, err := runCLI(t, "-c", cfgPath, "run",
		"--repo-root", root,
		"--embeddings", fx.EmbeddingsPath,
		"--metadata", fx.MetadataPath,
		"--output-dir", filepath.Join(root, "findings"),
		"--skip-figures",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Results saved to "+filepath.Join(root, "findings"))
	assert.FileExists(t, filepath.Join(root, "findings", "outputs", "cluster_stats.csv"))

	hist, _, err := runCLI(t, "-c", cfgPath, "history")
	require.NoError(t, err)
	assert.Contains(t, hist, "hdbscan eom min_cluster_size=15")
}

func TestTableStyle(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, table.StyleDefault.Name, tableStyle(&buf).Name)
}
