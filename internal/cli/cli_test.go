package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNoFlagConflicts verifies that all subcommands can be initialized
// without flag shorthand conflicts.
func TestNoFlagConflicts(t *testing.T) {
	root := RootCmd()
	if root == nil {
		t.Fatal("RootCmd() returned nil")
	}
	var visit func(cmd *cobra.Command)
	visit = func(cmd *cobra.Command) {
		for _, sub := range cmd.Commands() {
			t.Run(sub.CommandPath(), func(t *testing.T) {
				defer func() {
					if r := recover(); r != nil {
						t.Errorf("flag conflict in %q command: %v", sub.CommandPath(), r)
					}
				}()
				// Merges persistent flags from the parents with local flags.
				_ = sub.Flags()
				_ = sub.InheritedFlags()
			})
			visit(sub)
		}
	}
	visit(root)
}

// TestSubcommandsExist verifies expected subcommands are registered.
func TestSubcommandsExist(t *testing.T) {
	root := RootCmd()
	expected := []string{"version", "scan", "top", "browse", "audit", "refresh", "cache"}
	for _, name := range expected {
		found := false
		for _, cmd := range root.Commands() {
			if cmd.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected subcommand %q not found", name)
		}
	}
}

// resetFlags puts every flag of cmd and its subcommands back to its default,
// since the command tree is shared between runs.
func resetFlags(cmd *cobra.Command) {
	reset := func(flag *pflag.Flag) {
		if slice, ok := flag.Value.(pflag.SliceValue); ok {
			_ = slice.Replace(nil)
		} else {
			_ = flag.Value.Set(flag.DefValue)
		}
		flag.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(home, "cache"))
	t.Chdir(home)

	root := RootCmd()
	resetFlags(root)
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// makeTree creates big/blob (4096 bytes), small (100) and .hidden (10).
func makeTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "big"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "big", "blob"), make([]byte, 4096), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "small"), make([]byte, 100), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden"), make([]byte, 10), 0o644))
	return root
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "sizescope dev")
}

func TestScanJSON(t *testing.T) {
	root := makeTree(t)
	stdout, _, err := execute(t, "scan", root, "--json", "--cache-backend", "memory", "-j", "1")
	require.NoError(t, err)

	var out scanOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, root, out.Root)
	assert.EqualValues(t, 4206, out.Size)
	assert.False(t, out.Partial)
	require.Len(t, out.Children, 3)
	assert.Equal(t, "big", out.Children[0].Name)
	assert.Equal(t, "dir", out.Children[0].Type)
	assert.EqualValues(t, 4096, out.Children[0].Size)
	assert.Equal(t, "small", out.Children[1].Name)
	assert.Equal(t, ".hidden", out.Children[2].Name)
}

func TestScanFiltersAndLimits(t *testing.T) {
	root := makeTree(t)
	stdout, _, err := execute(t, root, "--json", "--cache-backend", "memory",
		"--hidden=false", "--min-size", "50B", "-n", "1")
	require.NoError(t, err)

	var out scanOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.EqualValues(t, 4196, out.Size)
	require.Len(t, out.Children, 1)
	assert.Equal(t, "big", out.Children[0].Name)
	assert.Equal(t, 1, out.Omitted)
}

func TestScanTable(t *testing.T) {
	root := makeTree(t)
	stdout, _, err := execute(t, "scan", root, "--cache-backend", "memory", "--sort", "name")
	require.NoError(t, err)
	assert.Contains(t, stdout, "big/")
	assert.Contains(t, stdout, "4.0 KiB")
	assert.Contains(t, stdout, root)
	assert.Less(t, bytes.Index([]byte(stdout), []byte(".hidden")), bytes.Index([]byte(stdout), []byte("small")))
}

func TestScanRejectsBadMinSize(t *testing.T) {
	root := makeTree(t)
	_, _, err := execute(t, "scan", root, "--cache-backend", "memory", "--min-size", "lots")
	assert.ErrorContains(t, err, "min-size")
}

func TestScanMissingPath(t *testing.T) {
	_, _, err := execute(t, "scan", filepath.Join(t.TempDir(), "missing"), "--cache-backend", "memory")
	assert.Error(t, err)
}

func TestScanListsCachedRoot(t *testing.T) {
	root := makeTree(t)
	cacheDir := t.TempDir()
	args := []string{"scan", root, "--json", "--cache-backend", "json", "--cache-dir", cacheDir}

	_, _, err := execute(t, args...)
	require.NoError(t, err)
	stdout, _, err := execute(t, args...)
	require.NoError(t, err)

	var out scanOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Positive(t, out.Stats.CacheHits)
	require.Len(t, out.Children, 3, "a cached root is listed through expansion")
	assert.Equal(t, "big", out.Children[0].Name)
}

func TestTopJSON(t *testing.T) {
	root := makeTree(t)
	stdout, _, err := execute(t, "top", root, "--json", "--cache-backend", "memory", "-L", "2", "-c", "1")
	require.NoError(t, err)

	var out []topOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	require.Len(t, out, 1)
	tree := out[0].Tree
	assert.Equal(t, root, tree.Path)
	require.Len(t, tree.Children, 1)
	assert.Equal(t, filepath.Join(root, "big"), tree.Children[0].Path)
	assert.Equal(t, 2, tree.Omitted)
	assert.EqualValues(t, 110, tree.OmittedSize)
	require.Len(t, tree.Children[0].Children, 1)
	assert.Equal(t, filepath.Join(root, "big", "blob"), tree.Children[0].Children[0].Path)
}

func TestTopRejectsLevels(t *testing.T) {
	root := makeTree(t)
	_, _, err := execute(t, "top", root, "--cache-backend", "memory", "-L", "4")
	assert.ErrorContains(t, err, "levels")
}

func TestTopSeveralRoots(t *testing.T) {
	first, second := makeTree(t), makeTree(t)
	stdout, _, err := execute(t, "top", first, second, "--cache-backend", "memory", "-L", "1")
	require.NoError(t, err)
	assert.Contains(t, stdout, first)
	assert.Contains(t, stdout, second)
	assert.Less(t, bytes.Index([]byte(stdout), []byte(first)), bytes.Index([]byte(stdout), []byte(second)))
}

func TestAuditFixesStaleTotals(t *testing.T) {
	root := makeTree(t)
	cacheDir := t.TempDir()
	cacheArgs := []string{"--cache-backend", "json", "--cache-dir", cacheDir}

	_, _, err := execute(t, append([]string{"scan", root}, cacheArgs...)...)
	require.NoError(t, err)

	// Growing a file changes its size but not the mtime of big's parent.
	require.NoError(t, os.WriteFile(filepath.Join(root, "big", "blob"), make([]byte, 8192), 0o644))
	stdout, _, err := execute(t, append([]string{"audit", root, "--json"}, cacheArgs...)...)
	require.NoError(t, err)
	var audit struct {
		Checked  int `json:"checked"`
		Findings []struct {
			Path   string `json:"path"`
			Cached uint64 `json:"cached"`
			Actual uint64 `json:"actual"`
		} `json:"findings"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &audit))
	assert.Positive(t, audit.Checked)
	require.NotEmpty(t, audit.Findings)

	stdout, _, err = execute(t, append([]string{"audit", root, "--fix"}, cacheArgs...)...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "(fixed)")

	stdout, _, err = execute(t, append([]string{"audit", root}, cacheArgs...)...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "0 stale")
}

func TestCacheCommands(t *testing.T) {
	root := makeTree(t)
	cacheDir := t.TempDir()
	cacheArgs := []string{"--cache-backend", "json", "--cache-dir", cacheDir}

	_, _, err := execute(t, append([]string{"refresh", "--once", root}, cacheArgs...)...)
	require.NoError(t, err)

	stdout, _, err := execute(t, append([]string{"cache", "stats", "--json"}, cacheArgs...)...)
	require.NoError(t, err)
	var stats cacheStats
	require.NoError(t, json.Unmarshal([]byte(stdout), &stats))
	assert.Equal(t, "json", stats.Backend)
	assert.Equal(t, filepath.Join(cacheDir, "cache.json"), stats.Location)
	assert.Equal(t, 2, stats.Entries)

	stdout, _, err = execute(t, append([]string{"cache", "list", root, "--json"}, cacheArgs...)...)
	require.NoError(t, err)
	var rows []cacheRow
	require.NoError(t, json.Unmarshal([]byte(stdout), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, root, rows[0].Path)
	assert.EqualValues(t, 4206, rows[0].Size)

	stdout, _, err = execute(t, append([]string{"cache", "prune", filepath.Join(root, "big")}, cacheArgs...)...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "removed 1 entries")

	_, _, err = execute(t, append([]string{"cache", "compact"}, cacheArgs...)...)
	assert.ErrorContains(t, err, "log backend")

	stdout, _, err = execute(t, append([]string{"cache", "clear"}, cacheArgs...)...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "removed 1 entries")
}

func TestCacheCompactLogBackend(t *testing.T) {
	root := makeTree(t)
	cacheDir := t.TempDir()
	cacheArgs := []string{"--cache-backend", "log", "--cache-dir", cacheDir}

	for range 2 {
		_, _, err := execute(t, append([]string{"refresh", "--once", root}, cacheArgs...)...)
		require.NoError(t, err)
	}
	stdout, _, err := execute(t, append([]string{"cache", "compact"}, cacheArgs...)...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "compacted 2 entries")

	stdout, _, err = execute(t, append([]string{"cache", "stats"}, cacheArgs...)...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "backend:  log")
	assert.Contains(t, stdout, "entries:  2")
}

func TestRefreshRejectsBadSchedule(t *testing.T) {
	root := makeTree(t)
	_, _, err := execute(t, "refresh", root, "--cache-backend", "memory", "--schedule", "whenever")
	assert.ErrorContains(t, err, "refresh schedule")
}
