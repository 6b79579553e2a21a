package ui

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sizescope/internal/config"
	"sizescope/internal/services"
	"sizescope/internal/sizecache"
	"sizescope/internal/state"
)

func runes(value string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(value)}
}

func newModel(backend Backend, path string) Model {
	cfg := config.DefaultConfig()
	cfg.Path = path
	opts := services.DefaultScanOptions()
	opts.Workers = 1
	return NewModel(state.NewState(cfg), backend, WithScanOptions(opts))
}

func update(t *testing.T, model Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := model.Update(msg)
	updated, ok := next.(Model)
	require.True(t, ok)
	return updated, cmd
}

// finishScan waits for the running scan and feeds its result back.
func finishScan(t *testing.T, model Model) (Model, tea.Cmd) {
	t.Helper()
	require.NotNil(t, model.handle)
	handle := model.handle
	return update(t, model, scanResultMsg{id: handle.ID, result: handle.Wait()})
}

func visibleNames(model Model) []string {
	var names []string
	for _, node := range model.state.VisibleNodes() {
		names = append(names, node.Entry.Name)
	}
	return names
}

func scanned(t *testing.T, path string) Model {
	t.Helper()
	model := newModel(&services.MockScanner{}, path)
	model, _ = update(t, model, model.Init()())
	model, _ = finishScan(t, model)
	return model
}

func TestInitScansStartingPath(t *testing.T) {
	model := newModel(&services.MockScanner{}, "/data")
	msg := model.Init()()
	require.IsType(t, startScanMsg{}, msg)

	model, cmd := update(t, model, msg)
	assert.NotNil(t, cmd)
	assert.True(t, model.scanning)

	model, _ = finishScan(t, model)
	assert.False(t, model.scanning)
	assert.Equal(t, []string{"data", "video.mp4", "docs"}, visibleNames(model))
	assert.Contains(t, model.status, "Scan complete")
}

func TestStaleResultIsIgnored(t *testing.T) {
	model := newModel(&services.MockScanner{Delay: time.Hour}, "/data")
	model, _ = update(t, model, startScanMsg{})
	first := model.handle

	model, _ = update(t, model, runes("s"))
	require.NotEqual(t, first.ID, model.handle.ID)

	model, _ = update(t, model, scanResultMsg{id: first.ID, result: first.Wait()})
	assert.True(t, model.scanning, "result of the replaced scan is dropped")
	model.handle.Cancel()
}

func TestCancelKeyStopsScan(t *testing.T) {
	model := newModel(&services.MockScanner{Delay: time.Hour}, "/data")
	model, _ = update(t, model, startScanMsg{})

	model, _ = update(t, model, runes("c"))
	assert.Contains(t, model.status, "Cancelling")

	model, _ = finishScan(t, model)
	assert.Contains(t, model.status, "cancelled")
	assert.NotEmpty(t, visibleNames(model))
}

func TestNavigation(t *testing.T) {
	model := scanned(t, "/data")

	model, _ = update(t, model, tea.KeyMsg{Type: tea.KeyDown})
	model, _ = update(t, model, tea.KeyMsg{Type: tea.KeyDown})
	require.Equal(t, "docs", model.state.CurrentNode().Name)

	model, _ = update(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, []string{"data", "video.mp4", "docs", "guide.pdf", "notes.txt"}, visibleNames(model))

	model, _ = update(t, model, tea.KeyMsg{Type: tea.KeyRight})
	assert.Equal(t, "/data/docs", model.state.CurrentPath())
	assert.Equal(t, 0, model.state.Cursor)

	model, _ = update(t, model, tea.KeyMsg{Type: tea.KeyLeft})
	assert.Equal(t, "/data", model.state.CurrentPath())
}

func TestSortKeyCyclesOrder(t *testing.T) {
	model := scanned(t, "/data")
	model, _ = update(t, model, runes("o"))
	assert.Equal(t, []string{"data", "docs", "video.mp4"}, visibleNames(model))
	assert.Equal(t, "name", model.Preferences().SortMode)
}

func TestFilterInput(t *testing.T) {
	model := scanned(t, "/data")

	model, _ = update(t, model, runes("/"))
	model, _ = update(t, model, runes("vq"))
	model, _ = update(t, model, tea.KeyMsg{Type: tea.KeyBackspace})
	model, _ = update(t, model, runes("i"))
	model, cmd := update(t, model, runes("q"))
	assert.Nil(t, cmd, "q is text while typing a filter")
	model, _ = update(t, model, tea.KeyMsg{Type: tea.KeyBackspace})
	model, _ = update(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, "vi", model.state.SearchQuery)
	assert.Equal(t, []string{"data", "video.mp4"}, visibleNames(model))

	model, _ = update(t, model, runes("x"))
	model, _ = update(t, model, runes("z"))
	model, _ = update(t, model, runes("1 KiB"))
	model, _ = update(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	assert.EqualValues(t, 1024, model.state.MinSizeBytes)

	model, _ = update(t, model, runes("z"))
	model, _ = update(t, model, tea.KeyMsg{Type: tea.KeyBackspace})
	model, _ = update(t, model, runes("lots"))
	model, _ = update(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Contains(t, model.status, "Filter error")
}

func TestHiddenToggleRescans(t *testing.T) {
	model := scanned(t, "/data")
	require.True(t, model.state.Prefs.IncludeHidden)

	model, cmd := update(t, model, runes("h"))
	assert.NotNil(t, cmd)
	assert.True(t, model.scanning)
	assert.False(t, model.Preferences().IncludeHidden)
	model.handle.Cancel()
}

func TestViewRenders(t *testing.T) {
	model := scanned(t, "/data")
	model, _ = update(t, model, tea.WindowSizeMsg{Width: 120, Height: 30})

	view := model.View()
	assert.Contains(t, view, "sizescope")
	assert.Contains(t, view, "video.mp4")
	assert.Contains(t, view, "1.0 MiB")

	model, _ = update(t, model, runes("w"))
	assert.Contains(t, model.View(), "Warnings")

	model, _ = update(t, model, runes("?"))
	assert.Contains(t, model.View(), "rescan ignoring the cache")
}

func TestCachedDirectoriesLoadOnDemand(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "big"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "big", "blob"), make([]byte, 2048), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "small"), make([]byte, 10), 0o644))

	scanner := services.NewFSScanner(sizecache.NewMemory())
	model := newModel(scanner, root)
	model, _ = update(t, model, startScanMsg{})
	model, _ = finishScan(t, model)
	assert.Equal(t, []string{filepath.Base(root), "big", "small"}, visibleNames(model))

	// Everything is cached now, including the root.
	model, _ = update(t, model, runes("s"))
	model, cmd := finishScan(t, model)
	require.NotNil(t, cmd, "a cached root is listed right away")
	assert.Equal(t, []string{filepath.Base(root)}, visibleNames(model))

	model, _ = update(t, model, cmd())
	assert.Equal(t, []string{filepath.Base(root), "big", "small"}, visibleNames(model))

	model, _ = update(t, model, tea.KeyMsg{Type: tea.KeyDown})
	big := model.state.CurrentNode()
	require.True(t, big.Cached)
	model, cmd = update(t, model, tea.KeyMsg{Type: tea.KeyRight})
	require.NotNil(t, cmd)
	assert.Equal(t, root, model.state.CurrentPath(), "entering waits for the listing")

	model, _ = update(t, model, cmd())
	assert.Equal(t, filepath.Join(root, "big"), model.state.CurrentPath())
	assert.Equal(t, []string{"big", "blob"}, visibleNames(model))
}
