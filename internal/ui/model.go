package ui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"sizescope/internal/config"
	"sizescope/internal/domain"
	"sizescope/internal/report"
	"sizescope/internal/services"
	"sizescope/internal/state"
)

// Backend starts scans and lists directories served from the cache.
type Backend interface {
	services.ScanStarter
	services.Expander
}

type Model struct {
	state            *state.State
	backend          Backend
	options          services.ScanOptions
	logger           zerolog.Logger
	keys             KeyMap
	showHelp         bool
	showWarnings     bool
	status           string
	scanning         bool
	handle           *services.ScanHandle
	width            int
	height           int
	viewTop          int
	progressCount    int64
	filterInputMode  string
	filterInputValue string
}

type Option func(*Model)

func WithLogger(logger zerolog.Logger) Option {
	return func(model *Model) { model.logger = logger }
}

// WithScanOptions sets the options every scan starts from. Hidden files
// follow the browser preference.
func WithScanOptions(opts services.ScanOptions) Option {
	return func(model *Model) { model.options = opts }
}

func NewModel(appState *state.State, backend Backend, opts ...Option) Model {
	model := Model{
		state:   appState,
		backend: backend,
		options: services.DefaultScanOptions(),
		logger:  zerolog.Nop(),
		keys:    DefaultKeyMap(),
		status:  "Ready - press s to scan",
		width:   100,
		height:  30,
	}
	for _, opt := range opts {
		opt(&model)
	}
	return model
}

func (model Model) WithStatus(message string) Model {
	if message != "" {
		model.status = message
	}
	return model
}

// Preferences returns the settings to persist when the browser exits.
func (model Model) Preferences() config.Preferences {
	return config.Preferences{
		Path:          model.state.Path,
		SortMode:      string(model.state.Prefs.SortMode),
		Theme:         model.state.Prefs.Theme,
		IncludeHidden: model.state.Prefs.IncludeHidden,
	}
}

// Init scans the starting path right away.
func (model Model) Init() tea.Cmd {
	return func() tea.Msg { return startScanMsg{} }
}

func (model Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.KeyMsg:
		return model.handleKey(typed)
	case tea.WindowSizeMsg:
		model.width = typed.Width
		model.height = typed.Height
		model.ensureCursorVisible()
		return model, nil
	case startScanMsg:
		return model.beginScan(model.state.Path, true)
	case scanResultMsg:
		if model.handle == nil || typed.id != model.handle.ID {
			return model, nil
		}
		model.scanning = false
		model.handle = nil
		model.progressCount = 0
		if typed.result == nil {
			model.status = "Scan failed"
			return model, nil
		}
		model.state.SetReport(report.New(typed.result,
			report.WithExpander(model.expander()),
			report.WithLogger(model.logger),
		))
		model.status = scanSummary(typed.result)
		model.ensureCursorVisible()
		if current := model.state.CurrentEntry(); model.state.NeedsLoad(current) {
			return model, model.loadCmd(current, false)
		}
		return model, nil
	case scanProgressMsg:
		if model.handle == nil || typed.id != model.handle.ID {
			return model, nil
		}
		if typed.progress.Completed {
			return model, nil
		}
		model.progressCount = typed.progress.Scanned
		if typed.progress.ErrMessage != "" {
			model.status = fmt.Sprintf("Scan warning: %s", typed.progress.ErrMessage)
		} else if typed.progress.Current != "" {
			model.status = fmt.Sprintf("Scanning... %d items (%s)", typed.progress.Scanned, typed.progress.Current)
		} else {
			model.status = fmt.Sprintf("Scanning... %d items", typed.progress.Scanned)
		}
		return model, model.progressCmd(model.handle)
	case loadedMsg:
		if typed.err != nil {
			model.status = fmt.Sprintf("List error: %v", typed.err)
			return model, nil
		}
		model.state.MarkLoaded(typed.path)
		if typed.enter {
			model.state.EnterDir(typed.path)
		} else {
			model.state.Expanded[typed.path] = true
		}
		model.status = fmt.Sprintf("Listed %s", typed.path)
		if diff, ok := model.state.Report.Drift(typed.path); ok {
			model.status = fmt.Sprintf("Listed %s (cached size off by %s)", typed.path, signedSize(diff))
		}
		model.ensureCursorVisible()
		return model, nil
	default:
		return model, nil
	}
}

func (model Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case model.filterInputMode != "":
		return model.handleFilterInput(msg)
	case key.Matches(msg, model.keys.Quit):
		model = model.cancelScan("")
		return model, tea.Quit
	case key.Matches(msg, model.keys.Help):
		model.showHelp = !model.showHelp
		return model, nil
	case key.Matches(msg, model.keys.Warnings):
		model.showWarnings = !model.showWarnings
		return model, nil
	case key.Matches(msg, model.keys.Stop):
		if model.scanning {
			model.handle.Cancel()
			model.status = "Cancelling scan..."
			return model, nil
		}
		model.showHelp = false
		model.showWarnings = false
		return model, nil
	case key.Matches(msg, model.keys.Up):
		if model.state.Cursor > 0 {
			model.state.Cursor--
			model.ensureCursorVisible()
		}
		return model, nil
	case key.Matches(msg, model.keys.Down):
		visible := model.state.VisibleNodes()
		if model.state.Cursor < len(visible)-1 {
			model.state.Cursor++
			model.ensureCursorVisible()
		}
		return model, nil
	case key.Matches(msg, model.keys.Enter):
		entry := model.state.CurrentNode()
		if entry == nil || !entry.IsDir() {
			return model, nil
		}
		if model.state.NeedsLoad(entry) {
			model.status = fmt.Sprintf("Listing %s...", entry.Path)
			return model, model.loadCmd(entry, false)
		}
		model.state.ToggleExpanded(entry.Path)
		model.ensureCursorVisible()
		return model, nil
	case key.Matches(msg, model.keys.Right):
		entry := model.state.CurrentNode()
		if entry == nil || !entry.IsDir() || entry.Path == model.state.Current {
			return model, nil
		}
		if model.state.NeedsLoad(entry) {
			model.status = fmt.Sprintf("Listing %s...", entry.Path)
			return model, model.loadCmd(entry, true)
		}
		model.state.EnterDir(entry.Path)
		model.ensureCursorVisible()
		return model, nil
	case key.Matches(msg, model.keys.Back), key.Matches(msg, model.keys.Left):
		if model.state.Report != nil && model.state.LeaveDir() {
			model.ensureCursorVisible()
			return model, nil
		}
		parentPath := parentDirPath(model.state.CurrentPath())
		if parentPath == "" {
			return model, nil
		}
		return model.beginScan(parentPath, true)
	case key.Matches(msg, model.keys.Refresh):
		return model.beginScan(model.state.CurrentPath(), false)
	case key.Matches(msg, model.keys.Scan):
		return model.beginScan(model.state.CurrentPath(), true)
	case key.Matches(msg, model.keys.Sort):
		model.state.ToggleSortMode()
		model.ensureCursorVisible()
		return model, nil
	case key.Matches(msg, model.keys.Hidden):
		model.state.ToggleShowHidden()
		return model.beginScan(model.state.CurrentPath(), true)
	case key.Matches(msg, model.keys.Search):
		model.filterInputMode = "search"
		model.filterInputValue = model.state.SearchQuery
		model.status = fmt.Sprintf("Search: %s", model.filterInputValue)
		return model, nil
	case key.Matches(msg, model.keys.ExtFilter):
		model.filterInputMode = "ext"
		model.filterInputValue = model.state.FilterExt
		model.status = fmt.Sprintf("Extension: %s", model.filterInputValue)
		return model, nil
	case key.Matches(msg, model.keys.SizeFilter):
		model.filterInputMode = "size"
		model.filterInputValue = formatSizeLabel(model.state.MinSizeBytes)
		model.status = fmt.Sprintf("Min size: %s", model.filterInputValue)
		return model, nil
	case key.Matches(msg, model.keys.ClearFilter):
		model.state.ClearFilters()
		model.status = "Filters cleared"
		model.ensureCursorVisible()
		return model, nil
	default:
		return model, nil
	}
}

func (model Model) handleFilterInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		model.filterInputMode = ""
		model.filterInputValue = ""
		model.status = "Filter cancelled"
		return model, nil
	case tea.KeyEnter:
		mode := model.filterInputMode
		value := strings.TrimSpace(model.filterInputValue)
		model.filterInputMode = ""
		switch mode {
		case "search":
			model.state.SearchQuery = value
		case "ext":
			model.state.FilterExt = value
		case "size":
			size, err := parseSizeInput(value)
			if err != nil {
				model.status = fmt.Sprintf("Filter error: %v", err)
				return model, nil
			}
			model.state.MinSizeBytes = size
		}
		model.state.Cursor = 0
		model.ensureCursorVisible()
		model.status = "Filter applied"
		return model, nil
	case tea.KeyBackspace, tea.KeyDelete:
		if len(model.filterInputValue) > 0 {
			model.filterInputValue = model.filterInputValue[:len(model.filterInputValue)-1]
		}
	default:
		if msg.Type == tea.KeyRunes {
			model.filterInputValue += string(msg.Runes)
		}
	}
	model.status = fmt.Sprintf("%s: %s", filterLabel(model.filterInputMode), model.filterInputValue)
	return model, nil
}

func parseSizeInput(input string) (int64, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return 0, nil
	}
	size, err := humanize.ParseBytes(trimmed)
	if err != nil {
		return 0, err
	}
	return int64(size), nil //nolint:gosec
}

func filterLabel(mode string) string {
	switch mode {
	case "search":
		return "Search"
	case "ext":
		return "Extension"
	case "size":
		return "Min size"
	default:
		return "Filter"
	}
}

func formatSizeLabel(size int64) string {
	if size <= 0 {
		return ""
	}
	return formatSize(size)
}

// beginScan replaces any running scan with a scan of path.
func (model Model) beginScan(path string, useCache bool) (Model, tea.Cmd) {
	model = model.cancelScan("")
	opts := model.options
	opts.IncludeHidden = model.state.Prefs.IncludeHidden
	opts.UseCache = useCache
	handle, err := model.backend.Start(context.Background(), services.ScanRequest{RootPath: path, Options: opts})
	if err != nil {
		model.status = fmt.Sprintf("Scan error: %v", err)
		return model, nil
	}
	model.state.Path = handle.RootPath
	model.handle = handle
	model.scanning = true
	model.progressCount = 0
	model.status = fmt.Sprintf("Scanning... %s", handle.RootPath)
	model.logger.Debug().Str("path", handle.RootPath).Bool("cache", useCache).Msg("scan started")
	return model, tea.Batch(waitCmd(handle), model.progressCmd(handle))
}

func waitCmd(handle *services.ScanHandle) tea.Cmd {
	return func() tea.Msg {
		return scanResultMsg{id: handle.ID, result: handle.Wait()}
	}
}

func (model Model) progressCmd(handle *services.ScanHandle) tea.Cmd {
	if handle == nil {
		return nil
	}
	return func() tea.Msg {
		progress, ok := <-handle.Progress()
		if !ok {
			return scanProgressMsg{id: handle.ID, progress: services.ScanProgress{Completed: true}}
		}
		return scanProgressMsg{id: handle.ID, progress: progress}
	}
}

func (model Model) loadCmd(entry *domain.Entry, enter bool) tea.Cmd {
	rep := model.state.Report
	mode := model.state.Prefs.SortMode
	return func() tea.Msg {
		_, err := rep.Children(context.Background(), entry, mode)
		return loadedMsg{path: entry.Path, enter: enter, err: err}
	}
}

func (model Model) expander() report.Expander {
	opts := model.options
	opts.IncludeHidden = model.state.Prefs.IncludeHidden
	backend := model.backend
	return report.ExpandFunc(func(ctx context.Context, path string) (*domain.Result, error) {
		return backend.Expand(ctx, path, opts)
	})
}

func (model Model) cancelScan(message string) Model {
	if model.handle != nil {
		model.handle.Cancel()
		model.handle = nil
	}
	if message != "" {
		model.status = message
	}
	model.scanning = false
	model.progressCount = 0
	return model
}

func scanSummary(result *domain.Result) string {
	var b strings.Builder
	if result.Cancelled {
		b.WriteString("Scan cancelled, sizes are partial")
	} else {
		fmt.Fprintf(&b, "Scan complete (%s)", result.Duration.Round(time.Millisecond))
	}
	fmt.Fprintf(&b, "  %d dirs, %d files, %d cached", result.Stats.Dirs, result.Stats.Files, result.Stats.CacheHits)
	if n := len(result.Warnings); n > 0 {
		fmt.Fprintf(&b, "  %d warnings (w)", n)
	}
	return b.String()
}

func (model *Model) ensureCursorVisible() {
	visible := model.state.VisibleNodes()
	if len(visible) == 0 {
		model.state.Cursor = 0
		model.viewTop = 0
		return
	}
	if model.state.Cursor >= len(visible) {
		model.state.Cursor = len(visible) - 1
	}
	if model.state.Cursor < 0 {
		model.state.Cursor = 0
	}
	listHeight := model.listHeight()
	if listHeight <= 0 {
		return
	}
	if model.state.Cursor < model.viewTop {
		model.viewTop = model.state.Cursor
	}
	if model.state.Cursor >= model.viewTop+listHeight {
		model.viewTop = model.state.Cursor - listHeight + 1
	}
	maxTop := len(visible) - listHeight
	if maxTop < 0 {
		maxTop = 0
	}
	if model.viewTop > maxTop {
		model.viewTop = maxTop
	}
}

func (model *Model) listHeight() int {
	return model.height - 6
}

func parentDirPath(path string) string {
	if path == "" {
		return ""
	}
	parent := filepath.Dir(path)
	if parent == path {
		return ""
	}
	return parent
}
