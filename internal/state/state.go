package state

import (
	"context"
	"path/filepath"
	"strings"

	"sizescope/internal/config"
	"sizescope/internal/domain"
	"sizescope/internal/report"
)

type Preferences struct {
	IncludeHidden bool
	SortMode      domain.SortMode
	Theme         string
}

// State is the browser's view of one report: which directory is shown, what
// is expanded, and the filters applied to the listing.
type State struct {
	Path     string
	Current  string
	Cursor   int
	Expanded map[string]bool
	// Loaded holds cached directories whose children were fetched. Cached
	// directories stay closed until then.
	Loaded       map[string]bool
	Prefs        Preferences
	Report       *report.Report
	SearchQuery  string
	FilterExt    string
	MinSizeBytes int64
}

func NewState(cfg config.Config) *State {
	return &State{
		Path:     cfg.Path,
		Expanded: make(map[string]bool),
		Loaded:   make(map[string]bool),
		Prefs: Preferences{
			IncludeHidden: cfg.Scan.IncludeHidden,
			SortMode:      cfg.SortMode(),
			Theme:         cfg.UI.Theme,
		},
	}
}

// SetReport switches to a new report, keeping the current directory and
// expansions that still exist in it.
func (appState *State) SetReport(rep *report.Report) {
	appState.Report = rep
	appState.Loaded = make(map[string]bool)
	root := rep.Root()
	if root == nil {
		appState.Current = ""
		appState.Cursor = 0
		return
	}
	if entry, ok := rep.Nearest(appState.Current); !ok || !entry.IsDir() {
		appState.Current = root.Path
		appState.Cursor = 0
	} else if entry.Path != appState.Current {
		appState.Current = entry.Path
		appState.Cursor = 0
	}

	expanded := make(map[string]bool, len(appState.Expanded))
	for path := range appState.Expanded {
		if _, ok := rep.Lookup(path); ok {
			expanded[path] = true
		}
	}
	appState.Expanded = expanded
	appState.Expanded[appState.Current] = true
}

// SetCurrent makes the directory at path the listing root.
func (appState *State) SetCurrent(path string) bool {
	entry, ok := appState.lookup(path)
	if !ok || !entry.IsDir() {
		return false
	}
	appState.Current = entry.Path
	appState.Cursor = 0
	appState.Expanded[entry.Path] = true
	return true
}

func (appState *State) CurrentEntry() *domain.Entry {
	entry, ok := appState.lookup(appState.Current)
	if !ok {
		return nil
	}
	return entry
}

func (appState *State) CurrentPath() string {
	if appState.Current != "" {
		return appState.Current
	}
	return appState.Path
}

// NeedsLoad reports whether entry is a cached directory whose children have
// not been fetched yet.
func (appState *State) NeedsLoad(entry *domain.Entry) bool {
	return entry != nil && entry.IsDir() && entry.Cached && len(entry.Children) == 0 && !appState.Loaded[entry.Path]
}

func (appState *State) MarkLoaded(path string) {
	appState.Loaded[path] = true
}

type VisibleNode struct {
	Entry *domain.Entry
	Depth int
}

// VisibleNodes lists the current directory and its expanded descendants in
// the preferred order. Filters apply to everything below the current
// directory.
func (appState *State) VisibleNodes() []VisibleNode {
	root := appState.CurrentEntry()
	if root == nil {
		return nil
	}
	visible := []VisibleNode{{Entry: root, Depth: 0}}
	appState.appendChildren(&visible, root, 1)
	return visible
}

func (appState *State) appendChildren(visible *[]VisibleNode, entry *domain.Entry, depth int) {
	if !appState.IsExpanded(entry.Path) {
		return
	}
	for _, child := range appState.children(entry) {
		if !appState.nodeMatches(child) {
			continue
		}
		*visible = append(*visible, VisibleNode{Entry: child, Depth: depth})
		if child.IsDir() {
			appState.appendChildren(visible, child, depth+1)
		}
	}
}

// CurrentNode is the entry under the cursor.
func (appState *State) CurrentNode() *domain.Entry {
	visible := appState.VisibleNodes()
	if len(visible) == 0 || appState.Cursor < 0 || appState.Cursor >= len(visible) {
		return nil
	}
	return visible[appState.Cursor].Entry
}

func (appState *State) EnterDir(path string) bool {
	entry, ok := appState.lookup(path)
	if !ok || !entry.IsDir() || appState.NeedsLoad(entry) {
		return false
	}
	return appState.SetCurrent(path)
}

// LeaveDir moves to the parent directory if the report knows it.
func (appState *State) LeaveDir() bool {
	root := appState.Report.Root()
	if root == nil || appState.Current == root.Path {
		return false
	}
	return appState.SetCurrent(filepath.Dir(appState.Current))
}

func (appState *State) ToggleExpanded(path string) bool {
	if path == "" {
		return false
	}
	appState.Expanded[path] = !appState.Expanded[path]
	return appState.Expanded[path]
}

func (appState *State) IsExpanded(path string) bool {
	return appState.Expanded[path]
}

// ChildCounts returns the directories and files directly under entry, or
// false when they are not known yet.
func (appState *State) ChildCounts(entry *domain.Entry) (dirs, files int, known bool) {
	if entry == nil || !entry.IsDir() || appState.NeedsLoad(entry) {
		return 0, 0, false
	}
	for _, child := range appState.children(entry) {
		if child.IsDir() {
			dirs++
		} else {
			files++
		}
	}
	return dirs, files, true
}

func (appState *State) ToggleSortMode() domain.SortMode {
	switch appState.Prefs.SortMode {
	case domain.SortBySize:
		appState.Prefs.SortMode = domain.SortByName
	case domain.SortByName:
		appState.Prefs.SortMode = domain.SortByMod
	default:
		appState.Prefs.SortMode = domain.SortBySize
	}
	return appState.Prefs.SortMode
}

func (appState *State) ToggleShowHidden() bool {
	appState.Prefs.IncludeHidden = !appState.Prefs.IncludeHidden
	return appState.Prefs.IncludeHidden
}

func (appState *State) ClearFilters() {
	appState.SearchQuery = ""
	appState.FilterExt = ""
	appState.MinSizeBytes = 0
}

func (appState *State) Filtering() bool {
	return appState.SearchQuery != "" || appState.FilterExt != "" || appState.MinSizeBytes > 0
}

func (appState *State) lookup(path string) (*domain.Entry, bool) {
	if appState.Report == nil || path == "" {
		return nil, false
	}
	return appState.Report.Lookup(path)
}

// children never triggers an expansion; cached directories are fetched by
// the caller and marked loaded first.
func (appState *State) children(entry *domain.Entry) []*domain.Entry {
	if appState.Report == nil || appState.NeedsLoad(entry) {
		return nil
	}
	children, err := appState.Report.Children(context.Background(), entry, appState.Prefs.SortMode)
	if err != nil {
		return nil
	}
	return children
}

func (appState *State) nodeMatches(entry *domain.Entry) bool {
	if entry == nil {
		return false
	}
	if appState.SearchQuery != "" {
		query := strings.ToLower(appState.SearchQuery)
		if !strings.Contains(strings.ToLower(entry.Name), query) {
			return false
		}
	}
	if appState.FilterExt != "" {
		if entry.IsDir() {
			return false
		}
		filter := strings.ToLower(strings.TrimPrefix(appState.FilterExt, "."))
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(entry.Name), "."))
		if ext != filter {
			return false
		}
	}
	if appState.MinSizeBytes > 0 && entry.AggregateSize < appState.MinSizeBytes {
		return false
	}
	return true
}
