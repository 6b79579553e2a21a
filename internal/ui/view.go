package ui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"sizescope/internal/domain"
	"sizescope/internal/state"
)

type uiStyles struct {
	headerStyle lipgloss.Style
	mutedStyle  lipgloss.Style
	statusStyle lipgloss.Style
	warnStyle   lipgloss.Style
	cursorStyle lipgloss.Style
	flagStyle   lipgloss.Style
	panelBorder lipgloss.Style
}

func stylesFor(model Model) uiStyles {
	if strings.ToLower(model.state.Prefs.Theme) == "light" {
		return uiStyles{
			headerStyle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("235")),
			mutedStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
			statusStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("25")).Bold(true),
			warnStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("124")).Bold(true),
			cursorStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("90")).Bold(true),
			flagStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("130")),
			panelBorder: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
		}
	}
	return uiStyles{
		headerStyle: lipgloss.NewStyle().Bold(true),
		mutedStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		statusStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("69")).Bold(true),
		warnStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("204")).Bold(true),
		cursorStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true),
		flagStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		panelBorder: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
	}
}

func (model Model) View() string {
	styles := stylesFor(model)
	if model.showHelp {
		return renderHelpView(model, styles)
	}

	body := renderBody(model, styles)
	footer := renderFooter(model, styles)
	return strings.Join([]string{body, footer}, "\n")
}

func renderBody(model Model, styles uiStyles) string {
	visible := model.state.VisibleNodes()
	bodyHeight := model.listHeight()
	if bodyHeight < 3 {
		bodyHeight = 3
	}

	leftWidth, rightWidth, showRight := splitPanels(model.width)
	left := renderTreePanel(model, styles, visible, bodyHeight, leftWidth)
	if !showRight {
		return left
	}
	sep := lipgloss.NewStyle().Foreground(lipgloss.Color("238")).Render("│")
	var right string
	if model.showWarnings {
		right = renderWarningsPanel(model, styles, rightWidth, bodyHeight)
	} else {
		right = renderDetailPanel(model, styles, rightWidth, bodyHeight)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, left, sep, right)
}

func renderFooter(model Model, styles uiStyles) string {
	statusLine := trimStatus(model.status, model.width)
	if model.scanning {
		statusLine = fmt.Sprintf("%s  %s", statusLine, progressBar(model.progressCount, 18))
	}
	statusStyle := styles.mutedStyle
	lower := strings.ToLower(model.status)
	if strings.Contains(lower, "error") || strings.Contains(lower, "warning") || strings.Contains(lower, "cancel") {
		statusStyle = styles.warnStyle
	}
	statusLine = statusStyle.Render(statusLine)

	totalInfo := "Total: --"
	if root := model.state.CurrentEntry(); root != nil {
		totalInfo = fmt.Sprintf("Total: %s", formatSize(root.AggregateSize))
	}
	sortInfo := fmt.Sprintf("Sort: %s", strings.ToUpper(string(model.state.Prefs.SortMode)))
	hiddenInfo := "Hidden: off"
	if model.state.Prefs.IncludeHidden {
		hiddenInfo = "Hidden: on"
	}
	left := fmt.Sprintf("%s  %s  %s%s", totalInfo, sortInfo, hiddenInfo, filterSummary(model))
	keys := "↑/↓ move  → enter  ← up  enter expand  s scan  r rescan  c cancel  / search  e ext  z min  x clear  o sort  h hidden  w warnings  ? help  q quit"
	if model.filterInputMode != "" {
		keys = "type value  enter apply  esc cancel"
	}
	footerLine := padLine(left, keys, model.width)
	return strings.Join([]string{statusLine, styles.mutedStyle.Render(footerLine)}, "\n")
}

func renderTreePanel(model Model, styles uiStyles, visible []state.VisibleNode, height, width int) string {
	if width < 20 {
		width = 20
	}
	contentWidth := maxInt(width-2, 10)
	crumbs := breadcrumbs(model.state.CurrentPath())
	status := "IDLE"
	if model.scanning {
		status = "SCANNING"
	}
	headerLine := padLine(styles.headerStyle.Render("sizescope")+"  "+crumbs, styles.statusStyle.Render(status), contentWidth)
	listHeight := height - 1
	if listHeight < 1 {
		listHeight = 1
	}
	if len(visible) == 0 {
		message := "Not scanned - press s"
		if model.scanning {
			message = "Scanning..."
		}
		lines := []string{headerLine, message}
		for range maxInt(listHeight-1, 0) {
			lines = append(lines, "")
		}
		return styles.panelBorder.Width(contentWidth).Render(strings.Join(lines, "\n"))
	}
	start := clamp(model.viewTop, 0, maxInt(len(visible)-1, 0))
	end := min(start+listHeight, len(visible))

	parentSize := visible[0].Entry.AggregateSize
	lines := make([]string, 0, height)
	lines = append(lines, headerLine)
	sizeWidth := 10
	for index := start; index < end; index++ {
		item := visible[index]
		entry := item.Entry
		indent := strings.Repeat("  ", item.Depth)
		name := entry.Name
		if entry.IsDir() {
			name += "/"
		}
		flags := model.state.Report.Flags(entry)
		if flags != "" {
			flags = " " + styles.flagStyle.Render(flags)
		}
		lineSize := fmt.Sprintf("%*s", sizeWidth, sizeLabel(entry))
		line := fmt.Sprintf("%s %s %s%s %s%s", lineSize, shareBar(entry.AggregateSize, parentSize, 8), indent, fileIcon(model, entry), name, flags)
		if index == model.state.Cursor {
			line = styles.cursorStyle.Render(line)
		}
		lines = append(lines, line)
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	content := strings.Join(lines, "\n")
	return styles.panelBorder.Width(contentWidth).Render(content)
}

func renderDetailPanel(model Model, styles uiStyles, width, height int) string {
	entry := model.state.CurrentNode()
	if entry == nil {
		return styles.panelBorder.Width(maxInt(width-2, 10)).Render("No selection")
	}
	contentWidth := maxInt(width-2, 10)
	mod := "-"
	if !entry.ModTime.IsZero() {
		mod = entry.ModTime.Format(time.RFC822)
	}
	lines := []string{
		styles.headerStyle.Render("Path"),
		entry.Path,
		"",
		styles.headerStyle.Render("Size"),
		fmt.Sprintf("Total : %s (%d bytes)", formatSize(entry.AggregateSize), entry.AggregateSize),
		fmt.Sprintf("Own   : %s", formatSize(entry.OwnSize)),
	}
	if diff, ok := model.state.Report.Drift(entry.Path); ok {
		lines = append(lines, fmt.Sprintf("Drift : %s since cached", signedSize(diff)))
	}
	if entry.IsDir() {
		if dirs, files, known := model.state.ChildCounts(entry); known {
			lines = append(lines, fmt.Sprintf("Folders: %d", dirs), fmt.Sprintf("Files  : %d", files))
		} else {
			lines = append(lines, "Contents: cached, enter to list")
		}
	}
	if notes := flagNotes(entry); len(notes) > 0 {
		lines = append(lines, "", styles.headerStyle.Render("State"))
		lines = append(lines, notes...)
	}
	lines = append(lines, "", styles.headerStyle.Render("Modified"), mod)

	content := strings.Join(lines, "\n")
	content = lipgloss.NewStyle().Width(contentWidth).Height(height).Render(content)
	return styles.panelBorder.Width(contentWidth).Render(content)
}

func renderWarningsPanel(model Model, styles uiStyles, width, height int) string {
	contentWidth := maxInt(width-2, 10)
	lines := []string{styles.headerStyle.Render("Warnings")}
	var warnings []domain.Warning
	if model.state.Report != nil {
		warnings = model.state.Report.Warnings()
	}
	if len(warnings) == 0 {
		lines = append(lines, styles.mutedStyle.Render("none"))
	}
	limit := maxInt(height-2, 1)
	for index, warning := range warnings {
		if index == limit {
			lines = append(lines, fmt.Sprintf("... %d more", len(warnings)-limit))
			break
		}
		lines = append(lines, styles.warnStyle.Render(string(warning.Kind))+" "+warning.Path)
	}
	content := strings.Join(lines, "\n")
	content = lipgloss.NewStyle().Width(contentWidth).Height(height).Render(content)
	return styles.panelBorder.Width(contentWidth).Render(content)
}

func renderHelpView(model Model, styles uiStyles) string {
	bindings := []key.Binding{
		model.keys.Up,
		model.keys.Down,
		model.keys.Enter,
		model.keys.Right,
		model.keys.Back,
		model.keys.Left,
		model.keys.Scan,
		model.keys.Refresh,
		model.keys.Stop,
		model.keys.Sort,
		model.keys.Hidden,
		model.keys.Search,
		model.keys.ExtFilter,
		model.keys.SizeFilter,
		model.keys.ClearFilter,
		model.keys.Warnings,
		model.keys.Help,
		model.keys.Quit,
	}

	lines := []string{styles.headerStyle.Render("sizescope help"), ""}
	lines = append(lines, styles.headerStyle.Render("Navigation"))
	lines = append(lines, "↑/↓ move cursor", "→ enter folder", "← go to parent", "enter expand/collapse")
	lines = append(lines, "", styles.headerStyle.Render("Scanning"))
	lines = append(lines, "s scan (reuses cached sizes)", "r rescan ignoring the cache", "c cancel a running scan")
	lines = append(lines, "", styles.headerStyle.Render("Listing"))
	lines = append(lines, "o sort", "h hidden", "/ search", "e ext filter", "z size filter", "x clear")
	lines = append(lines, "", styles.headerStyle.Render("Flags"))
	lines = append(lines, "* size from cache", "+ cached size differed when listed", "~ partial", "! cancelled", "? unreadable")
	lines = append(lines, "", styles.headerStyle.Render("Keys"))
	for _, binding := range bindings {
		keysLabel := strings.Join(binding.Keys(), ", ")
		lines = append(lines, fmt.Sprintf("%-18s %s", keysLabel, binding.Help().Desc))
	}
	lines = append(lines, "", "Press ? to close help")
	content := strings.Join(lines, "\n")
	width := model.width
	if width <= 0 {
		width = 80
	}
	return styles.panelBorder.Width(maxInt(width-2, 10)).Render(content)
}

func breadcrumbs(path string) string {
	path = filepath.Clean(path)
	if path == "." {
		return "."
	}
	parts := strings.Split(path, string(filepath.Separator))
	if len(parts) == 0 {
		return path
	}
	if parts[0] == "" {
		parts[0] = string(filepath.Separator)
	}
	if len(parts) > 1 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return strings.Join(parts, " › ")
}

func padLine(left, right string, width int) string {
	if width <= 0 {
		return left
	}
	space := width - lipgloss.Width(left) - lipgloss.Width(right)
	if space < 1 {
		return left + " " + right
	}
	return left + strings.Repeat(" ", space) + right
}

func splitPanels(width int) (int, int, bool) {
	if width < 80 {
		return width, 0, false
	}
	left := int(float64(width) * 0.6)
	if left < 40 {
		left = 40
	}
	right := width - left - 1
	if right < 30 {
		return width, 0, false
	}
	return left, right, true
}

func fileIcon(model Model, entry *domain.Entry) string {
	if entry.IsDir() {
		if model.state.IsExpanded(entry.Path) {
			return "📂"
		}
		return "📁"
	}
	return "📄"
}

func flagNotes(entry *domain.Entry) []string {
	var notes []string
	if entry.Cached {
		notes = append(notes, "size from cache")
	}
	if entry.Cancelled {
		notes = append(notes, "scan cancelled before this finished")
	} else if entry.Partial {
		notes = append(notes, "partial: some entries could not be read")
	}
	if entry.Unknown {
		notes = append(notes, "metadata unreadable")
	}
	if entry.Symlink {
		notes = append(notes, "symbolic link")
	}
	return notes
}

func formatSize(size int64) string {
	if size < 0 {
		return "-" + humanize.IBytes(uint64(-size))
	}
	return humanize.IBytes(uint64(size))
}

func signedSize(diff int64) string {
	if diff > 0 {
		return "+" + formatSize(diff)
	}
	return formatSize(diff)
}

func sizeLabel(entry *domain.Entry) string {
	if entry.Unknown {
		return "?"
	}
	return formatSize(entry.AggregateSize)
}

// shareBar draws size as a fraction of total.
func shareBar(size, total int64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := 0
	if total > 0 && size > 0 {
		filled = int(float64(size) / float64(total) * float64(width))
	}
	filled = clamp(filled, 0, width)
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

func progressBar(count int64, width int) string {
	if width <= 0 {
		return ""
	}
	pos := int(count % int64(width))
	filled := strings.Repeat("█", pos)
	gap := strings.Repeat("░", width-pos)
	return fmt.Sprintf("[%s%s]", filled, gap)
}

func trimStatus(message string, width int) string {
	if width <= 0 {
		return message
	}
	limit := width - 4
	if limit <= 0 || len(message) <= limit {
		return message
	}
	return message[:limit] + "..."
}

func filterSummary(model Model) string {
	parts := []string{}
	if model.state.SearchQuery != "" {
		parts = append(parts, fmt.Sprintf("Search:%s", model.state.SearchQuery))
	}
	if model.state.FilterExt != "" {
		parts = append(parts, fmt.Sprintf("Ext:%s", model.state.FilterExt))
	}
	if model.state.MinSizeBytes > 0 {
		parts = append(parts, fmt.Sprintf("Min:%s", formatSize(model.state.MinSizeBytes)))
	}
	if len(parts) == 0 {
		return ""
	}
	return "  Filters[" + strings.Join(parts, ", ") + "]"
}

func clamp(value, lower, upper int) int {
	if value < lower {
		return lower
	}
	if value > upper {
		return upper
	}
	return value
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
