package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"sizescope/internal/domain"
	"sizescope/internal/report"
	"sizescope/internal/services"
	"sizescope/internal/volume"
)

// TabSpacing is the number of spaces between tabwriter columns.
const TabSpacing = 2

func formatBytes(size int64) string {
	if size < 0 {
		return "-" + humanize.IBytes(uint64(-size))
	}
	return humanize.IBytes(uint64(size))
}

func percent(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return 100 * float64(part) / float64(whole)
}

func outputJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// childRow is one line of the scan listing.
type childRow struct {
	Path  string  `json:"path"`
	Name  string  `json:"name"`
	Type  string  `json:"type"`
	Size  int64   `json:"size"`
	Share float64 `json:"share"`
	Flags string  `json:"flags,omitempty"`
}

type scanOutput struct {
	Root      string           `json:"root"`
	Size      int64            `json:"size"`
	Partial   bool             `json:"partial"`
	Cancelled bool             `json:"cancelled"`
	Stats     domain.ScanStats `json:"stats"`
	Duration  string           `json:"duration"`
	Children  []childRow       `json:"children"`
	Omitted   int              `json:"omitted"`
	Warnings  []domain.Warning `json:"warnings,omitempty"`
}

func printScanTable(w io.Writer, out scanOutput) error {
	tw := tabwriter.NewWriter(w, 0, 4, TabSpacing, ' ', tabwriter.AlignRight)
	for _, row := range out.Children {
		name := row.Name
		if row.Type == domain.NodeDir.String() {
			name += "/"
		}
		fmt.Fprintf(tw, "%s\t%.1f%%\t %s\t %s\n", formatBytes(row.Size), row.Share, row.Flags, name)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if out.Omitted > 0 {
		fmt.Fprintf(w, "... %d more\n", out.Omitted)
	}
	status := ""
	switch {
	case out.Cancelled:
		status = " (cancelled, partial)"
	case out.Partial:
		status = " (partial)"
	}
	_, err := fmt.Fprintf(w, "\n%s  %s%s  %d dirs, %d files, %d cached, %s\n",
		formatBytes(out.Size), out.Root, status,
		out.Stats.Dirs, out.Stats.Files, out.Stats.CacheHits, out.Duration)
	return err
}

// printTree writes a Top hierarchy with one indentation step per level.
func printTree(w io.Writer, rep *report.Report, branch report.Branch) error {
	if branch.Entry == nil {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, TabSpacing, ' ', 0)
	total := branch.Entry.AggregateSize
	fmt.Fprintf(tw, "%s\t%s\t%s\n", formatBytes(total), "", branch.Entry.Path)
	var walk func(b report.Branch, depth int)
	walk = func(b report.Branch, depth int) {
		indent := strings.Repeat("  ", depth)
		for _, child := range b.Children {
			name := child.Entry.Name
			if child.Entry.IsDir() {
				name += "/"
			}
			flags := rep.Flags(child.Entry)
			if flags != "" {
				flags = " [" + flags + "]"
			}
			fmt.Fprintf(tw, "%s\t%5.1f%%\t%s%s%s\n", formatBytes(child.Entry.AggregateSize),
				percent(child.Entry.AggregateSize, total), indent, name, flags)
			walk(child, depth+1)
		}
		if b.Omitted > 0 {
			fmt.Fprintf(tw, "%s\t%5.1f%%\t%s(%d more)\n", formatBytes(b.OmittedSize),
				percent(b.OmittedSize, total), indent, b.Omitted)
		}
	}
	walk(branch, 1)
	return tw.Flush()
}

func printVolume(w io.Writer, path string, usage volume.Usage) {
	fmt.Fprintf(w, "volume %s: %s used of %s (%.0f%%), %s free\n", path,
		formatBytes(int64(usage.Used)), formatBytes(int64(usage.Total)), //nolint:gosec
		usage.Percent(), formatBytes(int64(usage.Free))) //nolint:gosec
}

func printWarnings(w io.Writer, warnings []domain.Warning) {
	for _, warning := range warnings {
		if warning.Message != "" {
			fmt.Fprintf(w, "warning: %s %s: %s\n", warning.Kind, warning.Path, warning.Message)
			continue
		}
		fmt.Fprintf(w, "warning: %s %s\n", warning.Kind, warning.Path)
	}
}

// progressEnabled reports whether a progress line can be drawn on w.
func progressEnabled(w io.Writer, jsonOutput bool) bool {
	if jsonOutput {
		return false
	}
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

// followProgress draws the scan progress on w until the handle's progress
// channel closes, then clears the line.
func followProgress(w io.Writer, handle *services.ScanHandle) {
	// Hide cursor for in-place updates; restore on exit.
	fmt.Fprint(w, "\033[?25l")
	defer fmt.Fprint(w, "\r\033[2K\r\033[?25h")
	for progress := range handle.Progress() {
		if progress.Completed {
			continue
		}
		current := progress.Current
		if len(current) > 60 {
			current = "..." + current[len(current)-57:]
		}
		fmt.Fprintf(w, "\r\033[2KScanning… %d entries  %s\r", progress.Scanned, current)
	}
}
