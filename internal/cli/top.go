package cli

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"sizescope/internal/report"
	"sizescope/internal/services"
	"sizescope/internal/volume"
)

var topFlags struct {
	count    int
	parallel int
	json     bool
}

var topCmd = &cobra.Command{
	Use:   "top [path...]",
	Short: "Show the largest entries a few levels deep",
	Long: heredoc.Doc(`
		Scans each path and prints its largest children, then the largest
		children of those, down to --levels levels. Several paths are
		scanned in parallel and printed in the order given, each with the
		usage of the volume it lives on.
	`),
	Example: heredoc.Doc(`
		sizescope top -L 2 -c 5 ~ /var
	`),
	RunE: runTop,
}

func init() {
	topCmd.Flags().IntP("levels", "L", 2, "Levels to descend (1-3)")
	topCmd.Flags().IntVarP(&topFlags.count, "count", "c", 10, "Entries per level")
	topCmd.Flags().IntVar(&topFlags.parallel, "parallel", 2, "Paths scanned at the same time")
	topCmd.Flags().BoolVar(&topFlags.json, "json", false, "Output as JSON")
	rootCmd.AddCommand(topCmd)
}

type topNode struct {
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	Flags       string    `json:"flags,omitempty"`
	Children    []topNode `json:"children,omitempty"`
	Omitted     int       `json:"omitted,omitempty"`
	OmittedSize int64     `json:"omittedSize,omitempty"`
}

type topOutput struct {
	Root   string        `json:"root"`
	Volume *volume.Usage `json:"volume,omitempty"`
	Tree   topNode       `json:"tree"`
}

func runTop(cmd *cobra.Command, args []string) (err error) {
	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer closeSession(sess, &err)

	levels := sess.cfg.Report.Levels
	if levels < 1 || levels > 3 {
		return fmt.Errorf("levels must be between 1 and 3, got %d", levels)
	}
	count := topFlags.count
	if count <= 0 {
		return fmt.Errorf("count must be positive, got %d", count)
	}
	roots := make([]string, 0, max(len(args), 1))
	if len(args) == 0 {
		root, err := sess.rootPath(nil)
		if err != nil {
			return err
		}
		roots = append(roots, root)
	}
	for _, arg := range args {
		root, err := filepath.Abs(arg)
		if err != nil {
			return err
		}
		roots = append(roots, root)
	}

	ctx := cmd.Context()
	opts := sess.scanOptions()
	results, scanErr := services.ScanAll(ctx, sess.scanner, roots, opts, topFlags.parallel)

	var outputs []topOutput
	for i, result := range results {
		if result == nil {
			continue
		}
		rep := sess.newReport(result, opts)
		branch := rep.Top(ctx, levels, count, sess.cfg.SortMode())
		out := topOutput{Root: roots[i], Tree: convertBranch(rep, branch)}
		if usage, err := volume.Of(roots[i]); err == nil {
			out.Volume = &usage
		} else if !errors.Is(err, volume.ErrUnsupported) {
			sess.logger.Debug().Err(err).Str("root", roots[i]).Msg("volume usage unavailable")
		}
		outputs = append(outputs, out)

		if topFlags.json {
			continue
		}
		w := cmd.OutOrStdout()
		if i > 0 {
			fmt.Fprintln(w)
		}
		if out.Volume != nil {
			printVolume(w, roots[i], *out.Volume)
		}
		if err := printTree(w, rep, branch); err != nil {
			return err
		}
		printWarnings(cmd.ErrOrStderr(), rep.Warnings())
	}
	if topFlags.json {
		if err := outputJSON(cmd.OutOrStdout(), outputs); err != nil {
			return err
		}
	}
	return scanErr
}

func convertBranch(rep *report.Report, branch report.Branch) topNode {
	if branch.Entry == nil {
		return topNode{}
	}
	node := topNode{
		Path:        branch.Entry.Path,
		Size:        branch.Entry.AggregateSize,
		Flags:       rep.Flags(branch.Entry),
		Omitted:     branch.Omitted,
		OmittedSize: branch.OmittedSize,
	}
	for _, child := range branch.Children {
		node.Children = append(node.Children, convertBranch(rep, child))
	}
	return node
}
