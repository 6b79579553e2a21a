package cli

import (
	"fmt"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"sizescope/internal/domain"
	"sizescope/internal/services"
)

var scanFlags struct {
	json bool
}

var scanCmd = &cobra.Command{
	Use:   "scan [path]",
	Short: "List the largest entries of a directory",
	Long: heredoc.Doc(`
		Scans path (default: the configured path, then the working directory)
		and lists its direct children, largest first.

		Flags in the listing:
		  *  total taken from the cache
		  +  cached total differed from a recount
		  ~  partial: something below could not be read
		  !  cancelled before it finished
		  ?  metadata could not be read

		The --json flag prints the listing, the scan statistics and the
		warnings as one JSON document.
	`),
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func init() {
	addListingFlags(rootCmd)
	addListingFlags(scanCmd)
	rootCmd.AddCommand(scanCmd)
}

func addListingFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("top", "n", 20, "Entries to list (0 lists all)")
	cmd.Flags().StringP("sort", "s", string(domain.SortBySize), "Order: size, name or mod")
	cmd.Flags().String("min-size", "", "Hide entries smaller than this (e.g. 10MB, 1GiB)")
	cmd.Flags().BoolVar(&scanFlags.json, "json", false, "Output as JSON")
}

func parseMinSize(value string) (int64, error) {
	if value == "" {
		return 0, nil
	}
	size, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, fmt.Errorf("invalid min-size: %w", err)
	}
	return int64(size), nil //nolint:gosec // sizes fit in int64
}

func runScan(cmd *cobra.Command, args []string) (err error) {
	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer closeSession(sess, &err)

	root, err := sess.rootPath(args)
	if err != nil {
		return err
	}
	minSize, err := parseMinSize(sess.cfg.Report.MinSize)
	if err != nil {
		return err
	}
	opts := sess.scanOptions()
	ctx := cmd.Context()
	handle, err := sess.scanner.Start(ctx, services.ScanRequest{RootPath: root, Options: opts})
	if err != nil {
		return err
	}
	if progressEnabled(cmd.ErrOrStderr(), scanFlags.json) {
		followProgress(cmd.ErrOrStderr(), handle)
	}
	result := handle.Wait()
	rep := sess.newReport(result, opts)

	out := scanOutput{
		Root:      result.Root.Path,
		Size:      result.Root.AggregateSize,
		Partial:   result.Partial(),
		Cancelled: result.Cancelled,
		Stats:     result.Stats,
		Duration:  result.Duration.Round(time.Millisecond).String(),
		Children:  []childRow{},
	}
	limit := sess.cfg.Report.Top
	for entry, size := range rep.SortedChildren(ctx, rep.Root(), sess.cfg.SortMode()) {
		if size < minSize {
			continue
		}
		if limit > 0 && len(out.Children) == limit {
			out.Omitted++
			continue
		}
		out.Children = append(out.Children, childRow{
			Path:  entry.Path,
			Name:  entry.Name,
			Type:  entry.Type.String(),
			Size:  size,
			Share: percent(size, out.Size),
			Flags: rep.Flags(entry),
		})
	}
	out.Warnings = rep.Warnings()
	sess.logger.Info().Str("root", out.Root).Int64("bytes", out.Size).Int("warnings", len(out.Warnings)).Msg("scan reported")

	if scanFlags.json {
		return outputJSON(cmd.OutOrStdout(), out)
	}
	printWarnings(cmd.ErrOrStderr(), out.Warnings)
	return printScanTable(cmd.OutOrStdout(), out)
}
