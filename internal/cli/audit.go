package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"sizescope/internal/services"
)

var auditFlags struct {
	fix  bool
	json bool
}

var auditCmd = &cobra.Command{
	Use:   "audit [path]",
	Short: "Recount cached directory totals and report stale ones",
	Long: heredoc.Doc(`
		A cached total stays valid while its directory's modification time
		is unchanged, which misses files growing deeper down. audit walks the
		whole tree without the cache, recounts every directory and compares
		the result with each cached total.

		With --fix the recounted totals replace the stale ones.
	`),
	Args: cobra.MaximumNArgs(1),
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().BoolVar(&auditFlags.fix, "fix", false, "Store recounted totals for stale entries")
	auditCmd.Flags().BoolVar(&auditFlags.json, "json", false, "Output as JSON")
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) (err error) {
	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer closeSession(sess, &err)
	if sess.cacheErr != nil {
		return sess.cacheErr
	}

	root, err := sess.rootPath(args)
	if err != nil {
		return err
	}
	result, err := sess.scanner.Audit(cmd.Context(), root, services.AuditOptions{
		Options: sess.scanOptions(),
		Fix:     auditFlags.fix,
	})
	if err != nil {
		return err
	}
	if result.Findings == nil {
		result.Findings = []services.AuditFinding{}
	}
	if auditFlags.fix {
		if err := sess.store.Flush(); err != nil {
			return fmt.Errorf("flush cache: %w", err)
		}
	}
	if auditFlags.json {
		return outputJSON(cmd.OutOrStdout(), result)
	}

	printWarnings(cmd.ErrOrStderr(), result.Warnings)
	w := cmd.OutOrStdout()
	if len(result.Findings) > 0 {
		tw := tabwriter.NewWriter(w, 0, 4, TabSpacing, ' ', 0)
		fmt.Fprintln(tw, "CACHED\tACTUAL\tDRIFT\tPATH")
		for _, finding := range result.Findings {
			cached, actual := int64(finding.Cached), int64(finding.Actual) //nolint:gosec
			path := finding.Path
			if finding.Fixed {
				path += " (fixed)"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", formatBytes(cached), formatBytes(actual),
				signed(actual-cached), path)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}
	_, err = fmt.Fprintf(w, "%d cached directories checked, %d stale, %s\n",
		result.Checked, len(result.Findings), result.Duration.Round(time.Millisecond))
	return err
}

func signed(size int64) string {
	if size > 0 {
		return "+" + formatBytes(size)
	}
	return formatBytes(size)
}
