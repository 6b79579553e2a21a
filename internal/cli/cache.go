package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"sizescope/internal/sizecache"
)

var cacheFlags struct {
	json bool
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the size cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show where the cache lives and how big it is",
	Args:  cobra.NoArgs,
	RunE:  runCacheStats,
}

var cacheListCmd = &cobra.Command{
	Use:   "list [path]",
	Short: "List cached totals at or below path",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCacheList,
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune <path>",
	Short: "Forget cached totals at or below path",
	Args:  cobra.ExactArgs(1),
	RunE:  runCachePrune,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget every cached total",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return pruneCache(cmd, "")
	},
}

var cacheCompactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Rewrite the cache log without superseded records",
	Args:  cobra.NoArgs,
	RunE:  runCacheCompact,
}

func init() {
	cacheStatsCmd.Flags().BoolVar(&cacheFlags.json, "json", false, "Output as JSON")
	cacheListCmd.Flags().BoolVar(&cacheFlags.json, "json", false, "Output as JSON")
	cacheCmd.AddCommand(cacheStatsCmd, cacheListCmd, cachePruneCmd, cacheClearCmd, cacheCompactCmd)
	rootCmd.AddCommand(cacheCmd)
}

// openCache opens a session whose store is the configured one, refusing the
// memory fallback.
func openCache(cmd *cobra.Command) (*session, error) {
	sess, err := openSession(cmd)
	if err != nil {
		return nil, err
	}
	if sess.cacheErr != nil {
		cacheErr := sess.cacheErr
		return nil, errors.Join(cacheErr, sess.Close())
	}
	return sess, nil
}

type cacheStats struct {
	Backend  string `json:"backend"`
	Location string `json:"location,omitempty"`
	Entries  int    `json:"entries"`
	DiskSize int64  `json:"diskSize,omitempty"`
}

func runCacheStats(cmd *cobra.Command, _ []string) (err error) {
	sess, err := openCache(cmd)
	if err != nil {
		return err
	}
	defer closeSession(sess, &err)

	stats := cacheStats{Backend: sizecache.BackendMemory, Entries: sess.store.Len()}
	switch store := sess.store.(type) {
	case *sizecache.LogStore:
		logStats, err := store.Stats()
		if err != nil {
			return err
		}
		stats.Backend = sizecache.BackendLog
		stats.Location = sess.cacheDir()
		stats.Entries = logStats.Entries
		stats.DiskSize = logStats.DiskSize
	case *sizecache.JSONStore:
		stats.Backend = sizecache.BackendJSON
		stats.Location = store.Path()
	}
	if cacheFlags.json {
		return outputJSON(cmd.OutOrStdout(), stats)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "backend:  %s\n", stats.Backend)
	if stats.Location != "" {
		fmt.Fprintf(w, "location: %s\n", stats.Location)
	}
	fmt.Fprintf(w, "entries:  %d\n", stats.Entries)
	if stats.DiskSize > 0 {
		fmt.Fprintf(w, "on disk:  %s\n", formatBytes(stats.DiskSize))
	}
	return nil
}

type cacheRow struct {
	Path      string    `json:"path"`
	Size      uint64    `json:"size"`
	ScannedAt time.Time `json:"scannedAt"`
	Partial   bool      `json:"partial,omitempty"`
}

func runCacheList(cmd *cobra.Command, args []string) (err error) {
	sess, err := openCache(cmd)
	if err != nil {
		return err
	}
	defer closeSession(sess, &err)

	prefix := ""
	if len(args) > 0 {
		if prefix, err = filepath.Abs(args[0]); err != nil {
			return err
		}
	}
	rows := []cacheRow{}
	err = sess.store.Range(prefix, func(entry sizecache.Entry) bool {
		rows = append(rows, cacheRow{
			Path:      entry.Path,
			Size:      entry.AggregateSize,
			ScannedAt: entry.ScannedAt,
			Partial:   entry.Partial,
		})
		return true
	})
	if err != nil {
		return err
	}
	if cacheFlags.json {
		return outputJSON(cmd.OutOrStdout(), rows)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, TabSpacing, ' ', 0)
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", formatBytes(int64(row.Size)), //nolint:gosec
			row.ScannedAt.Local().Format(time.DateTime), row.Path)
	}
	return tw.Flush()
}

func runCachePrune(cmd *cobra.Command, args []string) error {
	prefix, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	return pruneCache(cmd, prefix)
}

func pruneCache(cmd *cobra.Command, prefix string) (err error) {
	sess, err := openCache(cmd)
	if err != nil {
		return err
	}
	defer closeSession(sess, &err)

	removed, err := sess.store.Prune(prefix)
	if err != nil {
		return err
	}
	if err := sess.store.Flush(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", removed)
	return err
}

func runCacheCompact(cmd *cobra.Command, _ []string) (err error) {
	sess, err := openCache(cmd)
	if err != nil {
		return err
	}
	defer closeSession(sess, &err)

	store, ok := sess.store.(*sizecache.LogStore)
	if !ok {
		return fmt.Errorf("compact needs the %s backend", sizecache.BackendLog)
	}
	before, err := store.Stats()
	if err != nil {
		return err
	}
	if err := store.Compact(); err != nil {
		return err
	}
	after, err := store.Stats()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "compacted %d entries: %s -> %s\n",
		after.Entries, formatBytes(before.DiskSize), formatBytes(after.DiskSize))
	return err
}
