// Package cli implements the sizescope command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"sizescope/internal/services"
	"sizescope/internal/sizecache"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// globalFlags holds persistent flags that apply to all commands. Everything
// else persistent is read through the configuration loader.
var globalFlags struct {
	configFile string
	noCache    bool
}

var rootCmd = &cobra.Command{
	Use:   "sizescope [path]",
	Short: "Find out where disk space goes",
	Long: heredoc.Doc(`
		sizescope scans a directory tree and reports what takes up the space,
		largest first.

		Directory totals are cached by path together with the directory's
		modification time, so a second scan only descends into directories
		that changed. Cached totals can be stale when a file deep inside a
		directory grows without touching its parent; run 'sizescope audit'
		to recount, or rescan with --no-cache.

		Without a subcommand this behaves like 'sizescope scan'.
	`),
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runScan,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sizescope %s (%s)\n", Version, GitCommit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	defaults := services.DefaultScanOptions()
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&globalFlags.configFile, "config", "",
		"Config file (default $XDG_CONFIG_HOME/sizescope/config.yaml)")
	flags.String("log-level", "warn", "Log level (trace, debug, info, warn, error)")
	flags.String("log-format", "auto", "Log format (auto, console, json)")
	flags.String("log-file", "", "Also write JSON logs to this file")
	flags.IntP("workers", "j", runtime.NumCPU(), "Directories aggregated in parallel (1 scans sequentially)")
	flags.Bool("follow-symlinks", false, "Follow symbolic links to directories")
	flags.Bool("hidden", defaults.IncludeHidden, "Include dot files and directories")
	flags.StringSlice("exclude", nil, "Gitignore-style patterns to skip (repeatable)")
	flags.Int("max-depth", defaults.MaxDepth, "Do not descend more than this many levels")
	flags.BoolVar(&globalFlags.noCache, "no-cache", false,
		"Ignore cached totals (they are still refreshed)")
	flags.String("cache-backend", sizecache.BackendLog, "Cache backend (memory, json, log)")
	flags.String("cache-dir", "", "Cache directory (default the user cache dir)")
	flags.Duration("cache-max-age", 0, "Treat cached totals older than this as stale (0 disables)")
}

// Execute runs the root command. An interrupt cancels the running scan; the
// partial result is still reported.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "sizescope:", err)
		stop()
		os.Exit(1)
	}
}

// RootCmd returns the root command for testing.
func RootCmd() *cobra.Command {
	return rootCmd
}
