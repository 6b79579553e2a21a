package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"sizescope/internal/services"
)

var refreshFlags struct {
	once     bool
	parallel int
}

var refreshCmd = &cobra.Command{
	Use:   "refresh [path...]",
	Short: "Rescan paths on a schedule to keep cached totals fresh",
	Long: heredoc.Doc(`
		Rescans each path without trusting the cache, writing the recomputed
		totals back, then repeats on --schedule until interrupted. A later
		scan or browse of those paths is then served from a fresh cache.

		The schedule is a cron expression with optional seconds, or a
		descriptor such as @hourly or "@every 30m".
	`),
	Example: heredoc.Doc(`
		sizescope refresh --schedule "0 */2 * * *" ~/src /data
		sizescope refresh --once ~
	`),
	RunE: runRefresh,
}

func init() {
	refreshCmd.Flags().String("schedule", "@every 3h", "Cron schedule for rescans")
	refreshCmd.Flags().BoolVar(&refreshFlags.once, "once", false, "Rescan once and exit")
	refreshCmd.Flags().IntVar(&refreshFlags.parallel, "parallel", 1, "Paths rescanned at the same time")
	rootCmd.AddCommand(refreshCmd)
}

func newScheduler() *cron.Cron {
	return cron.New(
		cron.WithParser(cron.NewParser(
			cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		)),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
}

func runRefresh(cmd *cobra.Command, args []string) (err error) {
	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer closeSession(sess, &err)
	if sess.cacheErr != nil {
		return sess.cacheErr
	}

	roots := make([]string, 0, len(args))
	for _, arg := range args {
		root, err := filepath.Abs(arg)
		if err != nil {
			return err
		}
		roots = append(roots, root)
	}
	if len(roots) == 0 {
		root, err := sess.rootPath(nil)
		if err != nil {
			return err
		}
		roots = append(roots, root)
	}

	opts := sess.scanOptions()
	opts.UseCache = false
	ctx := cmd.Context()
	refresh := func() error {
		started := time.Now()
		results, scanErr := services.ScanAll(ctx, sess.scanner, roots, opts, refreshFlags.parallel)
		for _, result := range results {
			if result == nil {
				continue
			}
			sess.logger.Info().
				Str("root", result.Root.Path).
				Int64("bytes", result.Root.AggregateSize).
				Int64("dirs", result.Stats.Dirs).
				Int64("writes", result.Stats.CacheWrites).
				Bool("partial", result.Partial()).
				Msg("refreshed")
		}
		if err := sess.store.Flush(); err != nil {
			return fmt.Errorf("flush cache: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "refreshed %d paths in %s\n", len(roots), time.Since(started).Round(time.Millisecond))
		return scanErr
	}

	if refreshFlags.once {
		return refresh()
	}

	schedule := sess.cfg.Refresh.Schedule
	scheduler := newScheduler()
	if _, err := scheduler.AddFunc(schedule, func() {
		if err := refresh(); err != nil && ctx.Err() == nil {
			sess.logger.Error().Err(err).Msg("refresh failed")
		}
	}); err != nil {
		return fmt.Errorf("refresh schedule %q: %w", schedule, err)
	}
	if err := refresh(); err != nil {
		sess.logger.Error().Err(err).Msg("refresh failed")
	}
	scheduler.Start()
	sess.logger.Info().Str("schedule", schedule).Strs("roots", roots).Msg("waiting for next refresh")
	<-ctx.Done()
	<-scheduler.Stop().Done()
	return nil
}
