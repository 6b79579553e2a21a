package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"sizescope/internal/config"
	"sizescope/internal/domain"
	"sizescope/internal/logging"
	"sizescope/internal/report"
	"sizescope/internal/services"
	"sizescope/internal/sizecache"
)

// session is what a command needs to run: configuration, a logger, the
// cache store and a scanner on top of it.
type session struct {
	cfg      config.Config
	loader   *config.Loader
	logger   zerolog.Logger
	store    sizecache.Store
	scanner  *services.FSScanner
	cacheErr error
	closeLog func() error
}

// openSession loads configuration with the command's flags on top and opens
// the cache. A cache that cannot be opened is replaced by a memory store and
// reported as cacheErr.
func openSession(cmd *cobra.Command) (*session, error) {
	loader := config.NewLoader()
	if err := loader.BindFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	cfg, err := loader.Load(globalFlags.configFile)
	if err != nil {
		return nil, err
	}
	logger, closeLog, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	}, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	logger = logger.With().Str("cmd", cmd.Name()).Logger()
	if used := loader.ConfigFileUsed(); used != "" {
		logger.Debug().Str("file", used).Msg("config loaded")
	}

	store, cacheErr := sizecache.Open(cfg.CacheOptions(logger))
	if cacheErr != nil {
		logger.Warn().Err(cacheErr).Msg("cache unavailable, totals will not persist")
	}
	scanner := services.NewFSScanner(store,
		services.WithLogger(logger),
		services.WithCacheError(cacheErr),
	)
	return &session{
		cfg:      cfg,
		loader:   loader,
		logger:   logger,
		store:    store,
		scanner:  scanner,
		cacheErr: cacheErr,
		closeLog: closeLog,
	}, nil
}

func (sess *session) scanOptions() services.ScanOptions {
	opts := sess.cfg.ScanOptions()
	opts.UseCache = !globalFlags.noCache
	return opts
}

// rootPath resolves the path argument, falling back to the configured path.
func (sess *session) rootPath(args []string) (string, error) {
	path := sess.cfg.Path
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		path = "."
	}
	return filepath.Abs(path)
}

// expander lists cached directories for a report with the scan's options.
func (sess *session) expander(opts services.ScanOptions) report.Expander {
	return report.ExpandFunc(func(ctx context.Context, path string) (*domain.Result, error) {
		return sess.scanner.Expand(ctx, path, opts)
	})
}

func (sess *session) newReport(result *domain.Result, opts services.ScanOptions) *report.Report {
	return report.New(result, report.WithExpander(sess.expander(opts)), report.WithLogger(sess.logger))
}

func (sess *session) Close() error {
	err := sess.store.Close()
	if err != nil && !errors.Is(err, sizecache.ErrClosed) {
		err = fmt.Errorf("close cache: %w", err)
	} else {
		err = nil
	}
	return errors.Join(err, sess.closeLog())
}

// closeSession is deferred by commands; a close error replaces a nil result.
func closeSession(sess *session, result *error) {
	if err := sess.Close(); err != nil && *result == nil {
		*result = err
	}
}

func (sess *session) cacheDir() string {
	if sess.cfg.Cache.Dir != "" {
		return sess.cfg.Cache.Dir
	}
	return sizecache.DefaultDir()
}
