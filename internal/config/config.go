package config

import (
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"sizescope/internal/domain"
	"sizescope/internal/services"
	"sizescope/internal/sizecache"
)

type Config struct {
	Path    string        `mapstructure:"path"`
	Scan    ScanConfig    `mapstructure:"scan"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Log     LogConfig     `mapstructure:"log"`
	UI      UIConfig      `mapstructure:"ui"`
	Report  ReportConfig  `mapstructure:"report"`
	Refresh RefreshConfig `mapstructure:"refresh"`
}

type ScanConfig struct {
	Workers        int      `mapstructure:"workers"`
	FollowSymlinks bool     `mapstructure:"followSymlinks"`
	IncludeHidden  bool     `mapstructure:"includeHidden"`
	Exclude        []string `mapstructure:"exclude"`
	MaxDepth       int      `mapstructure:"maxDepth"`
}

type CacheConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Backend is memory, json or log.
	Backend string        `mapstructure:"backend"`
	Dir     string        `mapstructure:"dir"`
	MaxAge  time.Duration `mapstructure:"maxAge"`
	// CompactSchedule is a cron expression for log compaction.
	CompactSchedule string `mapstructure:"compactSchedule"`
	SegmentSize     int64  `mapstructure:"segmentSize"`
	Sync            bool   `mapstructure:"sync"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type UIConfig struct {
	Theme    string `mapstructure:"theme"`
	SortMode string `mapstructure:"sortMode"`
}

type ReportConfig struct {
	Top     int    `mapstructure:"top"`
	Levels  int    `mapstructure:"levels"`
	MinSize string `mapstructure:"minSize"`
}

type RefreshConfig struct {
	Schedule string `mapstructure:"schedule"`
}

func DefaultConfig() Config {
	return Config{
		Path: ".",
		Scan: ScanConfig{
			Workers:       runtime.NumCPU(),
			IncludeHidden: true,
			MaxDepth:      services.DefaultMaxDepth,
		},
		Cache: CacheConfig{
			Enabled:     true,
			Backend:     sizecache.BackendLog,
			SegmentSize: sizecache.DefaultSegmentSize,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "auto",
		},
		UI: UIConfig{
			Theme:    "dark",
			SortMode: string(domain.SortBySize),
		},
		Report: ReportConfig{
			Top:    20,
			Levels: 2,
		},
		Refresh: RefreshConfig{
			Schedule: "@every 3h",
		},
	}
}

func (cfg Config) SortMode() domain.SortMode {
	return domain.ParseSortMode(cfg.UI.SortMode, domain.SortBySize)
}

func (cfg Config) ScanOptions() services.ScanOptions {
	opts := services.DefaultScanOptions()
	if cfg.Scan.Workers > 0 {
		opts.Workers = cfg.Scan.Workers
	}
	opts.FollowSymlinks = cfg.Scan.FollowSymlinks
	opts.IncludeHidden = cfg.Scan.IncludeHidden
	opts.Exclude = cfg.Scan.Exclude
	if cfg.Scan.MaxDepth > 0 {
		opts.MaxDepth = cfg.Scan.MaxDepth
	}
	opts.MaxAge = cfg.Cache.MaxAge
	return opts
}

// CacheOptions returns the store settings. A disabled cache still gets a
// memory store so a session reuses its own work.
func (cfg Config) CacheOptions(logger zerolog.Logger) sizecache.Options {
	backend := cfg.Cache.Backend
	if !cfg.Cache.Enabled {
		backend = sizecache.BackendMemory
	}
	return sizecache.Options{
		Backend:         backend,
		Dir:             cfg.Cache.Dir,
		SegmentSize:     cfg.Cache.SegmentSize,
		Sync:            cfg.Cache.Sync,
		CompactSchedule: cfg.Cache.CompactSchedule,
		Logger:          logger,
	}
}
