package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	configDirName  = "sizescope"
	configFileName = "config.yaml"
	envPrefix      = "SIZESCOPE"
)

func ConfigPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, configDirName, configFileName), nil
}

// Loader reads configuration from defaults, an optional YAML file,
// SIZESCOPE_* environment variables and bound flags, in increasing priority.
type Loader struct {
	v *viper.Viper
}

func NewLoader() *Loader {
	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("path", cfg.Path)
	v.SetDefault("scan.workers", cfg.Scan.Workers)
	v.SetDefault("scan.followSymlinks", cfg.Scan.FollowSymlinks)
	v.SetDefault("scan.includeHidden", cfg.Scan.IncludeHidden)
	v.SetDefault("scan.exclude", cfg.Scan.Exclude)
	v.SetDefault("scan.maxDepth", cfg.Scan.MaxDepth)
	v.SetDefault("cache.enabled", cfg.Cache.Enabled)
	v.SetDefault("cache.backend", cfg.Cache.Backend)
	v.SetDefault("cache.dir", cfg.Cache.Dir)
	v.SetDefault("cache.maxAge", cfg.Cache.MaxAge)
	v.SetDefault("cache.compactSchedule", cfg.Cache.CompactSchedule)
	v.SetDefault("cache.segmentSize", cfg.Cache.SegmentSize)
	v.SetDefault("cache.sync", cfg.Cache.Sync)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("ui.theme", cfg.UI.Theme)
	v.SetDefault("ui.sortMode", cfg.UI.SortMode)
	v.SetDefault("report.top", cfg.Report.Top)
	v.SetDefault("report.levels", cfg.Report.Levels)
	v.SetDefault("report.minSize", cfg.Report.MinSize)
	v.SetDefault("refresh.schedule", cfg.Refresh.Schedule)
}

// Load reads configFile, or the first config.yaml found in the user config
// directory or the working directory. A missing file is not an error.
func (loader *Loader) Load(configFile string) (Config, error) {
	v := loader.v
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		if path, err := ConfigPath(); err == nil {
			v.AddConfigPath(filepath.Dir(path))
		}
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(configFile == "" && os.IsNotExist(err)) {
			return DefaultConfig(), fmt.Errorf("read config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func (loader *Loader) ConfigFileUsed() string {
	return loader.v.ConfigFileUsed()
}

// Preferences are the settings the browser writes back on exit.
type Preferences struct {
	Path          string
	SortMode      string
	Theme         string
	IncludeHidden bool
}

// SavePreferences writes prefs into the file the configuration came from,
// or the default path when none was read.
func (loader *Loader) SavePreferences(prefs Preferences) (string, error) {
	target := loader.v.ConfigFileUsed()
	if target == "" {
		path, err := ConfigPath()
		if err != nil {
			return "", err
		}
		target = path
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}
	loader.v.Set("path", prefs.Path)
	loader.v.Set("ui.sortMode", prefs.SortMode)
	loader.v.Set("ui.theme", prefs.Theme)
	loader.v.Set("scan.includeHidden", prefs.IncludeHidden)
	if err := loader.v.WriteConfigAs(target); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	return target, nil
}
