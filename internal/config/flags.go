package config

import (
	"errors"
	"fmt"

	"github.com/spf13/pflag"
)

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"path":            "path",
	"workers":         "scan.workers",
	"follow-symlinks": "scan.followSymlinks",
	"hidden":          "scan.includeHidden",
	"exclude":         "scan.exclude",
	"max-depth":       "scan.maxDepth",
	"cache-backend":   "cache.backend",
	"cache-dir":       "cache.dir",
	"cache-max-age":   "cache.maxAge",
	"log-level":       "log.level",
	"log-format":      "log.format",
	"log-file":        "log.file",
	"theme":           "ui.theme",
	"sort":            "ui.sortMode",
	"top":             "report.top",
	"levels":          "report.levels",
	"min-size":        "report.minSize",
	"schedule":        "refresh.schedule",
}

// BindFlags lets every known flag in flags override its configuration key
// when it is set on the command line.
func (loader *Loader) BindFlags(flags *pflag.FlagSet) error {
	var errs []error
	flags.VisitAll(func(flag *pflag.Flag) {
		key, ok := flagKeys[flag.Name]
		if !ok {
			return
		}
		if err := loader.v.BindPFlag(key, flag); err != nil {
			errs = append(errs, fmt.Errorf("bind --%s: %w", flag.Name, err))
		}
	})
	return errors.Join(errs...)
}
