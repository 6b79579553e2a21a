package cli

import (
	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"sizescope/internal/app"
	"sizescope/internal/domain"
)

var browseCmd = &cobra.Command{
	Use:     "browse [path]",
	Aliases: []string{"ui"},
	Short:   "Explore a directory tree interactively",
	Long: heredoc.Doc(`
		Opens a terminal browser on path. Directories are listed largest
		first and can be expanded in place or entered. Press ? for keys.

		The sort order, theme and hidden-file setting are saved to the
		config file on exit.
	`),
	Args: cobra.MaximumNArgs(1),
	RunE: runBrowse,
}

func init() {
	browseCmd.Flags().String("theme", "dark", "Color theme (dark, light)")
	browseCmd.Flags().StringP("sort", "s", string(domain.SortBySize), "Order: size, name or mod")
	rootCmd.AddCommand(browseCmd)
}

func runBrowse(cmd *cobra.Command, args []string) (err error) {
	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer closeSession(sess, &err)

	root, err := sess.rootPath(args)
	if err != nil {
		return err
	}
	cfg := sess.cfg
	cfg.Path = root
	status := ""
	if sess.cacheErr != nil {
		status = "Cache unavailable: " + sess.cacheErr.Error()
	}
	return app.Run(cmd.Context(), app.Options{
		Config:  cfg,
		Backend: sess.scanner,
		Loader:  sess.loader,
		Logger:  sess.logger,
		Status:  status,
	})
}
