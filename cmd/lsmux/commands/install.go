package commands

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/lsmux/lsmux/config"
	"github.com/lsmux/lsmux/errors"
	"github.com/lsmux/lsmux/langserver"
	"github.com/lsmux/lsmux/logger"
)

// InstallCmd installs a backend's runtime dependencies ahead of first use
var InstallCmd = &cobra.Command{
	Use:   "install <language>",
	Short: "Install a backend's runtime dependencies",
	Long: `Resolve and install the server binary for a language backend into the
runtime directory, downloading release artifacts or running the backend's
install recipe as needed. Already-installed backends are left untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		language := args[0]

		cfg, err := config.Load()
		if err != nil {
			return errors.Wrap(err, "failed to load configuration")
		}

		spinner, _ := pterm.DefaultSpinner.Start("Installing " + language + "...")

		// Constructing a server resolves (and if needed installs) the binary;
		// the process is never started.
		workDir, err := os.Getwd()
		if err != nil {
			workDir = "."
		}
		_, err = langserver.Create(language, cfg, workDir, langserver.Options{Logger: logger.Logger})
		if err != nil {
			spinner.Fail("Installation failed")
			return errors.Wrapf(err, "failed to install backend %s", language)
		}

		spinner.Success("Backend " + language + " is installed")
		return nil
	},
}
