package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/lsmux/lsmux/config"
	"github.com/lsmux/lsmux/errors"
	"github.com/lsmux/lsmux/langserver"
	"github.com/lsmux/lsmux/platform"
)

// BackendsCmd lists the registered language backends
var BackendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List registered language backends",
	Long:  `Display every registered language backend with its description and whether configuration has disabled it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return errors.Wrap(err, "failed to load configuration")
		}

		registry := langserver.Default()
		languages := registry.Languages()
		if len(languages) == 0 {
			pterm.Warning.Println("No backends registered")
			return nil
		}

		data := pterm.TableData{{"Language", "Description", "Status"}}
		for _, language := range languages {
			meta, _ := registry.Metadata(language)
			status := "enabled"
			if cfg.Backend(language).Disabled {
				status = "disabled"
			}
			data = append(data, []string{language, meta.Description, status})
		}

		if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
			return errors.Wrap(err, "failed to render backend table")
		}
		pterm.Info.Printf("Host platform: %s\n", platform.Current())
		return nil
	},
}
