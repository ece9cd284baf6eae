package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lsmux/lsmux/cmd/lsmux/commands"
	"github.com/lsmux/lsmux/langserver"
	"github.com/lsmux/lsmux/langserver/backends"
	"github.com/lsmux/lsmux/logger"
)

var rootCmd = &cobra.Command{
	Use:   "lsmux",
	Short: "lsmux - language server supervision runtime",
	Long: `lsmux supervises language server processes for coding tools.

It launches servers as child processes, speaks the framed JSON-RPC wire
protocol over their standard streams, installs missing server binaries into
a per-language runtime directory, and reports when a server has finished its
initial indexing.

Available commands:
  backends - List registered language backends
  install  - Install a backend's runtime dependencies
  symbols  - List the symbols declared in a source file
  version  - Show version information

Examples:
  lsmux backends                 # Show registered backends
  lsmux install gopls            # Install the Go language server
  lsmux symbols gopls main.go    # Symbols in main.go via gopls`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON instead of console output")

	if err := backends.RegisterBuiltins(langserver.Default()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to register builtin backends: %v\n", err)
	}

	rootCmd.AddCommand(commands.BackendsCmd)
	rootCmd.AddCommand(commands.InstallCmd)
	rootCmd.AddCommand(commands.SymbolsCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
