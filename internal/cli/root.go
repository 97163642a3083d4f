package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	projectDir string
	outputJSON bool
)

// Execute runs the root cobra command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "binhub",
		Short: "Static binary catalog builder",
		Long: "binhub materializes third-party command-line binaries from YAML manifests\n" +
			"into a predictable directory hierarchy and regenerates the api.json index\n" +
			"documents that make the tree servable as a static catalog.",
	}

	cmd.PersistentFlags().StringVar(&projectDir, "project", "", "Path to project directory")
	cmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output machine-readable JSON")

	cmd.AddCommand(newBuildCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newCatalogCmd())

	return cmd
}
