package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"binhub/internal/catalog"
	"binhub/internal/logx"
	"binhub/internal/paths"
	"binhub/internal/pipeline"
	"binhub/internal/tui"
	"binhub/pkg/manifest"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Regenerate every api.json index from current disk state without fetching",
		RunE:  runCatalog,
	}
	return cmd
}

func runCatalog(cmd *cobra.Command, _ []string) error {
	pp, _, err := resolveProject()
	if err != nil {
		return err
	}

	logger, closer, err := logx.New(pp, "catalog")
	if err != nil {
		return err
	}
	defer closer.Close()

	exists, err := paths.DirExists(pp.OutputDir)
	if err != nil {
		return fmt.Errorf("stat output dir: %w", err)
	}
	if !exists {
		return fmt.Errorf("output directory does not exist: %s", pp.OutputDir)
	}

	files, err := manifest.Discover(pp.ManifestsDir)
	if err != nil {
		return err
	}
	manifests, invalid := pipeline.LoadAll(files)
	for _, bad := range invalid {
		logger.Printf("invalid manifest %s: %s", bad.Path, bad.Err)
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: skipping invalid manifest %s\n", bad.Path)
	}

	meta := make(map[string]*manifest.Manifest, len(manifests))
	for _, m := range manifests {
		meta[m.Name] = m
	}

	var status *tui.StatusWriter
	if tui.DetectMode(cmd.OutOrStdout(), false, outputJSON) == tui.ModeTUI {
		status = tui.NewStatusWriter(cmd.OutOrStdout())
		status.Update("rebuilding catalog indexes")
	}
	err = catalog.Rebuild(pp.OutputDir, meta)
	if status != nil {
		status.Stop()
	}
	if err != nil {
		return err
	}

	logger.Printf("catalog rebuilt under %s", pp.OutputDir)
	fmt.Fprintf(cmd.OutOrStdout(), "catalog rebuilt: %s\n", pp.OutputDir)
	return nil
}

// absOrJoin resolves a flag-supplied path against the project root unless it
// is already absolute.
func absOrJoin(root, value string) string {
	if filepath.IsAbs(value) {
		return filepath.Clean(value)
	}
	return filepath.Join(root, value)
}
