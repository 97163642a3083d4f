package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"binhub/internal/config"
	"binhub/internal/fetch"
	"binhub/internal/logx"
	"binhub/internal/paths"
	"binhub/internal/pipeline"
	"binhub/internal/tui"
	"binhub/pkg/manifest"
)

var (
	buildManifestsDir string
	buildOutputDir    string
	buildConcurrency  int
	buildTimeout      time.Duration
	buildRetries      int
	buildNoProgress   bool
)

func newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Fetch, verify, and place every manifest's binaries, then rebuild the catalog",
		RunE:  runBuild,
	}

	cmd.Flags().StringVar(&buildManifestsDir, "manifests", "", "Manifests directory (overrides config)")
	cmd.Flags().StringVar(&buildOutputDir, "output", "", "Output directory (overrides config)")
	cmd.Flags().IntVar(&buildConcurrency, "concurrency", 0, "Concurrent (manifest, architecture) downloads (overrides config)")
	cmd.Flags().DurationVar(&buildTimeout, "timeout", 0, "Per-request download timeout (overrides config)")
	cmd.Flags().IntVar(&buildRetries, "retries", -1, "Retry attempts for transient download failures (overrides config)")
	cmd.Flags().BoolVar(&buildNoProgress, "no-progress", false, "Disable interactive progress output")

	return cmd
}

func runBuild(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pp, cfg, err := resolveProject()
	if err != nil {
		return err
	}

	logger, closer, err := logx.New(pp, "build")
	if err != nil {
		return err
	}
	defer closer.Close()
	logger.Printf("build started: manifests=%s output=%s", pp.ManifestsDir, pp.OutputDir)

	// An unusable output root makes the whole run meaningless.
	if err := pp.EnsureMetaDirs(); err != nil {
		return err
	}

	files, err := manifest.Discover(pp.ManifestsDir)
	if err != nil {
		return err
	}
	manifests, invalid := pipeline.LoadAll(files)
	for _, bad := range invalid {
		logger.Printf("invalid manifest %s: %s", bad.Path, bad.Err)
	}

	stagingDir, err := os.MkdirTemp(pp.StagingDir, "run-*")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	fetcher := fetch.New(stagingDir, fetch.Options{
		Timeout:   cfg.FetchTimeout(),
		Retries:   cfg.Fetch.Retries,
		UserAgent: cfg.Fetch.UserAgent,
	})
	driver := pipeline.New(pp.OutputDir, fetcher, logger)
	opts := pipeline.Options{Concurrency: cfg.Fetch.Concurrency}

	var summary pipeline.Summary
	mode := tui.DetectMode(cmd.OutOrStdout(), buildNoProgress, outputJSON)
	switch mode {
	case tui.ModeTUI:
		summary, err = runBuildTUI(ctx, cmd.OutOrStdout(), driver, manifests, invalid, opts)
	default:
		summary, err = driver.Run(ctx, manifests, invalid, opts)
	}
	if err != nil {
		return err
	}
	logger.Printf("build finished: materialized=%d skipped=%d failed=%d",
		summary.Materialized, summary.Skipped, summary.Failed)

	if mode == tui.ModeJSON {
		return writeBuildJSON(cmd.OutOrStdout(), summary)
	}
	writeBuildTable(cmd.OutOrStdout(), summary)
	return nil
}

// runBuildTUI drives the pipeline under the interactive progress table.
func runBuildTUI(ctx context.Context, out io.Writer, driver *pipeline.Driver, manifests []*manifest.Manifest, invalid []pipeline.ManifestError, opts pipeline.Options) (pipeline.Summary, error) {
	columns := []tui.Column{
		{Header: "TOOL", Width: 16},
		{Header: "VERSION", Width: 10},
		{Header: "ARCH", Width: 14},
		{Header: "STATUS", Width: 12},
		{Header: "PATH", Width: 36},
		{Header: "ERROR", Width: 32},
	}
	model := tui.NewProgressModel("binhub build", columns)
	for _, unit := range pipeline.Units(manifests) {
		model.AddRow(unit.Key(), []string{
			unit.Manifest.Name,
			unit.Manifest.Version,
			unit.Arch,
			"pending",
			"-",
			"-",
		})
	}

	var (
		summary pipeline.Summary
		runErr  error
	)
	err := tui.RunWithWork(out, model, func(send func(tea.Msg)) {
		reporter := tui.NewPipelineReporter(send)
		opts.Reporter = reporter
		summary, runErr = driver.Run(ctx, manifests, invalid, opts)
		if runErr != nil {
			send(tui.ErrorMsg{Err: runErr})
		}
	})
	if runErr != nil {
		return summary, runErr
	}
	return summary, err
}

func writeBuildJSON(out io.Writer, summary pipeline.Summary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("encode build json: %w", err)
	}
	fmt.Fprintln(out, string(data))
	return nil
}

func writeBuildTable(out io.Writer, summary pipeline.Summary) {
	w := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tVERSION\tARCH\tSTATUS\tPATH\tERROR")
	for _, tool := range summary.Tools {
		for _, res := range tool.Results {
			errKind := res.ErrKind
			if errKind == "" {
				errKind = "-"
			}
			path := res.RelPath
			if path == "" {
				path = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				res.Tool, res.Version, res.Arch, res.Outcome, path, errKind)
		}
	}
	w.Flush()

	if len(summary.InvalidFiles) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Invalid manifests:")
		for _, bad := range summary.InvalidFiles {
			fmt.Fprintf(out, "  %s: %s\n", bad.Path, bad.Err)
		}
	}

	writeBuildFailures(out, summary)

	fmt.Fprintf(out, "\nMaterialized: %d, Skipped: %d, Failed: %d\n",
		summary.Materialized, summary.Skipped, summary.Failed)
	if len(summary.ExcludedTools) > 0 {
		fmt.Fprintf(out, "Excluded from catalog (no successful architectures): %v\n", summary.ExcludedTools)
	}
}

func writeBuildFailures(out io.Writer, summary pipeline.Summary) {
	if summary.Failed == 0 {
		return
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Failures:")
	for _, tool := range summary.Tools {
		for _, res := range tool.Results {
			if res.Outcome != pipeline.OutcomeFailed {
				continue
			}
			fmt.Fprintf(out, "  %s %s [%s]: %s\n", res.Tool, res.Arch, res.ErrKind, res.Error)
		}
	}
}

// resolveProject loads the project paths and configuration, applying flag
// overrides on top of binhub.yaml.
func resolveProject() (paths.CatalogPaths, config.Config, error) {
	pp, err := paths.Resolve(projectDir)
	if err != nil {
		return paths.CatalogPaths{}, config.Config{}, err
	}
	cfg, err := config.Load(pp.ConfigFile)
	if err != nil {
		return paths.CatalogPaths{}, config.Config{}, err
	}
	if buildTimeout > 0 {
		cfg.Fetch.TimeoutSeconds = int(buildTimeout.Seconds())
	}
	if buildRetries >= 0 {
		cfg.Fetch.Retries = buildRetries
	}
	if buildConcurrency > 0 {
		cfg.Fetch.Concurrency = buildConcurrency
	}
	pp = paths.ApplyConfig(pp, cfg)
	if buildManifestsDir != "" {
		pp.ManifestsDir = absOrJoin(pp.Root, buildManifestsDir)
	}
	if buildOutputDir != "" {
		pp.OutputDir = absOrJoin(pp.Root, buildOutputDir)
	}
	return pp, cfg, nil
}
