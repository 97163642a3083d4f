// Package pipeline orchestrates manifest processing: fetch, extract, and
// place every (manifest, architecture) pair through a bounded worker pool,
// then rebuild the catalog indices from the resulting tree.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"binhub/internal/archive"
	"binhub/internal/catalog"
	"binhub/internal/fetch"
	"binhub/internal/layout"
	"binhub/pkg/manifest"
)

// Logger is the minimal logging surface the driver needs.
type Logger interface {
	Printf(format string, v ...any)
}

type noopLogger struct{}

func (noopLogger) Printf(string, ...any) {}

// Outcome classifies the terminal state of one processed unit.
type Outcome string

const (
	OutcomeMaterialized Outcome = "materialized"
	OutcomeSkipped      Outcome = "skipped"
	OutcomeFailed       Outcome = "failed"
)

// Error kinds reported in summaries. Validation failures never reach the
// worker pool; they are reported per manifest by LoadAll.
const (
	ErrKindValidation    = "validation"
	ErrKindRetrieval     = "retrieval"
	ErrKindChecksum      = "checksum-mismatch"
	ErrKindEntryNotFound = "entry-not-found"
	ErrKindWrite         = "write"
	ErrKindCanceled      = "canceled"
)

// Unit is one (manifest, architecture) work item.
type Unit struct {
	Manifest *manifest.Manifest
	Arch     string
	Spec     manifest.ArchSpec
}

// Key identifies a unit in progress displays.
func (u Unit) Key() string {
	return u.Manifest.Name + "/" + u.Arch
}

// Result captures the outcome of processing one unit.
type Result struct {
	Tool     string  `json:"tool"`
	Version  string  `json:"version"`
	Arch     string  `json:"arch"`
	Outcome  Outcome `json:"outcome"`
	Path     string  `json:"path,omitempty"`
	RelPath  string  `json:"rel_path,omitempty"`
	Size     int64   `json:"size_bytes,omitempty"`
	SHA256   string  `json:"sha256,omitempty"`
	Replaced bool    `json:"replaced,omitempty"`
	ErrKind  string  `json:"error_kind,omitempty"`
	Error    string  `json:"error,omitempty"`

	err error
}

// Err returns the underlying error for a failed unit.
func (r Result) Err() error { return r.err }

// ManifestError records a manifest excluded from the run by validation or a
// read failure.
type ManifestError struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

// ToolSummary aggregates the per-architecture results for one manifest.
type ToolSummary struct {
	Tool         string   `json:"tool"`
	Version      string   `json:"version"`
	Materialized int      `json:"materialized"`
	Skipped      int      `json:"skipped"`
	Failed       int      `json:"failed"`
	Results      []Result `json:"results"`
}

// Included reports whether the tool made it into the catalog this run, i.e.
// at least one architecture materialized or was already present.
func (t ToolSummary) Included() bool {
	return t.Materialized+t.Skipped > 0
}

// Summary is the run report.
type Summary struct {
	Tools          []ToolSummary   `json:"tools"`
	InvalidFiles   []ManifestError `json:"invalid_manifests,omitempty"`
	Materialized   int             `json:"materialized"`
	Skipped        int             `json:"skipped"`
	Failed         int             `json:"failed"`
	ExcludedTools  []string        `json:"excluded_tools,omitempty"`
	CatalogRebuilt bool            `json:"catalog_rebuilt"`
}

// ProgressReporter receives notifications as units move through the
// pipeline. Implementations must be safe for concurrent use.
type ProgressReporter interface {
	Stage(unit Unit, stage string)
	Complete(result Result)
}

// Options controls a pipeline run.
type Options struct {
	Concurrency int
	Reporter    ProgressReporter
}

// Driver supervises one run. All in-memory records live only for the run;
// the output tree is the sole durable state.
type Driver struct {
	OutputDir string
	Fetcher   *fetch.Fetcher
	Logger    Logger
}

// New builds a driver writing below outputDir and staging through fetcher.
func New(outputDir string, fetcher *fetch.Fetcher, logger Logger) *Driver {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Driver{OutputDir: outputDir, Fetcher: fetcher, Logger: logger}
}

// LoadAll loads and validates every manifest file, partitioning into valid
// manifests and per-file failures. A broken manifest never aborts the run.
func LoadAll(files []string) ([]*manifest.Manifest, []ManifestError) {
	var (
		manifests []*manifest.Manifest
		failures  []ManifestError
	)
	for _, file := range files {
		m, err := manifest.Load(file)
		if err != nil {
			failures = append(failures, ManifestError{Path: file, Err: err.Error()})
			continue
		}
		manifests = append(manifests, m)
	}
	return manifests, failures
}

// Units expands manifests into their (manifest, architecture) work items in
// deterministic order.
func Units(manifests []*manifest.Manifest) []Unit {
	var units []Unit
	for _, m := range manifests {
		for _, arch := range m.SortedArchitectures() {
			units = append(units, Unit{Manifest: m, Arch: arch, Spec: m.Architectures[arch]})
		}
	}
	return units
}

// Run processes every unit through the worker pool, then rebuilds the
// catalog from disk. The returned error is non-nil only for conditions that
// make the whole run meaningless; per-unit failures live in the Summary.
func (d *Driver) Run(ctx context.Context, manifests []*manifest.Manifest, invalid []ManifestError, opts Options) (Summary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	units := Units(manifests)
	results := make([]Result, len(units))

	var (
		wg  sync.WaitGroup
		sem = make(chan struct{}, concurrency)
	)

	for i, unit := range units {
		i, unit := i, unit
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			res := d.processUnit(ctx, unit, opts.Reporter)
			results[i] = res
			if opts.Reporter != nil {
				opts.Reporter.Complete(res)
			}
		}()
	}

	wg.Wait()

	// The aggregator depends on final on-disk state, so it must only run
	// once every worker has finished.
	meta := make(map[string]*manifest.Manifest, len(manifests))
	for _, m := range manifests {
		meta[m.Name] = m
	}
	rebuilt := true
	if err := catalog.Rebuild(d.OutputDir, meta); err != nil {
		if ctx.Err() != nil {
			return d.summarize(manifests, invalid, results, false), ctx.Err()
		}
		return Summary{}, fmt.Errorf("rebuild catalog: %w", err)
	}

	return d.summarize(manifests, invalid, results, rebuilt), nil
}

func (d *Driver) processUnit(ctx context.Context, unit Unit, reporter ProgressReporter) Result {
	m := unit.Manifest
	result := Result{Tool: m.Name, Version: m.Version, Arch: unit.Arch}

	stage := func(name string) {
		if reporter != nil {
			reporter.Stage(unit, name)
		}
	}

	if err := ctx.Err(); err != nil {
		return failedResult(result, err)
	}

	stage("fetching")
	staged, discard, err := d.Fetcher.Stage(ctx, unit.Spec.URL, unit.Spec.SHA256)
	if err != nil {
		d.Logger.Printf("fetch %s %s: %v", m.Name, unit.Arch, err)
		return failedResult(result, err)
	}
	defer discard()

	kind, ok := unit.Spec.Kind()
	if !ok {
		// Validation guarantees this; guard anyway.
		return failedResult(result, manifest.ValidationErrors{{Field: "type", Message: "unrecognized archive type"}})
	}

	stage("extracting")
	artifact, err := layout.Materialize(d.OutputDir, m.Name, m.Version, unit.Arch, func(w io.Writer) error {
		_, err := archive.ExtractTo(w, staged.Path, kind, unit.Spec.BinaryPath)
		return err
	})
	if err != nil {
		d.Logger.Printf("materialize %s %s: %v", m.Name, unit.Arch, err)
		return failedResult(result, err)
	}

	result.Path = artifact.Path
	result.RelPath = artifact.RelPath
	result.Size = artifact.Size
	result.SHA256 = artifact.SHA256
	result.Replaced = artifact.Replaced
	if artifact.Skipped {
		result.Outcome = OutcomeSkipped
		d.Logger.Printf("already materialized %s %s %s", m.Name, m.Version, unit.Arch)
	} else {
		result.Outcome = OutcomeMaterialized
		if artifact.Replaced {
			d.Logger.Printf("re-materialized %s %s %s: content changed under unchanged version", m.Name, m.Version, unit.Arch)
		} else {
			d.Logger.Printf("materialized %s %s %s (%d bytes)", m.Name, m.Version, unit.Arch, artifact.Size)
		}
	}
	return result
}

func failedResult(result Result, err error) Result {
	result.Outcome = OutcomeFailed
	result.ErrKind = ClassifyError(err)
	result.Error = err.Error()
	result.err = err
	return result
}

// ClassifyError maps an error to its taxonomy kind for reporting.
func ClassifyError(err error) string {
	var (
		retrieval  *fetch.RetrievalError
		checksum   *fetch.ChecksumMismatchError
		notFound   *archive.EntryNotFoundError
		writeErr   *layout.WriteError
		validation manifest.ValidationErrors
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrKindCanceled
	case errors.As(err, &checksum):
		return ErrKindChecksum
	case errors.As(err, &retrieval):
		return ErrKindRetrieval
	case errors.As(err, &notFound):
		return ErrKindEntryNotFound
	case errors.As(err, &writeErr):
		return ErrKindWrite
	case errors.As(err, &validation):
		return ErrKindValidation
	default:
		return "error"
	}
}

func (d *Driver) summarize(manifests []*manifest.Manifest, invalid []ManifestError, results []Result, rebuilt bool) Summary {
	summary := Summary{
		InvalidFiles:   invalid,
		CatalogRebuilt: rebuilt,
	}

	byTool := make(map[string]*ToolSummary)
	for _, m := range manifests {
		byTool[m.Name] = &ToolSummary{Tool: m.Name, Version: m.Version}
	}
	for _, res := range results {
		ts := byTool[res.Tool]
		if ts == nil {
			continue
		}
		ts.Results = append(ts.Results, res)
		switch res.Outcome {
		case OutcomeMaterialized:
			ts.Materialized++
			summary.Materialized++
		case OutcomeSkipped:
			ts.Skipped++
			summary.Skipped++
		case OutcomeFailed:
			ts.Failed++
			summary.Failed++
		}
	}

	for _, m := range manifests {
		ts := byTool[m.Name]
		summary.Tools = append(summary.Tools, *ts)
		if !ts.Included() {
			summary.ExcludedTools = append(summary.ExcludedTools, m.Name)
		}
	}
	return summary
}
