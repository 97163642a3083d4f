package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"binhub/pkg/manifest"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check every manifest against the schema without fetching anything",
		RunE:  runValidate,
	}
	return cmd
}

type validateResult struct {
	File   string   `json:"file"`
	Valid  bool     `json:"valid"`
	Name   string   `json:"name,omitempty"`
	Issues []string `json:"issues,omitempty"`
}

func runValidate(cmd *cobra.Command, _ []string) error {
	pp, _, err := resolveProject()
	if err != nil {
		return err
	}

	files, err := manifest.Discover(pp.ManifestsDir)
	if err != nil {
		return err
	}

	results := make([]validateResult, 0, len(files))
	invalid := 0
	for _, file := range files {
		res := validateResult{File: file}
		m, err := manifest.Load(file)
		if err != nil {
			invalid++
			var verrs manifest.ValidationErrors
			if errors.As(err, &verrs) {
				for _, issue := range verrs.Issues() {
					res.Issues = append(res.Issues, issue.Error())
				}
			} else {
				res.Issues = append(res.Issues, err.Error())
			}
		} else {
			res.Valid = true
			res.Name = m.Name
		}
		results = append(results, res)
	}

	if outputJSON {
		if err := writeValidateJSON(cmd.OutOrStdout(), results); err != nil {
			return err
		}
	} else {
		writeValidateTable(cmd.OutOrStdout(), results)
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d manifests failed validation", invalid, len(files))
	}
	return nil
}

func writeValidateJSON(out io.Writer, results []validateResult) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("encode validate json: %w", err)
	}
	fmt.Fprintln(out, string(data))
	return nil
}

func writeValidateTable(out io.Writer, results []validateResult) {
	w := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tSTATUS\tISSUES")
	for _, res := range results {
		status := "ok"
		issues := "-"
		if !res.Valid {
			status = "invalid"
			issues = fmt.Sprintf("%d", len(res.Issues))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", filepath.Base(res.File), status, issues)
	}
	w.Flush()

	for _, res := range results {
		if res.Valid {
			continue
		}
		fmt.Fprintf(out, "\n%s:\n", res.File)
		for _, issue := range res.Issues {
			fmt.Fprintf(out, "  - %s\n", issue)
		}
	}
}
