package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"binhub/internal/pipeline"
)

// PipelineReporter adapts bubbletea message sending to the
// pipeline.ProgressReporter interface.
type PipelineReporter struct {
	send func(tea.Msg)
}

// NewPipelineReporter constructs a reporter that forwards unit progress as
// row updates.
func NewPipelineReporter(send func(tea.Msg)) *PipelineReporter {
	return &PipelineReporter{send: send}
}

// Stage implements pipeline.ProgressReporter.
func (r *PipelineReporter) Stage(unit pipeline.Unit, stage string) {
	r.send(RowUpdateMsg{
		Key:    unit.Key(),
		Fields: map[string]string{"STATUS": stage},
	})
}

// Complete implements pipeline.ProgressReporter.
func (r *PipelineReporter) Complete(res pipeline.Result) {
	fields := map[string]string{
		"STATUS": string(res.Outcome),
		"PATH":   NonEmptyOrDash(res.RelPath),
		"ERROR":  NonEmptyOrDash(res.Error),
	}
	if res.Outcome == pipeline.OutcomeFailed {
		fields["PATH"] = "-"
	}
	r.send(RowUpdateMsg{Key: res.Tool + "/" + res.Arch, Fields: fields})
}
