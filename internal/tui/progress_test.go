package tui

import (
	"errors"
	"strings"
	"testing"
)

func testColumns() []Column {
	return []Column{
		{Header: "TOOL", Width: 10},
		{Header: "ARCH", Width: 12},
		{Header: "STATUS", Width: 12},
		{Header: "PATH", Width: 20},
	}
}

func TestProgressModelRowUpdate(t *testing.T) {
	m := NewProgressModel("binhub build", testColumns())
	m.AddRow("jq/linux-amd64", []string{"jq", "linux-amd64", "pending", "-"})

	updated, _ := m.Update(RowUpdateMsg{
		Key:    "jq/linux-amd64",
		Fields: map[string]string{"STATUS": "fetching"},
	})
	pm := updated.(ProgressModel)

	if pm.rows[0].Fields[2] != "fetching" {
		t.Errorf("status not updated: %v", pm.rows[0].Fields)
	}
	if pm.rows[0].Fields[0] != "jq" {
		t.Errorf("unrelated field changed: %v", pm.rows[0].Fields)
	}
}

func TestProgressModelUnknownKeyIgnored(t *testing.T) {
	m := NewProgressModel("binhub build", testColumns())
	m.AddRow("jq/linux-amd64", []string{"jq", "linux-amd64", "pending", "-"})

	updated, _ := m.Update(RowUpdateMsg{
		Key:    "yq/linux-amd64",
		Fields: map[string]string{"STATUS": "fetching"},
	})
	pm := updated.(ProgressModel)

	if pm.rows[0].Fields[2] != "pending" {
		t.Errorf("unknown key mutated a row: %v", pm.rows[0].Fields)
	}
}

func TestProgressModelWorkDone(t *testing.T) {
	m := NewProgressModel("binhub build", testColumns())

	updated, cmd := m.Update(WorkDoneMsg{})
	pm := updated.(ProgressModel)

	if !pm.Done() {
		t.Error("model not done after WorkDoneMsg")
	}
	if cmd == nil {
		t.Error("expected quit command")
	}
}

func TestProgressModelError(t *testing.T) {
	m := NewProgressModel("binhub build", testColumns())
	boom := errors.New("catalog rebuild failed")

	updated, cmd := m.Update(ErrorMsg{Err: boom})
	pm := updated.(ProgressModel)

	if !pm.Done() || pm.Err() != boom {
		t.Errorf("error state: done=%v err=%v", pm.Done(), pm.Err())
	}
	if cmd == nil {
		t.Error("expected quit command")
	}
	if !strings.Contains(pm.View(), "catalog rebuild failed") {
		t.Errorf("error view: %q", pm.View())
	}
}

func TestProgressModelView(t *testing.T) {
	m := NewProgressModel("binhub build", testColumns())
	m.AddRow("jq/linux-amd64", []string{"jq", "linux-amd64", "materialized", "j/jq/1.6/linux-amd64/jq"})
	m.AddRow("jq/windows-amd64", []string{"jq", "windows-amd64", "pending", "-"})

	view := m.View()
	for _, want := range []string{"binhub build", "TOOL", "STATUS", "jq", "materialized", "pending"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
	if !strings.Contains(view, "Processing 1/2") {
		t.Errorf("progress line wrong:\n%s", view)
	}
}

func TestProgressCounts(t *testing.T) {
	m := NewProgressModel("", testColumns())
	m.AddRow("a", []string{"a", "x", "materialized", ""})
	m.AddRow("b", []string{"b", "x", "skipped", ""})
	m.AddRow("c", []string{"c", "x", "failed", ""})
	m.AddRow("d", []string{"d", "x", "fetching", ""})
	m.AddRow("e", []string{"e", "x", "pending", ""})

	processed, total := m.progressCounts()
	if processed != 3 || total != 5 {
		t.Errorf("progressCounts = %d/%d, want 3/5", processed, total)
	}
}

func TestTruncateWithEllipsis(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly-ten", 11, "exactly-ten"},
		{"a-very-long-path/that/keeps/going", 12, "a-very-lo..."},
		{"abc", 2, "ab"},
		{"anything", 0, ""},
		{"  padded  ", 10, "padded"},
	}
	for _, tc := range cases {
		if got := TruncateWithEllipsis(tc.in, tc.max); got != tc.want {
			t.Errorf("TruncateWithEllipsis(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}

func TestNonEmptyOrDash(t *testing.T) {
	if got := NonEmptyOrDash(""); got != "-" {
		t.Errorf("empty: %q", got)
	}
	if got := NonEmptyOrDash("   "); got != "-" {
		t.Errorf("whitespace: %q", got)
	}
	if got := NonEmptyOrDash("value"); got != "value" {
		t.Errorf("value: %q", got)
	}
}
