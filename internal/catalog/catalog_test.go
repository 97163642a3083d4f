package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"binhub/pkg/manifest"
)

func placeBinary(t *testing.T, root, tool, version, arch, contents string) {
	t.Helper()
	name := tool
	if len(arch) >= 8 && arch[:8] == "windows-" {
		name += ".exe"
	}
	dir := filepath.Join(root, tool[:1], tool, version, arch)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o755); err != nil {
		t.Fatal(err)
	}
}

func readNode(t *testing.T, path string, node any) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if err := json.Unmarshal(data, node); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
}

func TestRebuildWritesAllLevels(t *testing.T) {
	root := t.TempDir()
	placeBinary(t, root, "jq", "1.6", "linux-amd64", "jq-linux")
	placeBinary(t, root, "jq", "1.6", "windows-amd64", "jq-windows")
	placeBinary(t, root, "jq", "1.7", "linux-amd64", "jq-17")
	placeBinary(t, root, "yq", "4.0", "linux-amd64", "yq-bytes")

	meta := map[string]*manifest.Manifest{
		"jq": {
			Name:        "jq",
			Description: "Command-line JSON processor",
			Homepage:    "https://jqlang.github.io/jq/",
			Repository:  "https://github.com/jqlang/jq",
			License:     "MIT",
			Tags:        []string{"json"},
		},
	}
	if err := Rebuild(root, meta); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	var rootNode RootNode
	readNode(t, filepath.Join(root, "api.json"), &rootNode)
	if rootNode.Version != "1.0" {
		t.Errorf("root schema version: %q", rootNode.Version)
	}
	if len(rootNode.Directories) != 2 || rootNode.Directories[0] != "j" || rootNode.Directories[1] != "y" {
		t.Errorf("root directories: %v", rootNode.Directories)
	}

	var letterNode LetterNode
	readNode(t, filepath.Join(root, "j", "api.json"), &letterNode)
	if len(letterNode.Binaries) != 1 || letterNode.Binaries[0] != "jq" {
		t.Errorf("letter binaries: %v", letterNode.Binaries)
	}

	var toolNode ToolNode
	readNode(t, filepath.Join(root, "j", "jq", "api.json"), &toolNode)
	if toolNode.Name != "jq" || toolNode.License != "MIT" || toolNode.Description == "" {
		t.Errorf("tool node metadata: %+v", toolNode)
	}
	if len(toolNode.Versions) != 2 || toolNode.Versions[0] != "1.6" || toolNode.Versions[1] != "1.7" {
		t.Errorf("tool versions: %v", toolNode.Versions)
	}

	var versionNode VersionNode
	readNode(t, filepath.Join(root, "j", "jq", "1.6", "api.json"), &versionNode)
	if versionNode.Name != "jq" || versionNode.Version != "1.6" {
		t.Errorf("version node identity: %+v", versionNode)
	}
	linux, ok := versionNode.Architectures["linux-amd64"]
	if !ok {
		t.Fatalf("missing linux-amd64 entry: %v", versionNode.Architectures)
	}
	if linux.URL != "/j/jq/1.6/linux-amd64/jq" {
		t.Errorf("linux url: %q", linux.URL)
	}
	if linux.Size != int64(len("jq-linux")) || len(linux.SHA256) != 64 {
		t.Errorf("linux entry: %+v", linux)
	}
	windows, ok := versionNode.Architectures["windows-amd64"]
	if !ok || windows.URL != "/j/jq/1.6/windows-amd64/jq.exe" {
		t.Errorf("windows entry: %+v ok=%v", windows, ok)
	}
}

func TestRebuildToolWithoutMetadata(t *testing.T) {
	root := t.TempDir()
	placeBinary(t, root, "fd", "9.0", "linux-amd64", "fd-bytes")

	if err := Rebuild(root, nil); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	var toolNode ToolNode
	readNode(t, filepath.Join(root, "f", "fd", "api.json"), &toolNode)
	if toolNode.Name != "fd" || toolNode.Description != "" {
		t.Errorf("expected bare metadata, got %+v", toolNode)
	}
	if toolNode.Tags == nil || len(toolNode.Tags) != 0 {
		t.Errorf("tags should encode as empty list, got %v", toolNode.Tags)
	}
}

func TestRebuildSkipsEmptyBranches(t *testing.T) {
	root := t.TempDir()
	placeBinary(t, root, "jq", "1.6", "linux-amd64", "jq-bytes")

	// Empty version and arch directories must not surface in any index.
	if err := os.MkdirAll(filepath.Join(root, "j", "jq", "1.8", "linux-amd64"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "z", "zoxide"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := Rebuild(root, nil); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	var rootNode RootNode
	readNode(t, filepath.Join(root, "api.json"), &rootNode)
	if len(rootNode.Directories) != 1 || rootNode.Directories[0] != "j" {
		t.Errorf("empty letter indexed: %v", rootNode.Directories)
	}

	var toolNode ToolNode
	readNode(t, filepath.Join(root, "j", "jq", "api.json"), &toolNode)
	if len(toolNode.Versions) != 1 || toolNode.Versions[0] != "1.6" {
		t.Errorf("empty version indexed: %v", toolNode.Versions)
	}
	if _, err := os.Stat(filepath.Join(root, "j", "jq", "1.8", "api.json")); !os.IsNotExist(err) {
		t.Errorf("empty version dir received an index: %v", err)
	}
}

func TestRebuildRemovesStaleIndexes(t *testing.T) {
	root := t.TempDir()
	placeBinary(t, root, "jq", "1.6", "linux-amd64", "jq-bytes")
	if err := Rebuild(root, nil); err != nil {
		t.Fatalf("first Rebuild: %v", err)
	}

	// Simulate pruning the binary from disk; its indexes must disappear.
	if err := os.Remove(filepath.Join(root, "j", "jq", "1.6", "linux-amd64", "jq")); err != nil {
		t.Fatal(err)
	}
	if err := Rebuild(root, nil); err != nil {
		t.Fatalf("second Rebuild: %v", err)
	}

	for _, stale := range []string{
		filepath.Join(root, "j", "jq", "1.6", "api.json"),
		filepath.Join(root, "j", "jq", "api.json"),
		filepath.Join(root, "j", "api.json"),
	} {
		if _, err := os.Stat(stale); !os.IsNotExist(err) {
			t.Errorf("stale index survived: %s", stale)
		}
	}

	var rootNode RootNode
	readNode(t, filepath.Join(root, "api.json"), &rootNode)
	if len(rootNode.Directories) != 0 {
		t.Errorf("root still lists letters: %v", rootNode.Directories)
	}
}

func TestRebuildEmptyRoot(t *testing.T) {
	root := t.TempDir()
	if err := Rebuild(root, nil); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "api.json"))
	if err != nil {
		t.Fatalf("root index missing: %v", err)
	}
	var rootNode RootNode
	if err := json.Unmarshal(data, &rootNode); err != nil {
		t.Fatal(err)
	}
	if rootNode.Directories == nil || len(rootNode.Directories) != 0 {
		t.Errorf("directories should encode as [], got %v", rootNode.Directories)
	}
}

func TestRebuildIgnoresExtraFiles(t *testing.T) {
	root := t.TempDir()
	placeBinary(t, root, "jq", "1.6", "linux-amd64", "jq-bytes")
	if err := os.WriteFile(filepath.Join(root, "README.md"), []byte("docs"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, ".binhub"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := Rebuild(root, nil); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	var rootNode RootNode
	readNode(t, filepath.Join(root, "api.json"), &rootNode)
	if len(rootNode.Directories) != 1 || rootNode.Directories[0] != "j" {
		t.Errorf("unexpected directories: %v", rootNode.Directories)
	}
}
