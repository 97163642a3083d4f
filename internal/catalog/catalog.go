// Package catalog regenerates the hierarchical api.json index documents from
// the materialized output tree. Nodes are always recomputed in full, bottom
// up, so the catalog can never drift from what is actually on disk.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"binhub/internal/layout"
	"binhub/pkg/manifest"
)

const (
	schemaVersion = "1.0"
	indexFileName = "api.json"
)

// RootNode lists the shard letters present in the catalog.
type RootNode struct {
	Version     string   `json:"version"`
	Directories []string `json:"directories"`
}

// LetterNode lists the tools under one shard letter.
type LetterNode struct {
	Version  string   `json:"version"`
	Binaries []string `json:"binaries"`
}

// ToolNode carries manifest metadata plus the versions present on disk.
type ToolNode struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Homepage    string   `json:"homepage"`
	Repository  string   `json:"repository"`
	License     string   `json:"license"`
	Tags        []string `json:"tags"`
	Versions    []string `json:"versions"`
}

// VersionNode maps architecture keys to their download descriptors.
type VersionNode struct {
	Name          string               `json:"name"`
	Version       string               `json:"version"`
	Architectures map[string]ArchEntry `json:"architectures"`
}

// ArchEntry describes one materialized binary.
type ArchEntry struct {
	URL    string `json:"url"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// Rebuild walks outputDir and rewrites every index level from current disk
// state. meta supplies manifest metadata for tool nodes, keyed by tool name;
// tools on disk without metadata are still indexed with empty fields so the
// catalog keeps advertising previously materialized binaries.
func Rebuild(outputDir string, meta map[string]*manifest.Manifest) error {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return fmt.Errorf("read output root: %w", err)
	}

	var letters []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		letter := entry.Name()
		tools, err := rebuildLetter(outputDir, letter, meta)
		if err != nil {
			return err
		}
		if len(tools) > 0 {
			letters = append(letters, letter)
		}
	}

	sort.Strings(letters)
	if letters == nil {
		letters = []string{}
	}
	root := RootNode{Version: schemaVersion, Directories: letters}
	return writeNode(filepath.Join(outputDir, indexFileName), root)
}

func rebuildLetter(outputDir, letter string, meta map[string]*manifest.Manifest) ([]string, error) {
	letterDir := filepath.Join(outputDir, letter)
	entries, err := os.ReadDir(letterDir)
	if err != nil {
		return nil, fmt.Errorf("read letter dir %s: %w", letterDir, err)
	}

	var tools []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		tool := entry.Name()
		versions, err := rebuildTool(letterDir, tool, meta[tool])
		if err != nil {
			return nil, err
		}
		if len(versions) > 0 {
			tools = append(tools, tool)
		}
	}

	if len(tools) == 0 {
		return nil, removeStaleIndex(letterDir)
	}

	sort.Strings(tools)
	node := LetterNode{Version: schemaVersion, Binaries: tools}
	if err := writeNode(filepath.Join(letterDir, indexFileName), node); err != nil {
		return nil, err
	}
	return tools, nil
}

func rebuildTool(letterDir, tool string, meta *manifest.Manifest) ([]string, error) {
	toolDir := filepath.Join(letterDir, tool)
	entries, err := os.ReadDir(toolDir)
	if err != nil {
		return nil, fmt.Errorf("read tool dir %s: %w", toolDir, err)
	}

	// os.ReadDir yields entries in name order, which fixes the on-disk
	// discovery order for the versions list.
	var versions []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		version := entry.Name()
		archs, err := rebuildVersion(toolDir, tool, version)
		if err != nil {
			return nil, err
		}
		if len(archs) > 0 {
			versions = append(versions, version)
		}
	}

	if len(versions) == 0 {
		return nil, removeStaleIndex(toolDir)
	}

	node := ToolNode{Name: tool, Versions: versions, Tags: []string{}}
	if meta != nil {
		node.Description = meta.Description
		node.Homepage = meta.Homepage
		node.Repository = meta.Repository
		node.License = meta.License
		if len(meta.Tags) > 0 {
			node.Tags = append([]string(nil), meta.Tags...)
		}
	}
	if err := writeNode(filepath.Join(toolDir, indexFileName), node); err != nil {
		return nil, err
	}
	return versions, nil
}

func rebuildVersion(toolDir, tool, version string) (map[string]ArchEntry, error) {
	versionDir := filepath.Join(toolDir, version)
	entries, err := os.ReadDir(versionDir)
	if err != nil {
		return nil, fmt.Errorf("read version dir %s: %w", versionDir, err)
	}

	archs := make(map[string]ArchEntry)
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		arch := entry.Name()
		binPath := filepath.Join(versionDir, arch, layout.BinaryFilename(tool, arch))
		info, err := os.Stat(binPath)
		if err != nil || info.IsDir() {
			continue
		}
		size, digest, err := layout.FileDigest(binPath)
		if err != nil {
			return nil, fmt.Errorf("digest %s: %w", binPath, err)
		}
		archs[arch] = ArchEntry{
			URL:    layout.DownloadURL(tool, version, arch),
			Size:   size,
			SHA256: digest,
		}
	}

	if len(archs) == 0 {
		return nil, removeStaleIndex(versionDir)
	}

	node := VersionNode{Name: tool, Version: version, Architectures: archs}
	if err := writeNode(filepath.Join(versionDir, indexFileName), node); err != nil {
		return nil, err
	}
	return archs, nil
}

// removeStaleIndex drops the api.json of a directory that no longer holds
// any materialized content, so pruned branches stop advertising downloads.
func removeStaleIndex(dir string) error {
	err := os.Remove(filepath.Join(dir, indexFileName))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale index in %s: %w", dir, err)
	}
	return nil
}

// writeNode marshals the node and writes it atomically next to the content
// it describes.
func writeNode(path string, node any) error {
	data, err := json.MarshalIndent(node, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace index: %w", err)
	}
	return nil
}
