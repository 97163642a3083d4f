package manifest

import (
	"sort"
	"strings"
)

// Manifest describes one distributable tool and its per-architecture sources.
// One manifest file is authored per tool under the manifests directory.
type Manifest struct {
	Name          string              `yaml:"name"`
	Description   string              `yaml:"description"`
	Homepage      string              `yaml:"homepage"`
	Repository    string              `yaml:"repository"`
	License       string              `yaml:"license"`
	Version       string              `yaml:"version"`
	Tags          []string            `yaml:"tags"`
	Architectures map[string]ArchSpec `yaml:"architectures"`

	// Path is the file the manifest was loaded from. Set by Load, not
	// part of the YAML schema.
	Path string `yaml:"-"`
}

// ArchSpec holds the download and extraction instructions for one
// os-architecture key such as "linux-amd64".
type ArchSpec struct {
	URL        string `yaml:"url"`
	Type       string `yaml:"type"`
	BinaryPath string `yaml:"binary_path_in_archive"`
	SHA256     string `yaml:"sha256"`
}

// Shard returns the first-character directory grouping for the tool,
// e.g. "j" for "jq". Valid only after validation has passed.
func (m *Manifest) Shard() string {
	if m.Name == "" {
		return ""
	}
	return strings.ToLower(m.Name[:1])
}

// SortedArchitectures returns the architecture keys in lexical order so
// processing and reporting are deterministic.
func (m *Manifest) SortedArchitectures() []string {
	keys := make([]string, 0, len(m.Architectures))
	for key := range m.Architectures {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
