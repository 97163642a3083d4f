// Package paths derives the canonical locations for a binhub project.
package paths

import (
	"fmt"
	"os"
	"path/filepath"

	"binhub/internal/config"
)

// CatalogPaths captures canonical locations for one catalog project.
type CatalogPaths struct {
	Root         string
	ConfigFile   string
	ManifestsDir string
	OutputDir    string
	MetaDir      string
	StagingDir   string
	LogsDir      string
}

// Resolve determines the project root using the optional --project flag or
// the current working directory when the flag is empty.
func Resolve(projectFlag string) (CatalogPaths, error) {
	var (
		root string
		err  error
	)

	if projectFlag != "" {
		root, err = filepath.Abs(projectFlag)
	} else {
		root, err = os.Getwd()
	}
	if err != nil {
		return CatalogPaths{}, fmt.Errorf("resolve project root: %w", err)
	}

	return newCatalogPaths(root), nil
}

func newCatalogPaths(root string) CatalogPaths {
	metaDir := filepath.Join(root, ".binhub")
	return CatalogPaths{
		Root:         root,
		ConfigFile:   filepath.Join(root, "binhub.yaml"),
		ManifestsDir: filepath.Join(root, "manifests"),
		OutputDir:    filepath.Join(root, "output"),
		MetaDir:      metaDir,
		StagingDir:   filepath.Join(metaDir, "staging"),
		LogsDir:      filepath.Join(metaDir, "logs"),
	}
}

// ApplyConfig overrides the default manifest and output locations with the
// configured ones. Relative config paths resolve against the project root.
func ApplyConfig(cp CatalogPaths, cfg config.Config) CatalogPaths {
	if cfg.Manifests != "" {
		cp.ManifestsDir = resolveProjectPath(cp.Root, cfg.Manifests)
	}
	if cfg.Output != "" {
		cp.OutputDir = resolveProjectPath(cp.Root, cfg.Output)
	}
	return cp
}

func resolveProjectPath(root, value string) string {
	if filepath.IsAbs(value) {
		return filepath.Clean(value)
	}
	return filepath.Join(root, value)
}

// EnsureMetaDirs creates the output tree alongside the hidden .binhub
// staging and logs directories.
func (p CatalogPaths) EnsureMetaDirs() error {
	dirs := []string{p.MetaDir, p.StagingDir, p.LogsDir, p.OutputDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// FileExists reports whether path exists and is a regular file.
func FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// DirExists reports whether path exists and is a directory.
func DirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}
