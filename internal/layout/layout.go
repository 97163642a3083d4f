// Package layout derives canonical output paths for materialized binaries
// and writes them idempotently.
package layout

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// WriteError reports a filesystem failure while placing an artifact.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Artifact is the on-disk result of materializing one (tool, architecture)
// pair. Size and SHA256 are recomputed from the final file, independent of
// the fetcher's digest.
type Artifact struct {
	Tool    string
	Version string
	Arch    string
	Path    string
	RelPath string
	Size    int64
	SHA256  string
	Skipped bool

	// Replaced is set when an existing file at the target path was
	// overwritten because its length differed from the produced bytes,
	// i.e. remote content changed under an unchanged version string.
	Replaced bool
}

// BinaryFilename returns the placed binary's filename for the given
// architecture key; Windows targets take an .exe suffix.
func BinaryFilename(name, arch string) string {
	if strings.HasPrefix(arch, "windows-") {
		return name + ".exe"
	}
	return name
}

// Shard returns the first-character directory grouping for a tool name.
func Shard(name string) string {
	return strings.ToLower(name[:1])
}

// RelPath returns the canonical slash-separated output path
// {shard}/{name}/{version}/{arch}/{binary} relative to the output root.
func RelPath(name, version, arch string) string {
	return path.Join(Shard(name), name, version, arch, BinaryFilename(name, arch))
}

// DownloadURL returns the catalog-relative URL for a materialized binary.
func DownloadURL(name, version, arch string) string {
	return "/" + RelPath(name, version, arch)
}

// Materialize writes the binary produced by fill to its canonical path under
// root. When the target already exists with an identical byte length the
// write is skipped and the existing file is left untouched. Otherwise the
// bytes are written to a temp file in the destination directory, made
// executable, and renamed into place so a concurrent reader never observes a
// partial binary.
func Materialize(root, name, version, arch string, fill func(io.Writer) error) (Artifact, error) {
	rel := RelPath(name, version, arch)
	target := filepath.Join(root, filepath.FromSlash(rel))
	artifact := Artifact{
		Tool:    name,
		Version: version,
		Arch:    arch,
		Path:    target,
		RelPath: rel,
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return artifact, &WriteError{Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return artifact, &WriteError{Path: dir, Err: err}
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := fill(tmp); err != nil {
		tmp.Close()
		return artifact, err
	}
	if err := tmp.Close(); err != nil {
		return artifact, &WriteError{Path: tmpPath, Err: err}
	}

	produced, err := os.Stat(tmpPath)
	if err != nil {
		return artifact, &WriteError{Path: tmpPath, Err: err}
	}

	if existing, err := os.Stat(target); err == nil && existing.Size() == produced.Size() {
		artifact.Skipped = true
	} else {
		artifact.Replaced = err == nil
		if err := os.Chmod(tmpPath, 0o755); err != nil {
			return artifact, &WriteError{Path: tmpPath, Err: err}
		}
		if err := os.Rename(tmpPath, target); err != nil {
			return artifact, &WriteError{Path: target, Err: err}
		}
		committed = true
	}

	size, digest, err := FileDigest(target)
	if err != nil {
		return artifact, &WriteError{Path: target, Err: err}
	}
	artifact.Size = size
	artifact.SHA256 = digest
	return artifact, nil
}

// FileDigest returns the byte length and hex sha256 of the file at path.
func FileDigest(path string) (int64, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, "", err
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}
