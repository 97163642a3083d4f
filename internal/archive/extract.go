// Package archive extracts a single named binary out of a staged download.
// Only the targeted entry's bytes ever leave the archive; nothing else is
// unpacked to disk.
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/ulikunitz/xz"

	"binhub/pkg/manifest"
)

// EntryNotFoundError reports that the declared binary path is absent from
// the archive, or names something that is not a regular file.
type EntryNotFoundError struct {
	Entry   string
	Archive string
	Reason  string
}

func (e *EntryNotFoundError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "not found"
	}
	return fmt.Sprintf("entry %q %s in %s", e.Entry, reason, e.Archive)
}

// ExtractTo streams the entry named entryPath from the staged file at src
// into dst and returns the number of bytes written. For raw downloads the
// staged file itself is the binary and entryPath is ignored.
func ExtractTo(dst io.Writer, src string, kind manifest.Kind, entryPath string) (int64, error) {
	switch kind {
	case manifest.KindRaw:
		return copyRaw(dst, src)
	case manifest.KindZip:
		return extractZipEntry(dst, src, entryPath)
	case manifest.KindTar:
		return extractTarEntry(dst, src, entryPath, decompressNone)
	case manifest.KindTarGz:
		return extractTarEntry(dst, src, entryPath, decompressGzip)
	case manifest.KindTarXz:
		return extractTarEntry(dst, src, entryPath, decompressXz)
	default:
		return 0, fmt.Errorf("unsupported archive kind %d", kind)
	}
}

func copyRaw(dst io.Writer, src string) (int64, error) {
	f, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("open staged file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(dst, f)
	if err != nil {
		return n, fmt.Errorf("copy staged file: %w", err)
	}
	return n, nil
}

func extractZipEntry(dst io.Writer, src, entryPath string) (int64, error) {
	want, err := normalizeEntryPath(entryPath, src)
	if err != nil {
		return 0, err
	}

	reader, err := zip.OpenReader(src)
	if err != nil {
		return 0, fmt.Errorf("open zip: %w", err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		if normalizeName(file.Name) != want {
			continue
		}
		if file.FileInfo().IsDir() {
			return 0, &EntryNotFoundError{Entry: entryPath, Archive: src, Reason: "is a directory"}
		}
		rc, err := file.Open()
		if err != nil {
			return 0, fmt.Errorf("open zip entry %s: %w", file.Name, err)
		}
		defer rc.Close()

		n, err := io.Copy(dst, rc)
		if err != nil {
			return n, fmt.Errorf("copy zip entry %s: %w", file.Name, err)
		}
		return n, nil
	}
	return 0, &EntryNotFoundError{Entry: entryPath, Archive: src}
}

type decompressor int

const (
	decompressNone decompressor = iota
	decompressGzip
	decompressXz
)

func extractTarEntry(dst io.Writer, src, entryPath string, dec decompressor) (int64, error) {
	want, err := normalizeEntryPath(entryPath, src)
	if err != nil {
		return 0, err
	}

	f, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	var stream io.Reader = f
	switch dec {
	case decompressGzip:
		gz, err := gzip.NewReader(f)
		if err != nil {
			return 0, fmt.Errorf("gzip reader: %w", err)
		}
		defer gz.Close()
		stream = gz
	case decompressXz:
		xzr, err := xz.NewReader(f)
		if err != nil {
			return 0, fmt.Errorf("xz reader: %w", err)
		}
		stream = xzr
	}

	tr := tar.NewReader(stream)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("read tar header: %w", err)
		}
		if normalizeName(header.Name) != want {
			continue
		}
		switch header.Typeflag {
		case tar.TypeReg:
			n, err := io.Copy(dst, tr)
			if err != nil {
				return n, fmt.Errorf("copy tar entry %s: %w", header.Name, err)
			}
			return n, nil
		case tar.TypeDir:
			return 0, &EntryNotFoundError{Entry: entryPath, Archive: src, Reason: "is a directory"}
		default:
			return 0, &EntryNotFoundError{Entry: entryPath, Archive: src, Reason: "is not a regular file"}
		}
	}
	return 0, &EntryNotFoundError{Entry: entryPath, Archive: src}
}

// normalizeEntryPath validates the requested archive-internal path. Matching
// is exact apart from stripping a leading "./"; anything that could resolve
// outside the archive root is refused.
func normalizeEntryPath(entryPath, src string) (string, error) {
	want := normalizeName(entryPath)
	if want == "" || want == "." || want == ".." || strings.HasPrefix(want, "../") || path.IsAbs(want) {
		return "", &EntryNotFoundError{Entry: entryPath, Archive: src, Reason: "resolves outside the archive"}
	}
	return want, nil
}

func normalizeName(name string) string {
	return path.Clean(strings.TrimPrefix(name, "./"))
}
