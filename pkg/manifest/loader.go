package manifest

import (
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)
var sha256Pattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// Load reads and validates a single manifest file. A syntactically broken
// or semantically invalid manifest returns ValidationErrors; the caller is
// expected to skip the manifest and keep going.
func Load(filePath string) (*Manifest, error) {
	contents, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	base := filepath.Base(filePath)

	var m Manifest
	if err := yaml.Unmarshal(contents, &m); err != nil {
		return nil, ValidationErrors{{File: base, Message: fmt.Sprintf("parse yaml: %v", err)}}
	}
	m.Path = filePath

	if errs := m.Validate(); len(errs) > 0 {
		for i := range errs {
			errs[i].File = base
		}
		return nil, errs
	}
	return &m, nil
}

// Discover walks the manifests directory and returns the sorted paths of
// every .yaml/.yml file. Dot-directories and dotfiles are skipped so a
// checked-out manifest tree can carry .git and .gitkeep entries.
func Discover(dir string) ([]string, error) {
	var found []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() && p != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(d.Name())) {
		case ".yaml", ".yml":
			found = append(found, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan manifest dir %s: %w", dir, err)
	}
	sort.Strings(found)
	return found, nil
}

// Validate checks the manifest against the schema invariants and returns
// every finding rather than stopping at the first.
func (m *Manifest) Validate() ValidationErrors {
	var errs ValidationErrors

	if m.Name == "" {
		errs = append(errs, ValidationError{Field: "name", Message: "required"})
	} else if !namePattern.MatchString(m.Name) {
		errs = append(errs, ValidationError{Field: "name", Message: fmt.Sprintf("%q must be lowercase and start with a letter or digit", m.Name)})
	}

	if m.Version == "" {
		errs = append(errs, ValidationError{Field: "version", Message: "required"})
	}
	if strings.ContainsAny(m.Version, "/\\") {
		errs = append(errs, ValidationError{Field: "version", Message: fmt.Sprintf("%q must not contain path separators", m.Version)})
	}

	if len(m.Architectures) == 0 {
		errs = append(errs, ValidationError{Field: "architectures", Message: "at least one architecture required"})
	}

	for _, arch := range m.SortedArchitectures() {
		spec := m.Architectures[arch]
		errs = append(errs, spec.validate(arch)...)
	}

	return errs
}

func (s ArchSpec) validate(arch string) ValidationErrors {
	var errs ValidationErrors
	field := func(name string) string {
		return fmt.Sprintf("architectures.%s.%s", arch, name)
	}

	if arch == "" || strings.ContainsAny(arch, "/\\") {
		errs = append(errs, ValidationError{Field: "architectures", Message: fmt.Sprintf("invalid architecture key %q", arch)})
	}

	if s.URL == "" {
		errs = append(errs, ValidationError{Field: field("url"), Message: "required"})
	} else if parsed, err := url.Parse(s.URL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		errs = append(errs, ValidationError{Field: field("url"), Message: fmt.Sprintf("%q is not an absolute URL", s.URL)})
	}

	kind, ok := s.Kind()
	if !ok {
		errs = append(errs, ValidationError{Field: field("type"), Message: fmt.Sprintf("unrecognized archive type %q", s.Type)})
		return errs
	}

	if kind == KindRaw {
		if s.BinaryPath != "" {
			errs = append(errs, ValidationError{Field: field("binary_path_in_archive"), Message: "must be absent for raw downloads"})
		}
	} else {
		if s.BinaryPath == "" {
			errs = append(errs, ValidationError{Field: field("binary_path_in_archive"), Message: fmt.Sprintf("required for %s archives", kind)})
		} else if !safeArchivePath(s.BinaryPath) {
			errs = append(errs, ValidationError{Field: field("binary_path_in_archive"), Message: fmt.Sprintf("%q must be a clean relative path", s.BinaryPath)})
		}
	}

	if s.SHA256 != "" && !sha256Pattern.MatchString(s.SHA256) {
		errs = append(errs, ValidationError{Field: field("sha256"), Message: "must be 64 hex characters"})
	}

	return errs
}

// safeArchivePath rejects archive-internal paths that are absolute or could
// resolve outside the archive root once cleaned.
func safeArchivePath(p string) bool {
	if strings.HasPrefix(p, "/") {
		return false
	}
	cleaned := path.Clean(strings.TrimPrefix(p, "./"))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return false
	}
	return true
}
