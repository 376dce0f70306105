// Package gomodfile parses the module manifest (go.mod-style) and
// checksum (go.sum-style) files the resolution driver consumes, plus the
// handful of module-path conventions (`!`-escaping, `/vN` subdir
// normalization) the rest of the engine relies on. It exposes every
// replace directive, not just a single-module lookup, since the driver
// needs the whole rewrite table up front.
package gomodfile

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/mod/modfile"
	"golang.org/x/mod/module"
)

// Replace is one `old [ver] => new [ver]` directive.
type Replace struct {
	OldPath    string
	OldVersion string // "" if the directive has no version constraint on Old
	NewPath    string
	NewVersion string // "" for a local filesystem replacement
}

// IsLocal reports whether the replacement target is a filesystem path
// rather than a module (no version, and not a module-ish path).
func (r Replace) IsLocal() bool {
	return r.NewVersion == ""
}

// Manifest is the parsed module manifest: the module's own path plus
// every replace directive. Required dependencies are read from the
// checksum file instead, matching go.mod and go.sum's own split between
// the module's identity and its dependency set.
type Manifest struct {
	ModulePath string
	Replaces   []Replace
}

// ParseManifest parses a go.mod-style file's module and replace directives.
func ParseManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gomodfile: read manifest: %w", err)
	}
	return ParseManifestContent(path, data)
}

// ParseManifestContent parses already-read manifest bytes; fileName is
// used only for error messages (modfile's own convention).
func ParseManifestContent(fileName string, data []byte) (*Manifest, error) {
	f, err := modfile.Parse(fileName, data, nil)
	if err != nil {
		return nil, fmt.Errorf("gomodfile: parse manifest: %w", err)
	}

	m := &Manifest{}
	if f.Module != nil {
		m.ModulePath = f.Module.Mod.Path
	}
	for _, r := range f.Replace {
		m.Replaces = append(m.Replaces, Replace{
			OldPath:    r.Old.Path,
			OldVersion: r.Old.Version,
			NewPath:    r.New.Path,
			NewVersion: r.New.Version,
		})
	}
	return m, nil
}

// Resolve looks up the replace directive for (path, version), trying the
// version-specific form first and falling back to the version-agnostic
// one, per Go's own replace-matching rules.
func (m *Manifest) Resolve(path, version string) (Replace, bool) {
	var wildcard *Replace
	for i := range m.Replaces {
		r := &m.Replaces[i]
		if r.OldPath != path {
			continue
		}
		if r.OldVersion == version {
			return *r, true
		}
		if r.OldVersion == "" {
			wildcard = r
		}
	}
	if wildcard != nil {
		return *wildcard, true
	}
	return Replace{}, false
}

// EscapePath applies Go's module-cache escaping convention
// (`github.com/!microsoft/go-winio` for `github.com/Microsoft/go-winio`),
// delegating to golang.org/x/mod/module rather than hand-rolling the
// escaping rule.
func EscapePath(path string) (string, error) {
	return module.EscapePath(path)
}

// UnescapePath reverses EscapePath.
func UnescapePath(escaped string) (string, error) {
	return module.UnescapePath(escaped)
}

// NormalizeSubdir drops a trailing major-version path component (`v2`,
// `v3`, ...) from a derived sub-directory: the component is dropped from
// subdir but preserved in module_path.
func NormalizeSubdir(subdir string) string {
	if subdir == "" {
		return subdir
	}
	parts := strings.Split(subdir, "/")
	last := parts[len(parts)-1]
	if isMajorVersionSuffix(last) {
		parts = parts[:len(parts)-1]
	}
	return strings.Join(parts, "/")
}

func isMajorVersionSuffix(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, c := range s[1:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
