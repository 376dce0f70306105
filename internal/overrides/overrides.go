// Package overrides implements the repo-override store: two key→URL
// maps — a user-editable, version-tracked manual file and a
// tool-written dynamic file for ad-hoc pins (`--set-repo` / `--clear-repo`)
// — consulted by the vanity import deriver in a fixed lookup order.
//
// The manual file is YAML, rendered with gopkg.in/yaml.v3; the dynamic
// file is plain JSON, following cachestore's whole-file-overwrite
// convention.
package overrides

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-bitbake/modvcs/pkg/applog"
	"gopkg.in/yaml.v3"
)

// manualFileName and dynamicFileName are fixed names inside the one
// directory passed to Open; both files are read from that directory
// (cmd/modvcs passes the cache directory).
const (
	manualFileName  = "repo-overrides.yaml"
	dynamicFileName = "repo-overrides.json"
)

// Store holds the manual and dynamic override maps and answers lookups
// in priority order: dynamic-specific, dynamic-wildcard, manual-specific,
// manual-wildcard.
type Store struct {
	manualPath  string
	dynamicPath string
	log         applog.Logger

	manual  map[string]string
	dynamic map[string]string

	dynamicDirty bool
}

// Open loads the manual (YAML) and dynamic (JSON) override files from dir.
// Missing or corrupt files start empty with a warning.
func Open(dir string, log applog.Logger) *Store {
	if log == nil {
		log = applog.Nop()
	}
	s := &Store{
		manualPath:  filepath.Join(dir, manualFileName),
		dynamicPath: filepath.Join(dir, dynamicFileName),
		log:         log,
		manual:      make(map[string]string),
		dynamic:     make(map[string]string),
	}

	if data, err := os.ReadFile(s.manualPath); err == nil {
		var m map[string]string
		if err := yaml.Unmarshal(data, &m); err != nil {
			log.Warn("overrides: manual override file corrupt, starting empty", "path", s.manualPath, "error", err)
		} else {
			s.manual = m
		}
	} else if !os.IsNotExist(err) {
		log.Warn("overrides: could not read manual override file", "path", s.manualPath, "error", err)
	}

	if data, err := os.ReadFile(s.dynamicPath); err == nil {
		var m map[string]string
		if err := json.Unmarshal(data, &m); err != nil {
			log.Warn("overrides: dynamic override file corrupt, starting empty", "path", s.dynamicPath, "error", err)
		} else {
			s.dynamic = m
		}
	} else if !os.IsNotExist(err) {
		log.Warn("overrides: could not read dynamic override file", "path", s.dynamicPath, "error", err)
	}

	return s
}

// Candidates returns every override URL matching module (at moduleVersion,
// if non-empty) in priority order: dynamic-specific, dynamic-wildcard,
// manual-specific, manual-wildcard. The vanity import deriver merges
// these candidates ahead of its own derivation, rather than
// short-circuiting on the first.
func (s *Store) Candidates(module, version string) []string {
	var out []string
	specific := module
	if version != "" {
		specific = module + "@" + version
	}

	if url, ok := s.dynamic[specific]; ok && specific != module {
		out = append(out, url)
	}
	if url, ok := s.dynamic[module]; ok {
		out = append(out, url)
	}
	if url, ok := s.manual[specific]; ok && specific != module {
		out = append(out, url)
	}
	if url, ok := s.manual[module]; ok {
		out = append(out, url)
	}
	return out
}

// SetRepo pins module (optionally module@version) to url in the dynamic
// store, implementing `--set-repo`.
func (s *Store) SetRepo(key, url string) {
	s.dynamic[key] = url
	s.dynamicDirty = true
}

// ClearRepo removes a pin from the dynamic store, implementing
// `--clear-repo`.
func (s *Store) ClearRepo(key string) {
	if _, ok := s.dynamic[key]; ok {
		delete(s.dynamic, key)
		s.dynamicDirty = true
	}
}

// IsAllowed reports whether url is permitted by the override policy: a
// disallowed URL is one the manual file's deny list names. A module with
// no denylist entry is always allowed; this is the hook the metadata
// resolver and the metadata-cache prune at load call into to reject a
// disallowed URL.
func (s *Store) IsAllowed(url string) bool {
	denylist, ok := s.manual["!deny"]
	if !ok {
		return true
	}
	for _, denied := range strings.Split(denylist, ",") {
		if strings.TrimSpace(denied) == url {
			return false
		}
	}
	return true
}

// Save writes the dynamic override file if it has changed. The manual
// file is never written by this program: it is user-maintained.
func (s *Store) Save() {
	if !s.dynamicDirty {
		return
	}

	keys := make([]string, 0, len(s.dynamic))
	for k := range s.dynamic {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make(map[string]string, len(s.dynamic))
	for _, k := range keys {
		ordered[k] = s.dynamic[k]
	}

	data, err := json.MarshalIndent(ordered, "", "  ")
	if err != nil {
		s.log.Warn("overrides: failed to marshal dynamic override file, not saved", "path", s.dynamicPath, "error", err)
		return
	}

	if err := os.MkdirAll(filepath.Dir(s.dynamicPath), 0o755); err != nil {
		s.log.Warn("overrides: failed to create override directory", "path", s.dynamicPath, "error", err)
		return
	}

	if err := os.WriteFile(s.dynamicPath, data, 0o644); err != nil {
		s.log.Warn("overrides: failed to write dynamic override file", "path", s.dynamicPath, "error", err)
		return
	}

	s.dynamicDirty = false
}
