// Package cachestore implements atomic load/save of the on-disk JSON
// caches that make repeated runs fast: typed accessors over a generic
// file-backed map, with dirty-flag tracking so an untouched cache is
// never rewritten.
package cachestore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/go-bitbake/modvcs/pkg/applog"
)

// CompoundSeparator joins compound cache keys (e.g. "url|||ref"). No
// individual key component may contain it.
const CompoundSeparator = "|||"

// LoadError reports that a cache file exists but could not be parsed.
// This is never fatal: the caller starts with an empty cache and logs
// a warning.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return "cachestore: failed to load " + e.Path + ": " + e.Err.Error()
}

func (e *LoadError) Unwrap() error { return e.Err }

// Store is a generic, file-backed, sorted-key JSON map. V must be
// JSON-marshalable. A Store is safe for concurrent use.
type Store[V any] struct {
	path    string
	log     applog.Logger
	mu      sync.RWMutex
	entries map[string]V
	dirty   atomic.Bool
	hits    atomic.Int64
	misses  atomic.Int64
}

// openStore loads path if it exists, logging a warning and starting empty
// on any parse failure. path may not yet exist, which is not an error.
func openStore[V any](path string, log applog.Logger) *Store[V] {
	if log == nil {
		log = applog.Nop()
	}
	s := &Store[V]{
		path:    path,
		log:     log,
		entries: make(map[string]V),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("cachestore: could not read cache file, starting empty", "path", path, "error", err)
		}
		return s
	}

	if len(data) == 0 {
		return s
	}

	var loaded map[string]V
	if err := json.Unmarshal(data, &loaded); err != nil {
		log.Warn("cachestore: cache file corrupt, starting empty", "path", path, "error", err)
		return s
	}
	s.entries = loaded
	return s
}

// Get returns the value for key and whether it was present.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[key]
	if ok {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
	return v, ok
}

// Set stores value under key and marks the cache dirty.
func (s *Store[V]) Set(key string, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = value
	s.dirty.Store(true)
}

// Delete removes key, marking the cache dirty if it was present.
func (s *Store[V]) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; ok {
		delete(s.entries, key)
		s.dirty.Store(true)
	}
}

// Prune removes every entry for which keep returns false, marking the
// cache dirty if anything was removed. Used at load to drop metadata-cache
// entries with short hashes or disallowed URLs.
func (s *Store[V]) Prune(keep func(key string, value V) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, v := range s.entries {
		if !keep(k, v) {
			delete(s.entries, k)
			removed++
		}
	}
	if removed > 0 {
		s.dirty.Store(true)
	}
	return removed
}

// Dirty reports whether any mutation has occurred since the last Save.
func (s *Store[V]) Dirty() bool {
	return s.dirty.Load()
}

// Len returns the number of entries currently held.
func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Stats reports hit/miss counters for diagnostics.
type Stats struct {
	Hits   int64
	Misses int64
	Size   int
}

func (s *Store[V]) Stats() Stats {
	return Stats{Hits: s.hits.Load(), Misses: s.misses.Load(), Size: s.Len()}
}

// Save writes the cache to disk as a whole-file overwrite with keys
// sorted for textual determinism, but only if the cache is dirty. Save
// failures are logged and swallowed: caches are purely an optimisation.
func (s *Store[V]) Save() {
	if !s.dirty.Load() {
		return
	}

	s.mu.RLock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make(map[string]V, len(s.entries))
	for _, k := range keys {
		ordered[k] = s.entries[k]
	}
	s.mu.RUnlock()

	data, err := marshalSorted(ordered, keys)
	if err != nil {
		s.log.Warn("cachestore: failed to marshal cache, not saved", "path", s.path, "error", err)
		return
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		s.log.Warn("cachestore: failed to create cache directory", "path", s.path, "error", err)
		return
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		s.log.Warn("cachestore: failed to write cache file", "path", s.path, "error", err)
		return
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		s.log.Warn("cachestore: failed to replace cache file", "path", s.path, "error", err)
		_ = os.Remove(tmpPath)
		return
	}

	s.dirty.Store(false)
}

// marshalSorted renders a map as a JSON object whose keys appear in the
// given sorted order. encoding/json already sorts map[string]V keys when
// marshaling, so this mainly documents the determinism guarantee; it is
// kept as a seam in case a future value type needs custom ordering.
func marshalSorted[V any](m map[string]V, _ []string) ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
