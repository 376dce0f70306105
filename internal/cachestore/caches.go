package cachestore

import (
	"path/filepath"
	"time"

	"github.com/go-bitbake/modvcs/pkg/applog"
)

// Caches bundles the four on-disk caches that live directly in this
// package; the repo-override store is built separately by
// internal/overrides since it needs a YAML manual file in addition to a
// JSON one, and is wired in by cmd/modvcs alongside this struct.
type Caches struct {
	LsRemote     *LsRemoteCache
	Metadata     *MetadataCache
	Vanity       *VanityCache
	Verification *VerificationCache
}

// Open loads every cache file under dir, logging and starting empty for
// any that are missing or corrupt.
func Open(dir string, log applog.Logger) *Caches {
	return &Caches{
		LsRemote:     &LsRemoteCache{s: openStore[*string](filepath.Join(dir, "ls-remote.json"), log)},
		Metadata:     &MetadataCache{s: openStore[MetadataEntry](filepath.Join(dir, "metadata.json"), log)},
		Vanity:       &VanityCache{s: openStore[*string](filepath.Join(dir, "vanity.json"), log)},
		Verification: &VerificationCache{s: openStore[VerificationEntry](filepath.Join(dir, "verification-v2.json"), log)},
	}
}

// Save flushes every dirty cache to disk. Never returns an error: each
// underlying Store logs and swallows its own save failures.
func (c *Caches) Save() {
	c.LsRemote.s.Save()
	c.Metadata.s.Save()
	c.Vanity.s.Save()
	c.Verification.s.Save()
}

// lsRemoteKey builds the "url|||ref" compound key.
func lsRemoteKey(url, ref string) string {
	return url + CompoundSeparator + ref
}

// LsRemoteCache backs remote ref lookups: key "url|||ref" -> commit hash or nil.
type LsRemoteCache struct {
	s *Store[*string]
}

func (c *LsRemoteCache) Get(url, ref string) (hash string, null bool, found bool) {
	v, ok := c.s.Get(lsRemoteKey(url, ref))
	if !ok {
		return "", false, false
	}
	if v == nil {
		return "", true, true
	}
	return *v, false, true
}

func (c *LsRemoteCache) SetHash(url, ref, hash string) {
	h := hash
	c.s.Set(lsRemoteKey(url, ref), &h)
}

func (c *LsRemoteCache) SetNull(url, ref string) {
	c.s.Set(lsRemoteKey(url, ref), nil)
}

// MetadataEntry is the metadata-cache value.
type MetadataEntry struct {
	VCSURL    string    `json:"vcs_url"`
	Commit    string    `json:"commit"`
	Timestamp time.Time `json:"timestamp"`
	Subdir    string    `json:"subdir"`
	Ref       string    `json:"ref"`
}

func metadataKey(module, version string) string {
	return module + CompoundSeparator + version
}

// MetadataCache backs module metadata resolution: key "module|||version" -> MetadataEntry.
type MetadataCache struct {
	s *Store[MetadataEntry]
}

func (c *MetadataCache) Get(module, version string) (MetadataEntry, bool) {
	return c.s.Get(metadataKey(module, version))
}

func (c *MetadataCache) Set(module, version string, entry MetadataEntry) {
	c.s.Set(metadataKey(module, version), entry)
}

// Prune drops entries failing keep, used at load to discard entries
// with short hashes, disallowed URLs, or missing fields.
func (c *MetadataCache) Prune(keep func(module, version string, entry MetadataEntry) bool) int {
	return c.s.Prune(func(key string, entry MetadataEntry) bool {
		module, version, ok := splitCompound(key)
		if !ok {
			return false
		}
		return keep(module, version, entry)
	})
}

// VanityCache backs vanity-import derivation: key module path -> repo URL or nil.
type VanityCache struct {
	s *Store[*string]
}

func (c *VanityCache) Get(modulePath string) (url string, null bool, found bool) {
	v, ok := c.s.Get(modulePath)
	if !ok {
		return "", false, false
	}
	if v == nil {
		return "", true, true
	}
	return *v, false, true
}

func (c *VanityCache) SetURL(modulePath, url string) {
	u := url
	c.s.Set(modulePath, &u)
}

func (c *VanityCache) SetNull(modulePath string) {
	c.s.Set(modulePath, nil)
}

// VerificationEntry is the verification-cache value. FetchMethod
// retains a three-value field ("verified", "corrected", "fallback")
// written on every check but not otherwise consulted; see DESIGN.md
// for the decision to keep it as an auditability field.
type VerificationEntry struct {
	Verified      bool      `json:"verified"`
	FirstVerified time.Time `json:"first_verified"`
	LastChecked   time.Time `json:"last_checked"`
	FetchMethod   string    `json:"fetch_method"`
}

func verificationKey(url, commit string) string {
	return url + CompoundSeparator + commit
}

// VerificationCache backs commit verification: key "url|||commit" -> VerificationEntry.
type VerificationCache struct {
	s *Store[VerificationEntry]
}

func (c *VerificationCache) Get(url, commit string) (VerificationEntry, bool) {
	return c.s.Get(verificationKey(url, commit))
}

func (c *VerificationCache) Set(url, commit string, entry VerificationEntry) {
	c.s.Set(verificationKey(url, commit), entry)
}

// Fresh reports whether entry was checked within maxAge of now.
func (e VerificationEntry) Fresh(now time.Time, maxAge time.Duration) bool {
	return e.Verified && now.Sub(e.LastChecked) <= maxAge
}

func splitCompound(key string) (a, b string, ok bool) {
	idx := indexCompound(key)
	if idx < 0 {
		return "", "", false
	}
	return key[:idx], key[idx+len(CompoundSeparator):], true
}

func indexCompound(s string) int {
	for i := 0; i+len(CompoundSeparator) <= len(s); i++ {
		if s[i:i+len(CompoundSeparator)] == CompoundSeparator {
			return i
		}
	}
	return -1
}
