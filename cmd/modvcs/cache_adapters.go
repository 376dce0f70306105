package main

import (
	"github.com/go-bitbake/modvcs/internal/cachestore"
	"github.com/go-bitbake/modvcs/internal/metadata"
	"github.com/go-bitbake/modvcs/internal/verify"
)

// metadataCacheAdapter lets internal/cachestore.MetadataCache satisfy
// internal/metadata.MetadataCache: the two packages declare independent
// entry types on purpose (no import between them), so wiring them
// together here is the one place that has to know about both.
type metadataCacheAdapter struct {
	c *cachestore.MetadataCache
}

func (a metadataCacheAdapter) Get(module, version string) (metadata.CacheEntry, bool) {
	e, ok := a.c.Get(module, version)
	if !ok {
		return metadata.CacheEntry{}, false
	}
	return metadata.CacheEntry{
		VCSURL: e.VCSURL, Commit: e.Commit, Timestamp: e.Timestamp,
		Subdir: e.Subdir, Ref: e.Ref,
	}, true
}

func (a metadataCacheAdapter) Set(module, version string, entry metadata.CacheEntry) {
	a.c.Set(module, version, cachestore.MetadataEntry{
		VCSURL: entry.VCSURL, Commit: entry.Commit, Timestamp: entry.Timestamp,
		Subdir: entry.Subdir, Ref: entry.Ref,
	})
}

// verifyCacheAdapter mirrors metadataCacheAdapter for the verification
// cache.
type verifyCacheAdapter struct {
	c *cachestore.VerificationCache
}

func (a verifyCacheAdapter) Get(url, commit string) (verify.Entry, bool) {
	e, ok := a.c.Get(url, commit)
	if !ok {
		return verify.Entry{}, false
	}
	return verify.Entry{
		Verified: e.Verified, FirstVerified: e.FirstVerified,
		LastChecked: e.LastChecked, FetchMethod: e.FetchMethod,
	}, true
}

func (a verifyCacheAdapter) Set(url, commit string, entry verify.Entry) {
	a.c.Set(url, commit, cachestore.VerificationEntry{
		Verified: entry.Verified, FirstVerified: entry.FirstVerified,
		LastChecked: entry.LastChecked, FetchMethod: entry.FetchMethod,
	})
}
