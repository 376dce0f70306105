// Package metadata resolves a (module_path, version) pair to a full
// {repo, commit, ref, subdir, timestamp} record, orchestrating the
// vanity import deriver and remote ref / pseudo-version resolvers with
// metadata-cache-first caching.
package metadata

import (
	"context"
	"time"

	"github.com/go-bitbake/modvcs/internal/gomodfile"
	"github.com/go-bitbake/modvcs/internal/pseudoversion"
	"github.com/go-bitbake/modvcs/internal/vanity"
	"github.com/go-bitbake/modvcs/pkg/applog"
	"github.com/go-bitbake/modvcs/pkg/modrecord"
)

// Record is what resolution produces for a single (module, version):
// everything needed to build a modrecord.Record once verification has
// checked it, plus the candidate ref to hand to the verifier.
type Record struct {
	ModulePath string
	Version    string
	VCSURL     string
	Commit     string
	Ref        string // "" or refs/tags/<t>; empty means a pseudo-version path
	Subdir     string
	Timestamp  time.Time
}

// RefResolver is the remote ref resolver's contract, scoped to what this
// package needs.
type RefResolver interface {
	Lookup(ctx context.Context, url, ref string) (commit string, ok bool)
}

// PseudoResolver is the pseudo-version resolver's contract, scoped to
// what this package needs.
type PseudoResolver interface {
	Expand(ctx context.Context, url string, ts time.Time, short string) (string, bool)
}

// MetadataCache is the subset of cachestore.MetadataCache this package
// needs.
type MetadataCache interface {
	Get(module, version string) (entry CacheEntry, found bool)
	Set(module, version string, entry CacheEntry)
}

// CacheEntry mirrors cachestore.MetadataEntry's shape without importing
// that package directly.
type CacheEntry struct {
	VCSURL    string
	Commit    string
	Timestamp time.Time
	Subdir    string
	Ref       string
}

// GoToolFallback is a one-shot "ask the canonical Go tool directly"
// fallback; the metadata source is pluggable, so this package only
// depends on the narrow contract.
type GoToolFallback interface {
	VCSMetadata(ctx context.Context, modulePath, version string) (url, commit string, ok bool)
}

// Resolver implements the resolve(module_path, version) contract.
type Resolver struct {
	cache      MetadataCache
	deriver    *vanity.Deriver
	refs       RefResolver
	pseudo     PseudoResolver
	fallback   GoToolFallback
	isAllowed  func(url string) bool
	log        applog.Logger
}

// New builds a Resolver. isAllowed should be overrides.Store.IsAllowed;
// fallback may be nil if no Go-tool fallback is wired.
func New(cache MetadataCache, deriver *vanity.Deriver, refs RefResolver, pseudo PseudoResolver, fallback GoToolFallback, isAllowed func(string) bool, log applog.Logger) *Resolver {
	if log == nil {
		log = applog.Nop()
	}
	if isAllowed == nil {
		isAllowed = func(string) bool { return true }
	}
	return &Resolver{cache: cache, deriver: deriver, refs: refs, pseudo: pseudo, fallback: fallback, isAllowed: isAllowed, log: log}
}

// SkippedError reports that every candidate failed: the module is
// recorded as skipped rather than failing the whole run.
type SkippedError struct {
	ModulePath string
	Version    string
	Reason     string
}

func (e *SkippedError) Error() string {
	return "metadata: " + e.ModulePath + "@" + e.Version + " skipped: " + e.Reason
}

// Resolve runs the cache-then-derive-then-fallback resolution algorithm.
func (r *Resolver) Resolve(ctx context.Context, modulePath, version string) (*Record, error) {
	if rec := r.tryCache(ctx, modulePath, version); rec != nil {
		return rec, nil
	}

	candidates := r.deriver.Derive(ctx, modulePath, version)

	ts, short, isPseudo := pseudoversion.ParseComponents(version)

	for _, cand := range candidates {
		if !r.isAllowed(cand.URL) {
			r.log.Warn("metadata: candidate dropped by override policy", "module", modulePath, "url", cand.URL)
			continue
		}

		rec := r.tryCandidate(ctx, modulePath, version, cand, isPseudo, ts, short)
		if rec != nil {
			r.store(modulePath, version, rec)
			return rec, nil
		}
	}

	if r.fallback != nil {
		if url, commit, ok := r.fallback.VCSMetadata(ctx, modulePath, version); ok && r.isAllowed(url) {
			rec := &Record{
				ModulePath: modulePath,
				Version:    version,
				VCSURL:     url,
				Commit:     commit,
				Subdir:     gomodfile.NormalizeSubdir(""),
			}
			r.store(modulePath, version, rec)
			return rec, nil
		}
	}

	return nil, &SkippedError{ModulePath: modulePath, Version: version, Reason: "no candidate resolved"}
}

func (r *Resolver) tryCandidate(ctx context.Context, modulePath, version string, cand vanity.Candidate, isPseudo bool, ts time.Time, short string) *Record {
	subdir := gomodfile.NormalizeSubdir(cand.Subdir)

	if isPseudo {
		if commit, ok := r.refs.Lookup(ctx, cand.URL, short); ok {
			return &Record{ModulePath: modulePath, Version: version, VCSURL: cand.URL, Commit: commit, Subdir: subdir}
		}
		if commit, ok := r.pseudo.Expand(ctx, cand.URL, ts, short); ok {
			return &Record{ModulePath: modulePath, Version: version, VCSURL: cand.URL, Commit: commit, Timestamp: ts, Subdir: subdir}
		}
		return nil
	}

	tagRef := "refs/tags/" + version
	if commit, ok := r.refs.Lookup(ctx, cand.URL, tagRef); ok {
		return &Record{ModulePath: modulePath, Version: version, VCSURL: cand.URL, Commit: commit, Ref: tagRef, Subdir: subdir}
	}
	if commit, ok := r.refs.Lookup(ctx, cand.URL, version); ok {
		return &Record{ModulePath: modulePath, Version: version, VCSURL: cand.URL, Commit: commit, Ref: tagRef, Subdir: subdir}
	}
	return nil
}

// tryCache returns a cached record only if it still satisfies every
// trust condition: a full 40-hex commit, a prefix match against any
// pseudo-version short hash, an allowed URL, and (for tagged versions)
// a live ref that still resolves to the cached commit.
func (r *Resolver) tryCache(ctx context.Context, modulePath, version string) *Record {
	entry, found := r.cache.Get(modulePath, version)
	if !found {
		return nil
	}
	if !isFortyHex(entry.Commit) {
		return nil
	}
	if _, short, isPseudo := pseudoversion.ParseComponents(version); isPseudo {
		if len(entry.Commit) < len(short) || entry.Commit[:len(short)] != short {
			return nil
		}
	}
	if !r.isAllowed(entry.VCSURL) {
		return nil
	}
	if _, _, isPseudo := pseudoversion.ParseComponents(version); !isPseudo && entry.Ref != "" {
		if commit, ok := r.refs.Lookup(ctx, entry.VCSURL, entry.Ref); !ok || commit != entry.Commit {
			return nil
		}
	}
	return &Record{
		ModulePath: modulePath,
		Version:    version,
		VCSURL:     entry.VCSURL,
		Commit:     entry.Commit,
		Ref:        entry.Ref,
		Subdir:     entry.Subdir,
		Timestamp:  entry.Timestamp,
	}
}

func (r *Resolver) store(modulePath, version string, rec *Record) {
	r.cache.Set(modulePath, version, CacheEntry{
		VCSURL:    rec.VCSURL,
		Commit:    rec.Commit,
		Timestamp: rec.Timestamp,
		Subdir:    rec.Subdir,
		Ref:       rec.Ref,
	})
}

func isFortyHex(s string) bool {
	if len(s) != 40 {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

// ToModRecord converts a resolved Record plus the branch verification
// determined into the immutable modrecord.Record the driver finally
// emits.
func ToModRecord(rec Record, hash, branch string, preferGit bool) modrecord.Record {
	return modrecord.Record{
		ModulePath: rec.ModulePath,
		Version:    rec.Version,
		VCSURL:     rec.VCSURL,
		VCSHash:    hash,
		VCSRef:     rec.Ref,
		Branch:     branch,
		Subdir:     rec.Subdir,
		Timestamp:  rec.Timestamp,
		PreferGit:  preferGit,
	}
}
