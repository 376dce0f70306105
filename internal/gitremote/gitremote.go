// Package gitremote resolves a commit hash for (repo URL, ref) by
// combining a persistent cache lookup, a local bare-clone lookup, and a
// network ls-remote call, in that order.
package gitremote

import (
	"context"
	"time"

	"github.com/go-bitbake/modvcs/internal/gitexec"
	"github.com/go-bitbake/modvcs/pkg/applog"
)

// Cache is the subset of cachestore.LsRemoteCache this package needs.
type Cache interface {
	Get(url, ref string) (hash string, null bool, found bool)
	SetHash(url, ref, hash string)
	SetNull(url, ref string)
}

// Resolver implements a lookup(url, ref) -> commit | null contract.
type Resolver struct {
	git      *gitexec.Runner
	cache    Cache
	cacheDir string
	timeout  time.Duration
	log      applog.Logger
}

// New builds a Resolver. cacheDir is the root under which per-repository
// bare clones may already exist, shared with the commit verifier's clones.
func New(git *gitexec.Runner, cache Cache, cacheDir string, timeout time.Duration, log applog.Logger) *Resolver {
	if log == nil {
		log = applog.Nop()
	}
	return &Resolver{git: git, cache: cache, cacheDir: cacheDir, timeout: timeout, log: log}
}

// Lookup implements the cache-then-local-clone-then-network policy.
func (r *Resolver) Lookup(ctx context.Context, url, ref string) (string, bool) {
	if hash, null, found := r.cache.Get(url, ref); found {
		if null {
			return "", false
		}
		return hash, true
	}

	dir := gitexec.DirForURL(r.cacheDir, url)
	if gitexec.BareDirExists(dir) {
		if hash, err := r.git.ShowRefHash(ctx, r.timeout, dir, ref); err == nil {
			r.cache.SetHash(url, ref, hash)
			return hash, true
		}
	}

	refs, err := r.git.LsRemote(ctx, r.timeout, url, ref)
	if err != nil {
		r.log.Warn("gitremote: ls-remote failed, caching negative result for this run", "url", url, "ref", ref, "error", err)
		r.cache.SetNull(url, ref)
		return "", false
	}

	hash, ok := gitexec.PeeledOrDirect(refs)
	if !ok {
		r.cache.SetNull(url, ref)
		return "", false
	}

	r.cache.SetHash(url, ref, hash)
	return hash, true
}
