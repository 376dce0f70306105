// Package verify verifies a commit exists and is reachable from a named
// ref against the real upstream repository, detects dangling/orphaned/
// moved-tag cases, and auto-corrects where possible. A per-URL mutex
// registry, whose creation is guarded by a single outer (non-reentrant)
// mutex, lets concurrent verifications of
// different repositories proceed in parallel while serialising repeat
// visits to the same one.
package verify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-bitbake/modvcs/internal/gitexec"
	"github.com/go-bitbake/modvcs/pkg/applog"
)

// Cache is the subset of cachestore.VerificationCache this package needs.
type Cache interface {
	Get(url, commit string) (entry Entry, found bool)
	Set(url, commit string, entry Entry)
}

// Entry mirrors cachestore.VerificationEntry without importing that
// package directly.
type Entry struct {
	Verified      bool
	FirstVerified time.Time
	LastChecked   time.Time
	FetchMethod   string
}

// Fresh reports whether entry was checked within maxAge of now: entries
// older than the configured max-age are re-verified.
func (e Entry) Fresh(now time.Time, maxAge time.Duration) bool {
	return e.Verified && now.Sub(e.LastChecked) <= maxAge
}

// Timeouts bundles the per-operation timeouts for each git invocation.
type Timeouts struct {
	Fetch     time.Duration
	Unshallow time.Duration
	LsRemote  time.Duration
	Log       time.Duration
}

// Result is everything Verify's side effects produce: whether the commit
// verified, the branch chosen for the downstream fetcher, and any
// correction or fallback substitution that occurred.
type Result struct {
	Verified bool
	Branch   string // branch containing Commit, when RefHint was empty

	// Corrected is set when a ref hint's target moved (force-push): the
	// caller should use CorrectedHash in place of the requested commit.
	Corrected     bool
	CorrectedHash string

	// Fallback is set when the requested commit could not be found at
	// all (orphaned): the caller should substitute FallbackHash.
	Fallback     bool
	FallbackHash string

	// RefPointsToCommit reports whether RefHint (if given) currently
	// resolves to the verified commit — the driver only caches the ref
	// hint when this is true.
	RefPointsToCommit bool
}

// Verifier checks commit reachability against the real upstream
// repository, with a persistent cache and per-repository bare clones.
type Verifier struct {
	git      *gitexec.Runner
	cache    Cache
	cacheDir string
	maxAge   time.Duration
	timeouts Timeouts
	log      applog.Logger

	reposMu sync.Mutex // reentrant-outer-lock equivalent: guards creation of per-repo state
	repos   map[string]*repoState
}

type repoState struct {
	mu              sync.Mutex
	dir             string
	hasFullHistory  bool
}

// New builds a Verifier. cacheDir is the root under which per-repository
// bare clones live, keyed by a stable hash of each repository's URL.
func New(git *gitexec.Runner, cache Cache, cacheDir string, maxAge time.Duration, timeouts Timeouts, log applog.Logger) *Verifier {
	if log == nil {
		log = applog.Nop()
	}
	return &Verifier{
		git:      git,
		cache:    cache,
		cacheDir: cacheDir,
		maxAge:   maxAge,
		timeouts: timeouts,
		log:      log,
		repos:    make(map[string]*repoState),
	}
}

// repoFor returns (creating if necessary) the per-URL state, serialising
// creation with reposMu so two concurrent callers for the same new URL
// never race to initialise it.
func (v *Verifier) repoFor(url string) *repoState {
	v.reposMu.Lock()
	defer v.reposMu.Unlock()
	rs, ok := v.repos[url]
	if !ok {
		rs = &repoState{dir: gitexec.DirForURL(v.cacheDir, url)}
		v.repos[url] = rs
	}
	return rs
}

// Verify runs the full cache-then-ref-then-pseudo-then-fallback protocol.
// refHint is "" for pseudo-versions; timestamp feeds the fallback path
// when the commit is absent (a zero timestamp falls back to the default
// branch tip). version is passed through to the fallback but not read:
// callers derive timestamp from a pseudo-version themselves.
func (v *Verifier) Verify(ctx context.Context, url, commit, refHint, version string, timestamp time.Time) (Result, error) {
	rs := v.repoFor(url)
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if cached, ok := v.cache.Get(url, commit); ok && cached.Fresh(time.Now(), v.maxAge) {
		result := Result{Verified: true, RefPointsToCommit: refHint != ""}
		if refHint == "" {
			branch, err := v.detectBranch(ctx, rs, commit)
			if err == nil {
				result.Branch = branch
			}
		}
		return result, nil
	}

	if err := v.ensureRemote(ctx, rs, url); err != nil {
		return Result{}, err
	}

	var result Result
	var err error
	if refHint != "" {
		result, err = v.verifyWithRef(ctx, rs, url, commit, refHint)
	} else {
		result, err = v.verifyPseudo(ctx, rs, url, commit)
	}

	if err != nil || !result.Verified {
		fallbackHash, ferr := v.fallback(ctx, rs, url, version, timestamp)
		if ferr == nil {
			result = Result{Verified: true, Fallback: true, FallbackHash: fallbackHash}
			if branch, berr := v.detectBranch(ctx, rs, fallbackHash); berr == nil {
				result.Branch = branch
			}
		} else {
			gitexec.RemoveStaleLocks(rs.dir)
			if err == nil {
				err = ferr
			}
			return result, err
		}
	}

	finalHash := commit
	if result.Corrected {
		finalHash = result.CorrectedHash
	}
	if result.Fallback {
		finalHash = result.FallbackHash
	}

	v.cache.Set(url, finalHash, Entry{
		Verified:      true,
		FirstVerified: time.Now(),
		LastChecked:   time.Now(),
		FetchMethod:   fetchMethodFor(result),
	})

	return result, nil
}

func fetchMethodFor(r Result) string {
	switch {
	case r.Fallback:
		return "fallback"
	case r.Corrected:
		return "corrected"
	default:
		return "verified"
	}
}

// ensureRemote performs init+remote-add on first visit, set-url
// thereafter.
func (v *Verifier) ensureRemote(ctx context.Context, rs *repoState, url string) error {
	if gitexec.BareDirExists(rs.dir) {
		return v.git.SetRemoteURL(ctx, v.timeouts.Fetch, rs.dir, url)
	}
	return v.git.InitBare(ctx, v.timeouts.Fetch, rs.dir, url)
}

// verifyWithRef fetches refHint and commit directly, checking that
// commit is an ancestor of the ref and detecting a moved tag.
func (v *Verifier) verifyWithRef(ctx context.Context, rs *repoState, url, commit, refHint string) (Result, error) {
	_ = v.git.FetchRef(ctx, v.timeouts.Fetch, rs.dir, refHint)

	if err := v.git.FetchRef(ctx, v.timeouts.Fetch, rs.dir, commit); err == nil {
		ok, _ := v.git.MergeBaseIsAncestor(ctx, v.timeouts.Fetch, rs.dir, commit, "FETCH_HEAD")
		if !ok {
			v.log.Warn("verify: commit is not an ancestor of FETCH_HEAD", "url", url, "commit", commit)
		}
		return Result{Verified: true, RefPointsToCommit: true}, nil
	}

	if err := v.git.FetchRef(ctx, v.timeouts.Fetch, rs.dir, refHint); err != nil {
		return Result{}, fmt.Errorf("verify: ref %s does not resolve in %s: %w", refHint, url, err)
	}
	resolved, err := v.git.RevParse(ctx, v.timeouts.Fetch, rs.dir, "FETCH_HEAD")
	if err != nil {
		return Result{}, err
	}
	if resolved == commit {
		return Result{Verified: true, RefPointsToCommit: true}, nil
	}

	v.log.Warn("verify: tag moved", "url", url, "ref", refHint, "old", commit, "new", resolved)
	return Result{Verified: true, Corrected: true, CorrectedHash: resolved, RefPointsToCommit: true}, nil
}

// verifyPseudo unshallows the clone (or fetches all, if already full)
// and confirms commit exists, then detects its containing branch.
func (v *Verifier) verifyPseudo(ctx context.Context, rs *repoState, url, commit string) (Result, error) {
	var err error
	if rs.hasFullHistory {
		err = v.git.FetchAll(ctx, v.timeouts.Fetch, rs.dir)
	} else {
		err = v.git.Unshallow(ctx, v.timeouts.Unshallow, rs.dir)
		if err == nil {
			rs.hasFullHistory = true
		}
	}
	if err != nil {
		return Result{}, err
	}

	if _, err := v.git.RevParse(ctx, v.timeouts.Fetch, rs.dir, commit); err != nil {
		return Result{}, err
	}

	branch, err := v.detectBranch(ctx, rs, commit)
	if err != nil {
		return Result{}, err
	}
	return Result{Verified: true, Branch: branch}, nil
}

// detectBranch picks main, then master, then the first result of
// for-each-ref --contains.
func (v *Verifier) detectBranch(ctx context.Context, rs *repoState, commit string) (string, error) {
	branches, err := v.git.ForEachRefContains(ctx, v.timeouts.Log, rs.dir, commit)
	if err != nil {
		return "", err
	}
	if len(branches) == 0 {
		return "", fmt.Errorf("verify: commit %s is not contained in any branch", commit)
	}
	for _, preferred := range []string{"main", "master"} {
		for _, b := range branches {
			if b == preferred {
				return b, nil
			}
		}
	}
	return branches[0], nil
}

// fallback resolves the default branch's most recent commit at or
// before timestamp, for when the requested commit cannot be found.
func (v *Verifier) fallback(ctx context.Context, rs *repoState, url, version string, timestamp time.Time) (string, error) {
	defaultBranch, err := v.git.SymrefHEAD(ctx, v.timeouts.LsRemote, url)
	if err != nil {
		return "", fmt.Errorf("verify: fallback could not determine default branch for %s: %w", url, err)
	}

	if !rs.hasFullHistory {
		if err := v.git.Unshallow(ctx, v.timeouts.Unshallow, rs.dir); err != nil {
			return "", err
		}
		rs.hasFullHistory = true
	}

	return v.git.LogUntilOnBranch(ctx, v.timeouts.Log, rs.dir, defaultBranch, timestamp)
}

// IsBitbakeFetchable is a cheap pre-check: does ref (peeled, for an
// annotated tag) currently point at commit, using only ls-remote. Other
// refs of the repository are not consulted.
func (v *Verifier) IsBitbakeFetchable(ctx context.Context, url, commit, ref string) bool {
	refs, err := v.git.LsRemote(ctx, v.timeouts.LsRemote, url, ref)
	if err != nil {
		return false
	}
	hash, ok := gitexec.PeeledOrDirect(refs)
	return ok && hash == commit
}

// CorrectFromRef returns the commit ref currently resolves to, if it
// differs from commit: a proactive moved-tag check.
func (v *Verifier) CorrectFromRef(ctx context.Context, url, commit, ref string) (string, bool) {
	refs, err := v.git.LsRemote(ctx, v.timeouts.LsRemote, url, ref)
	if err != nil {
		return "", false
	}
	hash, ok := gitexec.PeeledOrDirect(refs)
	if !ok || hash == commit {
		return "", false
	}
	return hash, true
}
