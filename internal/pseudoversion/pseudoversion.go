// Package pseudoversion expands a pseudo-version's timestamp and
// 12-character short hash into the full 40-char commit by cloning the
// upstream repository and searching a date window around the timestamp.
package pseudoversion

import (
	"context"
	"strings"
	"time"

	"golang.org/x/mod/module"

	"github.com/go-bitbake/modvcs/internal/gitexec"
	"github.com/go-bitbake/modvcs/pkg/applog"
)

// Timeouts bundles the per-operation timeouts for each git invocation.
type Timeouts struct {
	Clone time.Duration
	Fetch time.Duration
	Log   time.Duration
}

// Resolver expands pseudo-versions against real upstream history.
type Resolver struct {
	git      *gitexec.Runner
	cacheDir string
	timeouts Timeouts
	log      applog.Logger
}

// New builds a Resolver that keeps its bare clones under cacheDir.
func New(git *gitexec.Runner, cacheDir string, timeouts Timeouts, log applog.Logger) *Resolver {
	if log == nil {
		log = applog.Nop()
	}
	return &Resolver{git: git, cacheDir: cacheDir, timeouts: timeouts, log: log}
}

// ParseComponents validates and extracts the timestamp and short hash
// from a pseudo-version string, delegating the format check to
// golang.org/x/mod/module so this package stays free of its own regex.
func ParseComponents(version string) (ts time.Time, short string, ok bool) {
	if !module.IsPseudoVersion(version) {
		return time.Time{}, "", false
	}
	rev, err := module.PseudoVersionRev(version)
	if err != nil {
		return time.Time{}, "", false
	}
	t, err := module.PseudoVersionTime(version)
	if err != nil {
		return time.Time{}, "", false
	}
	if !validTimestamp(t) {
		return time.Time{}, "", false
	}
	return t, rev, true
}

// validTimestamp rejects a timestamp that is not a real date between 1970
// and 9999 inclusive, or for which a ±1-day window would overflow.
func validTimestamp(t time.Time) bool {
	if t.Year() < 1970 || t.Year() > 9999 {
		return false
	}
	if t.AddDate(0, 0, -1).Year() < 1970 {
		return false
	}
	if t.AddDate(0, 0, 1).Year() > 9999 {
		return false
	}
	return true
}

// CandidateURLs builds the candidate URL list: the primary URL, plus a
// GitHub mirror when the URL is on go.googlesource.com.
func CandidateURLs(primaryURL string) []string {
	candidates := []string{primaryURL}
	const prefix = "https://go.googlesource.com/"
	if strings.HasPrefix(primaryURL, prefix) {
		pkg := strings.TrimPrefix(primaryURL, prefix)
		candidates = append(candidates, "https://github.com/golang/"+pkg)
	}
	return candidates
}

// Expand resolves (url, ts, short) to a full 40-char commit hash, trying
// each candidate URL in turn and returning null only if all fail.
func (r *Resolver) Expand(ctx context.Context, primaryURL string, ts time.Time, short string) (string, bool) {
	for _, candidate := range CandidateURLs(primaryURL) {
		hash, ok := r.expandOne(ctx, candidate, ts, short)
		if ok {
			return hash, true
		}
	}
	return "", false
}

func (r *Resolver) expandOne(ctx context.Context, url string, ts time.Time, short string) (string, bool) {
	dir := gitexec.DirForURL(r.cacheDir, url)

	var err error
	if gitexec.BareDirExists(dir) {
		err = r.git.FetchAll(ctx, r.timeouts.Fetch, dir)
	} else {
		err = r.git.InitBare(ctx, r.timeouts.Clone, dir, url)
		if err == nil {
			err = r.git.FetchAll(ctx, r.timeouts.Clone, dir)
		}
	}
	if err != nil {
		r.log.Warn("pseudoversion: clone/fetch failed", "url", url, "error", err)
		return "", false
	}

	since := ts.AddDate(0, 0, -1)
	until := ts.AddDate(0, 0, 1)
	entries, err := r.git.LogSinceUntil(ctx, r.timeouts.Log, dir, since, until)
	if err != nil {
		r.log.Warn("pseudoversion: git log failed", "url", url, "error", err)
		return "", false
	}

	for _, e := range entries {
		if strings.HasPrefix(e.Hash, short) {
			return e.Hash, true
		}
	}
	return "", false
}
