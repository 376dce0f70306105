// Package vcsurl parses and normalizes the repository URLs the vanity
// import deriver and the commit verifier pass around: known-host
// shorthand (github.com/O/R/sub/path), SSH and HTTPS clone URLs, and a
// host match that also reports any leftover path segments as a
// candidate sub-directory.
package vcsurl

import (
	"fmt"
	"strings"
)

// KnownHosts are the hosts whose URL shape is host/owner/repo: everything
// past host/owner/repo is a sub-directory candidate, not part of the repo.
var KnownHosts = map[string]bool{
	"github.com":    true,
	"gitlab.com":    true,
	"bitbucket.org": true,
}

// Match is a known-host match: the repository URL plus whatever path
// remained after owner/repo, which callers treat as a sub-directory
// candidate.
type Match struct {
	Host     string
	Owner    string
	Repo     string
	CloneURL string // https://host/owner/repo, no .git suffix
	Subdir   string // "" or the remaining path segments joined by "/"
}

// MatchKnownHost reports whether path (e.g. "github.com/foo/bar/sub/dir")
// begins with one of KnownHosts, and if so splits it into repo and
// sub-directory candidate.
func MatchKnownHost(path string) (Match, bool) {
	segments := strings.Split(path, "/")
	if len(segments) < 3 {
		return Match{}, false
	}
	host := segments[0]
	if !KnownHosts[host] {
		return Match{}, false
	}
	owner, repo := segments[1], segments[2]
	m := Match{
		Host:     host,
		Owner:    owner,
		Repo:     repo,
		CloneURL: fmt.Sprintf("https://%s/%s/%s", host, owner, repo),
	}
	if len(segments) > 3 {
		m.Subdir = strings.Join(segments[3:], "/")
	}
	return m, true
}

// NormalizeURL strips a trailing ".git", lowercases the host, and
// rewrites an SSH "git@host:owner/repo" form into
// "https://host/owner/repo" so per-repository directory hashes (see
// CacheKey) are stable regardless of which form a caller passed in.
func NormalizeURL(url string) string {
	url = strings.TrimSpace(url)
	url = strings.TrimSuffix(url, ".git")

	if strings.HasPrefix(url, "git@") {
		url = strings.TrimPrefix(url, "git@")
		url = strings.Replace(url, ":", "/", 1)
		url = "https://" + url
	}

	if i := strings.Index(url, "://"); i >= 0 {
		scheme, rest := url[:i], url[i+3:]
		if slash := strings.Index(rest, "/"); slash >= 0 {
			rest = strings.ToLower(rest[:slash]) + rest[slash:]
		} else {
			rest = strings.ToLower(rest)
		}
		url = scheme + "://" + rest
	}

	return url
}

// CacheKey returns the stable string hashed to derive each repository's
// bare-clone directory name. Hashing itself is left to the caller
// (internal/gitexec) so vcsurl stays free of any particular digest choice.
func CacheKey(url string) string {
	return NormalizeURL(url)
}
