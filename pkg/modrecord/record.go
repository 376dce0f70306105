// Package modrecord defines the immutable module record the resolution
// engine produces, and the invariants every emitted record must satisfy.
package modrecord

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var hashPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// Record describes one resolved (module, version) pair: the upstream VCS
// repository, the exact commit, and the ref the downstream fetcher should
// use. Immutable once the driver has finished with it.
type Record struct {
	ModulePath string    // dotted import path, may carry a /vN suffix
	Version    string    // semver, possibly pseudo-version, possibly +incompatible
	VCSURL     string    // absolute https URL, no trailing .git
	VCSHash    string    // lowercase 40-hex commit
	VCSRef     string    // "" or refs/tags/<t> or refs/heads/<b>
	Branch     string    // branch name backing VCSHash when VCSRef is empty
	Subdir     string    // "" or slash-separated, no leading/trailing /
	Timestamp  time.Time // commit time, UTC

	// PreferGit records the hybrid fetch-method classification: true when
	// the downstream build system should fetch this module via git
	// rather than the module proxy.
	PreferGit bool
}

// Validate checks every structural invariant an emitted record must
// satisfy. It does not check ref reachability (that requires a network
// or cache round-trip; see internal/verify) — only what can be checked
// from the record's fields alone.
func (r Record) Validate() error {
	if !hashPattern.MatchString(r.VCSHash) {
		return fmt.Errorf("modrecord: vcs_hash %q does not match ^[0-9a-f]{40}$", r.VCSHash)
	}

	if r.VCSRef != "" {
		if !strings.HasPrefix(r.VCSRef, "refs/tags/") && !strings.HasPrefix(r.VCSRef, "refs/heads/") {
			return fmt.Errorf("modrecord: vcs_ref %q must be refs/tags/<t> or refs/heads/<b>", r.VCSRef)
		}
	} else if r.Branch == "" {
		return fmt.Errorf("modrecord: vcs_ref is empty and no branch was recorded for the fetcher")
	}

	if r.Subdir != "" {
		if strings.HasPrefix(r.Subdir, "/") || strings.HasSuffix(r.Subdir, "/") {
			return fmt.Errorf("modrecord: subdir %q must not have leading/trailing slashes", r.Subdir)
		}
		for _, part := range strings.Split(r.Subdir, "/") {
			if isMajorVersionSuffix(part) {
				return fmt.Errorf("modrecord: subdir %q contains a major-version component %q", r.Subdir, part)
			}
		}
	}

	return nil
}

// SameIdentity reports whether two records agree on every field for the
// same (module_path, version) pair.
func SameIdentity(a, b Record) bool {
	return a.ModulePath == b.ModulePath &&
		a.Version == b.Version &&
		a.VCSURL == b.VCSURL &&
		a.VCSHash == b.VCSHash &&
		a.VCSRef == b.VCSRef &&
		a.Branch == b.Branch &&
		a.Subdir == b.Subdir &&
		a.Timestamp.Equal(b.Timestamp)
}

// isMajorVersionSuffix reports whether s looks like a Go major-version path
// element: "v2", "v3", etc.
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

// PerCommitHash is the deterministic per-commit-hash identifier: a stable
// opaque SHA-256 of "git3:"+url combined with the commit, used as
// vcs_cache/<per-commit-hash> in the emitted include files.
func PerCommitHash(vcsURL, commit string) string {
	sum := sha256.Sum256([]byte("git3:" + vcsURL + " " + commit))
	return hex.EncodeToString(sum[:])
}
