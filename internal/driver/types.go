// Package driver walks the set of required modules, applies replace
// directives, handles monorepo-root and sub-module fall-backs, runs
// verification in a bounded worker pool via golang.org/x/sync/errgroup,
// and produces the final module list.
package driver

import (
	"time"

	"github.com/go-bitbake/modvcs/pkg/modrecord"
)

// DiscoveryRecord is one entry of the optional external discovery JSON:
// a pre-resolved module, short-circuiting the metadata resolver for that
// entry.
type DiscoveryRecord struct {
	ModulePath string    `json:"module_path"`
	Version    string    `json:"version"`
	VCSURL     string    `json:"vcs_url"`
	VCSHash    string    `json:"vcs_hash"`
	VCSRef     string    `json:"vcs_ref,omitempty"`
	Subdir     string    `json:"subdir,omitempty"`
	Timestamp  time.Time `json:"timestamp,omitempty"`
}

// workItem tracks one (module, version) as it moves through resolution
// and verification.
type workItem struct {
	modulePath string
	version    string

	// identity fields to restore after a replace directive is applied:
	// the emitted record must carry the original module path and
	// version, not the replacement's.
	originalPath    string
	originalVersion string

	vcsURL  string
	commit  string
	ref     string
	subdir  string
	ts      time.Time
	branch  string

	moduleFileOnly bool
	skipped        bool
	skipReason     string
	preferGit      bool
}

// Offender describes a module that failed verification with no ref to
// dereference.
type Offender struct {
	ModulePath string
	Version    string
	Reason     string
}

// Substitution records a correction or fallback for the end-of-run
// summary: recoveries are never silent.
type Substitution struct {
	ModulePath string
	OldHash    string
	NewHash    string
	Kind       string // "corrected" (moved tag) or "fallback" (orphaned)
}

// Summary is the end-of-run report: every module skipped or corrected,
// plus a three-way breakdown of how each module's record was obtained
// (total, with-origin, derived).
type Summary struct {
	Total         int
	WithOrigin    int // seeded from the discovery file
	Derived       int // resolved by the metadata resolver (its cache or a fresh derivation)
	Skipped       []Offender
	Substitutions []Substitution
}

// Result is what Run returns on success: the final, invariant-compliant
// module list plus the run summary.
type Result struct {
	Records []modrecord.Record
	Summary Summary
}

// RunError reports that the run failed because some module's commit
// remains unverifiable with no ref to dereference.
type RunError struct {
	Offenders []Offender
}

func (e *RunError) Error() string {
	return "driver: run failed, some modules could not be resolved"
}
