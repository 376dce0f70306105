package driver

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/go-bitbake/modvcs/internal/gomodfile"
	"github.com/go-bitbake/modvcs/internal/metadata"
	"github.com/go-bitbake/modvcs/internal/pseudoversion"
	"github.com/go-bitbake/modvcs/internal/verify"
	"github.com/go-bitbake/modvcs/pkg/applog"
	"github.com/go-bitbake/modvcs/pkg/modrecord"
)

// Resolver is the metadata resolver's contract, scoped to what the driver needs.
type Resolver interface {
	Resolve(ctx context.Context, modulePath, version string) (*metadata.Record, error)
}

// Verifier is the commit verifier's contract, scoped to what the driver needs.
type Verifier interface {
	Verify(ctx context.Context, url, commit, refHint, version string, timestamp time.Time) (verify.Result, error)

	// IsBitbakeFetchable is the cheap ls-remote-only pre-check: does ref
	// currently point at commit. The driver uses it to decide whether a
	// proactive CorrectFromRef lookup is even worth the extra round trip.
	IsBitbakeFetchable(ctx context.Context, url, commit, ref string) bool

	// CorrectFromRef returns the commit ref currently resolves to, if it
	// differs from commit, so the driver can rewrite a moved tag before
	// full verification runs.
	CorrectFromRef(ctx context.Context, url, commit, ref string) (string, bool)
}

// flushEvery is how many verified modules pass between forced cache
// flushes: a durability hedge against interruption mid-run.
const flushEvery = 50

// Driver resolves the full dependency set: walking required modules,
// applying replace directives, and running verification.
type Driver struct {
	manifest *gomodfile.Manifest
	resolver Resolver
	verifier Verifier
	workers  int
	log      applog.Logger
	onFlush  func()
}

// New builds a Driver. workers <= 0 means sequential verification
// (default 10 workers; 0 means sequential). onFlush, if non-nil, is
// called every flushEvery verified modules so the verification cache
// survives an interrupted run; pass nil to disable the hedge (tests do).
func New(manifest *gomodfile.Manifest, resolver Resolver, verifier Verifier, workers int, log applog.Logger, onFlush func()) *Driver {
	if log == nil {
		log = applog.Nop()
	}
	return &Driver{manifest: manifest, resolver: resolver, verifier: verifier, workers: workers, log: log, onFlush: onFlush}
}

// Run executes the full resolution algorithm against the checksum
// entries, optionally seeded by pre-resolved discovery records.
func (d *Driver) Run(ctx context.Context, withSource, moduleFileOnly []gomodfile.ChecksumEntry, discovery []DiscoveryRecord) (*Result, error) {
	items := make(map[string]*workItem) // key: modulePath+"@"+version

	summary := Summary{}
	for _, rec := range discovery {
		key := itemKey(rec.ModulePath, rec.Version)
		items[key] = &workItem{
			modulePath: rec.ModulePath, version: rec.Version,
			vcsURL: rec.VCSURL, commit: rec.VCSHash, ref: rec.VCSRef,
			subdir: rec.Subdir, ts: rec.Timestamp,
			preferGit: classifyFetchPreference(rec.ModulePath, rec.VCSURL),
		}
		summary.WithOrigin++
	}

	// Step 4: resolve every source-required module not already seeded.
	for _, entry := range withSource {
		key := itemKey(entry.Module, entry.Version)
		if _, ok := items[key]; ok {
			continue
		}
		item := d.resolveRequired(ctx, entry.Module, entry.Version, items, &summary)
		items[key] = item
	}

	// Step 5: module-file-only entries, sibling reuse only.
	for _, entry := range moduleFileOnly {
		key := itemKey(entry.Module, entry.Version)
		if _, ok := items[key]; ok {
			continue
		}
		item := &workItem{modulePath: entry.Module, version: entry.Version, moduleFileOnly: true}
		if sib := findSibling(items, entry.Module); sib != nil {
			item.vcsURL, item.ref, item.subdir = sib.vcsURL, sib.ref, sib.subdir
			item.commit, item.preferGit = sib.commit, sib.preferGit
		} else {
			item.skipped = true
			item.skipReason = "module-file-only entry with no sibling resolution"
		}
		items[key] = item
	}

	dropMonorepoRoots(items)

	summary.Total = len(items)

	// Step 6: dedupe by (url, commit).
	type repoCommit struct {
		url    string
		commit string
	}
	byCommit := make(map[repoCommit][]*workItem)
	for _, it := range items {
		if it.skipped || it.vcsURL == "" || it.commit == "" {
			continue
		}
		k := repoCommit{it.vcsURL, it.commit}
		byCommit[k] = append(byCommit[k], it)
	}

	// Step 7: bounded-parallel verification.
	keys := make([]repoCommit, 0, len(byCommit))
	for k := range byCommit {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].url != keys[j].url {
			return keys[i].url < keys[j].url
		}
		return keys[i].commit < keys[j].commit
	})

	var mu sync.Mutex
	var verifiedCount int
	g, gctx := errgroup.WithContext(ctx)
	if d.workers > 0 {
		g.SetLimit(d.workers)
	} else {
		g.SetLimit(1)
	}

	for _, k := range keys {
		k := k
		members := byCommit[k]
		g.Go(func() error {
			refHint := ""
			var version string
			var ts time.Time
			for _, m := range members {
				if m.ref != "" {
					refHint = m.ref
				}
				version = m.version
				ts = m.ts
			}
			if ts.IsZero() {
				if pts, _, ok := pseudoversion.ParseComponents(version); ok {
					ts = pts
				}
			}

			// Before paying for a full clone-based verification, ask
			// ls-remote whether refHint still points at commit. Only
			// when it does not do we pay for the CorrectFromRef round
			// trip, and only when that resolves to something different
			// do we rewrite the commit the full verification below
			// actually checks.
			commit := k.commit
			if refHint != "" && !d.verifier.IsBitbakeFetchable(gctx, k.url, commit, refHint) {
				if corrected, ok := d.verifier.CorrectFromRef(gctx, k.url, commit, refHint); ok {
					d.log.Warn("driver: proactive tag correction", "url", k.url, "ref", refHint, "old", commit, "new", corrected)
					mu.Lock()
					for _, m := range members {
						summary.Substitutions = append(summary.Substitutions, Substitution{
							ModulePath: m.modulePath, OldHash: commit, NewHash: corrected, Kind: "corrected",
						})
						m.commit = corrected
					}
					mu.Unlock()
					commit = corrected
				}
			}

			result, err := d.verifier.Verify(gctx, k.url, commit, refHint, version, ts)
			if err != nil {
				d.log.Warn("driver: verification failed", "url", k.url, "commit", commit, "error", err)
				mu.Lock()
				for _, m := range members {
					m.skipped = true
					m.skipReason = err.Error()
				}
				mu.Unlock()
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			for _, m := range members {
				m.commit = commit
				if result.Branch != "" {
					m.branch = result.Branch
				}
				if result.Corrected {
					summary.Substitutions = append(summary.Substitutions, Substitution{
						ModulePath: m.modulePath, OldHash: commit, NewHash: result.CorrectedHash, Kind: "corrected",
					})
					m.commit = result.CorrectedHash
				}
				if result.Fallback {
					d.log.Warn("driver: fallback substitution", "module", m.modulePath, "old", commit, "new", result.FallbackHash)
					summary.Substitutions = append(summary.Substitutions, Substitution{
						ModulePath: m.modulePath, OldHash: commit, NewHash: result.FallbackHash, Kind: "fallback",
					})
					m.commit = result.FallbackHash
				}
				if !result.RefPointsToCommit {
					m.ref = ""
				}
			}
			verifiedCount += len(members)
			if d.onFlush != nil && verifiedCount/flushEvery != (verifiedCount-len(members))/flushEvery {
				d.onFlush()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Step 8: fail if any module remains unverifiable with no ref.
	var offenders []Offender
	var records []modrecord.Record
	for _, it := range sortedItems(items) {
		if it.skipped {
			offenders = append(offenders, Offender{ModulePath: it.modulePath, Version: it.version, Reason: it.skipReason})
			summary.Skipped = append(summary.Skipped, Offender{ModulePath: it.modulePath, Version: it.version, Reason: it.skipReason})
			continue
		}
		if it.commit == "" {
			offenders = append(offenders, Offender{ModulePath: it.modulePath, Version: it.version, Reason: "no commit resolved"})
			continue
		}
		if it.ref == "" && it.branch == "" {
			offenders = append(offenders, Offender{ModulePath: it.modulePath, Version: it.version, Reason: "no ref and no branch reachability"})
			continue
		}
		records = append(records, modrecord.Record{
			ModulePath: valueOr(it.originalPath, it.modulePath),
			Version:    valueOr(it.originalVersion, it.version),
			VCSURL:     it.vcsURL,
			VCSHash:    it.commit,
			VCSRef:     it.ref,
			Branch:     it.branch,
			Subdir:     gomodfile.NormalizeSubdir(it.subdir),
			Timestamp:  it.ts,
			PreferGit:  it.preferGit,
		})
	}

	if len(offenders) > 0 {
		return nil, &RunError{Offenders: offenders}
	}

	return &Result{Records: records, Summary: summary}, nil
}

// resolveRequired handles one source-required module: replace-directive
// rewriting, metadata resolution, then monorepo sub-module synthesis and
// sibling reuse on failure.
func (d *Driver) resolveRequired(ctx context.Context, modulePath, version string, items map[string]*workItem, summary *Summary) *workItem {
	lookupPath, lookupVersion := modulePath, version
	original := ""
	if r, ok := d.manifest.Resolve(modulePath, version); ok {
		lookupPath, lookupVersion = r.NewPath, r.NewVersion
		original = modulePath
	}

	if rec, err := d.resolver.Resolve(ctx, lookupPath, lookupVersion); err == nil {
		summary.Derived++
		item := &workItem{
			modulePath: lookupPath, version: lookupVersion,
			vcsURL: rec.VCSURL, commit: rec.Commit, ref: rec.Ref, subdir: rec.Subdir, ts: rec.Timestamp,
			preferGit: classifyFetchPreference(lookupPath, rec.VCSURL),
		}
		if original != "" {
			item.originalPath, item.originalVersion = modulePath, version
		}
		return item
	}

	// Monorepo sub-module synthesis: shorten the path one component at a
	// time, reusing an already-resolved prefix's repo URL.
	parts := strings.Split(lookupPath, "/")
	for n := len(parts) - 1; n >= 3; n-- {
		prefix := strings.Join(parts[:n], "/")
		if sib := findSibling(items, prefix); sib != nil && sib.vcsURL != "" {
			item := &workItem{
				modulePath: lookupPath, version: lookupVersion, vcsURL: sib.vcsURL,
				subdir: strings.Join(parts[n:], "/"), preferGit: sib.preferGit,
			}
			if original != "" {
				item.originalPath, item.originalVersion = modulePath, version
			}
			return item
		}
	}

	// Sibling reuse: any other version of the same module path already
	// resolved.
	if sib := findSibling(items, lookupPath); sib != nil {
		item := &workItem{
			modulePath: lookupPath, version: lookupVersion, vcsURL: sib.vcsURL,
			subdir: sib.subdir, preferGit: sib.preferGit,
		}
		if original != "" {
			item.originalPath, item.originalVersion = modulePath, version
		}
		return item
	}

	item := &workItem{modulePath: lookupPath, version: lookupVersion, skipped: true, skipReason: "no candidate resolved and no monorepo/sibling fallback available"}
	if original != "" {
		item.originalPath, item.originalVersion = modulePath, version
	}
	return item
}

func findSibling(items map[string]*workItem, modulePath string) *workItem {
	for _, it := range items {
		if it.modulePath == modulePath && !it.skipped && it.vcsURL != "" {
			return it
		}
	}
	return nil
}

// dropMonorepoRoots silently drops any item whose path is a strict prefix
// of another resolved item's path: the narrower sub-module is what the
// build actually imports, so the wider monorepo root is redundant.
func dropMonorepoRoots(items map[string]*workItem) {
	var paths []string
	for _, it := range items {
		if !it.skipped {
			paths = append(paths, it.modulePath)
		}
	}
	for key, it := range items {
		for _, p := range paths {
			if p != it.modulePath && strings.HasPrefix(p, it.modulePath+"/") {
				delete(items, key)
				break
			}
		}
	}
}

// gitPreferredPrefixes are the module path roots an operator has chosen
// to always fetch via git rather than the module proxy, regardless of
// zip size, because these upstreams are known to be large monorepos or
// otherwise poor proxy citizens.
var gitPreferredPrefixes = []string{
	"github.com/containerd",
	"github.com/rancher",
	"github.com/k3s-io",
	"k8s.io",
	"sigs.k8s.io",
}

// classifyFetchPreference decides whether the downstream fetcher should
// use git rather than the module proxy for modulePath. The engine core
// never downloads a module's source body, so there is no zip to size;
// the prefix table is the only signal available.
func classifyFetchPreference(modulePath, _ string) bool {
	for _, prefix := range gitPreferredPrefixes {
		if modulePath == prefix || strings.HasPrefix(modulePath, prefix+"/") {
			return true
		}
	}
	return false
}

func itemKey(modulePath, version string) string {
	return modulePath + "@" + version
}

func sortedItems(items map[string]*workItem) []*workItem {
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*workItem, 0, len(keys))
	for _, k := range keys {
		out = append(out, items[k])
	}
	return out
}

func valueOr(preferred, fallback string) string {
	if preferred != "" {
		return preferred
	}
	return fallback
}
