// Package vanity turns a module path into an ordered list of candidate
// upstream repository URLs, covering known hosts, gopkg.in, golang.org/x,
// google.golang.org, operator overrides, and arbitrary vanity-import
// HTML resolved via golang.org/x/net/html.
package vanity

import (
	"context"
	"strings"

	"github.com/go-bitbake/modvcs/internal/overrides"
	"github.com/go-bitbake/modvcs/pkg/applog"
	"github.com/go-bitbake/modvcs/pkg/vcsurl"
)

// Candidate is one proposed upstream repository for a module path,
// paired with the sub-directory it implies: any path beyond the
// repository root becomes the sub-directory.
type Candidate struct {
	URL    string
	Subdir string
}

// VanityCache is the subset of cachestore.VanityCache this package
// needs; declared here so vanity does not import cachestore directly.
type VanityCache interface {
	Get(modulePath string) (url string, null bool, found bool)
	SetURL(modulePath, url string)
	SetNull(modulePath string)
}

// Deriver implements the derive(module_path, version) contract.
type Deriver struct {
	overrides *overrides.Store
	cache     VanityCache
	prober    Prober
	log       applog.Logger
}

// New builds a Deriver. prober performs the live `?go-get=1` HTTP lookup;
// pass NewHTTPProber(nil) for the real implementation or a fake in tests.
func New(ov *overrides.Store, cache VanityCache, prober Prober, log applog.Logger) *Deriver {
	if log == nil {
		log = applog.Nop()
	}
	return &Deriver{overrides: ov, cache: cache, prober: prober, log: log}
}

// Derive returns candidate upstream URLs for modulePath@version, merging
// every applicable source in priority order (overrides first, then
// conventions, finally a live vanity probe) rather than short-circuiting
// on the first hit.
func (d *Deriver) Derive(ctx context.Context, modulePath, version string) []Candidate {
	var candidates []Candidate

	for _, url := range d.overrides.Candidates(modulePath, version) {
		candidates = append(candidates, Candidate{URL: url})
	}

	if m, ok := vcsurl.MatchKnownHost(modulePath); ok {
		candidates = append(candidates, Candidate{URL: m.CloneURL, Subdir: m.Subdir})
		return candidates
	}

	if strings.HasPrefix(modulePath, "gopkg.in/") {
		candidates = append(candidates, gopkgCandidates(modulePath)...)
		if live := d.probeVanity(ctx, modulePath); live != nil {
			candidates = append(candidates, *live)
		}
		return candidates
	}

	if strings.HasPrefix(modulePath, "golang.org/x/") {
		pkg := strings.TrimPrefix(modulePath, "golang.org/x/")
		candidates = append(candidates, Candidate{URL: "https://go.googlesource.com/" + pkg})
		return candidates
	}

	if strings.HasPrefix(modulePath, "google.golang.org/") {
		candidates = append(candidates, googleAPICandidates(modulePath)...)
		return candidates
	}

	if live := d.probeVanity(ctx, modulePath); live != nil {
		candidates = append(candidates, *live)
	}
	return candidates
}

// probeVanity consults the vanity cache, falling back to a live HTTP probe
// and caching the result (positive or negative) on a miss.
func (d *Deriver) probeVanity(ctx context.Context, modulePath string) *Candidate {
	if url, null, found := d.cache.Get(modulePath); found {
		if null {
			return nil
		}
		return &Candidate{URL: url}
	}

	result, err := d.prober.Probe(ctx, modulePath)
	if err != nil || result == nil {
		if err != nil {
			d.log.Warn("vanity: go-import probe failed", "module", modulePath, "error", err)
		}
		d.cache.SetNull(modulePath)
		return nil
	}

	d.cache.SetURL(modulePath, result.URL)
	return result
}
