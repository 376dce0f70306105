package metadata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-bitbake/modvcs/internal/overrides"
	"github.com/go-bitbake/modvcs/internal/vanity"
)

type fakeCache struct {
	entries map[string]CacheEntry
}

func newFakeCache() *fakeCache { return &fakeCache{entries: make(map[string]CacheEntry)} }

func (f *fakeCache) Get(module, version string) (CacheEntry, bool) {
	e, ok := f.entries[module+"@"+version]
	return e, ok
}

func (f *fakeCache) Set(module, version string, entry CacheEntry) {
	f.entries[module+"@"+version] = entry
}

type fakeRefs struct {
	commits map[string]string // "url|ref" -> commit
}

func (f *fakeRefs) Lookup(ctx context.Context, url, ref string) (string, bool) {
	c, ok := f.commits[url+"|"+ref]
	return c, ok
}

type fakePseudo struct{}

func (fakePseudo) Expand(ctx context.Context, url string, ts time.Time, short string) (string, bool) {
	return "", false
}

type noProber struct{}

func (noProber) Probe(ctx context.Context, modulePath string) (*vanity.Candidate, error) {
	return nil, nil
}

type fakeVanityCache struct{}

func (fakeVanityCache) Get(string) (string, bool, bool) { return "", false, false }
func (fakeVanityCache) SetURL(string, string)           {}
func (fakeVanityCache) SetNull(string)                  {}

func TestResolveTaggedVersion(t *testing.T) {
	refs := &fakeRefs{commits: map[string]string{
		"https://github.com/spf13/cobra|refs/tags/v1.8.0": "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	}}
	ov := overrides.Open(t.TempDir(), nil)
	deriver := vanity.New(ov, fakeVanityCache{}, noProber{}, nil)
	r := New(newFakeCache(), deriver, refs, fakePseudo{}, nil, nil, nil)

	rec, err := r.Resolve(context.Background(), "github.com/spf13/cobra", "v1.8.0")
	if err != nil {
		t.Fatal(err)
	}
	if rec.VCSURL != "https://github.com/spf13/cobra" || rec.Commit != "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" {
		t.Errorf("got %+v", rec)
	}
	if rec.Ref != "refs/tags/v1.8.0" {
		t.Errorf("ref = %q", rec.Ref)
	}
}

func TestResolveSkippedWhenNoCandidateResolves(t *testing.T) {
	ov := overrides.Open(t.TempDir(), nil)
	deriver := vanity.New(ov, fakeVanityCache{}, noProber{}, nil)
	r := New(newFakeCache(), deriver, &fakeRefs{commits: map[string]string{}}, fakePseudo{}, nil, nil, nil)

	_, err := r.Resolve(context.Background(), "github.com/nobody/nothing", "v1.0.0")
	if err == nil {
		t.Fatal("expected a skipped error")
	}
	var skipped *SkippedError
	if !errors.As(err, &skipped) {
		t.Fatalf("expected *SkippedError, got %T", err)
	}
}

func TestResolveUsesCacheWhenTrusted(t *testing.T) {
	cache := newFakeCache()
	cache.Set("github.com/spf13/cobra", "v1.8.0", CacheEntry{
		VCSURL: "https://github.com/spf13/cobra",
		Commit: "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		Ref:    "refs/tags/v1.8.0",
	})
	refs := &fakeRefs{commits: map[string]string{
		"https://github.com/spf13/cobra|refs/tags/v1.8.0": "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
	}}
	ov := overrides.Open(t.TempDir(), nil)
	deriver := vanity.New(ov, fakeVanityCache{}, noProber{}, nil)
	r := New(cache, deriver, refs, fakePseudo{}, nil, nil, nil)

	rec, err := r.Resolve(context.Background(), "github.com/spf13/cobra", "v1.8.0")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Commit != "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb" {
		t.Errorf("got %+v", rec)
	}
}
