package gitremote

import (
	"context"
	"testing"

	"github.com/go-bitbake/modvcs/internal/gitexec"
)

type fakeCache struct {
	hashes map[string]string
	nulls  map[string]bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{hashes: make(map[string]string), nulls: make(map[string]bool)}
}

func (f *fakeCache) Get(url, ref string) (string, bool, bool) {
	key := url + "|||" + ref
	if f.nulls[key] {
		return "", true, true
	}
	if h, ok := f.hashes[key]; ok {
		return h, false, true
	}
	return "", false, false
}

func (f *fakeCache) SetHash(url, ref, hash string) {
	f.hashes[url+"|||"+ref] = hash
}

func (f *fakeCache) SetNull(url, ref string) {
	f.nulls[url+"|||"+ref] = true
}

func TestLookupCacheHitPositive(t *testing.T) {
	cache := newFakeCache()
	cache.SetHash("https://github.com/spf13/cobra", "refs/tags/v1.8.0", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

	r := New(gitexec.New(nil), cache, t.TempDir(), 0, nil)
	hash, ok := r.Lookup(context.Background(), "https://github.com/spf13/cobra", "refs/tags/v1.8.0")
	if !ok || hash != "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" {
		t.Fatalf("got (%q, %v)", hash, ok)
	}
}

func TestLookupCacheHitNegative(t *testing.T) {
	cache := newFakeCache()
	cache.SetNull("https://github.com/nobody/nothing", "refs/tags/v1.0.0")

	r := New(gitexec.New(nil), cache, t.TempDir(), 0, nil)
	_, ok := r.Lookup(context.Background(), "https://github.com/nobody/nothing", "refs/tags/v1.0.0")
	if ok {
		t.Fatal("expected cached negative result to short-circuit")
	}
}
