package vanity

import (
	"context"
	"testing"

	"github.com/go-bitbake/modvcs/internal/overrides"
)

type fakeCache struct {
	data map[string]*string
}

func newFakeCache() *fakeCache { return &fakeCache{data: make(map[string]*string)} }

func (f *fakeCache) Get(modulePath string) (string, bool, bool) {
	v, ok := f.data[modulePath]
	if !ok {
		return "", false, false
	}
	if v == nil {
		return "", true, true
	}
	return *v, false, true
}

func (f *fakeCache) SetURL(modulePath, url string) { v := url; f.data[modulePath] = &v }
func (f *fakeCache) SetNull(modulePath string)      { f.data[modulePath] = nil }

type fakeProber struct {
	result *Candidate
	err    error
}

func (f *fakeProber) Probe(ctx context.Context, modulePath string) (*Candidate, error) {
	return f.result, f.err
}

func TestDeriveKnownHost(t *testing.T) {
	ov := overrides.Open(t.TempDir(), nil)
	d := New(ov, newFakeCache(), &fakeProber{}, nil)
	got := d.Derive(context.Background(), "github.com/spf13/cobra", "v1.8.0")
	if len(got) != 1 || got[0].URL != "https://github.com/spf13/cobra" {
		t.Fatalf("got %+v", got)
	}
}

func TestDeriveGolangX(t *testing.T) {
	ov := overrides.Open(t.TempDir(), nil)
	d := New(ov, newFakeCache(), &fakeProber{}, nil)
	got := d.Derive(context.Background(), "golang.org/x/tools", "v0.0.0-20200815063812-42c35b437635")
	if len(got) != 1 || got[0].URL != "https://go.googlesource.com/tools" {
		t.Fatalf("got %+v", got)
	}
}

func TestDeriveVanityProbe(t *testing.T) {
	ov := overrides.Open(t.TempDir(), nil)
	cache := newFakeCache()
	prober := &fakeProber{result: &Candidate{URL: "https://github.com/uber-go/zap"}}
	d := New(ov, cache, prober, nil)

	got := d.Derive(context.Background(), "go.uber.org/zap", "v1.26.0")
	if len(got) != 1 || got[0].URL != "https://github.com/uber-go/zap" {
		t.Fatalf("got %+v", got)
	}
	if url, null, found := cache.Get("go.uber.org/zap"); !found || null || url != "https://github.com/uber-go/zap" {
		t.Errorf("expected positive cache entry, got (%q, %v, %v)", url, null, found)
	}
}

func TestDeriveOverridesComeFirst(t *testing.T) {
	dir := t.TempDir()
	ov := overrides.Open(dir, nil)
	ov.SetRepo("github.com/spf13/cobra", "https://example.com/pinned")
	d := New(ov, newFakeCache(), &fakeProber{}, nil)

	got := d.Derive(context.Background(), "github.com/spf13/cobra", "v1.8.0")
	if len(got) != 2 || got[0].URL != "https://example.com/pinned" {
		t.Fatalf("got %+v", got)
	}
}

func TestChooseGoImportLongestPrefix(t *testing.T) {
	imports := []goImport{
		{Prefix: "example.com/foo", VCS: "git", URL: "https://github.com/a/foo"},
		{Prefix: "example.com/foo/bar", VCS: "git", URL: "https://github.com/a/bar"},
	}
	got := chooseGoImport("example.com/foo/bar/baz", imports)
	if got == nil || got.URL != "https://github.com/a/bar" {
		t.Fatalf("got %+v", got)
	}
	if got.Subdir != "baz" {
		t.Errorf("subdir = %q", got.Subdir)
	}
}

func TestRecalculateSubdir(t *testing.T) {
	got := RecalculateSubdir("go.etcd.io/etcd/server/v3", "https://github.com/k3s-io/etcd")
	if got != "server" {
		t.Errorf("got %q, want %q", got, "server")
	}
}

func TestGopkgCandidatesDeterministicOrder(t *testing.T) {
	a := gopkgCandidates("gopkg.in/yaml.v3")
	b := gopkgCandidates("gopkg.in/yaml.v3")
	if len(a) == 0 || len(a) != len(b) {
		t.Fatal("expected stable non-empty candidate list")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("candidate order not deterministic: %+v vs %+v", a, b)
		}
	}
}
