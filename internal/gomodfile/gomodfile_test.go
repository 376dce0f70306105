package gomodfile

import (
	"strings"
	"testing"
)

const sampleManifest = `module example.com/app

go 1.22

require (
	github.com/spf13/cobra v1.8.0
	go.etcd.io/etcd/server/v3 v3.5.10
)

replace go.etcd.io/etcd/server/v3 => github.com/k3s-io/etcd/server/v3 v3.5.10-k3s1
`

func TestParseManifestContentReplace(t *testing.T) {
	m, err := ParseManifestContent("go.mod", []byte(sampleManifest))
	if err != nil {
		t.Fatal(err)
	}
	if m.ModulePath != "example.com/app" {
		t.Errorf("ModulePath = %q", m.ModulePath)
	}
	r, ok := m.Resolve("go.etcd.io/etcd/server/v3", "v3.5.10")
	if !ok {
		t.Fatal("expected replace directive to resolve")
	}
	if r.NewPath != "github.com/k3s-io/etcd/server/v3" || r.NewVersion != "v3.5.10-k3s1" {
		t.Errorf("got %+v", r)
	}
}

func TestResolveNoMatch(t *testing.T) {
	m, err := ParseManifestContent("go.mod", []byte(sampleManifest))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Resolve("github.com/spf13/cobra", "v1.8.0"); ok {
		t.Fatal("expected no replace directive for cobra")
	}
}

func TestParseChecksumPartitionsModuleFileOnly(t *testing.T) {
	data := strings.Join([]string{
		"github.com/spf13/cobra v1.8.0 h1:abc=",
		"github.com/spf13/cobra v1.8.0/go.mod h1:def=",
		"golang.org/x/mod v0.15.0/go.mod h1:ghi=",
	}, "\n")

	withSource, moduleFileOnly, err := ParseChecksum(strings.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if len(withSource) != 1 || withSource[0].Module != "github.com/spf13/cobra" {
		t.Errorf("withSource = %+v", withSource)
	}
	if len(moduleFileOnly) != 2 {
		t.Errorf("moduleFileOnly = %+v", moduleFileOnly)
	}
}

func TestParseChecksumUnescapesModulePath(t *testing.T) {
	data := "github.com/!microsoft/go-winio v0.6.1 h1:abc=\n"

	withSource, _, err := ParseChecksum(strings.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if len(withSource) != 1 || withSource[0].Module != "github.com/Microsoft/go-winio" {
		t.Errorf("withSource = %+v, want unescaped module path", withSource)
	}
}

func TestEscapeUnescapePathRoundTrip(t *testing.T) {
	escaped, err := EscapePath("github.com/Microsoft/go-winio")
	if err != nil {
		t.Fatal(err)
	}
	if escaped != "github.com/!microsoft/go-winio" {
		t.Errorf("escaped = %q", escaped)
	}
	unescaped, err := UnescapePath(escaped)
	if err != nil {
		t.Fatal(err)
	}
	if unescaped != "github.com/Microsoft/go-winio" {
		t.Errorf("unescaped = %q", unescaped)
	}
}

func TestNormalizeSubdir(t *testing.T) {
	cases := map[string]string{
		"server/v3": "server",
		"server":    "server",
		"":          "",
		"a/b/v2":    "a/b",
	}
	for in, want := range cases {
		if got := NormalizeSubdir(in); got != want {
			t.Errorf("NormalizeSubdir(%q) = %q, want %q", in, got, want)
		}
	}
}
