package cachestore

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLsRemoteCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := Open(dir, nil)

	if _, _, found := c.LsRemote.Get("https://github.com/foo/bar", "refs/tags/v1.0.0"); found {
		t.Fatal("expected no entry before Set")
	}

	c.LsRemote.SetHash("https://github.com/foo/bar", "refs/tags/v1.0.0", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	hash, null, found := c.LsRemote.Get("https://github.com/foo/bar", "refs/tags/v1.0.0")
	if !found || null || hash != "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" {
		t.Fatalf("got (%q, %v, %v)", hash, null, found)
	}

	c.Save()
	reopened := Open(dir, nil)
	hash2, null2, found2 := reopened.LsRemote.Get("https://github.com/foo/bar", "refs/tags/v1.0.0")
	if !found2 || null2 || hash2 != hash {
		t.Fatalf("reopened cache mismatch: (%q, %v, %v)", hash2, null2, found2)
	}
}

func TestLsRemoteCacheCachesNull(t *testing.T) {
	dir := t.TempDir()
	c := Open(dir, nil)
	c.LsRemote.SetNull("https://github.com/nobody/nothing", "refs/tags/v9.9.9")
	_, null, found := c.LsRemote.Get("https://github.com/nobody/nothing", "refs/tags/v9.9.9")
	if !found || !null {
		t.Fatalf("expected cached null, got found=%v null=%v", found, null)
	}
}

func TestSaveOnlyWritesWhenDirty(t *testing.T) {
	dir := t.TempDir()
	c := Open(dir, nil)
	c.Save()
	if fileExists(filepath.Join(dir, "ls-remote.json")) {
		t.Fatal("expected no file written when cache untouched")
	}
}

func TestMetadataCachePrune(t *testing.T) {
	dir := t.TempDir()
	c := Open(dir, nil)
	c.Metadata.Set("good.example/mod", "v1.0.0", MetadataEntry{VCSURL: "https://good.example/mod", Commit: fortyHex('a')})
	c.Metadata.Set("bad.example/mod", "v1.0.0", MetadataEntry{VCSURL: "https://bad.example/mod", Commit: "short"})

	removed := c.Metadata.Prune(func(module, version string, entry MetadataEntry) bool {
		return len(entry.Commit) == 40
	})
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, ok := c.Metadata.Get("bad.example/mod", "v1.0.0"); ok {
		t.Error("expected bad entry to be pruned")
	}
	if _, ok := c.Metadata.Get("good.example/mod", "v1.0.0"); !ok {
		t.Error("expected good entry to survive prune")
	}
}

func TestVerificationEntryFresh(t *testing.T) {
	now := time.Now()
	fresh := VerificationEntry{Verified: true, LastChecked: now.Add(-time.Hour)}
	if !fresh.Fresh(now, 24*time.Hour) {
		t.Error("expected fresh entry")
	}
	stale := VerificationEntry{Verified: true, LastChecked: now.Add(-48 * time.Hour)}
	if stale.Fresh(now, 24*time.Hour) {
		t.Error("expected stale entry")
	}
}

func fortyHex(c byte) string {
	b := make([]byte, 40)
	for i := range b {
		b[i] = c
	}
	return string(b)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
