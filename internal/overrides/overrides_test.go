package overrides

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCandidatesPriorityOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, manualFileName), "example.com/foo: https://manual-wild.example\nexample.com/foo@v1.0.0: https://manual-specific.example\n")
	writeFile(t, filepath.Join(dir, dynamicFileName), `{"example.com/foo": "https://dynamic-wild.example", "example.com/foo@v1.0.0": "https://dynamic-specific.example"}`)

	s := Open(dir, nil)
	got := s.Candidates("example.com/foo", "v1.0.0")
	want := []string{
		"https://dynamic-specific.example",
		"https://dynamic-wild.example",
		"https://manual-specific.example",
		"https://manual-wild.example",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSetRepoAndClearRepo(t *testing.T) {
	dir := t.TempDir()
	s := Open(dir, nil)
	s.SetRepo("example.com/foo", "https://pinned.example")
	if got := s.Candidates("example.com/foo", ""); len(got) != 1 || got[0] != "https://pinned.example" {
		t.Fatalf("got %v", got)
	}
	s.ClearRepo("example.com/foo")
	if got := s.Candidates("example.com/foo", ""); len(got) != 0 {
		t.Fatalf("expected no candidates after clear, got %v", got)
	}
}

func TestSaveOnlyWritesWhenDirty(t *testing.T) {
	dir := t.TempDir()
	s := Open(dir, nil)
	s.Save()
	if _, err := os.Stat(filepath.Join(dir, dynamicFileName)); !os.IsNotExist(err) {
		t.Fatal("expected no dynamic file written when nothing changed")
	}

	s.SetRepo("example.com/foo", "https://pinned.example")
	s.Save()
	if _, err := os.Stat(filepath.Join(dir, dynamicFileName)); err != nil {
		t.Fatalf("expected dynamic file to be written: %v", err)
	}
}

func TestCorruptFilesStartEmpty(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, dynamicFileName), "{not valid json")
	s := Open(dir, nil)
	if got := s.Candidates("anything", ""); len(got) != 0 {
		t.Fatalf("expected empty store, got %v", got)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
