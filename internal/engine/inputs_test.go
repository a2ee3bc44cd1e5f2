package engine

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadInputsExpandsListFile(t *testing.T) {
	dir := t.TempDir()
	listPath := filepath.Join(dir, "files.list")
	content := "a.mseed\n# a comment\n\nb.mseed\n"
	if err := os.WriteFile(listPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write list file: %v", err)
	}

	got, err := LoadInputs([]string{"direct.mseed", "@" + listPath})
	if err != nil {
		t.Fatalf("LoadInputs: %v", err)
	}
	want := []string{"direct.mseed", "a.mseed", "b.mseed"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLoadInputsMissingListFile(t *testing.T) {
	if _, err := LoadInputs([]string{"@/no/such/file"}); err == nil {
		t.Error("expected an error for a missing list file")
	}
}

func TestCanonicalizePathKeepsStdinToken(t *testing.T) {
	got, err := CanonicalizePath("-", false)
	if err != nil {
		t.Fatalf("CanonicalizePath: %v", err)
	}
	if got != "-" {
		t.Errorf("got %q, want \"-\"", got)
	}
}

func TestCanonicalizePathPassesThroughURLs(t *testing.T) {
	got, err := CanonicalizePath("https://example.org/data.mseed", false)
	if err != nil {
		t.Fatalf("CanonicalizePath: %v", err)
	}
	if got != "https://example.org/data.mseed" {
		t.Errorf("got %q, want the URL unchanged", got)
	}
}

func TestCanonicalizePathRespectsKeepPath(t *testing.T) {
	got, err := CanonicalizePath("relative/path.mseed", true)
	if err != nil {
		t.Fatalf("CanonicalizePath: %v", err)
	}
	if got != "relative/path.mseed" {
		t.Errorf("got %q, want unchanged relative path", got)
	}
}

func TestCanonicalizePathResolvesAbsolute(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.mseed")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	got, err := CanonicalizePath(path, false)
	if err != nil {
		t.Fatalf("CanonicalizePath: %v", err)
	}
	if !filepath.IsAbs(got) {
		t.Errorf("got %q, want an absolute path", got)
	}
}
