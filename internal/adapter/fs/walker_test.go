package fs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTree(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, f := range files {
		path := filepath.Join(root, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("text"), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func names(root string, files []FileInfo) []string {
	var out []string
	for _, f := range files {
		rel, _ := filepath.Rel(root, f.Path)
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

func TestWalkerGlobs(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"a.txt",
		"docs/b.md",
		"docs/c.pdf",
		".git/config",
		"node_modules/pkg/readme.md",
	)

	w := NewWalker(nil, []string{"**/.git/**", "**/node_modules/**"}).
		WithFilter(func(path string) bool { return !strings.HasSuffix(path, ".pdf") })

	files, err := w.Collect([]string{root})
	if err != nil {
		t.Fatal(err)
	}

	got := strings.Join(names(root, files), ",")
	if got != "a.txt,docs/b.md" {
		t.Errorf("unexpected files %s", got)
	}
	for _, f := range files {
		if f.Size != 4 {
			t.Errorf("expected size 4 for %s, got %d", f.Path, f.Size)
		}
	}
}

func TestWalkerIncludes(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "a.txt", "b.md", "sub/c.md")

	files, err := NewWalker([]string{"**/*.md"}, nil).Walk(root)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(names(root, files), ","); got != "b.md,sub/c.md" {
		t.Errorf("unexpected files %s", got)
	}
}

func TestWalkerExplicitFilesAndDuplicates(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "scan.pdf", "notes.txt")

	w := NewWalker(nil, nil).WithFilter(func(path string) bool { return strings.HasSuffix(path, ".txt") })

	pdf := filepath.Join(root, "scan.pdf")
	files, err := w.Collect([]string{pdf, root, filepath.Join(root, "notes.txt")})
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(names(root, files), ","); got != "notes.txt,scan.pdf" {
		t.Errorf("unexpected files %s", got)
	}
}

func TestWalkerMissingPath(t *testing.T) {
	if _, err := NewWalker(nil, nil).Collect([]string{filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Error("expected error for missing path")
	}
}
