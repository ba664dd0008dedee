// Package fs collects the files a CLI invocation should ingest.
package fs

import (
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// Walker expands files and directories into an ordered list of files,
// applying doublestar include/exclude globs to directory contents.
type Walker struct {
	includes []string
	excludes []string
	accept   func(path string) bool
}

func NewWalker(includes, excludes []string) *Walker {
	if len(includes) == 0 {
		includes = []string{"**/*"}
	}
	return &Walker{
		includes: includes,
		excludes: excludes,
	}
}

// WithFilter adds a predicate every walked file must satisfy, such as an
// extension allow-list. Explicitly named files bypass it.
func (w *Walker) WithFilter(accept func(path string) bool) *Walker {
	w.accept = accept
	return w
}

type FileInfo struct {
	Path string
	Size int64
}

// Collect resolves every argument. Files are taken as given; directories
// are walked. Duplicates are dropped and the result is sorted by path.
func (w *Walker) Collect(args []string) ([]FileInfo, error) {
	seen := make(map[string]struct{})
	var files []FileInfo

	add := func(f FileInfo) {
		if _, dup := seen[f.Path]; dup {
			return
		}
		seen[f.Path] = struct{}{}
		files = append(files, f)
	}

	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", arg, err)
		}

		if !info.IsDir() {
			add(FileInfo{Path: abs, Size: info.Size()})
			continue
		}

		walked, err := w.Walk(abs)
		if err != nil {
			return nil, err
		}
		for _, f := range walked {
			add(f)
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Walk returns the regular files under root that pass the globs and filter.
func (w *Walker) Walk(root string) ([]FileInfo, error) {
	var files []FileInfo

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	err = filepath.WalkDir(root, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if relPath != "." && w.shouldExclude(relPath+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		if !w.shouldInclude(relPath) || w.shouldExclude(relPath) {
			return nil
		}
		if w.accept != nil && !w.accept(path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, FileInfo{Path: path, Size: info.Size()})
		return nil
	})

	return files, err
}

func (w *Walker) shouldInclude(path string) bool {
	for _, pattern := range w.includes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

func (w *Walker) shouldExclude(path string) bool {
	for _, pattern := range w.excludes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}
