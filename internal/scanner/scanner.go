// Package scanner enumerates source files for a collection.
package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultMask is the glob applied when a collection does not set one.
const DefaultMask = "**/*.md"

// Scan walks rootPath and returns relative paths of regular files matching
// the glob mask. Paths are slash-separated and sorted ascending so indexing
// runs are deterministic. Only Markdown files are indexed regardless of mask.
func Scan(rootPath, mask string) ([]string, error) {
	if mask == "" {
		mask = DefaultMask
	}
	if !doublestar.ValidatePattern(mask) {
		return nil, fmt.Errorf("invalid glob mask %q", mask)
	}

	var out []string
	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, not fatal.
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "node_modules" {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(rootPath, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if !strings.HasSuffix(rel, ".md") {
			return nil
		}
		if ok, _ := doublestar.Match(mask, rel); !ok {
			return nil
		}
		out = append(out, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", rootPath, err)
	}

	sort.Strings(out)
	return out, nil
}

// RootExists reports whether a collection root is present on disk.
func RootExists(rootPath string) bool {
	info, err := os.Stat(rootPath)
	return err == nil && info.IsDir()
}
