package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScanReturnsSortedRelativePaths(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "zebra.md", "z")
	writeFile(t, root, "notes/alpha.md", "a")
	writeFile(t, root, "notes/beta.md", "b")
	writeFile(t, root, "readme.txt", "ignored")

	got, err := Scan(root, "**/*.md")
	require.NoError(t, err)
	assert.Equal(t, []string{"notes/alpha.md", "notes/beta.md", "zebra.md"}, got)
}

func TestScanRespectsMask(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "top.md", "t")
	writeFile(t, root, "deep/nested.md", "n")

	got, err := Scan(root, "*.md")
	require.NoError(t, err)
	assert.Equal(t, []string{"top.md"}, got)
}

func TestScanDefaultMask(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/b/c.md", "c")

	got, err := Scan(root, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/b/c.md"}, got)
}

func TestScanSkipsNonMarkdownEvenWithWideMask(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "doc.md", "d")
	writeFile(t, root, "script.sh", "s")

	got, err := Scan(root, "**/*")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc.md"}, got)
}

func TestScanSkipsGitAndNodeModules(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".git/objects/x.md", "x")
	writeFile(t, root, "node_modules/pkg/readme.md", "r")
	writeFile(t, root, "real.md", "ok")

	got, err := Scan(root, "**/*.md")
	require.NoError(t, err)
	assert.Equal(t, []string{"real.md"}, got)
}

func TestScanInvalidMask(t *testing.T) {
	_, err := Scan(t.TempDir(), "[")
	assert.Error(t, err)
}

func TestRootExists(t *testing.T) {
	root := t.TempDir()
	assert.True(t, RootExists(root))
	assert.False(t, RootExists(filepath.Join(root, "missing")))

	file := filepath.Join(root, "f.md")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	assert.False(t, RootExists(file))
}
