package vfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/arcfs/internal/archive"
)

func TestResolve_LocalCaseCanonicalization(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"Docs/Notes.txt": "n"})

	res, err := Resolve(filepath.Join(root, "docs"), archive.DefaultCatalog())
	require.NoError(t, err)
	assert.Equal(t, RegularDir{Path: filepath.Join(root, "Docs")}, res.Dir)
	assert.Empty(t, res.Rest)

	res, err = Resolve(filepath.Join(root, "DOCS", "notes.TXT"), archive.DefaultCatalog())
	require.NoError(t, err)
	assert.Equal(t, RegularDir{Path: filepath.Join(root, "Docs")}, res.Dir)
	assert.Equal(t, "Notes.txt", res.Rest)
}

func TestResolve_ExactMatchWins(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "ABC"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(root, "abc"), 0o755))

	res, err := Resolve(filepath.Join(root, "abc"), nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "abc"), res.Dir.Subpath())
}

func TestResolve_MissingComponents(t *testing.T) {
	root := t.TempDir()
	res, err := Resolve(filepath.Join(root, "new", "deeper", ".", "x"), nil)
	require.NoError(t, err)
	assert.Equal(t, RegularDir{Path: root}, res.Dir)
	assert.Equal(t, "new/deeper/x", res.Rest)
}

func TestResolve_DotDot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "a"), 0o755))
	res, err := Resolve(filepath.Join(root, "a")+"/../a/./", nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a"), res.Dir.Subpath())
}

func TestResolve_IntoArchive(t *testing.T) {
	root := t.TempDir()
	zipPath := filepath.Join(root, "Bundle.zip")
	makeArchive(t, archive.Zip(), zipPath, file("src/Main.go", "package main"), file("README", "r"))

	res, err := Resolve(filepath.Join(root, "bundle.ZIP", "SRC"), archive.DefaultCatalog())
	require.NoError(t, err)
	a, ok := res.Dir.(Archive)
	require.True(t, ok, "got %T", res.Dir)
	assert.Equal(t, zipPath, a.Path)
	assert.Equal(t, "src", a.Sub)
	assert.Empty(t, res.Rest)

	res, err = Resolve(filepath.Join(root, "Bundle.zip", "src", "main.go"), archive.DefaultCatalog())
	require.NoError(t, err)
	assert.Equal(t, "src", res.Dir.Subpath())
	assert.Equal(t, "Main.go", res.Rest)

	res, err = Resolve(filepath.Join(root, "Bundle.zip", "nope", "x"), archive.DefaultCatalog())
	require.NoError(t, err)
	assert.Empty(t, res.Dir.Subpath())
	assert.Equal(t, "nope/x", res.Rest)
}

func TestResolve_NestedArchive(t *testing.T) {
	root := t.TempDir()
	inner := encodeArchive(t, archive.Tar(), file("dir/file.txt", "hello"))
	outer := filepath.Join(root, "outer.zip")
	makeArchive(t, archive.Zip(), outer, member{name: "inner.tar", data: string(inner)})

	res, err := Resolve(filepath.Join(root, "outer.zip", "inner.tar", "dir"), archive.DefaultCatalog())
	require.NoError(t, err)
	sub, ok := res.Dir.(SubArchive)
	require.True(t, ok, "got %T", res.Dir)
	assert.Equal(t, "inner.tar", sub.Inner)
	assert.Equal(t, "dir", sub.Sub)
	assert.Equal(t, "tar", sub.Codec.Name())
	parent, ok := sub.Parent.(Archive)
	require.True(t, ok)
	assert.Equal(t, outer, parent.Path)
	assert.Empty(t, parent.Sub)
}

func TestResolve_NewArchive(t *testing.T) {
	root := t.TempDir()
	res, err := Resolve(filepath.Join(root, "fresh.zip")+"/", archive.DefaultCatalog())
	require.NoError(t, err)
	a, ok := res.Dir.(Archive)
	require.True(t, ok, "got %T", res.Dir)
	assert.Equal(t, filepath.Join(root, "fresh.zip"), a.Path)
	assert.True(t, res.IsDir)

	// Without a trailing slash the name is only a destination file name.
	res, err = Resolve(filepath.Join(root, "fresh.zip"), archive.DefaultCatalog())
	require.NoError(t, err)
	assert.Equal(t, RegularDir{Path: root}, res.Dir)
	assert.Equal(t, "fresh.zip", res.Rest)
	assert.False(t, res.IsDir)
}

func TestResolve_CorruptArchiveStops(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "bad.zip"), []byte("not a zip"), 0o644))
	res, err := Resolve(filepath.Join(root, "bad.zip", "x"), archive.DefaultCatalog())
	require.NoError(t, err)
	assert.Equal(t, RegularDir{Path: root}, res.Dir)
	assert.Equal(t, "bad.zip/x", res.Rest)
}

func TestResolve_Tilde(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	res, err := Resolve("~", nil)
	require.NoError(t, err)
	assert.Equal(t, home, res.Dir.Subpath())
}
