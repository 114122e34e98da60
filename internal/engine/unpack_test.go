package engine

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/arcfs/internal/vfs"
)

func TestUnpackToTemp(t *testing.T) {
	root := t.TempDir()
	arc := filepath.Join(root, "a.zip")
	writeZip(t, arc, map[string]string{"doc/readme.txt": "read me", "top.txt": "top"})
	eng := New(Config{})

	t.Run("member of a subdirectory", func(t *testing.T) {
		var got string
		p, err := eng.UnpackToTemp(nil, resolve(t, filepath.Join(arc, "doc")).Dir, "readme.txt",
			func(path string) { got = path })
		require.NoError(t, err)
		t.Cleanup(func() { _ = os.RemoveAll(filepath.Dir(p)) })

		assert.Equal(t, p, got, "callback receives the unpacked path")
		assert.Equal(t, "readme.txt", filepath.Base(p))
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.Equal(t, "read me", string(data))
	})

	t.Run("directory", func(t *testing.T) {
		called := false
		_, err := eng.UnpackToTemp(nil, resolve(t, arc).Dir, "doc", func(string) { called = true })
		require.ErrorIs(t, err, syscall.EISDIR)
		assert.False(t, called)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := eng.UnpackToTemp(nil, resolve(t, arc).Dir, "nope.txt", nil)
		require.ErrorIs(t, err, syscall.ENOENT)
	})

	t.Run("local file", func(t *testing.T) {
		writeTree(t, root, map[string]string{"plain.txt": "plain"})
		p, err := eng.UnpackToTemp(nil, vfs.RegularDir{Path: root}, "plain.txt", nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = os.RemoveAll(filepath.Dir(p)) })
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.Equal(t, "plain", string(data))
	})
}
