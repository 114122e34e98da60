package archive

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_Defaults(t *testing.T) {
	c := DefaultCatalog()
	tests := []struct {
		name  string
		codec string
		ok    bool
	}{
		{"a.zip", "zip", true},
		{"/some/dir/A.ZIP", "zip", true},
		{"lib.jar", "zip", true},
		{"x.tar", "tar", true},
		{"x.tar.gz", "tar.gz", true},
		{"x.TGZ", "tar.gz", true},
		{"x.tar.zst", "tar.zst", true},
		{"notes.txt", "", false},
		{"zip", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec, ok := c.Resolve(tt.name)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.codec, codec.Name())
			}
		})
	}
}

func TestCatalog_FirstMatchWins(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Register("*.bundle", Tar()))
	require.NoError(t, c.Register("*.BUNDLE", Zip()))

	codec, ok := c.Resolve("x.bundle")
	require.True(t, ok)
	assert.Equal(t, "tar", codec.Name())
}

func TestCatalog_InvalidPattern(t *testing.T) {
	assert.Error(t, NewCatalog().Register("[", Zip()))
}

func TestCatalog_Nil(t *testing.T) {
	var c *Catalog
	_, ok := c.Resolve("a.zip")
	assert.False(t, ok)
}

func TestLookup(t *testing.T) {
	for _, name := range []string{"zip", "tar", "tar.gz", "tgz", "tar.zst"} {
		c, err := Lookup(name)
		require.NoError(t, err, name)
		assert.NotNil(t, c)
	}
	_, err := Lookup("rar")
	assert.Error(t, err)
}

func TestLoadPlugin_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.so")
	_, err := LoadPlugin(path)
	var le *PluginLoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, LoadFailed, le.Reason)
	assert.False(t, le.Retryable())

	_, err2 := LoadPlugin(path)
	assert.Same(t, err, err2)
}

func TestCodecFromSymbol(t *testing.T) {
	c := Zip()
	got, err := codecFromSymbol("p", &c)
	require.NoError(t, err)
	assert.Equal(t, "zip", got.Name())

	got, err = codecFromSymbol("p", func() Codec { return Tar() })
	require.NoError(t, err)
	assert.Equal(t, "tar", got.Name())

	_, err = codecFromSymbol("p", 42)
	var le *PluginLoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, APIIncomplete, le.Reason)
}
