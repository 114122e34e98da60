package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/arcfs/internal/archive"
	"github.com/bamsammich/arcfs/internal/config"
)

func writeConfig(t *testing.T, content string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	configDir := filepath.Join(dir, "arcfs")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(content), 0o644))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Nil(t, cfg.Defaults.OnConflict)
	assert.Nil(t, cfg.Defaults.Retries)
	assert.Empty(t, cfg.Archives)
	assert.Empty(t, cfg.Plugins)
}

func TestLoad_FullConfig(t *testing.T) {
	writeConfig(t, `
[defaults]
on_conflict = "overwrite"
on_error = "skip"
retries = 5
block_size = "64KiB"
bwlimit = "100MB"

[[archive]]
codec = "zip"
patterns = ["*.cbz", "*.epub"]

[[plugin]]
path = "/usr/lib/arcfs/rar.so"
patterns = ["*.rar"]
`)

	cfg, err := config.Load()
	require.NoError(t, err)

	require.NotNil(t, cfg.Defaults.OnConflict)
	assert.Equal(t, "overwrite", *cfg.Defaults.OnConflict)
	require.NotNil(t, cfg.Defaults.OnError)
	assert.Equal(t, "skip", *cfg.Defaults.OnError)
	require.NotNil(t, cfg.Defaults.Retries)
	assert.Equal(t, 5, *cfg.Defaults.Retries)

	bs, err := cfg.Defaults.BlockSizeBytes()
	require.NoError(t, err)
	assert.Equal(t, 64*1024, bs)
	bw, err := cfg.Defaults.BWLimitBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(100_000_000), bw)

	require.Len(t, cfg.Archives, 1)
	assert.Equal(t, "zip", cfg.Archives[0].Codec)
	assert.Equal(t, []string{"*.cbz", "*.epub"}, cfg.Archives[0].Patterns)
	require.Len(t, cfg.Plugins, 1)
	assert.Equal(t, "/usr/lib/arcfs/rar.so", cfg.Plugins[0].Path)
}

func TestLoad_PartialConfig(t *testing.T) {
	writeConfig(t, `
[defaults]
retries = 1
`)

	cfg, err := config.Load()
	require.NoError(t, err)

	// Unset fields should remain nil.
	assert.Nil(t, cfg.Defaults.OnConflict)
	assert.Nil(t, cfg.Defaults.BlockSize)
	require.NotNil(t, cfg.Defaults.Retries)

	bs, err := cfg.Defaults.BlockSizeBytes()
	require.NoError(t, err)
	assert.Zero(t, bs)
}

func TestLoad_InvalidTOML(t *testing.T) {
	writeConfig(t, "invalid [[[")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestDefaults_BadSizes(t *testing.T) {
	bad := "lots"
	zero := "0"
	assert.Error(t, func() error { _, err := config.DefaultsConfig{BlockSize: &bad}.BlockSizeBytes(); return err }())
	assert.Error(t, func() error { _, err := config.DefaultsConfig{BlockSize: &zero}.BlockSizeBytes(); return err }())
	assert.Error(t, func() error { _, err := config.DefaultsConfig{BWLimit: &bad}.BWLimitBytes(); return err }())
}

func TestPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	assert.Equal(t, "/custom/config/arcfs/config.toml", config.Path())
}

func TestCatalog(t *testing.T) {
	cfg := config.Config{
		Archives: []config.ArchiveRule{
			{Codec: "zip", Patterns: []string{"*.cbz"}},
			{Codec: "tar", Patterns: []string{"*.zip"}},
		},
	}
	cat, err := config.Catalog(cfg)
	require.NoError(t, err)

	c, ok := cat.Resolve("/books/comic.CBZ")
	require.True(t, ok)
	assert.Equal(t, "zip", c.Name())

	// Configured rules come before the built-in ones.
	c, ok = cat.Resolve("odd.zip")
	require.True(t, ok)
	assert.Equal(t, "tar", c.Name())

	c, ok = cat.Resolve("x.tar.gz")
	require.True(t, ok)
	assert.Equal(t, archive.TarGzip().Name(), c.Name())

	_, ok = cat.Resolve("plain.txt")
	assert.False(t, ok)
}

func TestCatalog_BadRulesReported(t *testing.T) {
	cfg := config.Config{
		Archives: []config.ArchiveRule{{Codec: "rar", Patterns: []string{"*.rar"}}},
		Plugins:  []config.PluginRule{{Path: filepath.Join(t.TempDir(), "missing.so"), Patterns: []string{"*.7z"}}},
	}
	cat, err := config.Catalog(cfg)
	require.Error(t, err)
	require.NotNil(t, cat)

	var perr *archive.PluginLoadError
	assert.ErrorAs(t, err, &perr)
	_, ok := cat.Resolve("a.zip")
	assert.True(t, ok, "defaults still registered")
	_, ok = cat.Resolve("a.7z")
	assert.False(t, ok)
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	require.NoError(t, config.Save(path, config.Example()))

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.Example(), cfg)

	cat, err := config.Catalog(cfg)
	require.NoError(t, err)
	_, ok := cat.Resolve("lib.jar")
	assert.True(t, ok)
}
