package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/arcfs/internal/archive"
	"github.com/bamsammich/arcfs/internal/recovery"
	"github.com/bamsammich/arcfs/internal/vfs"
)

func TestActionFlag(t *testing.T) {
	a := recovery.Abort
	f := &actionFlag{a: &a, allowed: []recovery.Action{recovery.Skip, recovery.Abort}}

	require.NoError(t, f.Set("Skip"))
	assert.Equal(t, recovery.Skip, a)
	assert.Equal(t, "skip", f.String())

	assert.ErrorContains(t, f.Set("overwrite"), "not one of skip, abort")
	assert.Error(t, f.Set("bogus"))
	assert.Equal(t, recovery.Skip, a, "failed Set leaves the value")
}

func TestSetup_ConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
[defaults]
on_conflict = "duplicate"
on_error = "skip"
retries = 7
`), 0o644))

	o := &options{}
	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	o.register(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--config", cfgPath, "--on-error", "abort", "-q"}))

	a, err := o.setup(cmd)
	require.NoError(t, err)
	defer a.closeLog()

	assert.Equal(t, recovery.Duplicate, o.strategy.OnConflict)
	assert.Equal(t, recovery.Abort, o.strategy.OnError, "command line wins over config")
	assert.Equal(t, 7, o.strategy.Retries)
	_, ok := a.catalog.Resolve("x.tar.zst")
	assert.True(t, ok)
}

func TestSetup_BadBlockSize(t *testing.T) {
	o := &options{}
	cmd := &cobra.Command{Use: "test"}
	o.register(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--config", filepath.Join(t.TempDir(), "none.toml"), "--block-size", "huge"}))
	_, err := o.setup(cmd)
	assert.ErrorContains(t, err, "block-size")
}

func TestFilterFlags(t *testing.T) {
	rules := filepath.Join(t.TempDir(), "rules")
	require.NoError(t, os.WriteFile(rules, []byte("# keep sources\n+ *.go\n- *.tmp\n"), 0o644))

	o := &options{}
	cmd := &cobra.Command{Use: "test"}
	o.register(cmd)
	require.NoError(t, cmd.ParseFlags([]string{
		"--include", "keep.log",
		"--exclude", "*.log",
		"--filter", rules,
		"--max-size", "1K",
	}))

	chain, err := o.filters()
	require.NoError(t, err)
	require.NotNil(t, chain)

	assert.True(t, chain.Match("keep.log", false, 10), "earlier include wins")
	assert.False(t, chain.Match("debug.log", false, 10))
	assert.False(t, chain.Match("x.tmp", false, 10))
	assert.True(t, chain.Match("main.go", false, 10))
	assert.False(t, chain.Match("main.go", false, 4096), "over --max-size")
}

func TestFilterFlags_NoneGivesNil(t *testing.T) {
	o := &options{}
	cmd := &cobra.Command{Use: "test"}
	o.register(cmd)
	require.NoError(t, cmd.ParseFlags(nil))

	chain, err := o.filters()
	require.NoError(t, err)
	assert.Nil(t, chain)
}

func TestFilterFlags_BadPattern(t *testing.T) {
	o := &options{}
	cmd := &cobra.Command{Use: "test"}
	o.register(cmd)
	assert.Error(t, cmd.ParseFlags([]string{"--exclude", "[unclosed"}))
}

func TestSelections(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a"), 0o755))
	for _, f := range []string{"a/1", "a/2", "3"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, f), nil, 0o644))
	}
	a := &app{catalog: archive.DefaultCatalog()}

	sels, err := a.selections([]string{
		filepath.Join(root, "a", "1"),
		filepath.Join(root, "a", "2") + "/",
		filepath.Join(root, "3"),
	})
	require.NoError(t, err)
	require.Len(t, sels, 2)
	assert.Equal(t, []string{"1", "2"}, sels[0].names)
	assert.Equal(t, []string{"3"}, sels[1].names)
	assert.Equal(t, vfs.RegularDir{Path: filepath.Join(root, "a")}, sels[0].dir)

	_, err = a.selections([]string{filepath.Join(root, "missing", "x")})
	assert.Error(t, err)
}

func TestTarget_ManySourcesMeansDirectory(t *testing.T) {
	root := t.TempDir()
	a := &app{catalog: archive.DefaultCatalog()}

	one, err := a.target(filepath.Join(root, "new"), 1)
	require.NoError(t, err)
	assert.False(t, one.IsDir)

	many, err := a.target(filepath.Join(root, "new"), 2)
	require.NoError(t, err)
	assert.True(t, many.IsDir)
	assert.Equal(t, "new", many.Rest)
}

func TestList(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "f.txt"), []byte("hello"), 0o600))
	require.NoError(t, os.Symlink("f.txt", filepath.Join(root, "ln")))

	var out bytes.Buffer
	require.NoError(t, list(&out, vfs.RegularDir{Path: root}, false))
	assert.Equal(t, []string{"f.txt", "ln -> f.txt", "sub/"}, strings.Split(strings.TrimSpace(out.String()), "\n"))

	out.Reset()
	require.NoError(t, list(&out, vfs.RegularDir{Path: root}, true))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "-"))
	assert.Contains(t, lines[0], "-rw-------")
	assert.Contains(t, lines[0], "5 B")
	assert.True(t, strings.HasPrefix(lines[2], "d"))
}
