package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/arcfs/internal/cancel"
	"github.com/bamsammich/arcfs/internal/taskqueue"
	"github.com/bamsammich/arcfs/internal/vfs"
)

func TestTasks_RunThroughQueue(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"src/a.txt": "alpha", "src/d/b.txt": "bravo"})
	src := vfs.RegularDir{Path: filepath.Join(root, "src")}
	eng := New(Config{})
	q := taskqueue.New(nil)

	finished := make([]bool, 0, 4)
	state := func() *cancel.State {
		cs := cancel.New()
		cs.OnFinish(func(c bool) { finished = append(finished, c) })
		return cs
	}

	var unpacked string
	q.Add(eng.MkdirTask(resolve(t, filepath.Join(root, "out"))), state())
	q.Add(eng.CopyTask(src, []string{"a.txt", "d"}, resolve(t, filepath.Join(root, "out"))), state())
	q.Add(eng.UnpackTask(vfs.RegularDir{Path: filepath.Join(root, "out", "d")}, "b.txt",
		func(p string) { unpacked = p }), state())
	q.Add(eng.DeleteTask(src, []string{"a.txt", "d"}), state())
	q.Wait()

	assert.Equal(t, []bool{false, false, false, false}, finished)
	assert.Equal(t, map[string]string{
		"a.txt":   "alpha",
		"d/":      "",
		"d/b.txt": "bravo",
	}, readTree(t, filepath.Join(root, "out")))
	assert.Empty(t, readTree(t, filepath.Join(root, "src")))

	require.NotEmpty(t, unpacked)
	t.Cleanup(func() { _ = os.RemoveAll(filepath.Dir(unpacked)) })
	data, err := os.ReadFile(unpacked)
	require.NoError(t, err)
	assert.Equal(t, "bravo", string(data))
}

func TestTasks_MoveTask(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"src/a.txt": "alpha"})
	eng := New(Config{})
	q := taskqueue.New(nil)

	q.Add(eng.MoveTask(vfs.RegularDir{Path: filepath.Join(root, "src")}, []string{"a.txt"},
		resolve(t, filepath.Join(root, "b.txt"))), nil)
	q.Wait()

	data, err := os.ReadFile(filepath.Join(root, "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))
	assert.NoFileExists(t, filepath.Join(root, "src", "a.txt"))
}
