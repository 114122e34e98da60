package engine

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bamsammich/arcfs/internal/archive"
	"github.com/bamsammich/arcfs/internal/cancel"
	"github.com/bamsammich/arcfs/internal/event"
	"github.com/bamsammich/arcfs/internal/recovery"
	"github.com/bamsammich/arcfs/internal/stats"
	"github.com/bamsammich/arcfs/internal/vfs"
)

// writeTree creates files under root. Keys ending in "/" are directories,
// values starting with "->" are symlink targets.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, data := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if strings.HasSuffix(name, "/") {
			require.NoError(t, os.MkdirAll(p, 0o755))
			continue
		}
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		if target, ok := strings.CutPrefix(data, "->"); ok {
			require.NoError(t, os.Symlink(target, p))
			continue
		}
		require.NoError(t, os.WriteFile(p, []byte(data), 0o644))
	}
}

// readTree is the inverse of writeTree.
func readTree(t *testing.T, root string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		switch {
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(p)
			if err != nil {
				return err
			}
			out[rel] = "->" + target
		case d.IsDir():
			out[rel+"/"] = ""
		default:
			data, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			out[rel] = string(data)
		}
		return nil
	})
	require.NoError(t, err)
	return out
}

// readArchive maps member names of the archive at path to their data, in
// the same shape as readTree.
func readArchive(t *testing.T, c archive.Codec, path string) map[string]string {
	t.Helper()
	r, err := c.Open(path)
	require.NoError(t, err)
	defer r.Close()
	out := make(map[string]string)
	for {
		h, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		switch h.Type {
		case archive.TypeDir:
			out[h.Name+"/"] = ""
		case archive.TypeSymlink:
			out[h.Name] = "->" + h.Linkname
		default:
			data, err := io.ReadAll(r)
			require.NoError(t, err)
			out[h.Name] = string(data)
		}
	}
}

func resolve(t *testing.T, p string) vfs.Resolved {
	t.Helper()
	res, err := vfs.Resolve(p, archive.DefaultCatalog())
	require.NoError(t, err)
	return res
}

func newTestEngine(h recovery.Handler) (*Engine, *stats.Collector) {
	c := stats.NewCollector()
	return New(Config{Handler: h, Stats: c}), c
}

// eventLog records progress events as "Type:path" strings.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) state() *cancel.State {
	cs := cancel.New()
	cs.OnProgress(func(ev event.Event) {
		l.mu.Lock()
		defer l.mu.Unlock()
		s := ev.Type.String()
		if ev.Path != "" {
			s += ":" + ev.Path
		}
		l.events = append(l.events, s)
	})
	return cs
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// hookedDir wraps the writers of a DirType, so tests can observe or break
// individual writer calls.
type hookedDir struct {
	vfs.DirType
	hook func(w vfs.DirWriter, env vfs.Env) vfs.DirWriter
}

//nolint:ireturn // mirrors vfs.DirType
func (d hookedDir) Writer(env vfs.Env) (vfs.DirWriter, error) {
	w, err := d.DirType.Writer(env)
	if err != nil {
		return nil, err
	}
	return d.hook(w, env), nil
}

// spy counts renames and bytes written through the writers of a
// DirType. failRename and failRemove inject raw errors, which are resolved
// through the policy the way a real backend resolves them.
type spy struct {
	failRename func(src string) error
	failRemove func(name string) error
	renames    int
	bytes      int64
}

func (p *spy) dir(d vfs.DirType) hookedDir {
	return hookedDir{DirType: d, hook: func(w vfs.DirWriter, env vfs.Env) vfs.DirWriter {
		return &countingWriter{DirWriter: w, env: env, p: p}
	}}
}

type countingWriter struct {
	vfs.DirWriter
	p   *spy
	env vfs.Env
}

func (w *countingWriter) resolve(err error) error {
	_, err = w.env.Policy.Resolve(err)
	return err
}

func (w *countingWriter) Rename(src, dst string) error {
	if w.p.failRename != nil {
		if err := w.p.failRename(src); err != nil {
			return w.resolve(err)
		}
	}
	w.p.renames++
	return w.DirWriter.Rename(src, dst)
}

func (w *countingWriter) Remove(name string, relative bool) error {
	if w.p.failRemove != nil {
		if err := w.p.failRemove(name); err != nil {
			return w.resolve(err)
		}
	}
	return w.DirWriter.Remove(name, relative)
}

//nolint:ireturn // mirrors vfs.DirWriter
func (w *countingWriter) Create(name string, st *vfs.Stat, flags vfs.CreateFlags) (vfs.File, error) {
	f, err := w.DirWriter.Create(name, st, flags)
	if err != nil {
		return nil, err
	}
	return &countingFile{File: f, n: &w.p.bytes}, nil
}

type countingFile struct {
	vfs.File
	n *int64
}

func (f *countingFile) Write(p []byte) (int, error) {
	n, err := f.File.Write(p)
	*f.n += int64(n)
	return n, err
}
