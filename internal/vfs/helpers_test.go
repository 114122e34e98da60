package vfs

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bamsammich/arcfs/internal/archive"
)

type member struct {
	name string
	data string
	link string
	dir  bool
}

func file(name, data string) member { return member{name: name, data: data} }
func dir(name string) member         { return member{name: name, dir: true} }

func encodeArchive(t *testing.T, c archive.Codec, members ...member) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := c.Create(&buf, archive.Format{Codec: c.Name()})
	require.NoError(t, err)
	for _, m := range members {
		h := &archive.Header{Name: m.name, Mode: 0o644, ModTime: time.Unix(1700000000, 0)}
		switch {
		case m.dir:
			h.Type = archive.TypeDir
			h.Mode = 0o755
		case m.link != "":
			h.Type = archive.TypeSymlink
			h.Linkname = m.link
		default:
			h.Type = archive.TypeRegular
			h.Size = int64(len(m.data))
		}
		require.NoError(t, w.WriteHeader(h))
		if h.Type == archive.TypeRegular {
			_, err := w.Write([]byte(m.data))
			require.NoError(t, err)
		}
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func makeArchive(t *testing.T, c archive.Codec, path string, members ...member) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, encodeArchive(t, c, members...), 0o644))
}

// archiveContents maps member names to their data; directories map to "/".
func archiveContents(t *testing.T, r archive.Reader) map[string]string {
	t.Helper()
	out := make(map[string]string)
	for {
		h, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		switch h.Type {
		case archive.TypeDir:
			out[h.Name] = "/"
		case archive.TypeSymlink:
			out[h.Name] = "->" + h.Linkname
		default:
			data, err := io.ReadAll(r)
			require.NoError(t, err)
			out[h.Name] = string(data)
		}
	}
}

func readArchiveFile(t *testing.T, c archive.Codec, path string) map[string]string {
	t.Helper()
	r, err := c.Open(path)
	require.NoError(t, err)
	defer r.Close()
	return archiveContents(t, r)
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, data := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(data), 0o644))
	}
}

type visit struct {
	name string
	kind VisitKind
}

func collect(t *testing.T, tl TreeLister, prune ...string) []visit {
	t.Helper()
	var out []visit
	err := tl.ListEntries(func(e *Entry, kind VisitKind) (bool, error) {
		out = append(out, visit{e.Name, kind})
		for _, p := range prune {
			if e.Name == p {
				return false, nil
			}
		}
		return true, nil
	})
	require.NoError(t, err)
	return out
}

func writeFile(t *testing.T, w DirWriter, name, data string, flags CreateFlags) error {
	t.Helper()
	f, err := w.Create(name, &Stat{Size: int64(len(data)), Mode: 0o644, ModTime: time.Unix(1700000500, 0)}, flags)
	if err != nil {
		return err
	}
	if _, err := f.Write([]byte(data)); err != nil {
		_ = f.Abort()
		return err
	}
	return f.Close()
}
