package vfs

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"syscall"

	"github.com/bamsammich/arcfs/internal/platform"
)

// Compile-time interface checks.
var (
	_ Lister     = (*localLister)(nil)
	_ TreeLister = (*localTree)(nil)
)

func statFromInfo(fi fs.FileInfo) *Stat {
	st := &Stat{
		Size:    fi.Size(),
		Mode:    fi.Mode().Perm(),
		ModTime: fi.ModTime(),
		AccTime: fi.ModTime(),
	}
	if sys, ok := platform.SysStatOf(fi); ok {
		st.Dev = sys.Dev
		st.Ino = sys.Ino
		st.UID = sys.UID
		st.GID = sys.GID
		st.AccTime = sys.AccTime
	}
	return st
}

func typeOf(m fs.FileMode) FileType {
	switch {
	case m.IsRegular():
		return TypeRegular
	case m.IsDir():
		return TypeDir
	case m&fs.ModeSymlink != 0:
		return TypeSymlink
	default:
		return TypeOther
	}
}

// localEntry builds the entry for abs from its lstat result.
func localEntry(name, abs string, fi fs.FileInfo) *Entry {
	st := statFromInfo(fi)
	e := &Entry{
		Name: name,
		Stat: st,
		Type: typeOf(fi.Mode()),
		ID:   FileID{Dev: st.Dev, Ino: st.Ino},
	}
	if e.Type == TypeSymlink {
		if target, err := os.Readlink(abs); err == nil {
			e.Target = target
		}
	}
	return e
}

// localLister lists one directory level in name order.
type localLister struct {
	dir   string
	cur   string
	names []string
	pos   int
}

//nolint:ireturn // Lister is the backend-agnostic enumeration contract
func newLocalLister(dir string) (Lister, error) {
	names, err := readDirNames(dir)
	if err != nil {
		return nil, ioError("readdir", dir, err)
	}
	return &localLister{dir: dir, names: names}, nil
}

func (l *localLister) Next() (*Entry, error) {
	for l.pos < len(l.names) {
		name := l.names[l.pos]
		l.pos++
		abs := filepath.Join(l.dir, name)
		fi, err := os.Lstat(abs)
		if errors.Is(err, fs.ErrNotExist) {
			continue // vanished since readdir
		}
		l.cur = abs
		if err != nil {
			return &Entry{Name: name, Type: TypeOther}, nil
		}
		return localEntry(name, abs, fi), nil
	}
	l.cur = ""
	return nil, io.EOF
}

func (l *localLister) Stat() (*Stat, error) {
	if l.cur == "" {
		return nil, errno("stat", l.dir, syscall.EBADF)
	}
	fi, err := os.Lstat(l.cur)
	if err != nil {
		return nil, ioError("stat", l.cur, err)
	}
	return statFromInfo(fi), nil
}

func (l *localLister) Open() (io.ReadCloser, error) {
	if l.cur == "" {
		return nil, errno("open", l.dir, syscall.EBADF)
	}
	f, err := os.Open(l.cur)
	if err != nil {
		return nil, ioError("open", l.cur, err)
	}
	return f, nil
}

func (*localLister) Close() error { return nil }

// localTree walks directory trees on the local filesystem. Children are
// visited in name order. Directories that are their own ancestor (bind
// mounts, hard-linked directories) are reported as Cycle.
type localTree struct {
	root  string
	cur   string
	names []string
}

func newLocalTree(root string, names []string) *localTree {
	return &localTree{root: root, names: names}
}

func (t *localTree) ListEntries(fn VisitFunc) error {
	for _, name := range t.names {
		name = filepath.ToSlash(filepath.Clean(name))
		abs := filepath.Join(t.root, filepath.FromSlash(name))
		fi, err := os.Lstat(abs)
		if err != nil {
			return ioError("stat", abs, err)
		}
		if err := t.walk(name, abs, fi, nil, fn); err != nil {
			return err
		}
	}
	return nil
}

func (t *localTree) walk(rel, abs string, fi fs.FileInfo, ancestors []FileID, fn VisitFunc) error {
	e := localEntry(rel, abs, fi)
	if e.Type != TypeDir {
		t.cur = abs
		_, err := fn(e, Leaf)
		t.cur = ""
		return err
	}
	if e.ID.Valid() && slices.Contains(ancestors, e.ID) {
		_, err := fn(e, Cycle)
		return err
	}

	descend, err := fn(e, Pre)
	if err != nil || !descend {
		return err
	}
	names, err := readDirNames(abs)
	if err != nil {
		return ioError("readdir", abs, err)
	}
	ancestors = append(ancestors, e.ID)
	for _, n := range names {
		cabs := filepath.Join(abs, n)
		crel := rel + "/" + n
		cfi, err := os.Lstat(cabs)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			continue
		case err != nil:
			// Present but not stat-able: reported without metadata.
			if _, err := fn(&Entry{Name: crel, Type: TypeOther}, Leaf); err != nil {
				return err
			}
			continue
		}
		if err := t.walk(crel, cabs, cfi, ancestors, fn); err != nil {
			return err
		}
	}
	_, err = fn(e, Post)
	return err
}

func (t *localTree) OpenEntry() (io.ReadCloser, error) {
	if t.cur == "" {
		return nil, errno("open", t.root, syscall.EBADF)
	}
	f, err := os.Open(t.cur)
	if err != nil {
		return nil, ioError("open", t.cur, err)
	}
	return f, nil
}

func (*localTree) Close() error { return nil }

func readDirNames(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(ents))
	for i, d := range ents {
		names[i] = d.Name()
	}
	return names, nil
}
