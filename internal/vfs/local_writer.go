package vfs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/bamsammich/arcfs/internal/platform"
	"github.com/bamsammich/arcfs/internal/recovery"
)

// Compile-time interface checks.
var (
	_ DirWriter = (*localWriter)(nil)
	_ File      = (*localFile)(nil)
)

// localWriter writes into a directory on the local filesystem. Files are
// written to a hidden temporary next to their final name and renamed into
// place on Close, so an aborted file never leaves partial data behind.
type localWriter struct {
	env  Env
	root string
}

func newLocalWriter(root string, env Env) *localWriter {
	return &localWriter{root: root, env: env}
}

func (w *localWriter) abs(name string) string {
	return filepath.Join(w.root, filepath.FromSlash(name))
}

//nolint:ireturn // File is the backend-agnostic output contract
func (w *localWriter) Create(name string, st *Stat, flags CreateFlags) (File, error) {
	path := w.abs(name)
	if flags&Exclusive != 0 {
		if err := w.claim("create", path); err != nil {
			return nil, err
		}
	}

	tmpPath := filepath.Join(filepath.Dir(path),
		fmt.Sprintf(".%s.%s.arcfs-tmp", filepath.Base(path), uuid.New().String()[:8]))
	perm := fs.FileMode(0o644)
	if st != nil && st.Mode != 0 {
		perm = st.Mode.Perm()
	}

	var f *os.File
	_, err := w.env.Policy.Do(func() error {
		var err error
		f, err = os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
		return ioError("create", path, err)
	})
	if err != nil {
		return nil, err
	}
	platform.RegisterTmp(tmpPath)
	if st != nil {
		platform.Preallocate(f, st.Size)
	}
	return &localFile{w: w, f: f, tmpPath: tmpPath, path: path, st: st, perm: perm}, nil
}

// claim makes sure path is free for a new entry, consulting the recovery
// policy when it is taken.
func (w *localWriter) claim(op, path string) error {
	for {
		fi, err := os.Lstat(path)
		if err != nil {
			return nil // absent, or not inspectable: the write itself reports it
		}
		a, err := w.env.Policy.Resolve(conflict(op, path, fi.IsDir()), recovery.Overwrite, recovery.Duplicate)
		if err != nil {
			return err
		}
		switch a {
		case recovery.Overwrite:
			if err := os.RemoveAll(path); err != nil {
				return w.env.fail(ioError("remove", path, err))
			}
		case recovery.Duplicate:
			dup := duplicateName(path, func(p string) bool {
				_, err := os.Lstat(p)
				return err == nil
			})
			if err := os.Rename(path, dup); err != nil {
				return w.env.fail(ioError("rename", path, err))
			}
			w.env.log().Debug("kept existing entry", "path", path, "as", dup)
		}
	}
}

// Mkdir creates name. An existing directory is reported for the WriteInto
// action; any other entry in the way offers Overwrite and Duplicate.
func (w *localWriter) Mkdir(name string, _ bool) error {
	path := w.abs(name)
	if fi, err := os.Lstat(path); err == nil {
		if fi.IsDir() {
			return w.env.fail(conflict("mkdir", path, true))
		}
		if err := w.claim("mkdir", path); err != nil {
			return err
		}
	}
	_, err := w.env.Policy.Do(func() error {
		return ioError("mkdir", path, os.Mkdir(path, 0o755))
	})
	return err
}

func (w *localWriter) Symlink(name, target string, st *Stat) error {
	path := w.abs(name)
	if err := w.claim("symlink", path); err != nil {
		return err
	}
	_, err := w.env.Policy.Do(func() error {
		return ioError("symlink", path, os.Symlink(target, path))
	})
	if err != nil {
		return err
	}
	if st != nil {
		_ = setTimes(path, st)
		//nolint:errcheck // best-effort ownership; may fail without root
		_ = os.Lchown(path, st.UID, st.GID)
	}
	return nil
}

func (w *localWriter) SetAttributes(name string, st *Stat) error {
	if st == nil {
		return nil
	}
	path := w.abs(name)
	_, err := w.env.Policy.Do(func() error { return setAttributes(path, st) })
	return err
}

func setAttributes(path string, st *Stat) error {
	fi, err := os.Lstat(path)
	if err != nil {
		return ioError("stat", path, err)
	}
	if fi.Mode()&fs.ModeSymlink == 0 {
		if err := os.Chmod(path, st.Mode.Perm()); err != nil {
			return ioError("chmod", path, err)
		}
	}
	if err := setTimes(path, st); err != nil {
		return ioError("utimensat", path, err)
	}
	//nolint:errcheck // best-effort ownership; may fail without root
	_ = os.Lchown(path, st.UID, st.GID)
	return nil
}

// Rename moves the absolute path src to dst. An occupied dst offers
// Overwrite and Duplicate; a cross-device src fails with EXDEV.
func (w *localWriter) Rename(src, dst string) error {
	path := w.abs(dst)
	if err := w.claim("rename", path); err != nil {
		return err
	}
	_, err := w.env.Policy.Do(func() error {
		return ioError("rename", src, os.Rename(src, path))
	})
	return err
}

func (w *localWriter) Remove(name string, relative bool) error {
	path := name
	if relative {
		path = w.abs(name)
	}
	_, err := w.env.Policy.Do(func() error {
		return ioError("remove", path, os.Remove(path))
	})
	return err
}

func (w *localWriter) FileID(name string) (FileID, bool) {
	fi, err := os.Lstat(w.abs(name))
	if err != nil {
		return FileID{}, false
	}
	st := statFromInfo(fi)
	id := FileID{Dev: st.Dev, Ino: st.Ino}
	return id, id.Valid()
}

func (*localWriter) Close() error { return nil }
func (*localWriter) Abort() error { return nil }

// localFile is a regular file being written through a temporary.
type localFile struct {
	w       *localWriter
	f       *os.File
	st      *Stat
	tmpPath string
	path    string
	perm    fs.FileMode
}

func (f *localFile) Write(p []byte) (int, error) {
	n, err := f.f.Write(p)
	if err != nil {
		return n, ioError("write", f.path, err)
	}
	return n, nil
}

// Close renames the temporary into place and applies the stat given to
// Create.
func (f *localFile) Close() error {
	defer platform.DeregisterTmp(f.tmpPath)
	if err := f.f.Chmod(f.perm); err != nil {
		f.discard()
		return ioError("chmod", f.path, err)
	}
	if err := f.f.Close(); err != nil {
		_ = os.Remove(f.tmpPath)
		return ioError("close", f.path, err)
	}
	if err := os.Rename(f.tmpPath, f.path); err != nil {
		_ = os.Remove(f.tmpPath)
		return ioError("rename", f.path, err)
	}
	if f.st != nil {
		if err := setTimes(f.path, f.st); err != nil {
			return ioError("utimensat", f.path, err)
		}
		//nolint:errcheck // best-effort ownership; may fail without root
		_ = os.Lchown(f.path, f.st.UID, f.st.GID)
	}
	return nil
}

func (f *localFile) Abort() error {
	f.discard()
	platform.DeregisterTmp(f.tmpPath)
	return nil
}

func (f *localFile) discard() {
	_ = f.f.Close()
	_ = os.Remove(f.tmpPath)
}

func setTimes(path string, st *Stat) error {
	if st.ModTime.IsZero() {
		return nil
	}
	atime := st.AccTime
	if atime.IsZero() {
		atime = st.ModTime
	}
	times := []unix.Timespec{
		unix.NsecToTimespec(atime.UnixNano()),
		unix.NsecToTimespec(st.ModTime.UnixNano()),
	}
	return unix.UtimesNanoAt(unix.AT_FDCWD, path, times, unix.AT_SYMLINK_NOFOLLOW)
}

// duplicateName returns the first free "name (N).ext" for N >= 2. The
// extension is everything after the first dot of the base name, so
// "a.tar.gz" becomes "a (2).tar.gz".
func duplicateName(path string, taken func(string) bool) string {
	dir, base := splitLast(path)
	stem, ext := base, ""
	if i := strings.IndexByte(base[min(1, len(base)):], '.'); i >= 0 {
		i += min(1, len(base))
		stem, ext = base[:i], base[i:]
	}
	for n := 2; ; n++ {
		cand := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if dir != "" {
			cand = dir + cand
		}
		if !taken(cand) {
			return cand
		}
	}
}

// splitLast splits after the final separator; dir keeps its trailing slash.
func splitLast(path string) (dir, base string) {
	i := strings.LastIndexAny(path, `/`+string(filepath.Separator))
	return path[:i+1], path[i+1:]
}
