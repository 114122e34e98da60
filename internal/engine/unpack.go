package engine

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"syscall"

	"github.com/bamsammich/arcfs/internal/cancel"
	"github.com/bamsammich/arcfs/internal/vfs"
)

// UnpackToTemp copies the regular file name of src to a fresh temporary
// directory and returns its path. done, when set, is called with the path
// inside a no-cancel section once the file is complete. The caller owns the
// temporary directory.
func (e *Engine) UnpackToTemp(cs *cancel.State, src vfs.DirType, name string, done func(path string)) (string, error) {
	r := e.newRun(cs, "unpack")
	var out string
	err := r.bracket(func() error {
		var err error
		out, err = r.unpack(src, name)
		if err != nil {
			return err
		}
		if done == nil {
			return nil
		}
		if err := r.cs.EnterNoCancel(); err != nil {
			return err
		}
		done(out)
		return r.cs.ExitNoCancel()
	})
	return out, err
}

func (r *run) unpack(src vfs.DirType, name string) (string, error) {
	if err := checkNames([]string{name}); err != nil {
		return "", err
	}
	l, err := src.Lister()
	if err != nil {
		return "", err
	}
	defer l.Close()
	for {
		e, err := l.Next()
		if errors.Is(err, io.EOF) {
			return "", &vfs.IOError{Op: "unpack", Path: path.Join(src.String(), name), Err: syscall.ENOENT}
		}
		if err != nil {
			return "", err
		}
		if e.Name != name {
			continue
		}
		if e.Type != vfs.TypeRegular {
			return "", &vfs.IOError{Op: "unpack", Path: path.Join(src.String(), name), Err: syscall.EISDIR}
		}
		break
	}

	dir, err := os.MkdirTemp("", "arcfs-unpack-")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	dst := vfs.Resolved{Dir: vfs.RegularDir{Path: dir}}
	if err := r.copyTree(src, []string{name}, dst, nil); err != nil {
		_ = os.RemoveAll(dir)
		return "", err
	}
	out := filepath.Join(dir, name)
	if _, err := os.Lstat(out); err != nil {
		// Skipped by the recovery handler.
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("unpack %s: %w", name, err)
	}
	return out, nil
}
