package engine

import (
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/bamsammich/arcfs/internal/cancel"
	"github.com/bamsammich/arcfs/internal/event"
	"github.com/bamsammich/arcfs/internal/vfs"
)

// Delete removes the entries names of src and everything below them.
// Directories are removed after their children; every removal offers Skip.
// A directory that still holds a skipped entry is left in place.
func (e *Engine) Delete(cs *cancel.State, src vfs.DirType, names []string) error {
	r := e.newRun(cs, "delete")
	return r.bracket(func() error { return r.deleteTree(src, names) })
}

func (r *run) deleteTree(src vfs.DirType, names []string) (err error) {
	if err := checkNames(names); err != nil {
		return err
	}
	w, err := src.Writer(r.env())
	if err != nil {
		return err
	}
	defer closeWriter(w, &err)

	tree, err := src.TreeLister(names)
	if err != nil {
		return err
	}
	defer tree.Close()

	kept := make(map[string]bool)
	keep := func(name string) {
		for p := path.Dir(name); p != "." && !kept[p]; p = path.Dir(p) {
			kept[p] = true
		}
	}
	remove := func(e *vfs.Entry) error {
		skipped, err := r.guard(e.Name, func() error { return r.removeSource(w, e.Name) })
		if skipped {
			keep(e.Name)
		}
		return err
	}

	return tree.ListEntries(func(e *vfs.Entry, kind vfs.VisitKind) (bool, error) {
		if err := r.cs.Test(); err != nil {
			return false, err
		}
		switch kind {
		case vfs.Pre:
			return true, r.progress(event.EnterDir, e.Name, 0)
		case vfs.Post:
			if !kept[e.Name] {
				if err := remove(e); err != nil {
					return false, err
				}
			}
			return false, r.progress(event.ExitDir, e.Name, 0)
		case vfs.Cycle:
			r.log.Warn("directory is its own ancestor, not descending", "path", e.Name)
			keep(e.Name)
			return false, nil
		default:
			if err := r.progress(event.EnterFile, e.Name, 0); err != nil {
				return false, err
			}
			if err := remove(e); err != nil {
				return false, err
			}
			return false, r.progress(event.ExitFile, e.Name, 0)
		}
	})
}

// Mkdir creates the directory dst names. Missing parents are created as
// well; any failure aborts.
func (e *Engine) Mkdir(cs *cancel.State, dst vfs.Resolved) error {
	r := e.newRun(cs, "mkdir")
	return r.bracket(func() (err error) {
		if dst.Rest == "" {
			return fmt.Errorf("mkdir %s: %w", dst.Dir, fs.ErrExist)
		}
		w, err := dst.Dir.Writer(r.env())
		if err != nil {
			return err
		}
		defer closeWriter(w, &err)

		p := ""
		for _, c := range strings.Split(dst.Rest, "/") {
			p = path.Join(p, c)
			if err := w.Mkdir(p, false); err != nil {
				return err
			}
			r.stats.AddDirsCreated(1)
		}
		return nil
	})
}
