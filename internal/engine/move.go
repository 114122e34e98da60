package engine

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/bamsammich/arcfs/internal/cancel"
	"github.com/bamsammich/arcfs/internal/event"
	"github.com/bamsammich/arcfs/internal/recovery"
	"github.com/bamsammich/arcfs/internal/vfs"
)

// ErrSharedArchive is returned for a move between two stores that are both
// rewritten through the same archive file, neither containing the other.
var ErrSharedArchive = errors.New("source and destination are separate stores in one archive file")

// Move moves the entries names of src to dst.
//
// Within one store every entry is renamed in place, each with the Skip
// action offered. A rename that fails because it crosses devices offers
// CopyInstead, which turns the rest of the operation into a copy that
// removes every source entry once it has been written. Sources in a
// different store, or moves restricted by a filter, are copied that way from
// the start. An entry cannot be moved into an archive stored inside it.
func (e *Engine) Move(cs *cancel.State, src vfs.DirType, names []string, dst vfs.Resolved) error {
	r := e.newRun(cs, "move")
	return r.bracket(func() error {
		if err := checkNames(names); err != nil {
			return err
		}
		if err := checkNotInside(src, names, dst.Dir); err != nil {
			return err
		}
		if src.StoreID() == dst.Dir.StoreID() && r.filter.Empty() {
			rest, err := r.renameAll(src, names, dst)
			if !recovery.Caught(err, recovery.CopyInstead) {
				return err
			}
			r.log.Debug("rename crosses devices, copying instead", "error", err)
			names = rest
		}
		return r.copyRemove(src, names, dst)
	})
}

// renameAll renames names into dst one by one. When CopyInstead is chosen
// the renames done so far are committed and the names not yet moved are
// returned along with the signal.
func (r *run) renameAll(src vfs.DirType, names []string, dst vfs.Resolved) ([]string, error) {
	w, err := dst.Dir.Writer(r.env())
	if err != nil {
		return nil, err
	}
	rest, err := r.renameEach(w, src, names, dst)
	if recovery.Caught(err, recovery.CopyInstead) {
		if cerr := w.Close(); cerr != nil {
			return nil, cerr
		}
		return rest, err
	}
	closeWriter(w, &err)
	return nil, err
}

func (r *run) renameEach(w vfs.DirWriter, src vfs.DirType, names []string, dst vfs.Resolved) ([]string, error) {
	d, err := r.prepare(w, names, dst, nil)
	if err != nil {
		return nil, err
	}

	closeScope := r.policy.Scope(recovery.CopyInstead)
	defer closeScope()
	for i, name := range names {
		if err := r.cs.Test(); err != nil {
			return nil, err
		}
		if err := r.progress(event.EnterFile, name, 0); err != nil {
			return nil, err
		}
		skipped, err := r.guard(name, func() error { return w.Rename(src.StorePath(name), d.name(name)) })
		if perr := r.progress(event.ExitFile, name, 0); err == nil {
			err = perr
		}
		switch {
		case recovery.Caught(err, recovery.CopyInstead):
			return names[i:], err
		case err != nil:
			return nil, err
		case !skipped:
			r.stats.AddRenamed(1)
		}
	}
	return nil, nil
}

// copyRemove copies names to dst and removes each source entry after it has
// been written.
//
// When both stores are rewritten through one archive file, a single writer
// session stages the copy and the removals together: either the stores are
// the same, or one is an archive nested in the other. Two unrelated stores
// in the same file cannot be moved between. Otherwise each side gets its
// own writer; when dst commits lazily (archives), removals are staged in
// the source writer, which is only committed after dst.
func (r *run) copyRemove(src vfs.DirType, names []string, dst vfs.Resolved) (err error) {
	switch {
	case sharesSession(dst.Dir, src):
		return r.copyRemoveShared(src, names, dst, false)
	case sharesSession(src, dst.Dir):
		return r.copyRemoveShared(src, names, dst, true)
	case vfs.ArchiveFile(src) != "" && vfs.ArchiveFile(src) == vfs.ArchiveFile(dst.Dir):
		return fmt.Errorf("move %s to %s: %w", src, dst.Dir, ErrSharedArchive)
	}

	sw, err := src.Writer(r.env())
	if err != nil {
		return err
	}

	defer closeWriter(sw, &err)

	var remove func(string) error
	if _, local := dst.Dir.(vfs.RegularDir); local {
		remove = func(name string) error { return r.removeSource(sw, name) }
	} else {
		var staged []string
		remove = func(name string) error {
			staged = append(staged, name)
			return nil
		}
		defer func() {
			for _, name := range staged {
				if err != nil {
					break
				}
				_, err = r.guard(name, func() error { return r.removeSource(sw, name) })
			}
		}()
	}

	return r.copyTree(src, names, dst, remove)
}

// copyRemoveShared runs the move through one writer session. It is opened
// on src when srcOwns is set and on dst otherwise; the other side writes
// through a view of that session.
func (r *run) copyRemoveShared(src vfs.DirType, names []string, dst vfs.Resolved, srcOwns bool) (err error) {
	owner, other := dst.Dir, src
	if srcOwns {
		owner, other = src, dst.Dir
	}
	ow, err := owner.Writer(r.env())
	if err != nil {
		return err
	}
	defer closeWriter(ow, &err)
	view, ok := vfs.Within(ow, other)
	if !ok {
		return fmt.Errorf("move %s: %w", owner, ErrSharedArchive)
	}

	w, sw := ow, view
	if srcOwns {
		w, sw = view, ow
	}
	return r.copyInto(w, src, names, dst, func(name string) error {
		return r.removeSource(sw, name)
	})
}

// sharesSession reports whether a writer for w also rewrites the store of
// d: both are the same archive store, or w is an archive nested in d's.
func sharesSession(w, d vfs.DirType) bool {
	if vfs.ArchiveFile(w) == "" {
		return false
	}
	if w.StoreID() == d.StoreID() {
		return true
	}
	_, nested := vfs.NestedIn(w, d)
	return nested
}

// checkNotInside refuses to move an entry into an archive stored at or
// below that entry.
func checkNotInside(src vfs.DirType, names []string, dst vfs.DirType) error {
	holder, ok := vfs.NestedIn(dst, src)
	if !ok {
		if _, local := src.(vfs.RegularDir); !local {
			return nil
		}
		if holder = vfs.ArchiveFile(dst); holder == "" {
			return nil
		}
	}
	for _, n := range names {
		p := src.StorePath(n)
		if _, local := src.(vfs.RegularDir); local {
			if abs, err := filepath.Abs(p); err == nil {
				p = abs
			}
		}
		if holder == p || strings.HasPrefix(holder, p+"/") || strings.HasPrefix(holder, p+string(filepath.Separator)) {
			return &vfs.IOError{Op: "move", Path: src.StorePath(n), Err: syscall.EINVAL}
		}
	}
	return nil
}

func (r *run) removeSource(w vfs.DirWriter, name string) error {
	if err := w.Remove(name, true); err != nil {
		return err
	}
	r.stats.AddRemoved(1)
	return nil
}
