package engine

import (
	"errors"
	"io"
	"path"

	"github.com/bamsammich/arcfs/internal/cancel"
	"github.com/bamsammich/arcfs/internal/event"
	"github.com/bamsammich/arcfs/internal/vfs"
)

// Copy copies the entries names of src, and everything below them, to dst.
//
// Every entry is copied with the Skip action offered; directories are
// created with WriteInto offered as well, so an existing directory can be
// merged. Directories created by this operation are never descended, which
// keeps a copy into a subdirectory of its own source finite.
func (e *Engine) Copy(cs *cancel.State, src vfs.DirType, names []string, dst vfs.Resolved) error {
	r := e.newRun(cs, "copy")
	return r.bracket(func() error { return r.copyTree(src, names, dst, nil) })
}

// copier drives one tree lister into one destination writer.
type copier struct {
	*run
	tree    vfs.TreeLister
	dst     vfs.DirWriter
	created map[vfs.FileID]bool
	// remove, when set, deletes a source entry once it has been copied.
	remove func(name string) error
	// kept holds source directories that must survive a move because
	// something below them was not moved.
	kept  map[string]bool
	names destination
}

func (r *run) copyTree(src vfs.DirType, names []string, dst vfs.Resolved, remove func(string) error) (err error) {
	if err := checkNames(names); err != nil {
		return err
	}
	w, err := dst.Dir.Writer(r.env())
	if err != nil {
		return err
	}
	defer closeWriter(w, &err)
	return r.copyInto(w, src, names, dst, remove)
}

// copyInto copies into w, a writer for dst.Dir owned by the caller.
func (r *run) copyInto(w vfs.DirWriter, src vfs.DirType, names []string, dst vfs.Resolved, remove func(string) error) error {
	c := &copier{
		run:     r,
		dst:     w,
		created: make(map[vfs.FileID]bool),
		remove:  remove,
		kept:    make(map[string]bool),
	}
	var err error
	if c.names, err = r.prepare(w, names, dst, c.created); err != nil {
		return err
	}

	tree, err := src.TreeLister(names)
	if err != nil {
		return err
	}
	defer tree.Close()
	c.tree = tree
	return tree.ListEntries(c.visit)
}

func (c *copier) visit(e *vfs.Entry, kind vfs.VisitKind) (bool, error) {
	if err := c.cs.Test(); err != nil {
		return false, err
	}
	if (kind == vfs.Pre || kind == vfs.Leaf) && !c.included(e, kind == vfs.Pre) {
		c.log.Debug("filtered", "path", e.Name)
		c.keep(e.Name)
		return false, nil
	}
	switch kind {
	case vfs.Cycle:
		c.log.Warn("directory is its own ancestor, not descending", "path", e.Name)
		c.keep(e.Name)
		return false, nil
	case vfs.Pre:
		return c.enterDir(e)
	case vfs.Post:
		return false, c.exitDir(e)
	default:
		return false, c.leaf(e)
	}
}

func (c *copier) included(e *vfs.Entry, isDir bool) bool {
	var size int64
	if e.Stat != nil {
		size = e.Stat.Size
	}
	return c.filter.Match(e.Name, isDir, size)
}

func (c *copier) enterDir(e *vfs.Entry) (bool, error) {
	if e.ID.Valid() && c.created[e.ID] {
		c.log.Debug("not descending into directory created by this copy", "path", e.Name)
		c.keep(e.Name)
		return false, nil
	}
	if err := c.progress(event.EnterDir, e.Name, 0); err != nil {
		return false, err
	}
	target := c.names.name(e.Name)
	skipped, err := c.guard(e.Name, func() error { return c.mkdir(c.dst, target, true) })
	if err != nil {
		return false, err
	}
	if skipped {
		c.keep(e.Name)
		return false, c.progress(event.ExitDir, e.Name, 0)
	}
	if id, ok := c.dst.FileID(target); ok {
		c.created[id] = true
	}
	return true, nil
}

func (c *copier) exitDir(e *vfs.Entry) error {
	target := c.names.name(e.Name)
	if e.Stat != nil {
		if _, err := c.guard(e.Name, func() error { return c.dst.SetAttributes(target, e.Stat) }); err != nil {
			return err
		}
	}
	if c.remove != nil && !c.kept[e.Name] {
		skipped, err := c.guard(e.Name, func() error { return c.remove(e.Name) })
		if err != nil {
			return err
		}
		if skipped {
			c.keep(e.Name)
		}
	}
	return c.progress(event.ExitDir, e.Name, 0)
}

func (c *copier) leaf(e *vfs.Entry) error {
	var op func() error
	switch e.Type {
	case vfs.TypeRegular:
		op = func() error { return c.copyFile(e) }
	case vfs.TypeSymlink:
		op = func() error { return c.symlink(e) }
	default:
		c.log.Warn("unsupported entry type, skipping", "path", e.Name, "type", e.Type)
		c.stats.AddSkipped(1)
		c.keep(e.Name)
		return nil
	}
	skipped, err := c.guard(e.Name, func() error {
		if err := op(); err != nil {
			return err
		}
		if c.remove != nil {
			return c.remove(e.Name)
		}
		return nil
	})
	if skipped {
		c.keep(e.Name)
	}
	return err
}

func (c *copier) copyFile(e *vfs.Entry) error {
	var size int64
	if e.Stat != nil {
		size = e.Stat.Size
	}
	if err := c.progress(event.EnterFile, e.Name, size); err != nil {
		return err
	}
	err := c.transfer(e)
	if errors.Is(err, cancel.ErrCancelled) {
		return err
	}
	if perr := c.progress(event.ExitFile, e.Name, 0); err == nil {
		err = perr
	}
	return err
}

func (c *copier) transfer(e *vfs.Entry) error {
	var src io.ReadCloser
	_, err := c.policy.Do(func() error {
		var err error
		src, err = c.tree.OpenEntry()
		return err
	})
	if err != nil {
		return err
	}
	defer src.Close()

	f, err := c.dst.Create(c.names.name(e.Name), e.Stat, vfs.Exclusive)
	if err != nil {
		return err
	}
	if err := c.stream(e.Name, src, f); err != nil {
		_ = f.Abort()
		return err
	}
	if err := f.Close(); err != nil {
		return c.fail(err)
	}
	c.stats.AddFilesCopied(1)
	return nil
}

func (c *copier) symlink(e *vfs.Entry) error {
	if err := c.dst.Symlink(c.names.name(e.Name), e.Target, e.Stat); err != nil {
		return err
	}
	c.stats.AddLinksCreated(1)
	return nil
}

// keep marks the parents of name as not removable.
func (c *copier) keep(name string) {
	for p := path.Dir(name); p != "." && p != "/" && !c.kept[p]; p = path.Dir(p) {
		c.kept[p] = true
	}
}
