package vfs

import (
	"path/filepath"

	"github.com/bamsammich/arcfs/internal/archive"
)

// Compile-time interface checks.
var _ DirWriter = (*sessionView)(nil)

// ArchiveFile returns the file on disk that holds d, following nested
// archives outward, or "" when d is a local directory.
func ArchiveFile(d DirType) string {
	switch d := d.(type) {
	case Archive:
		p, err := filepath.Abs(d.Path)
		if err != nil {
			return d.Path
		}
		return p
	case SubArchive:
		return ArchiveFile(d.Parent)
	default:
		return ""
	}
}

// NestedIn reports whether d lies inside an archive stored, at any depth,
// in the store of outer. member is the store path, within outer's store, of
// the outermost archive on the way to d.
func NestedIn(d, outer DirType) (member string, ok bool) {
	id := outer.StoreID()
	for {
		s, isSub := d.(SubArchive)
		if !isSub {
			return "", false
		}
		member, d = s.Inner, s.Parent
		if d.StoreID() == id {
			return member, true
		}
	}
}

// Within returns a writer for d that shares the staged session of w. It
// succeeds when d is in the store w writes, or in a store w writes back
// into on Close (the parents of a nested archive). Closing or aborting the
// returned writer does nothing; w stays responsible for the session.
//
//nolint:ireturn // DirWriter is the backend-agnostic mutation contract
func Within(w DirWriter, d DirType) (DirWriter, bool) {
	id := d.StoreID()
	for {
		switch x := w.(type) {
		case *nestedWriter:
			if x.storeID == id {
				return &sessionView{w: x.archiveWriter, sub: archive.CleanName(d.Subpath())}, true
			}
			w = x.parent
		case *archiveWriter:
			if x.storeID == id {
				return &sessionView{w: x, sub: archive.CleanName(d.Subpath())}, true
			}
			return nil, false
		default:
			return nil, false
		}
	}
}

// sessionView addresses an archiveWriter from another subpath.
type sessionView struct {
	w   *archiveWriter
	sub string
}

//nolint:ireturn // File is the backend-agnostic output contract
func (v *sessionView) Create(name string, st *Stat, flags CreateFlags) (File, error) {
	return v.w.create(joinName(v.sub, name), st, flags)
}

func (v *sessionView) Mkdir(name string, deferred bool) error {
	return v.w.mkdir(joinName(v.sub, name), deferred)
}

func (v *sessionView) Symlink(name, target string, st *Stat) error {
	return v.w.symlink(joinName(v.sub, name), target, st)
}

func (v *sessionView) SetAttributes(name string, st *Stat) error {
	return v.w.setAttributes(joinName(v.sub, name), st)
}

func (v *sessionView) Rename(src, dst string) error {
	return v.w.rename(archive.CleanName(src), joinName(v.sub, dst))
}

func (v *sessionView) Remove(name string, relative bool) error {
	if relative {
		return v.w.remove(joinName(v.sub, name))
	}
	return v.w.remove(archive.CleanName(name))
}

func (v *sessionView) FileID(name string) (FileID, bool) {
	return archiveID(v.w.storeID, joinName(v.sub, name)), true
}

func (v *sessionView) Close() error { return nil }
func (v *sessionView) Abort() error { return nil }
