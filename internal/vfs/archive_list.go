package vfs

import (
	"errors"
	"io"
	"strings"
	"syscall"

	"github.com/bamsammich/arcfs/internal/archive"
)

// Compile-time interface checks.
var (
	_ Lister     = (*archiveLister)(nil)
	_ TreeLister = (*archiveTree)(nil)
)

const impliedDirMode = 0o755

// indexEntry is one member of an archive, or a directory implied by the
// names of other members (hdr == nil).
type indexEntry struct {
	hdr      *archive.Header
	name     string
	children []string
	typ      FileType
	seq      int // position of the record in the archive, -1 if implied
}

// archiveIndex is the full member table of an archive, with every implied
// parent directory synthesized.
type archiveIndex struct {
	entries map[string]*indexEntry
	order   []string // discovery order, implied directories included
	records int
}

func newIndex() *archiveIndex {
	return &archiveIndex{entries: map[string]*indexEntry{
		"": {typ: TypeDir, seq: -1},
	}}
}

func (ix *archiveIndex) add(h *archive.Header) {
	seq := ix.records
	ix.records++
	if h.Name == "" {
		return
	}
	ix.ensureDir(parentName(h.Name))
	typ := fileType(h.Type)
	if e, ok := ix.entries[h.Name]; ok {
		// A later record for the same name wins; an explicit directory record
		// after an implied one only contributes its attributes.
		e.hdr = h
		e.typ = typ
		e.seq = seq
		return
	}
	ix.insert(h.Name, typ, h).seq = seq
}

func (ix *archiveIndex) ensureDir(name string) {
	if name == "" {
		return
	}
	if _, ok := ix.entries[name]; ok {
		return
	}
	ix.ensureDir(parentName(name))
	ix.insert(name, TypeDir, nil)
}

func (ix *archiveIndex) insert(name string, typ FileType, h *archive.Header) *indexEntry {
	e := &indexEntry{name: name, typ: typ, hdr: h, seq: -1}
	ix.entries[name] = e
	parent := ix.entries[parentName(name)]
	parent.children = append(parent.children, name)
	ix.order = append(ix.order, name)
	return e
}

// readIndex reads the complete member table of store.
func readIndex(store archiveStore) (*archiveIndex, archive.Format, error) {
	r, err := store.openReader()
	if err != nil {
		return nil, archive.Format{}, err
	}
	defer r.Close()
	ix := newIndex()
	for {
		h, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, archive.Format{}, ioError("read archive", store.String(), err)
		}
		ix.add(h)
	}
	return ix, r.Format(), nil
}

func fileType(t archive.EntryType) FileType {
	switch t {
	case archive.TypeRegular:
		return TypeRegular
	case archive.TypeDir:
		return TypeDir
	case archive.TypeSymlink:
		return TypeSymlink
	default:
		return TypeOther
	}
}

func statFromHeader(h *archive.Header) *Stat {
	if h == nil {
		return nil
	}
	return &Stat{
		Size:    h.Size,
		Mode:    h.Mode,
		ModTime: h.ModTime,
		AccTime: h.ModTime,
		UID:     h.UID,
		GID:     h.GID,
	}
}

func parentName(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[:i]
	}
	return ""
}

func baseName(name string) string {
	return name[strings.LastIndexByte(name, '/')+1:]
}

// memberReader exposes the data of the current member of r. When owned,
// closing it closes the archive.
type memberReader struct {
	r     archive.Reader
	name  string
	owned bool
}

func (m *memberReader) Read(p []byte) (int, error) {
	n, err := m.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, ioError("read", m.name, err)
	}
	return n, err
}

func (m *memberReader) Close() error {
	if m.owned {
		return m.r.Close()
	}
	return nil
}

// archiveLister lists one directory level of an archive in member order.
type archiveLister struct {
	store    archiveStore
	ix       *archiveIndex
	cur      *indexEntry
	children []string
	pos      int
}

//nolint:ireturn // Lister is the backend-agnostic enumeration contract
func newArchiveLister(store archiveStore) (Lister, error) {
	ix, _, err := readIndex(store)
	if err != nil {
		return nil, err
	}
	dir, ok := ix.entries[store.Subpath()]
	switch {
	case !ok:
		return nil, errno("readdir", store.String(), syscall.ENOENT)
	case dir.typ != TypeDir:
		return nil, errno("readdir", store.String(), syscall.ENOTDIR)
	}
	return &archiveLister{store: store, ix: ix, children: dir.children}, nil
}

func (l *archiveLister) Next() (*Entry, error) {
	if l.pos >= len(l.children) {
		l.cur = nil
		return nil, io.EOF
	}
	l.cur = l.ix.entries[l.children[l.pos]]
	l.pos++
	return archiveEntry(l.store.StoreID(), baseName(l.cur.name), l.cur), nil
}

func (l *archiveLister) Stat() (*Stat, error) {
	if l.cur == nil {
		return nil, errno("stat", l.store.String(), syscall.EBADF)
	}
	if st := statFromHeader(l.cur.hdr); st != nil {
		return st, nil
	}
	return &Stat{Mode: impliedDirMode}, nil
}

// Open re-reads the archive up to the current member.
func (l *archiveLister) Open() (io.ReadCloser, error) {
	if l.cur == nil {
		return nil, errno("open", l.store.String(), syscall.EBADF)
	}
	if l.cur.typ != TypeRegular {
		return nil, errno("open", l.cur.name, syscall.EISDIR)
	}
	r, err := l.store.openReader()
	if err != nil {
		return nil, err
	}
	if _, err := seekMember(r, l.cur.name); err != nil {
		r.Close()
		return nil, ioError("open", l.cur.name, err)
	}
	return &memberReader{r: r, name: l.cur.name, owned: true}, nil
}

func (*archiveLister) Close() error { return nil }

func archiveEntry(storeID, name string, e *indexEntry) *Entry {
	out := &Entry{
		Name: name,
		Type: e.typ,
		Stat: statFromHeader(e.hdr),
		ID:   archiveID(storeID, e.name),
	}
	if e.hdr != nil {
		out.Target = e.hdr.Linkname
	}
	return out
}

// archiveTree traverses an archive in member order. Archives need not list
// directories, nor list them before their contents, so a Pre visit is
// synthesized the first time a directory is seen and all Post visits are
// delivered after the last member, deepest first.
//
// Pre and Post visits therefore do not pair up per sibling as they do for
// local trees: a copy from an archive reports every ExitDir at the end, after
// the EnterDir and ExitFile events of later siblings. Consumers must not
// assume an ExitDir closes the most recent EnterDir.
type archiveTree struct {
	store archiveStore
	cur   *memberReader
	names []string
}

func newArchiveTree(store archiveStore, names []string) *archiveTree {
	return &archiveTree{store: store, names: names}
}

//nolint:revive // cognitive-complexity: single pass with implied-directory synthesis
func (t *archiveTree) ListEntries(fn VisitFunc) error {
	r, err := t.store.openReader()
	if err != nil {
		return err
	}
	defer r.Close()

	sub := t.store.Subpath()
	sid := t.store.StoreID()
	found := make(map[string]bool, len(t.names))
	for _, n := range t.names {
		found[archive.CleanName(n)] = false
	}

	descended := make(map[string]bool)
	dirs := make(map[string]*Entry)
	var posts []*Entry

	enter := func(rel string, h *archive.Header) (bool, error) {
		if d, seen := descended[rel]; seen {
			if d && h != nil {
				dirs[rel].Stat = statFromHeader(h)
			}
			return d, nil
		}
		e := &Entry{Name: rel, Type: TypeDir, Stat: statFromHeader(h), ID: archiveID(sid, joinName(sub, rel))}
		d, err := fn(e, Pre)
		if err != nil {
			return false, err
		}
		descended[rel] = d
		if d {
			dirs[rel] = e
			posts = append(posts, e)
		}
		return d, nil
	}

	for {
		h, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ioError("read archive", t.store.String(), err)
		}
		rel, ok := relName(sub, h.Name)
		if !ok {
			continue
		}
		root, _, _ := strings.Cut(rel, "/")
		if _, selected := found[root]; !selected {
			continue
		}
		found[root] = true

		skip := false
		for i := 0; i < len(rel); i++ {
			if rel[i] != '/' {
				continue
			}
			d, err := enter(rel[:i], nil)
			if err != nil {
				return err
			}
			if !d {
				skip = true
				break
			}
		}
		if skip {
			continue
		}

		if h.Type == archive.TypeDir {
			if _, err := enter(rel, h); err != nil {
				return err
			}
			continue
		}
		e := &Entry{
			Name:   rel,
			Type:   fileType(h.Type),
			Stat:   statFromHeader(h),
			Target: h.Linkname,
			ID:     archiveID(sid, h.Name),
		}
		t.cur = &memberReader{r: r, name: h.Name}
		_, err = fn(e, Leaf)
		t.cur = nil
		if err != nil {
			return err
		}
	}

	for i := len(posts) - 1; i >= 0; i-- {
		if _, err := fn(posts[i], Post); err != nil {
			return err
		}
	}
	for _, n := range t.names {
		if name := archive.CleanName(n); !found[name] {
			return errno("stat", joinDisplay(t.store.String(), name), syscall.ENOENT)
		}
	}
	return nil
}

func (t *archiveTree) OpenEntry() (io.ReadCloser, error) {
	if t.cur == nil {
		return nil, errno("open", t.store.String(), syscall.EBADF)
	}
	return t.cur, nil
}

func (*archiveTree) Close() error { return nil }
