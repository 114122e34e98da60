package vfs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/bamsammich/arcfs/internal/archive"
	"github.com/bamsammich/arcfs/internal/platform"
	"github.com/bamsammich/arcfs/internal/recovery"
)

// Compile-time interface checks.
var (
	_ DirWriter = (*archiveWriter)(nil)
	_ File      = (*archiveFile)(nil)
)

// spoolMemLimit is how much of a new member is buffered in memory before it
// spills to a temporary file. Members are spooled because formats like tar
// need the size before the data.
const spoolMemLimit = 8 << 20

// oldEntry is a member of the archive being rewritten. cur is its name in
// the rewritten archive, "" once removed.
type oldEntry struct {
	*indexEntry
	attrs *Stat
	cur   string
}

// archiveWriter stages changes to an archive in a new temporary archive.
// Close copies every surviving old member into it and swaps it into place;
// Abort, or never calling Close, leaves the original untouched.
type archiveWriter struct {
	env        Env
	codec      archive.Codec
	w          archive.Writer
	tmp        *os.File
	old        []*oldEntry
	live       map[string]*oldEntry // current name -> old member
	written    map[string]bool      // members already in the new archive
	impliedNew map[string]bool      // directories implied by written members
	pendingSet map[string]bool      // deferred directories
	dirs       map[string]bool      // directories written in this session
	source     string
	target     string
	sub        string
	storeID    string
	tmpPath    string
	pending    []string
	mode       fs.FileMode
	open       bool
	done       bool
}

// newArchiveWriter stages a rewrite of source into target. A missing source
// starts a fresh archive.
func newArchiveWriter(env Env, codec archive.Codec, source, target, sub, storeID string) (*archiveWriter, error) {
	w := &archiveWriter{
		env:        env,
		codec:      codec,
		source:     source,
		target:     target,
		sub:        sub,
		storeID:    storeID,
		live:       make(map[string]*oldEntry),
		written:    make(map[string]bool),
		impliedNew: make(map[string]bool),
		pendingSet: make(map[string]bool),
		dirs:       make(map[string]bool),
		mode:       0o644,
	}

	format := archive.Format{Codec: codec.Name()}
	switch fi, err := os.Stat(source); {
	case errors.Is(err, fs.ErrNotExist):
		w.source = ""
	case err != nil:
		return nil, ioError("stat", source, err)
	default:
		w.mode = fi.Mode().Perm()
		ix, f, err := readIndex(Archive{Codec: codec, Path: source})
		if err != nil {
			return nil, err
		}
		format = f
		for _, name := range ix.order {
			e := &oldEntry{indexEntry: ix.entries[name], cur: name}
			w.old = append(w.old, e)
			w.live[name] = e
		}
	}

	w.tmpPath = filepath.Join(filepath.Dir(target),
		fmt.Sprintf(".%s.%s.arcfs-tmp", filepath.Base(target), uuid.New().String()[:8]))
	tmp, err := os.OpenFile(w.tmpPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, ioError("create", w.tmpPath, err)
	}
	platform.RegisterTmp(w.tmpPath)
	w.tmp = tmp

	aw, err := codec.Create(tmp, format)
	if err != nil {
		w.discard()
		return nil, ioError("create archive", target, err)
	}
	w.w = aw
	return w, nil
}

func (w *archiveWriter) isNew(name string) bool {
	return w.written[name] || w.impliedNew[name] || w.pendingSet[name]
}

func (w *archiveWriter) isDir(name string) bool {
	if e := w.live[name]; e != nil {
		return e.typ == TypeDir
	}
	return w.dirs[name] || w.impliedNew[name] || w.pendingSet[name]
}

func (w *archiveWriter) taken(name string) bool {
	return w.live[name] != nil || w.isNew(name)
}

// claim frees name for a new member. A taken name is resolved through the
// policy with local offered as the site's own actions; replace drops the old
// member without asking. Members written in this session cannot be replaced.
func (w *archiveWriter) claim(op, name string, replace bool, local ...recovery.Action) error {
	if err := w.parentsAreDirs(op, name); err != nil {
		return err
	}
	for w.taken(name) {
		cerr := conflict(op, w.display(name), w.isDir(name))
		if w.isNew(name) {
			return w.env.fail(cerr)
		}
		if replace {
			w.drop(name)
			return nil
		}
		a, err := w.env.Policy.Resolve(cerr, local...)
		if err != nil {
			return err
		}
		switch a {
		case recovery.Overwrite:
			w.drop(name)
		case recovery.Duplicate:
			w.move(name, duplicateName(name, w.taken))
		default:
			return w.env.fail(cerr)
		}
	}
	return nil
}

// parentsAreDirs fails with ENOTDIR when a parent of name is taken by
// something other than a directory.
func (w *archiveWriter) parentsAreDirs(op, name string) error {
	for p := parentName(name); p != ""; p = parentName(p) {
		if w.taken(p) && !w.isDir(p) {
			return w.env.fail(errno(op, w.display(p), syscall.ENOTDIR))
		}
	}
	return nil
}

// under returns the live old names equal to or below name.
func (w *archiveWriter) under(name string) []string {
	var out []string
	for n := range w.live {
		if n == name || strings.HasPrefix(n, name+"/") {
			out = append(out, n)
		}
	}
	return out
}

// drop removes name and everything below it from the rewritten archive.
func (w *archiveWriter) drop(name string) {
	for _, n := range w.under(name) {
		w.live[n].cur = ""
		delete(w.live, n)
	}
}

// move renames name and everything below it to dst.
func (w *archiveWriter) move(name, dst string) {
	names := w.under(name)
	moved := make([]*oldEntry, 0, len(names))
	for _, n := range names {
		e := w.live[n]
		delete(w.live, n)
		e.cur = dst + strings.TrimPrefix(n, name)
		moved = append(moved, e)
	}
	for _, e := range moved {
		w.live[e.cur] = e
	}
	w.env.log().Debug("renamed archive member", "from", name, "to", dst)
}

func (w *archiveWriter) hasChildren(name string) bool {
	prefix := name + "/"
	for n := range w.live {
		if strings.HasPrefix(n, prefix) {
			return true
		}
	}
	return w.impliedNew[name]
}

func (w *archiveWriter) display(name string) string {
	return joinDisplay(w.target, name)
}

func (w *archiveWriter) busy(op, name string) error {
	if w.done {
		return errno(op, w.display(name), syscall.EBADF)
	}
	if w.open {
		return errno(op, w.display(name), syscall.EBUSY)
	}
	return nil
}

//nolint:ireturn // File is the backend-agnostic output contract
func (w *archiveWriter) Create(name string, st *Stat, flags CreateFlags) (File, error) {
	return w.create(joinName(w.sub, name), st, flags)
}

//nolint:ireturn // File is the backend-agnostic output contract
func (w *archiveWriter) create(full string, st *Stat, flags CreateFlags) (File, error) {
	if err := w.busy("create", full); err != nil {
		return nil, err
	}
	if err := w.claim("create", full, flags&Exclusive == 0, recovery.Overwrite, recovery.Duplicate); err != nil {
		return nil, err
	}
	w.open = true
	return &archiveFile{w: w, name: full, st: st}, nil
}

func (w *archiveWriter) Mkdir(name string, deferred bool) error {
	return w.mkdir(joinName(w.sub, name), deferred)
}

func (w *archiveWriter) mkdir(full string, deferred bool) error {
	if err := w.busy("mkdir", full); err != nil {
		return err
	}
	if err := w.claim("mkdir", full, false, recovery.Overwrite, recovery.Duplicate); err != nil {
		return err
	}
	if deferred {
		w.pending = append(w.pending, full)
		w.pendingSet[full] = true
		return nil
	}
	return w.writeDir(full, nil)
}

func (w *archiveWriter) Symlink(name, target string, st *Stat) error {
	return w.symlink(joinName(w.sub, name), target, st)
}

func (w *archiveWriter) symlink(full, target string, st *Stat) error {
	if err := w.busy("symlink", full); err != nil {
		return err
	}
	if err := w.claim("symlink", full, false, recovery.Overwrite, recovery.Duplicate); err != nil {
		return err
	}
	h := newHeader(full, archive.TypeSymlink, st)
	h.Linkname = target
	h.Size = 0
	if err := w.w.WriteHeader(h); err != nil {
		return w.env.fail(ioError("symlink", w.display(full), err))
	}
	w.markWritten(full)
	return nil
}

func (w *archiveWriter) SetAttributes(name string, st *Stat) error {
	return w.setAttributes(joinName(w.sub, name), st)
}

func (w *archiveWriter) setAttributes(full string, st *Stat) error {
	if err := w.busy("set attributes", full); err != nil {
		return err
	}
	switch {
	case w.pendingSet[full]:
		delete(w.pendingSet, full)
		return w.writeDir(full, st)
	case w.written[full]:
		// Already emitted with its final attributes.
		return nil
	case w.live[full] != nil:
		w.live[full].attrs = st
		return nil
	case w.impliedNew[full]:
		return w.writeDir(full, st)
	default:
		return w.env.fail(errno("set attributes", w.display(full), syscall.ENOENT))
	}
}

// Rename moves the old member src, a name within this archive, to dst.
func (w *archiveWriter) Rename(src, dst string) error {
	return w.rename(archive.CleanName(src), joinName(w.sub, dst))
}

func (w *archiveWriter) rename(src, full string) error {
	if err := w.busy("rename", full); err != nil {
		return err
	}
	switch {
	case w.live[src] == nil:
		return w.env.fail(errno("rename", w.display(src), syscall.ENOENT))
	case src == full:
		return nil
	case strings.HasPrefix(full, src+"/"):
		return w.env.fail(errno("rename", w.display(src), syscall.EINVAL))
	}
	if err := w.claim("rename", full, false, recovery.Overwrite, recovery.Duplicate); err != nil {
		return err
	}
	w.move(src, full)
	return nil
}

func (w *archiveWriter) Remove(name string, relative bool) error {
	if relative {
		return w.remove(joinName(w.sub, name))
	}
	return w.remove(archive.CleanName(name))
}

func (w *archiveWriter) remove(full string) error {
	if err := w.busy("remove", full); err != nil {
		return err
	}
	switch e := w.live[full]; {
	case e != nil:
		if e.typ == TypeDir && w.hasChildren(full) {
			return w.env.fail(errno("remove", w.display(full), syscall.ENOTEMPTY))
		}
		e.cur = ""
		delete(w.live, full)
		return nil
	case w.pendingSet[full]:
		delete(w.pendingSet, full)
		return nil
	case w.isNew(full):
		return w.env.fail(errno("remove", w.display(full), syscall.EBUSY))
	default:
		return w.env.fail(errno("remove", w.display(full), syscall.ENOENT))
	}
}

func (w *archiveWriter) FileID(name string) (FileID, bool) {
	return archiveID(w.storeID, joinName(w.sub, name)), true
}

func (w *archiveWriter) writeDir(name string, st *Stat) error {
	if err := w.w.WriteHeader(newHeader(name, archive.TypeDir, st)); err != nil {
		return w.env.fail(ioError("mkdir", w.display(name), err))
	}
	w.dirs[name] = true
	w.markWritten(name)
	return nil
}

func (w *archiveWriter) markWritten(name string) {
	w.written[name] = true
	delete(w.pendingSet, name)
	for p := parentName(name); p != ""; p = parentName(p) {
		w.impliedNew[p] = true
	}
}

// Close copies the surviving old members into the new archive and replaces
// the target with it. Cancellation is checked between members; the final
// swap runs in a no-cancel section.
func (w *archiveWriter) Close() error {
	if w.done {
		return nil
	}
	if w.open {
		return errno("close", w.target, syscall.EBUSY)
	}
	if err := w.copyOld(); err != nil {
		w.discard()
		return err
	}
	for _, name := range w.pending {
		if w.pendingSet[name] && !w.impliedNew[name] {
			if err := w.writeDir(name, nil); err != nil {
				w.discard()
				return err
			}
		}
	}

	if err := w.env.enterNoCancel(); err != nil {
		w.discard()
		return err
	}
	err := w.commit()
	if exitErr := w.env.exitNoCancel(); err == nil {
		err = exitErr
	}
	return err
}

func (w *archiveWriter) copyOld() error {
	if w.source == "" {
		return nil
	}
	byName := make(map[string]*oldEntry, len(w.old))
	var implied []*oldEntry
	for _, e := range w.old {
		if e.cur == "" {
			continue
		}
		if e.hdr == nil {
			implied = append(implied, e)
			continue
		}
		byName[e.name] = e
	}

	if len(byName) > 0 {
		r, err := Archive{Codec: w.codec, Path: w.source}.openReader()
		if err != nil {
			return err
		}
		defer r.Close()
		for seq := 0; ; seq++ {
			if err := w.env.test(); err != nil {
				return err
			}
			h, err := r.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return ioError("read archive", w.source, err)
			}
			e := byName[h.Name]
			if e == nil || e.seq != seq {
				continue
			}
			out := *h
			out.Name = e.cur
			applyStat(&out, e.attrs)
			if err := w.w.CopyEntry(r, &out); err != nil {
				return ioError("copy entry", w.display(e.cur), err)
			}
		}
	}

	// Directories that only existed through their members are written out
	// once nothing is left inside them.
	for _, e := range implied {
		if !w.hasChildren(e.cur) && !w.written[e.cur] {
			if err := w.writeDir(e.cur, e.attrs); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *archiveWriter) commit() error {
	defer platform.DeregisterTmp(w.tmpPath)
	w.done = true
	if err := w.w.Close(); err != nil {
		w.removeTmp()
		return ioError("close archive", w.target, err)
	}
	if err := w.tmp.Chmod(w.mode); err != nil {
		w.removeTmp()
		return ioError("chmod", w.target, err)
	}
	if err := w.tmp.Close(); err != nil {
		_ = os.Remove(w.tmpPath)
		return ioError("close", w.target, err)
	}
	if err := os.Rename(w.tmpPath, w.target); err != nil {
		_ = os.Remove(w.tmpPath)
		return ioError("rename", w.target, err)
	}
	w.env.log().Debug("archive committed", "path", w.target)
	return nil
}

// Abort discards the staged archive.
func (w *archiveWriter) Abort() error {
	if w.done {
		return nil
	}
	w.discard()
	w.env.log().Debug("archive changes discarded", "path", w.target)
	return nil
}

func (w *archiveWriter) discard() {
	w.done = true
	w.removeTmp()
	platform.DeregisterTmp(w.tmpPath)
}

func (w *archiveWriter) removeTmp() {
	_ = w.tmp.Close()
	_ = os.Remove(w.tmpPath)
}

func newHeader(name string, typ archive.EntryType, st *Stat) *archive.Header {
	h := &archive.Header{Name: name, Type: typ, Mode: 0o644, ModTime: time.Now()}
	if typ == archive.TypeDir {
		h.Mode = impliedDirMode
	}
	applyStat(h, st)
	return h
}

func applyStat(h *archive.Header, st *Stat) {
	if st == nil {
		return
	}
	if st.Mode != 0 {
		h.Mode = st.Mode.Perm()
	}
	if !st.ModTime.IsZero() {
		h.ModTime = st.ModTime
	}
	h.UID = st.UID
	h.GID = st.GID
}

// archiveFile spools one new member and writes it on Close.
type archiveFile struct {
	w    *archiveWriter
	st   *Stat
	sp   spool
	name string
}

func (f *archiveFile) Write(p []byte) (int, error) {
	n, err := f.sp.Write(p)
	if err != nil {
		return n, ioError("write", f.w.display(f.name), err)
	}
	return n, nil
}

func (f *archiveFile) Close() error {
	defer f.sp.release()
	w := f.w
	w.open = false
	if w.done {
		return errno("close", w.display(f.name), syscall.EBADF)
	}
	h := newHeader(f.name, archive.TypeRegular, f.st)
	h.Size = f.sp.n
	if err := w.w.WriteHeader(h); err != nil {
		return ioError("create entry", w.display(f.name), err)
	}
	data, err := f.sp.reader()
	if err != nil {
		return ioError("write", w.display(f.name), err)
	}
	if _, err := io.Copy(w.w, data); err != nil {
		return ioError("write", w.display(f.name), err)
	}
	w.markWritten(f.name)
	return nil
}

func (f *archiveFile) Abort() error {
	f.sp.release()
	f.w.open = false
	return nil
}

// spool buffers data in memory and spills to a temporary file past
// spoolMemLimit.
type spool struct {
	f   *os.File
	buf bytes.Buffer
	n   int64
}

func (s *spool) Write(p []byte) (int, error) {
	if s.f == nil && s.buf.Len()+len(p) > spoolMemLimit {
		f, err := os.CreateTemp("", "arcfs-spool-*")
		if err != nil {
			return 0, err
		}
		platform.RegisterTmp(f.Name())
		s.f = f
		if _, err := s.buf.WriteTo(f); err != nil {
			return 0, err
		}
	}
	var n int
	var err error
	if s.f != nil {
		n, err = s.f.Write(p)
	} else {
		n, err = s.buf.Write(p)
	}
	s.n += int64(n)
	return n, err
}

func (s *spool) reader() (io.Reader, error) {
	if s.f == nil {
		return &s.buf, nil
	}
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return s.f, nil
}

func (s *spool) release() {
	if s.f != nil {
		_ = s.f.Close()
		platform.RemoveTmp(s.f.Name())
		s.f = nil
	}
	s.buf.Reset()
}

// liveNames lists the names the rewritten archive will contain, for tests
// and diagnostics.
func (w *archiveWriter) liveNames() []string {
	names := make([]string, 0, len(w.live)+len(w.written))
	for n := range w.live {
		names = append(names, n)
	}
	for n := range w.written {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
