package vfs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/zeebo/blake3"

	"github.com/bamsammich/arcfs/internal/archive"
)

// DirType identifies a location: a store (the local filesystem, an archive
// file, an archive inside an archive) plus a subpath within it. DirTypes are
// values; WithSubpath returns a modified copy.
type DirType interface {
	fmt.Stringer
	// Subpath is the location within the store.
	Subpath() string
	WithSubpath(sub string) DirType
	// StorePath maps a name relative to the subpath to a store path.
	StorePath(name string) string
	// StoreID names the store. Renames only work between equal StoreIDs.
	StoreID() string
	Lister() (Lister, error)
	TreeLister(names []string) (TreeLister, error)
	Writer(env Env) (DirWriter, error)
}

// Compile-time interface checks.
var (
	_ DirType      = RegularDir{}
	_ archiveStore = Archive{}
	_ archiveStore = SubArchive{}
)

// archiveStore is a DirType backed by an archive.
type archiveStore interface {
	DirType
	archiveCodec() archive.Codec
	openReader() (archive.Reader, error)
}

// RegularDir is a directory on the local filesystem. Its store is the whole
// filesystem, so the subpath is the absolute directory path.
type RegularDir struct {
	Path string
}

func (d RegularDir) String() string  { return d.Path }
func (d RegularDir) Subpath() string { return d.Path }

//nolint:ireturn // DirType is the polymorphic location descriptor
func (d RegularDir) WithSubpath(sub string) DirType {
	return RegularDir{Path: filepath.Clean(sub)}
}

func (d RegularDir) StorePath(name string) string {
	return filepath.Join(d.Path, filepath.FromSlash(name))
}

// StoreID names the device holding the nearest existing ancestor of Path.
// Devices are compared as a best-effort guess: renames across bind mounts
// still fail with EXDEV and fall back to copying.
func (d RegularDir) StoreID() string {
	p := d.Path
	for {
		if fi, err := os.Stat(p); err == nil {
			if st := statFromInfo(fi); st.Dev != 0 || st.Ino != 0 {
				return fmt.Sprintf("local:%d", st.Dev)
			}
			return "local"
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "local"
		}
		p = parent
	}
}

//nolint:ireturn // Lister is the backend-agnostic enumeration contract
func (d RegularDir) Lister() (Lister, error) { return newLocalLister(d.Path) }

//nolint:ireturn // TreeLister is the backend-agnostic traversal contract
func (d RegularDir) TreeLister(names []string) (TreeLister, error) {
	return newLocalTree(d.Path, names), nil
}

//nolint:ireturn // DirWriter is the backend-agnostic mutation contract
func (d RegularDir) Writer(env Env) (DirWriter, error) {
	return newLocalWriter(d.Path, env), nil
}

// Archive is a location inside an archive file.
type Archive struct {
	Codec archive.Codec
	Path  string
	Sub   string
}

func (a Archive) String() string  { return joinDisplay(a.Path, a.Sub) }
func (a Archive) Subpath() string { return a.Sub }

//nolint:ireturn // DirType is the polymorphic location descriptor
func (a Archive) WithSubpath(sub string) DirType {
	a.Sub = archive.CleanName(sub)
	return a
}

func (a Archive) StorePath(name string) string { return joinName(a.Sub, name) }

func (a Archive) StoreID() string {
	p, err := filepath.Abs(a.Path)
	if err != nil {
		p = a.Path
	}
	return "archive:" + p
}

//nolint:ireturn // Lister is the backend-agnostic enumeration contract
func (a Archive) Lister() (Lister, error) { return newArchiveLister(a) }

//nolint:ireturn // TreeLister is the backend-agnostic traversal contract
func (a Archive) TreeLister(names []string) (TreeLister, error) {
	return newArchiveTree(a, names), nil
}

//nolint:ireturn // DirWriter is the backend-agnostic mutation contract
func (a Archive) Writer(env Env) (DirWriter, error) {
	w, err := newArchiveWriter(env, a.Codec, a.Path, a.Path, a.Sub, a.StoreID())
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (a Archive) archiveCodec() archive.Codec { return a.Codec }

//nolint:ireturn // archive.Reader is the codec contract
func (a Archive) openReader() (archive.Reader, error) {
	r, err := a.Codec.Open(a.Path)
	if err != nil {
		return nil, ioError("open archive", a.Path, err)
	}
	return r, nil
}

// SubArchive is a location inside an archive that is itself a member of
// the archive described by Parent.
type SubArchive struct {
	Codec  archive.Codec
	Parent DirType // an Archive or SubArchive
	Inner  string  // store path of the inner archive within Parent
	Sub    string
}

func (s SubArchive) String() string {
	return joinDisplay(joinDisplay(s.Parent.WithSubpath("").String(), s.Inner), s.Sub)
}

func (s SubArchive) Subpath() string { return s.Sub }

//nolint:ireturn // DirType is the polymorphic location descriptor
func (s SubArchive) WithSubpath(sub string) DirType {
	s.Sub = archive.CleanName(sub)
	return s
}

func (s SubArchive) StorePath(name string) string { return joinName(s.Sub, name) }

func (s SubArchive) StoreID() string { return s.Parent.StoreID() + "!" + s.Inner }

//nolint:ireturn // Lister is the backend-agnostic enumeration contract
func (s SubArchive) Lister() (Lister, error) { return newArchiveLister(s) }

//nolint:ireturn // TreeLister is the backend-agnostic traversal contract
func (s SubArchive) TreeLister(names []string) (TreeLister, error) {
	return newArchiveTree(s, names), nil
}

//nolint:ireturn // DirWriter is the backend-agnostic mutation contract
func (s SubArchive) Writer(env Env) (DirWriter, error) { return newNestedWriter(env, s) }

func (s SubArchive) archiveCodec() archive.Codec { return s.Codec }

// openReader reads the parent up to the inner member and decodes the inner
// archive straight from the parent's stream.
//
//nolint:ireturn // archive.Reader is the codec contract
func (s SubArchive) openReader() (archive.Reader, error) {
	parent, ok := s.Parent.(archiveStore)
	if !ok {
		return nil, fmt.Errorf("nested archive %s: parent %s is not an archive", s.Inner, s.Parent)
	}
	pr, err := parent.openReader()
	if err != nil {
		return nil, err
	}
	h, err := seekMember(pr, s.Inner)
	if err != nil {
		pr.Close()
		return nil, ioError("open archive", s.String(), err)
	}
	if h.Type != archive.TypeRegular {
		pr.Close()
		return nil, errno("open archive", s.String(), syscall.EISDIR)
	}
	r, err := s.Codec.OpenStream(pr)
	if err != nil {
		pr.Close()
		return nil, ioError("open archive", s.String(), err)
	}
	return &chainedReader{Reader: r, parent: pr}, nil
}

// chainedReader closes the enclosing archive together with the inner one.
type chainedReader struct {
	archive.Reader
	parent archive.Reader
}

func (c *chainedReader) Close() error {
	return errors.Join(c.Reader.Close(), c.parent.Close())
}

// seekMember advances r to the member called name.
func seekMember(r archive.Reader, name string) (*archive.Header, error) {
	for {
		h, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil, syscall.ENOENT
		}
		if err != nil {
			return nil, err
		}
		if h.Name == name {
			return h, nil
		}
	}
}

// joinName joins archive names and canonicalizes the result.
func joinName(sub, name string) string {
	if sub == "" {
		return archive.CleanName(name)
	}
	return archive.CleanName(sub + "/" + name)
}

// relName returns full relative to sub, and whether full lies under sub.
func relName(sub, full string) (string, bool) {
	if sub == "" {
		return full, full != ""
	}
	if full == sub {
		return "", false
	}
	if strings.HasPrefix(full, sub+"/") {
		return full[len(sub)+1:], true
	}
	return "", false
}

func joinDisplay(base, sub string) string {
	if sub == "" {
		return base
	}
	return base + "/" + sub
}

// archiveID derives a stable identity for an archive member.
func archiveID(storeID, name string) FileID {
	h := blake3.New()
	_, _ = h.Write([]byte(storeID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(name))
	sum := h.Sum(nil)
	return FileID{
		Dev: binary.LittleEndian.Uint64(sum[0:8]),
		Ino: binary.LittleEndian.Uint64(sum[8:16]),
	}
}
