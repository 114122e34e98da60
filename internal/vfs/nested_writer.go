package vfs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/bamsammich/arcfs/internal/platform"
)

// Compile-time interface checks.
var _ DirWriter = (*nestedWriter)(nil)

// nestedWriter writes into an archive stored inside another archive. The
// inner archive is extracted to a scratch file and rewritten there by the
// embedded archiveWriter; Close then stores the result back into the parent
// through the parent's own writer, so closing cascades through every level.
type nestedWriter struct {
	*archiveWriter
	parent  DirWriter
	inner   string
	scratch string
	mode    fs.FileMode
	closed  bool
}

//nolint:ireturn // DirWriter is the backend-agnostic mutation contract
func newNestedWriter(env Env, s SubArchive) (DirWriter, error) {
	parent, ok := s.Parent.(archiveStore)
	if !ok {
		return nil, fmt.Errorf("nested archive %s: parent %s is not an archive", s.Inner, s.Parent)
	}

	scratch := filepath.Join(os.TempDir(),
		fmt.Sprintf("arcfs-nested-%s-%s", uuid.New().String()[:8], filepath.Base(s.Inner)))
	mode, err := extractMember(parent, s.Inner, scratch)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		mode = 0o644 // new inner archive
	case err != nil:
		return nil, err
	}

	pw, err := parent.WithSubpath("").Writer(env)
	if err != nil {
		platform.RemoveTmp(scratch)
		return nil, err
	}
	aw, err := newArchiveWriter(env, s.Codec, scratch, scratch, s.Sub, s.StoreID())
	if err != nil {
		_ = pw.Abort()
		platform.RemoveTmp(scratch)
		return nil, err
	}
	return &nestedWriter{
		archiveWriter: aw,
		parent:        pw,
		inner:         s.Inner,
		scratch:       scratch,
		mode:          mode,
	}, nil
}

// extractMember copies the member name of store to dst.
func extractMember(store archiveStore, name, dst string) (fs.FileMode, error) {
	r, err := store.openReader()
	if err != nil {
		return 0, err
	}
	defer r.Close()
	h, err := seekMember(r, name)
	if err != nil {
		return 0, ioError("open", joinDisplay(store.String(), name), err)
	}
	if fileType(h.Type) != TypeRegular {
		return 0, errno("open", joinDisplay(store.String(), name), syscall.EISDIR)
	}

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return 0, ioError("create", dst, err)
	}
	platform.RegisterTmp(dst)
	_, err = io.Copy(f, &memberReader{r: r, name: name})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		platform.RemoveTmp(dst)
		return 0, ioError("extract", joinDisplay(store.String(), name), err)
	}
	return h.Mode, nil
}

// Close commits the inner archive, stores it back into the parent and
// closes the parent.
func (n *nestedWriter) Close() error {
	if n.closed {
		return nil
	}
	n.closed = true
	defer platform.RemoveTmp(n.scratch)

	if err := n.archiveWriter.Close(); err != nil {
		_ = n.parent.Abort()
		return err
	}
	if err := n.storeInner(); err != nil {
		_ = n.parent.Abort()
		return err
	}
	return n.parent.Close()
}

func (n *nestedWriter) storeInner() error {
	f, err := os.Open(n.scratch)
	if err != nil {
		return ioError("open", n.scratch, err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return ioError("stat", n.scratch, err)
	}

	st := &Stat{Size: fi.Size(), Mode: n.mode, ModTime: time.Now()}
	out, err := n.parent.Create(n.inner, st, Replace)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, f); err != nil {
		_ = out.Abort()
		return ioError("write", n.inner, err)
	}
	return out.Close()
}

// Abort discards the changes at every level.
func (n *nestedWriter) Abort() error {
	if n.closed {
		return nil
	}
	n.closed = true
	_ = n.archiveWriter.Abort()
	_ = n.parent.Abort()
	platform.RemoveTmp(n.scratch)
	return nil
}
