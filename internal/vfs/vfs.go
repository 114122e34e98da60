// Package vfs is the storage layer shared by every tree operation. A DirType
// names a location in a real directory or inside a (possibly nested)
// archive; it hands out Listers and TreeListers to read that location and a
// DirWriter to mutate it.
package vfs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/bamsammich/arcfs/internal/archive"
	"github.com/bamsammich/arcfs/internal/cancel"
	"github.com/bamsammich/arcfs/internal/recovery"
)

// FileType classifies an entry.
type FileType int

const (
	TypeRegular FileType = iota
	TypeDir
	TypeSymlink
	TypeOther
)

func (t FileType) String() string {
	switch t {
	case TypeRegular:
		return "regular"
	case TypeDir:
		return "dir"
	case TypeSymlink:
		return "symlink"
	default:
		return "other"
	}
}

// Stat is the metadata carried by an entry.
type Stat struct {
	ModTime time.Time
	AccTime time.Time
	Size    int64
	Dev     uint64
	Ino     uint64
	Mode    fs.FileMode // permission bits
	UID     int
	GID     int
}

// FileID identifies an object within a store. The zero FileID means the
// identity is unknown.
type FileID struct {
	Dev uint64
	Ino uint64
}

// Valid reports whether the id is known.
func (id FileID) Valid() bool { return id != FileID{} }

// Entry is one object discovered by a lister. It is only valid for the
// duration of the callback or Next call that produced it.
type Entry struct {
	Stat   *Stat  // nil when the entry could not be stat'ed
	Name   string // slash separated, relative to the lister's subpath
	Target string // symlink target
	ID     FileID
	Type   FileType
}

// VisitKind tells a VisitFunc where in the traversal an entry is.
type VisitKind int

const (
	// Leaf is the single visit of a non-directory.
	Leaf VisitKind = iota
	// Pre is the visit of a directory before its children.
	Pre
	// Post is the visit of a directory after all of its children.
	Post
	// Cycle is a directory that is its own ancestor. It is not descended.
	Cycle
)

func (k VisitKind) String() string {
	switch k {
	case Leaf:
		return "leaf"
	case Pre:
		return "pre"
	case Post:
		return "post"
	case Cycle:
		return "cycle"
	default:
		return "unknown"
	}
}

// VisitFunc receives every entry of a tree traversal. Returning false from a
// Pre visit prunes the directory: neither its children nor its Post visit
// are delivered. The result is ignored for other kinds. A non-nil error
// stops the traversal and is returned by ListEntries.
type VisitFunc func(e *Entry, kind VisitKind) (bool, error)

// Lister enumerates one directory level. It is not restartable.
type Lister interface {
	// Next returns the next entry or io.EOF.
	Next() (*Entry, error)
	// Stat returns the full metadata of the entry last returned by Next.
	Stat() (*Stat, error)
	// Open opens the data of the entry last returned by Next.
	Open() (io.ReadCloser, error)
	Close() error
}

// TreeLister drives a depth-first traversal over a set of root names.
type TreeLister interface {
	ListEntries(fn VisitFunc) error
	// OpenEntry opens the regular file currently being visited. It is only
	// valid inside the Leaf visit of that file.
	OpenEntry() (io.ReadCloser, error)
	Close() error
}

// File is a regular file being written through a DirWriter. Close commits
// it; Abort discards it.
type File interface {
	io.Writer
	Close() error
	Abort() error
}

// CreateFlags modify DirWriter.Create.
type CreateFlags int

const (
	// Exclusive fails with fs.ErrExist when the name is taken, offering the
	// Overwrite and Duplicate recovery actions.
	Exclusive CreateFlags = 1 << iota
	// Replace silently replaces an existing entry.
	Replace
)

// DirWriter mutates one location. Names are relative to the writer's
// subpath unless stated otherwise.
type DirWriter interface {
	Create(name string, st *Stat, flags CreateFlags) (File, error)
	// Mkdir creates a directory. deferred allows the backend to postpone
	// creation until a child or attributes are written.
	Mkdir(name string, deferred bool) error
	Symlink(name, target string, st *Stat) error
	// SetAttributes applies st to an existing entry. It never creates.
	SetAttributes(name string, st *Stat) error
	// Rename moves src, a store path in the same store, to dst.
	Rename(src, dst string) error
	// Remove deletes one entry. With relative false, name is a store path.
	Remove(name string, relative bool) error
	// FileID returns the identity of name, if the backend has one.
	FileID(name string) (FileID, bool)
	// Close finalizes all pending work.
	Close() error
	// Abort discards pending work. It is safe to call after Close.
	Abort() error
}

// Catalog selects the archive codec for a file name.
type Catalog interface {
	Resolve(name string) (archive.Codec, bool)
}

// Env is what a writer needs from the task running it. Every field may be
// left nil.
type Env struct {
	Cancel *cancel.State
	Policy *recovery.Policy
	Logger *slog.Logger
}

func (e Env) test() error {
	if e.Cancel == nil {
		return nil
	}
	return e.Cancel.Test()
}

func (e Env) enterNoCancel() error {
	if e.Cancel == nil {
		return nil
	}
	return e.Cancel.EnterNoCancel()
}

func (e Env) exitNoCancel() error {
	if e.Cancel == nil {
		return nil
	}
	return e.Cancel.ExitNoCancel()
}

// fail consults the recovery policy about err. The result is either an
// *recovery.Unwind for an enclosing scope or err itself.
func (e Env) fail(err error) error {
	_, err = e.Policy.Resolve(err)
	return err
}

func (e Env) log() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// IOError is a failed filesystem or codec call.
type IOError struct {
	Err      error
	Op       string
	Path     string
	CanRetry bool
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Retryable reports whether the call may be attempted again.
func (e *IOError) Retryable() bool { return e.CanRetry }

// ioError wraps err as an *IOError. Cancellation, recovery signals and
// errors that already are IOErrors pass through unchanged.
func ioError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var ie *IOError
	var u *recovery.Unwind
	if errors.As(err, &ie) || errors.As(err, &u) || errors.Is(err, cancel.ErrCancelled) {
		return err
	}
	var pe *fs.PathError
	var le *os.LinkError
	switch {
	case errors.As(err, &pe):
		err = pe.Err
	case errors.As(err, &le):
		err = le.Err
	}
	return &IOError{Op: op, Path: path, Err: err, CanRetry: retryable(err)}
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, syscall.EINTR),
		errors.Is(err, syscall.EAGAIN),
		errors.Is(err, syscall.EBUSY),
		errors.Is(err, syscall.ETIMEDOUT):
		return true
	}
	var ae *archive.Error
	return errors.As(err, &ae) && ae.Retryable()
}

// ConflictError is an EEXIST failure. IsDir tells whether the entry in the
// way is a directory, which is what makes WriteInto applicable.
type ConflictError struct {
	IOError
	IsDir bool
}

// DirExists implements recovery.DirConflict.
func (e *ConflictError) DirExists() bool { return e.IsDir }

func conflict(op, path string, isDir bool) error {
	return &ConflictError{IOError: IOError{Op: op, Path: path, Err: syscall.EEXIST}, IsDir: isDir}
}

// errno returns an IOError carrying a bare errno.
func errno(op, path string, e syscall.Errno) error {
	return &IOError{Op: op, Path: path, Err: e}
}
