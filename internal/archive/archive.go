// Package archive defines the codec contract the filesystem layer uses to
// read and write archive files, together with the statically linked zip
// and tar codecs and a loader for dynamically linked codec plugins.
package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
	"syscall"
	"time"
)

// Status is the result code of a codec call.
type Status int

const (
	StatusOK     Status = 0
	StatusEOF    Status = 1
	StatusRetry  Status = -1
	StatusWarn   Status = -2
	StatusFailed Status = -3
	StatusFatal  Status = -4
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEOF:
		return "eof"
	case StatusRetry:
		return "retry"
	case StatusWarn:
		return "warn"
	case StatusFailed:
		return "failed"
	case StatusFatal:
		return "fatal"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Error is a status-coded codec failure. Only StatusRetry failures may be
// attempted again.
type Error struct {
	Err    error
	Op     string
	Status Status
}

func (e *Error) Error() string {
	return fmt.Sprintf("archive %s: %s: %v", e.Op, e.Status, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the call may be reattempted.
func (e *Error) Retryable() bool { return e.Status == StatusRetry }

// StatusOf returns the codec status carried by err.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	if errors.Is(err, io.EOF) {
		return StatusEOF
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Status
	}
	return StatusFailed
}

// wrap converts a codec-internal failure into an *Error. io.EOF and errors
// that already carry a status pass through unchanged.
func wrap(op string, err error) error {
	if err == nil || errors.Is(err, io.EOF) {
		return err
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	status := StatusFailed
	switch {
	case errors.Is(err, syscall.EINTR), errors.Is(err, syscall.EAGAIN):
		status = StatusRetry
	case errors.Is(err, io.ErrUnexpectedEOF):
		status = StatusFatal
	}
	return &Error{Op: op, Status: status, Err: err}
}

// EntryType classifies an archive member.
type EntryType int

const (
	TypeRegular EntryType = iota
	TypeDir
	TypeSymlink
	TypeOther
)

func (t EntryType) String() string {
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

// Header describes one archive member. Name is slash separated and
// canonical: no leading slash, no trailing slash, no dot components.
type Header struct {
	ModTime  time.Time
	Name     string
	Linkname string
	Size     int64
	Mode     fs.FileMode // permission bits only
	UID      int
	GID      int
	Type     EntryType
}

// Format carries the archive-level properties a rewritten archive must
// inherit from the original.
type Format struct {
	Codec   string
	Comment string
	Variant int
}

// Reader enumerates the members of an archive sequentially.
type Reader interface {
	// Next advances to the next member. It returns io.EOF after the last one.
	Next() (*Header, error)
	// Read reads the data of the current member.
	Read(p []byte) (int, error)
	// Format reports the properties needed to create an archive of the same kind.
	Format() Format
	Close() error
}

// Writer produces an archive sequentially.
type Writer interface {
	// WriteHeader starts a new member. Regular members must carry their Size.
	WriteHeader(h *Header) error
	// Write appends data to the current member.
	Write(p []byte) (int, error)
	// CopyEntry copies the current member of src verbatim under header h.
	CopyEntry(src Reader, h *Header) error
	Close() error
}

// Codec is a handle to one archive format implementation.
type Codec interface {
	Name() string
	// Open opens the archive file at path for reading.
	Open(path string) (Reader, error)
	// OpenStream reads an archive from a byte stream, such as a member of
	// another archive.
	OpenStream(r io.Reader) (Reader, error)
	// Create starts a new archive of format f on w.
	Create(w io.Writer, f Format) (Writer, error)
}

// CleanName canonicalizes an archive member name.
func CleanName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Clean("/" + name)
	return strings.TrimPrefix(name, "/")
}
