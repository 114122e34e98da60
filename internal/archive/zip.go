package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/klauspost/compress/flate"
)

// Compile-time interface checks.
var (
	_ Codec  = zipCodec{}
	_ Reader = (*zipReader)(nil)
	_ Writer = (*zipWriter)(nil)
)

type zipCodec struct{}

// Zip returns the zip codec. Deflate is handled by klauspost/compress.
func Zip() Codec { return zipCodec{} }

func (zipCodec) Name() string { return "zip" }

func (c zipCodec) Open(path string) (Reader, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, wrap("open", err)
	}
	return newZipReader(&rc.Reader, rc), nil
}

// OpenStream buffers the stream in memory: the zip central directory sits at
// the end of the file and needs random access.
func (c zipCodec) OpenStream(r io.Reader) (Reader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, wrap("open stream", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, wrap("open stream", err)
	}
	return newZipReader(zr, nil), nil
}

func (zipCodec) Create(w io.Writer, f Format) (Writer, error) {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})
	if f.Comment != "" {
		if err := zw.SetComment(f.Comment); err != nil {
			return nil, wrap("create", err)
		}
	}
	return &zipWriter{zw: zw}, nil
}

type zipReader struct {
	zr     *zip.Reader
	closer io.Closer
	cur    *zip.File
	rc     io.ReadCloser
	next   int
	isLink bool
}

func newZipReader(zr *zip.Reader, closer io.Closer) *zipReader {
	zr.RegisterDecompressor(zip.Deflate, flate.NewReader)
	return &zipReader{zr: zr, closer: closer}
}

func (r *zipReader) Next() (*Header, error) {
	r.closeCurrent()
	if r.next >= len(r.zr.File) {
		r.cur = nil
		return nil, io.EOF
	}
	r.cur = r.zr.File[r.next]
	r.next++

	h := zipHeader(r.cur)
	if h.Type == TypeSymlink {
		target, err := r.readAll()
		if err != nil {
			return nil, wrap("read link", err)
		}
		h.Linkname = string(target)
		r.isLink = true
	}
	return h, nil
}

func (r *zipReader) Read(p []byte) (int, error) {
	if r.cur == nil {
		return 0, &Error{Op: "unpack", Status: StatusFailed, Err: errors.New("no current entry")}
	}
	if r.isLink {
		return 0, io.EOF
	}
	if r.rc == nil {
		rc, err := r.cur.Open()
		if err != nil {
			return 0, wrap("unpack", err)
		}
		r.rc = rc
	}
	n, err := r.rc.Read(p)
	return n, wrap("unpack", err)
}

func (r *zipReader) readAll() ([]byte, error) {
	rc, err := r.cur.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (r *zipReader) Format() Format {
	return Format{Codec: "zip", Comment: r.zr.Comment}
}

func (r *zipReader) closeCurrent() {
	if r.rc != nil {
		r.rc.Close()
		r.rc = nil
	}
	r.isLink = false
}

func (r *zipReader) Close() error {
	r.closeCurrent()
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

func zipHeader(f *zip.File) *Header {
	mode := f.Mode()
	h := &Header{
		Name:    CleanName(f.Name),
		Size:    int64(f.UncompressedSize64), //nolint:gosec // G115: sizes fit in int64
		Mode:    mode.Perm(),
		ModTime: f.Modified,
		Type:    TypeRegular,
	}
	switch {
	case mode.IsDir() || strings.HasSuffix(f.Name, "/"):
		h.Type = TypeDir
		h.Size = 0
	case mode&fs.ModeSymlink != 0:
		h.Type = TypeSymlink
	case !mode.IsRegular():
		h.Type = TypeOther
	}
	if h.Mode == 0 {
		h.Mode = 0o644
		if h.Type == TypeDir {
			h.Mode = 0o755
		}
	}
	return h
}

type zipWriter struct {
	zw  *zip.Writer
	cur io.Writer
}

func (w *zipWriter) WriteHeader(h *Header) error {
	fh := &zip.FileHeader{
		Name:     h.Name,
		Modified: h.ModTime,
		Method:   zip.Deflate,
	}
	switch h.Type {
	case TypeDir:
		fh.Name += "/"
		fh.Method = zip.Store
		fh.SetMode(fs.ModeDir | h.Mode.Perm())
	case TypeSymlink:
		fh.Method = zip.Store
		fh.SetMode(fs.ModeSymlink | 0o777)
	default:
		fh.SetMode(h.Mode.Perm())
	}

	out, err := w.zw.CreateHeader(fh)
	if err != nil {
		return wrap("create entry", err)
	}
	w.cur = out

	switch h.Type {
	case TypeDir:
		w.cur = nil
	case TypeSymlink:
		if _, err := io.WriteString(out, h.Linkname); err != nil {
			return wrap("create entry", err)
		}
		w.cur = nil
	}
	return nil
}

func (w *zipWriter) Write(p []byte) (int, error) {
	if w.cur == nil {
		return 0, &Error{Op: "pack", Status: StatusFailed, Err: errors.New("no current entry")}
	}
	n, err := w.cur.Write(p)
	return n, wrap("pack", err)
}

// CopyEntry copies the compressed member as-is when src is a zip reader, so
// no recompression happens.
func (w *zipWriter) CopyEntry(src Reader, h *Header) error {
	w.cur = nil
	zr, ok := src.(*zipReader)
	if ok && zr.cur != nil {
		// Raw copies keep the stored timestamps and mode, so changed
		// attributes go through the recompressing path.
		orig := zipHeader(zr.cur)
		ok = orig.Mode == h.Mode && orig.ModTime.Equal(h.ModTime)
	}
	if !ok || zr.cur == nil {
		if err := w.WriteHeader(h); err != nil {
			return err
		}
		if h.Type != TypeRegular {
			return nil
		}
		if _, err := io.Copy(w, src); err != nil {
			return wrap("copy entry", err)
		}
		return nil
	}

	f := *zr.cur
	if CleanName(f.Name) != h.Name {
		f.Name = h.Name
		if h.Type == TypeDir {
			f.Name += "/"
		}
	}
	if err := w.zw.Copy(&f); err != nil {
		return wrap("copy entry", fmt.Errorf("%s: %w", h.Name, err))
	}
	return nil
}

func (w *zipWriter) Close() error {
	w.cur = nil
	return wrap("close", w.zw.Close())
}
