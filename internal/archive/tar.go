package archive

import (
	"archive/tar"
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compile-time interface checks.
var (
	_ Codec  = tarCodec{}
	_ Reader = (*tarReader)(nil)
	_ Writer = (*tarWriter)(nil)
)

// Compression selects the stream compression wrapped around a tar archive.
type Compression int

const (
	CompressNone Compression = iota
	CompressGzip
	CompressZstd
)

type tarCodec struct {
	name string
	comp Compression
}

// Tar returns the codec for uncompressed tar archives.
func Tar() Codec { return tarCodec{name: "tar", comp: CompressNone} }

// TarGzip returns the codec for gzip-compressed tar archives.
func TarGzip() Codec { return tarCodec{name: "tar.gz", comp: CompressGzip} }

// TarZstd returns the codec for zstd-compressed tar archives.
func TarZstd() Codec { return tarCodec{name: "tar.zst", comp: CompressZstd} }

func (c tarCodec) Name() string { return c.name }

func (c tarCodec) Open(path string) (Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrap("open", err)
	}
	r, err := c.OpenStream(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	tr := r.(*tarReader)
	tr.closers = append(tr.closers, f)
	return tr, nil
}

func (c tarCodec) OpenStream(r io.Reader) (Reader, error) {
	tr := &tarReader{codec: c.name}
	switch c.comp {
	case CompressGzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, wrap("open stream", err)
		}
		tr.closers = append(tr.closers, gz)
		r = gz
	case CompressZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, wrap("open stream", err)
		}
		rc := dec.IOReadCloser()
		tr.closers = append(tr.closers, rc)
		r = rc
	}
	tr.tr = tar.NewReader(r)
	return tr, nil
}

func (c tarCodec) Create(w io.Writer, f Format) (Writer, error) {
	tw := &tarWriter{format: tar.Format(f.Variant)}
	switch c.comp {
	case CompressGzip:
		gz := gzip.NewWriter(w)
		tw.comp = gz
		w = gz
	case CompressZstd:
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return nil, wrap("create", err)
		}
		tw.comp = enc
		w = enc
	}
	tw.tw = tar.NewWriter(w)
	return tw, nil
}

type tarReader struct {
	tr      *tar.Reader
	codec   string
	closers []io.Closer
	variant tar.Format
	started bool
}

func (r *tarReader) Next() (*Header, error) {
	for {
		hdr, err := r.tr.Next()
		if err != nil {
			return nil, wrap("next entry", err)
		}
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}
		if !r.started {
			r.variant = hdr.Format
			r.started = true
		}
		h := &Header{
			Name:     CleanName(hdr.Name),
			Linkname: hdr.Linkname,
			Size:     hdr.Size,
			Mode:     fs.FileMode(hdr.Mode).Perm(), //nolint:gosec // G115: permission bits only
			ModTime:  hdr.ModTime,
			UID:      hdr.Uid,
			GID:      hdr.Gid,
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			h.Type = TypeDir
			h.Size = 0
		case tar.TypeReg, tar.TypeRegA: //nolint:staticcheck // TypeRegA still appears in old archives
			h.Type = TypeRegular
		case tar.TypeSymlink:
			h.Type = TypeSymlink
		default:
			h.Type = TypeOther
		}
		if h.Name == "" {
			continue
		}
		return h, nil
	}
}

func (r *tarReader) Read(p []byte) (int, error) {
	n, err := r.tr.Read(p)
	return n, wrap("unpack", err)
}

func (r *tarReader) Format() Format {
	return Format{Codec: r.codec, Variant: int(r.variant)}
}

func (r *tarReader) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return wrap("close", errors.Join(errs...))
}

type tarWriter struct {
	tw     *tar.Writer
	comp   io.WriteCloser
	format tar.Format
}

func (w *tarWriter) WriteHeader(h *Header) error {
	hdr := &tar.Header{
		Name:     h.Name,
		Linkname: h.Linkname,
		Mode:     int64(h.Mode.Perm()),
		ModTime:  h.ModTime,
		Uid:      h.UID,
		Gid:      h.GID,
	}
	if w.format == tar.FormatPAX || w.format == tar.FormatGNU {
		hdr.Format = w.format
	}
	switch h.Type {
	case TypeDir:
		hdr.Typeflag = tar.TypeDir
		hdr.Name += "/"
	case TypeSymlink:
		hdr.Typeflag = tar.TypeSymlink
	case TypeRegular:
		if h.Size < 0 {
			return &Error{Op: "create entry", Status: StatusFailed, Err: errors.New("tar members need a size")}
		}
		hdr.Typeflag = tar.TypeReg
		hdr.Size = h.Size
	default:
		return &Error{Op: "create entry", Status: StatusFailed, Err: errors.New("unsupported entry type " + h.Type.String())}
	}
	return wrap("create entry", w.tw.WriteHeader(hdr))
}

func (w *tarWriter) Write(p []byte) (int, error) {
	n, err := w.tw.Write(p)
	return n, wrap("pack", err)
}

func (w *tarWriter) CopyEntry(src Reader, h *Header) error {
	if err := w.WriteHeader(h); err != nil {
		return err
	}
	if h.Type != TypeRegular {
		return nil
	}
	if _, err := io.Copy(w.tw, src); err != nil {
		return wrap("copy entry", err)
	}
	return nil
}

func (w *tarWriter) Close() error {
	err := w.tw.Close()
	if w.comp != nil {
		err = errors.Join(err, w.comp.Close())
	}
	return wrap("close", err)
}
