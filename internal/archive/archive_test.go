package archive

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type member struct {
	name   string
	data   string
	link   string
	typ    EntryType
	mode   fs.FileMode
	modSec int64
}

func writeArchive(t *testing.T, c Codec, path string, members []member) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w, err := c.Create(f, Format{Codec: c.Name()})
	require.NoError(t, err)
	for _, m := range members {
		h := &Header{
			Name:     m.name,
			Linkname: m.link,
			Size:     int64(len(m.data)),
			Mode:     m.mode,
			ModTime:  time.Unix(m.modSec, 0),
			Type:     m.typ,
		}
		require.NoError(t, w.WriteHeader(h))
		if m.typ == TypeRegular {
			_, err := w.Write([]byte(m.data))
			require.NoError(t, err)
		}
	}
	require.NoError(t, w.Close())
}

func readArchive(t *testing.T, r Reader) []member {
	t.Helper()
	var out []member
	for {
		h, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		m := member{name: h.Name, typ: h.Type, link: h.Linkname, mode: h.Mode, modSec: h.ModTime.Unix()}
		if h.Type == TypeRegular {
			data, err := io.ReadAll(r)
			require.NoError(t, err)
			m.data = string(data)
		}
		out = append(out, m)
	}
	return out
}

var sampleMembers = []member{
	{name: "dir", typ: TypeDir, mode: 0o755, modSec: 1700000000},
	{name: "dir/a.txt", data: "alpha", typ: TypeRegular, mode: 0o644, modSec: 1700000100},
	{name: "dir/link", link: "a.txt", typ: TypeSymlink, mode: 0o777, modSec: 1700000200},
	{name: "top.bin", data: string(bytes.Repeat([]byte{7}, 70000)), typ: TypeRegular, mode: 0o600, modSec: 1700000300},
}

func TestCodecs_RoundTrip(t *testing.T) {
	for _, c := range []Codec{Zip(), Tar(), TarGzip(), TarZstd()} {
		t.Run(c.Name(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "a."+c.Name())
			writeArchive(t, c, path, sampleMembers)

			r, err := c.Open(path)
			require.NoError(t, err)
			got := readArchive(t, r)
			require.NoError(t, r.Close())

			require.Len(t, got, len(sampleMembers))
			for i, want := range sampleMembers {
				assert.Equal(t, want.name, got[i].name)
				assert.Equal(t, want.typ, got[i].typ)
				assert.Equal(t, want.data, got[i].data)
				assert.Equal(t, want.link, got[i].link)
				assert.Equal(t, want.modSec, got[i].modSec)
				if want.typ != TypeSymlink {
					assert.Equal(t, want.mode, got[i].mode, want.name)
				}
			}
		})
	}
}

func TestCodecs_OpenStream(t *testing.T) {
	for _, c := range []Codec{Zip(), Tar(), TarGzip(), TarZstd()} {
		t.Run(c.Name(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "a."+c.Name())
			writeArchive(t, c, path, sampleMembers)
			data, err := os.ReadFile(path)
			require.NoError(t, err)

			r, err := c.OpenStream(bytes.NewReader(data))
			require.NoError(t, err)
			defer r.Close()
			got := readArchive(t, r)
			require.Len(t, got, len(sampleMembers))
			assert.Equal(t, "alpha", got[1].data)
			assert.Equal(t, c.Name(), r.Format().Codec)
		})
	}
}

func TestCodecs_CopyEntry(t *testing.T) {
	for _, c := range []Codec{Zip(), Tar(), TarGzip()} {
		t.Run(c.Name(), func(t *testing.T) {
			dir := t.TempDir()
			src := filepath.Join(dir, "src")
			writeArchive(t, c, src, sampleMembers)

			r, err := c.Open(src)
			require.NoError(t, err)
			defer r.Close()

			var out bytes.Buffer
			w, err := c.Create(&out, r.Format())
			require.NoError(t, err)
			for {
				h, err := r.Next()
				if errors.Is(err, io.EOF) {
					break
				}
				require.NoError(t, err)
				if h.Name == "dir/a.txt" {
					h.Name = "dir/a (2).txt"
				}
				require.NoError(t, w.CopyEntry(r, h))
			}
			require.NoError(t, w.Close())

			r2, err := c.OpenStream(bytes.NewReader(out.Bytes()))
			require.NoError(t, err)
			defer r2.Close()
			got := readArchive(t, r2)
			require.Len(t, got, len(sampleMembers))
			assert.Equal(t, "dir/a (2).txt", got[1].name)
			assert.Equal(t, "alpha", got[1].data)
			assert.Equal(t, "a.txt", got[2].link)
			assert.Len(t, got[3].data, 70000)
		})
	}
}

func TestZip_PreservesComment(t *testing.T) {
	var buf bytes.Buffer
	w, err := Zip().Create(&buf, Format{Codec: "zip", Comment: "hello"})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := Zip().OpenStream(&buf)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, "hello", r.Format().Comment)
}

func TestTar_RegularNeedsSize(t *testing.T) {
	w, err := Tar().Create(io.Discard, Format{})
	require.NoError(t, err)
	err = w.WriteHeader(&Header{Name: "x", Size: -1, Type: TypeRegular})
	require.Error(t, err)
	assert.Equal(t, StatusFailed, StatusOf(err))
}

func TestWrap_Status(t *testing.T) {
	tests := []struct {
		err  error
		want Status
	}{
		{nil, StatusOK},
		{io.EOF, StatusEOF},
		{syscall.EINTR, StatusRetry},
		{syscall.EAGAIN, StatusRetry},
		{io.ErrUnexpectedEOF, StatusFatal},
		{errors.New("boom"), StatusFailed},
	}
	for _, tt := range tests {
		err := wrap("op", tt.err)
		assert.Equal(t, tt.want, StatusOf(err), "%v", tt.err)
	}

	var ae *Error
	require.ErrorAs(t, wrap("op", syscall.EAGAIN), &ae)
	assert.True(t, ae.Retryable())
	assert.ErrorIs(t, ae, syscall.EAGAIN)
}

func TestCleanName(t *testing.T) {
	assert.Equal(t, "a/b", CleanName("./a//b/"))
	assert.Equal(t, "a/b", CleanName("/a/x/../b"))
	assert.Equal(t, "a/b", CleanName(`a\b`))
	assert.Equal(t, "", CleanName("/"))
}
