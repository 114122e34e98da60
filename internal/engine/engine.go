// Package engine implements the tree operations (copy, move, delete, mkdir
// and unpack-to-temp) on top of the vfs layer, and packages them as tasks
// for a taskqueue.
package engine

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"strings"

	"golang.org/x/time/rate"

	"github.com/bamsammich/arcfs/internal/cancel"
	"github.com/bamsammich/arcfs/internal/event"
	"github.com/bamsammich/arcfs/internal/filter"
	"github.com/bamsammich/arcfs/internal/platform"
	"github.com/bamsammich/arcfs/internal/recovery"
	"github.com/bamsammich/arcfs/internal/stats"
	"github.com/bamsammich/arcfs/internal/vfs"
)

// Config configures an Engine.
type Config struct {
	// Handler chooses recovery actions. Nil aborts on every error.
	Handler recovery.Handler
	// Stats receives counters of every operation. May be nil.
	Stats  *stats.Collector
	Logger *slog.Logger
	// BlockSize is the unit of data transfer and cancellation checks.
	BlockSize int
	// BWLimit caps copy throughput in bytes per second. Zero is unlimited.
	BWLimit int64
	// Filter restricts which entries copy and move take. Nil takes all.
	Filter *filter.Chain
}

// Engine runs tree operations. It is safe for concurrent use; every
// operation gets its own recovery policy.
type Engine struct {
	limiter *rate.Limiter
	cfg     Config
}

// New returns an engine for cfg.
func New(cfg Config) *Engine {
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = platform.DefaultBlockSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	e := &Engine{cfg: cfg}
	if cfg.BWLimit > 0 {
		e.limiter = NewBWLimiter(cfg.BWLimit)
	}
	return e
}

// run is the state of one operation.
type run struct {
	cs      *cancel.State
	policy  *recovery.Policy
	log     *slog.Logger
	stats   *stats.Collector
	limiter *rate.Limiter
	filter  *filter.Chain
	block   int
}

func (e *Engine) newRun(cs *cancel.State, op string) *run {
	if cs == nil {
		cs = cancel.New()
	}
	return &run{
		cs:      cs,
		policy:  recovery.New(e.cfg.Handler),
		log:     e.cfg.Logger.With("op", op),
		stats:   e.cfg.Stats,
		limiter: e.limiter,
		filter:  e.cfg.Filter,
		block:   e.cfg.BlockSize,
	}
}

func (r *run) env() vfs.Env {
	return vfs.Env{Cancel: r.cs, Policy: r.policy, Logger: r.log}
}

func (r *run) progress(t event.Type, name string, size int64) error {
	return r.cs.Progress(event.New(t, name, size))
}

// bracket runs fn between the Begin and Finish events. A recovery signal
// nobody consumed ends the operation with the error it carries.
func (r *run) bracket(fn func() error) error {
	if err := r.progress(event.Begin, "", 0); err != nil {
		return err
	}
	err := fn()
	var u *recovery.Unwind
	if errors.As(err, &u) {
		err = u.Err
	}
	if errors.Is(err, cancel.ErrCancelled) {
		return err
	}
	if err != nil {
		r.stats.AddFailed(1)
	}
	if perr := r.progress(event.Finish, "", 0); err == nil {
		err = perr
	}
	return err
}

// fail consults the policy about a raw error from a File or lister.
func (r *run) fail(err error) error {
	if err == nil || errors.Is(err, cancel.ErrCancelled) {
		return err
	}
	_, err = r.policy.Resolve(err)
	return err
}

// guard runs fn with the Skip action offered. A Skip choice is consumed
// here and reported as skipped.
func (r *run) guard(name string, fn func() error) (skipped bool, err error) {
	closeScope := r.policy.Scope(recovery.Skip)
	err = fn()
	closeScope()
	if recovery.Caught(err, recovery.Skip) {
		r.log.Info("skipped", "path", name, "error", errors.Unwrap(err))
		r.stats.AddSkipped(1)
		return true, nil
	}
	return false, err
}

// mkdir creates name, treating an existing directory as created when the
// WriteInto action is chosen.
func (r *run) mkdir(w vfs.DirWriter, name string, deferred bool) error {
	closeScope := r.policy.Scope(recovery.WriteInto)
	err := w.Mkdir(name, deferred)
	closeScope()
	switch {
	case recovery.Caught(err, recovery.WriteInto):
		r.log.Debug("writing into existing directory", "path", name)
		return nil
	case err != nil:
		return err
	}
	r.stats.AddDirsCreated(1)
	return nil
}

// stream copies src to dst block by block, testing for cancellation and
// reporting every block.
func (r *run) stream(name string, src io.Reader, dst io.Writer) error {
	bufp := platform.GetBuffer(r.block)
	defer platform.PutBuffer(bufp)
	buf := *bufp

	for {
		if err := r.cs.Test(); err != nil {
			return err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if err := waitBandwidth(r.cs, r.limiter, n); err != nil {
				return err
			}
			if _, err := dst.Write(buf[:n]); err != nil {
				return r.fail(err)
			}
			r.stats.AddBytesCopied(int64(n))
			if err := r.progress(event.ProcessData, name, int64(n)); err != nil {
				return err
			}
		}
		switch {
		case errors.Is(rerr, io.EOF):
			return nil
		case rerr != nil:
			return r.fail(rerr)
		}
	}
}

// destination maps source entry names to names below a destination writer.
type destination struct {
	prefix string
	// from and to rename a single selected entry.
	from, to string
}

func (d destination) name(n string) string {
	if d.to != "" {
		switch {
		case n == d.from:
			n = d.to
		case strings.HasPrefix(n, d.from+"/"):
			n = d.to + n[len(d.from):]
		}
	}
	return path.Join(d.prefix, n)
}

// prepare creates the missing directories of dst and works out the name
// mapping. With a single selected entry and a destination that does not
// name a directory, the last missing component becomes the entry's new
// name.
func (r *run) prepare(w vfs.DirWriter, names []string, dst vfs.Resolved, created map[vfs.FileID]bool) (destination, error) {
	if dst.Rest == "" {
		return destination{}, nil
	}
	dirs, last := path.Dir(dst.Rest), path.Base(dst.Rest)
	if len(names) != 1 || dst.IsDir {
		dirs, last = dst.Rest, ""
	}
	if dirs == "." {
		dirs = ""
	}
	if dirs != "" {
		p := ""
		for _, c := range strings.Split(dirs, "/") {
			p = path.Join(p, c)
			if err := r.mkdir(w, p, false); err != nil {
				return destination{}, err
			}
			if id, ok := w.FileID(p); ok && created != nil {
				created[id] = true
			}
		}
	}
	d := destination{prefix: dirs}
	if last != "" {
		d.from, d.to = names[0], last
	}
	return d, nil
}

func checkNames(names []string) error {
	if len(names) == 0 {
		return errors.New("no entries selected")
	}
	for _, n := range names {
		if n == "" || n == "." || n == ".." || strings.Contains(n, "/") {
			return fmt.Errorf("entry %q: %w", n, fs.ErrInvalid)
		}
	}
	return nil
}

// closeWriter closes w, or aborts it when the operation failed. The first
// error wins.
func closeWriter(w vfs.DirWriter, err *error) {
	if *err != nil {
		_ = w.Abort()
		return
	}
	*err = w.Close()
}
