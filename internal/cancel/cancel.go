// Package cancel implements the per-task cooperative cancellation state.
//
// A State moves between CanCancel and NoCancel while the task runs and ends
// in Cancelled once cancellation is requested. The finish callback fires
// exactly once per State: either when cancellation is observed or when the
// owner reports completion, whichever comes first.
package cancel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/bamsammich/arcfs/internal/event"
)

// ErrCancelled is returned from preemption points once the state is cancelled.
var ErrCancelled = errors.New("operation cancelled")

const (
	canCancel int32 = iota
	noCancel
	cancelled
)

// State is the cancellation token, finish notification and progress sink of
// one task. Test, EnterNoCancel, ExitNoCancel and Progress must only be
// called by the goroutine running the task. Cancel may be called from any
// goroutine. Callbacks must be registered before the task starts.
type State struct {
	state    atomic.Int32
	finished atomic.Bool
	depth    int // owner goroutine only

	onFinish   func(cancelled bool)
	onProgress func(event.Event)

	ctx    context.Context
	cancel context.CancelFunc
}

// New returns a State in CanCancel.
func New() *State {
	ctx, cancel := context.WithCancel(context.Background())
	return &State{ctx: ctx, cancel: cancel}
}

// OnFinish sets the finish callback.
func (s *State) OnFinish(fn func(cancelled bool)) { s.onFinish = fn }

// OnProgress sets the progress sink.
func (s *State) OnProgress(fn func(event.Event)) { s.onProgress = fn }

// Context returns a context that is done once Cancel has been called. It lets
// blocking waits (rate limiting) observe cancellation.
func (s *State) Context() context.Context { return s.ctx }

// Cancelled reports whether cancellation has been requested.
func (s *State) Cancelled() bool { return s.state.Load() == cancelled }

// Test returns ErrCancelled if the state is cancelled.
func (s *State) Test() error {
	if s.state.Load() == cancelled {
		return ErrCancelled
	}
	return nil
}

// EnterNoCancel opens a protected section. Cancellation requested inside it
// is deferred until the matching ExitNoCancel. Sections nest.
func (s *State) EnterNoCancel() error {
	if s.depth > 0 {
		s.depth++
		return nil
	}
	if !s.state.CompareAndSwap(canCancel, noCancel) {
		return ErrCancelled
	}
	s.depth = 1
	return nil
}

// ExitNoCancel closes a protected section. If cancellation arrived while the
// section was open, the finish notification fires now and ErrCancelled is
// returned.
func (s *State) ExitNoCancel() error {
	if s.depth == 0 {
		return s.Test()
	}
	s.depth--
	if s.depth > 0 {
		return nil
	}
	if s.state.CompareAndSwap(noCancel, canCancel) {
		return nil
	}
	s.Finish(true)
	return ErrCancelled
}

// Cancel requests cancellation. When the task is not inside a protected
// section the finish notification fires immediately.
func (s *State) Cancel() {
	prev := s.state.Swap(cancelled)
	s.cancel()
	if prev == canCancel {
		s.Finish(true)
	}
}

// Finish fires the finish notification. Only the first call has an effect.
func (s *State) Finish(cancelled bool) {
	if !s.finished.CompareAndSwap(false, true) {
		return
	}
	if s.onFinish != nil {
		s.onFinish(cancelled)
	}
}

// Finished reports whether the finish notification has fired.
func (s *State) Finished() bool { return s.finished.Load() }

// Progress delivers ev to the progress sink inside a protected section so
// the callback is never interrupted half way.
func (s *State) Progress(ev event.Event) error {
	if s.onProgress == nil {
		return s.Test()
	}
	if err := s.EnterNoCancel(); err != nil {
		return err
	}
	s.onProgress(ev)
	return s.ExitNoCancel()
}

// Watch cancels s when ctx is done. The returned function stops watching.
func (s *State) Watch(ctx context.Context) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.Cancel()
		case <-done:
		case <-s.ctx.Done():
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
