package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/bamsammich/arcfs/internal/cancel"
	"github.com/bamsammich/arcfs/internal/event"
	"github.com/bamsammich/arcfs/internal/taskqueue"
	"github.com/bamsammich/arcfs/internal/ui"
)

// runTasks executes tasks one after another on a queue while a presenter
// shows their progress. SIGINT and SIGTERM cancel the running task and drop
// the rest. The first task error is returned.
func (a *app) runTasks(ctx context.Context, tasks ...taskqueue.Task) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events := make(chan event.Event, 256)
	presenter := ui.NewPresenter(ui.Config{
		Writer:     os.Stdout,
		ErrWriter:  os.Stderr,
		Stats:      a.stats,
		Width:      ui.TermWidth(os.Stderr.Fd()),
		IsTTY:      ui.IsTTY(os.Stderr.Fd()),
		Quiet:      a.opts.quiet,
		Verbose:    a.opts.verbose,
		NoProgress: a.opts.noProgress,
	})

	q := taskqueue.New(slog.Default())
	errs := make([]error, len(tasks))
	var cancelled atomic.Bool

	var g errgroup.Group
	g.Go(func() error { return presenter.Run(events) })
	g.Go(func() error {
		defer close(events)
		for i, task := range tasks {
			cs := cancel.New()
			cs.OnProgress(func(ev event.Event) { events <- ev })
			cs.OnFinish(func(c bool) {
				if c {
					cancelled.Store(true)
				}
			})
			stopWatch := cs.Watch(ctx)
			q.Add(func(cs *cancel.State) error {
				defer stopWatch()
				errs[i] = task(cs)
				return errs[i]
			}, cs)
		}
		go func() {
			<-ctx.Done()
			q.Cancel()
		}()
		q.Wait()
		return nil
	})
	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "presenter: %v\n", err)
	}

	if !a.opts.quiet {
		if summary := presenter.Summary(); summary != "" {
			fmt.Fprintln(os.Stderr, summary)
		}
	}

	if cancelled.Load() {
		return &exitError{code: 130}
	}
	if err := errors.Join(errs...); err != nil {
		slog.Error("operation failed", "error", err)
		if a.stats.Snapshot().FilesCopied > 0 {
			return &exitError{code: 1} // partial failure
		}
		return &exitError{code: 2}
	}
	return nil
}
