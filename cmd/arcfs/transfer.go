package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/bamsammich/arcfs/internal/taskqueue"
	"github.com/bamsammich/arcfs/internal/vfs"
)

func copyCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "cp <source>... <destination>",
		Short: "Copy files and directories",
		Long: `Copy sources into destination. A single source is copied under the
destination's name when the destination does not exist yet; a trailing slash
makes it a directory instead.`,
		Args: cobra.MinimumNArgs(2),
		RunE: withApp(o, func(ctx context.Context, a *app, args []string) error {
			return a.transfer(ctx, args, func(s selection, dst vfs.Resolved) taskqueue.Task {
				return a.eng.CopyTask(s.dir, s.names, dst)
			})
		}),
	}
}

func moveCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:     "mv <source>... <destination>",
		Aliases: []string{"move"},
		Short:   "Move files and directories",
		Long: `Move sources into destination. Within one filesystem or archive entries are
renamed in place; otherwise they are copied and removed once written.`,
		Args: cobra.MinimumNArgs(2),
		RunE: withApp(o, func(ctx context.Context, a *app, args []string) error {
			return a.transfer(ctx, args, func(s selection, dst vfs.Resolved) taskqueue.Task {
				return a.eng.MoveTask(s.dir, s.names, dst)
			})
		}),
	}
}

func (a *app) transfer(ctx context.Context, args []string, task func(selection, vfs.Resolved) taskqueue.Task) error {
	sources := args[:len(args)-1]
	sels, err := a.selections(sources)
	if err != nil {
		return err
	}
	dst, err := a.target(args[len(args)-1], len(sources))
	if err != nil {
		return err
	}
	tasks := make([]taskqueue.Task, len(sels))
	for i, s := range sels {
		tasks[i] = task(s, dst)
	}
	return a.runTasks(ctx, tasks...)
}
