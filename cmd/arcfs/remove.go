package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/bamsammich/arcfs/internal/taskqueue"
	"github.com/bamsammich/arcfs/internal/vfs"
)

func removeCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <path>...",
		Aliases: []string{"delete"},
		Short:   "Delete files and directories, recursively",
		Args:    cobra.MinimumNArgs(1),
		RunE: withApp(o, func(ctx context.Context, a *app, args []string) error {
			sels, err := a.selections(args)
			if err != nil {
				return err
			}
			tasks := make([]taskqueue.Task, len(sels))
			for i, s := range sels {
				tasks[i] = a.eng.DeleteTask(s.dir, s.names)
			}
			return a.runTasks(ctx, tasks...)
		}),
	}
}

func mkdirCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>...",
		Short: "Create directories, including missing parents",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(o, func(ctx context.Context, a *app, args []string) error {
			tasks := make([]taskqueue.Task, len(args))
			for i, p := range args {
				dst, err := vfs.Resolve(p, a.catalog)
				if err != nil {
					return err
				}
				tasks[i] = a.eng.MkdirTask(dst)
			}
			return a.runTasks(ctx, tasks...)
		}),
	}
}
