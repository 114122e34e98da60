package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func extractCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <archive/member>",
		Short: "Unpack a single file to a temporary directory and print its path",
		Long: `Unpack one regular file, typically a member of a (nested) archive, into a
fresh temporary directory and print the path of the unpacked file. The caller
removes the directory when done with it.`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(o, func(ctx context.Context, a *app, args []string) error {
			dir, name, err := a.locate(args[0])
			if err != nil {
				return err
			}
			return a.runTasks(ctx, a.eng.UnpackTask(dir, name, func(path string) {
				fmt.Fprintln(os.Stdout, path)
			}))
		}),
	}
}
