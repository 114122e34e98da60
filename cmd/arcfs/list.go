package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/bamsammich/arcfs/internal/vfs"
)

func listCmd(o *options) *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List a directory or a directory inside an archive",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(o, func(_ context.Context, a *app, args []string) error {
			p := "."
			if len(args) == 1 {
				p = args[0]
			}
			res, err := vfs.Resolve(p, a.catalog)
			if err != nil {
				return err
			}
			if res.Rest != "" {
				return fmt.Errorf("%s: %w", p, fs.ErrNotExist)
			}
			return list(os.Stdout, res.Dir, long)
		}),
	}
	cmd.Flags().BoolVarP(&long, "long", "l", false, "show type, mode, size and modification time")
	return cmd
}

func list(w io.Writer, dir vfs.DirType, long bool) error {
	l, err := dir.Lister()
	if err != nil {
		return err
	}
	defer l.Close()

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for {
		e, err := l.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		name := e.Name
		switch e.Type {
		case vfs.TypeDir:
			name += "/"
		case vfs.TypeSymlink:
			name += " -> " + e.Target
		}
		if !long {
			fmt.Fprintln(tw, name)
			continue
		}
		if e.Stat == nil {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", typeChar(e.Type), "?", "-", "-", name)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			typeChar(e.Type), e.Stat.Mode.Perm(), humanize.IBytes(uint64(max(e.Stat.Size, 0))),
			e.Stat.ModTime.Format("2006-01-02 15:04"), name)
	}
	return tw.Flush()
}

func typeChar(t vfs.FileType) string {
	switch t {
	case vfs.TypeDir:
		return "d"
	case vfs.TypeSymlink:
		return "l"
	case vfs.TypeRegular:
		return "-"
	default:
		return "?"
	}
}
