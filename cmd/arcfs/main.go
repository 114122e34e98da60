package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bamsammich/arcfs/internal/platform"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Staging files of an interrupted archive rewrite must not outlive us.
	defer platform.CleanupTmpFiles()

	opts := &options{}
	rootCmd := &cobra.Command{
		Use:   "arcfs",
		Short: "Copy, move and delete across directories and (nested) archives",
		Long: `arcfs treats archives as directories. Any path may descend into a zip or
tar archive, and into archives stored inside archives:

  arcfs cp photos/ backup.zip/2024/
  arcfs ls release.tar.gz/pkg/vendor.zip/
  arcfs mv old.tar/docs/readme.md ./`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.register(rootCmd)

	rootCmd.AddCommand(
		copyCmd(opts),
		moveCmd(opts),
		removeCmd(opts),
		mkdirCmd(opts),
		listCmd(opts),
		extractCmd(opts),
		configCmd(),
		docsCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
