package main

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/bamsammich/arcfs/internal/vfs"
)

// selection is a run of source names sharing one parent location.
type selection struct {
	dir   vfs.DirType
	names []string
}

// locate splits an existing path into its parent location and base name.
//
//nolint:ireturn // vfs.DirType variants
func (a *app) locate(p string) (vfs.DirType, string, error) {
	clean := strings.TrimRight(filepath.ToSlash(p), "/")
	if clean == "" {
		return nil, "", fmt.Errorf("%s: cannot operate on the root", p)
	}
	parent, name := filepath.Split(filepath.FromSlash(clean))
	if parent == "" {
		parent = "."
	}
	res, err := vfs.Resolve(parent, a.catalog)
	if err != nil {
		return nil, "", err
	}
	if res.Rest != "" {
		return nil, "", fmt.Errorf("%s: %w", p, fs.ErrNotExist)
	}
	return res.Dir, name, nil
}

// selections groups consecutive paths with the same parent, keeping the
// order they were given in.
func (a *app) selections(paths []string) ([]selection, error) {
	var out []selection
	for _, p := range paths {
		dir, name, err := a.locate(p)
		if err != nil {
			return nil, err
		}
		if n := len(out); n > 0 && out[n-1].dir.String() == dir.String() {
			out[n-1].names = append(out[n-1].names, name)
			continue
		}
		out = append(out, selection{dir: dir, names: []string{name}})
	}
	return out, nil
}

// target resolves the destination of a copy or move. With more than one
// source a missing destination is always a directory.
func (a *app) target(p string, sources int) (vfs.Resolved, error) {
	dst, err := vfs.Resolve(p, a.catalog)
	if err != nil {
		return vfs.Resolved{}, err
	}
	if sources > 1 && dst.Rest != "" {
		dst.IsDir = true
	}
	return dst, nil
}
