package vfs

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bamsammich/arcfs/internal/archive"
)

// Resolved is the result of Resolve. Rest holds the trailing components that
// do not (yet) exist below Dir, slash separated.
type Resolved struct {
	Dir  DirType
	Rest string
	// IsDir is set when the path ended in a separator, so Rest names a
	// directory rather than a file.
	IsDir bool
}

// Resolve turns a user-typed path into a location. Tildes and dot
// components are expanded, and each component is matched against the live
// directory contents: an exact match wins, then the first case-insensitive
// one. Components naming an archive the catalog recognizes switch
// resolution into the archive, recursing into nested archives.
//
// Resolution stops at the first component that cannot be found or whose
// parent cannot be listed; that component and everything after it are
// returned in Rest. A missing component the catalog recognizes as an archive
// name, when followed by more components or a trailing slash, resolves to a
// new archive so it can be created by writing into it.
func Resolve(p string, cat Catalog) (Resolved, error) {
	abs, err := expandPath(p)
	if err != nil {
		return Resolved{}, err
	}
	trailing := strings.HasSuffix(p, "/") || strings.HasSuffix(p, string(filepath.Separator))
	comps := splitComponents(filepath.ToSlash(abs))
	res := resolveLocal(comps, cat, trailing)
	res.IsDir = trailing
	return res, nil
}

func expandPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding %s: %w", p, err)
		}
		p = filepath.Join(home, p[1:])
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", p, err)
	}
	return abs, nil
}

func splitComponents(p string) []string {
	var out []string
	for _, c := range strings.Split(p, "/") {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func restOf(first string, more []string) string {
	return path.Join(append([]string{first}, more...)...)
}

func resolveLocal(comps []string, cat Catalog, trailing bool) Resolved {
	cur := string(filepath.Separator)
	for i, c := range comps {
		more := i < len(comps)-1 || trailing
		names, err := readDirNames(cur)
		if err != nil {
			return Resolved{Dir: RegularDir{Path: cur}, Rest: restOf(c, comps[i+1:])}
		}
		name, found := matchName(names, c)
		if !found {
			if codec, ok := catResolve(cat, c); ok && more {
				return Resolved{
					Dir:  Archive{Codec: codec, Path: filepath.Join(cur, c)},
					Rest: path.Join(comps[i+1:]...),
				}
			}
			return Resolved{Dir: RegularDir{Path: cur}, Rest: restOf(c, comps[i+1:])}
		}

		next := filepath.Join(cur, name)
		fi, err := os.Stat(next)
		switch {
		case err != nil:
		case fi.IsDir():
			cur = next
			continue
		case fi.Mode().IsRegular():
			if codec, ok := catResolve(cat, name); ok {
				stop := Resolved{Dir: RegularDir{Path: cur}, Rest: restOf(name, comps[i+1:])}
				return resolveArchive(Archive{Codec: codec, Path: next}, comps[i+1:], cat, trailing, stop)
			}
		}
		return Resolved{Dir: RegularDir{Path: cur}, Rest: restOf(name, comps[i+1:])}
	}
	return Resolved{Dir: RegularDir{Path: cur}}
}

// resolveArchive continues resolution inside store. stop is returned when
// the archive cannot be read.
func resolveArchive(store archiveStore, comps []string, cat Catalog, trailing bool, stop Resolved) Resolved {
	ix, _, err := readIndex(store)
	if err != nil {
		return stop
	}
	root := store.WithSubpath("")
	cur := ""
	for i, c := range comps {
		more := i < len(comps)-1 || trailing
		var children []string
		for _, n := range ix.entries[cur].children {
			children = append(children, baseName(n))
		}
		base, found := matchName(children, c)
		if !found {
			if codec, ok := catResolve(cat, c); ok && more {
				return Resolved{
					Dir:  SubArchive{Codec: codec, Parent: root, Inner: joinName(cur, c)},
					Rest: path.Join(comps[i+1:]...),
				}
			}
			return Resolved{Dir: store.WithSubpath(cur), Rest: restOf(c, comps[i+1:])}
		}

		name := joinName(cur, base)
		switch e := ix.entries[name]; e.typ {
		case TypeDir:
			cur = name
			continue
		case TypeRegular:
			if codec, ok := catResolve(cat, base); ok {
				here := Resolved{Dir: store.WithSubpath(cur), Rest: restOf(base, comps[i+1:])}
				sub := SubArchive{Codec: codec, Parent: root, Inner: name}
				return resolveArchive(sub, comps[i+1:], cat, trailing, here)
			}
		}
		return Resolved{Dir: store.WithSubpath(cur), Rest: restOf(base, comps[i+1:])}
	}
	return Resolved{Dir: store.WithSubpath(cur)}
}

// matchName returns the first exact match for c in names, else the first
// case-insensitive one.
func matchName(names []string, c string) (string, bool) {
	for _, n := range names {
		if n == c {
			return n, true
		}
	}
	for _, n := range names {
		if strings.EqualFold(n, c) {
			return n, true
		}
	}
	return "", false
}

//nolint:ireturn // archive.Codec is the codec contract
func catResolve(cat Catalog, name string) (archive.Codec, bool) {
	if cat == nil {
		return nil, false
	}
	return cat.Resolve(name)
}
