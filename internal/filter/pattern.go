package filter

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// pattern is an rsync-style glob. A pattern without a slash matches the
// base name at any depth; one with a slash matches the whole relative path.
type pattern struct {
	glob     string
	anchored bool // matched against the whole path
	dirOnly  bool // trailing slash: directories only
}

func compilePattern(s string) (pattern, error) {
	p := pattern{}
	glob := s
	if strings.HasSuffix(glob, "/") {
		p.dirOnly = true
		glob = strings.TrimSuffix(glob, "/")
	}
	if strings.HasPrefix(glob, "/") {
		glob = strings.TrimPrefix(glob, "/")
		p.anchored = true
	} else if strings.Contains(glob, "/") {
		p.anchored = true
	}
	if glob == "" || !doublestar.ValidatePattern(glob) {
		return pattern{}, fmt.Errorf("invalid filter pattern %q", s)
	}
	p.glob = glob
	return p, nil
}

func (p pattern) match(rel string, isDir bool) bool {
	if p.dirOnly && !isDir {
		return false
	}
	subject := rel
	if !p.anchored {
		subject = path.Base(rel)
	}
	ok, _ := doublestar.Match(p.glob, subject) //nolint:errcheck // validated in compilePattern
	return ok
}
