// Package filter decides which entries of a tree operation take part in it,
// from ordered include/exclude glob rules and file size bounds.
package filter

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
)

type rule struct {
	pattern pattern
	include bool
}

// Chain holds an ordered list of filter rules plus size filters. A nil
// Chain includes everything.
type Chain struct {
	rules   []rule
	minSize int64
	maxSize int64
}

// NewChain creates an empty filter chain.
func NewChain() *Chain {
	return &Chain{}
}

// AddExclude adds an exclude rule for the given pattern.
func (c *Chain) AddExclude(pattern string) error { return c.add(pattern, false) }

// AddInclude adds an include rule for the given pattern.
func (c *Chain) AddInclude(pattern string) error { return c.add(pattern, true) }

func (c *Chain) add(s string, include bool) error {
	p, err := compilePattern(s)
	if err != nil {
		return err
	}
	c.rules = append(c.rules, rule{pattern: p, include: include})
	return nil
}

// SetMinSize excludes regular files smaller than size, e.g. "10KiB".
func (c *Chain) SetMinSize(size string) error {
	n, err := parseSize(size)
	c.minSize = n
	return err
}

// SetMaxSize excludes regular files larger than size, e.g. "1G".
func (c *Chain) SetMaxSize(size string) error {
	n, err := parseSize(size)
	c.maxSize = n
	return err
}

func parseSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return int64(n), nil //nolint:gosec // G115: sizes fit in int64
}

// Empty reports whether the chain has no rules and no size filters.
func (c *Chain) Empty() bool {
	return c == nil || (len(c.rules) == 0 && c.minSize == 0 && c.maxSize == 0)
}

// Match reports whether the entry at rel (slash separated, relative to the
// operation's source directory) is included. size is ignored for
// directories. The first matching rule wins; no match includes.
func (c *Chain) Match(rel string, isDir bool, size int64) bool {
	if c == nil {
		return true
	}
	if !isDir {
		if c.minSize > 0 && size < c.minSize {
			return false
		}
		if c.maxSize > 0 && size > c.maxSize {
			return false
		}
	}
	for _, r := range c.rules {
		if r.pattern.match(rel, isDir) {
			return r.include
		}
	}
	return true
}

// LoadFile reads filter rules from a file and adds them to the chain, one
// rule per line:
//
//	- pattern   exclude
//	+ pattern   include
//	# comment   ignored
//	pattern     exclude
func (c *Chain) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open filter file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		include := false
		if rest, ok := strings.CutPrefix(line, "+ "); ok {
			include, line = true, strings.TrimSpace(rest)
		} else if rest, ok := strings.CutPrefix(line, "- "); ok {
			line = strings.TrimSpace(rest)
		}
		if err := c.add(line, include); err != nil {
			return fmt.Errorf("filter file %s line %d: %w", path, lineNum, err)
		}
	}
	return scanner.Err()
}
