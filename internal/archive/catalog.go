package archive

import (
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

type rule struct {
	codec   Codec
	pattern string
}

// Catalog selects a codec for a file name. Patterns are doublestar globs
// matched case-insensitively against the base name; the first matching
// pattern wins.
type Catalog struct {
	rules []rule
	mu    sync.RWMutex
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{}
}

// DefaultCatalog returns a catalog with the built-in codecs registered.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	c.RegisterDefaults()
	return c
}

// RegisterDefaults appends the built-in codec patterns.
func (c *Catalog) RegisterDefaults() {
	for _, r := range []struct {
		codec    Codec
		patterns []string
	}{
		{Zip(), []string{"*.zip", "*.jar"}},
		{TarGzip(), []string{"*.tar.gz", "*.tgz"}},
		{TarZstd(), []string{"*.tar.zst", "*.tzst"}},
		{Tar(), []string{"*.tar"}},
	} {
		for _, p := range r.patterns {
			_ = c.Register(p, r.codec) //nolint:errcheck // built-in patterns are valid
		}
	}
}

// Register appends a pattern for codec. Earlier registrations take
// precedence over later ones.
func (c *Catalog) Register(pattern string, codec Codec) error {
	pattern = strings.ToLower(pattern)
	if !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("invalid archive pattern %q", pattern)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = append(c.rules, rule{pattern: pattern, codec: codec})
	return nil
}

// Resolve returns the codec for the file called name, if any.
func (c *Catalog) Resolve(name string) (Codec, bool) {
	if c == nil {
		return nil, false
	}
	base := strings.ToLower(path.Base(strings.ReplaceAll(name, "\\", "/")))
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.rules {
		if ok, _ := doublestar.Match(r.pattern, base); ok { //nolint:errcheck // validated on Register
			return r.codec, true
		}
	}
	return nil, false
}

// Lookup returns the built-in codec called name.
func Lookup(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "zip":
		return Zip(), nil
	case "tar":
		return Tar(), nil
	case "tar.gz", "tgz":
		return TarGzip(), nil
	case "tar.zst", "tzst":
		return TarZstd(), nil
	default:
		return nil, fmt.Errorf("unknown archive codec %q", name)
	}
}
