package archive

import (
	"errors"
	"fmt"
	"sync"
)

// PluginSymbol is the name a codec plugin exports. It must be either a
// variable of type Codec or a function of type func() Codec.
const PluginSymbol = "Codec"

// LoadReason classifies a plugin load failure.
type LoadReason int

const (
	// LoadFailed means the shared object could not be opened at all.
	LoadFailed LoadReason = iota
	// APIIncomplete means the object opened but does not export a usable codec.
	APIIncomplete
)

func (r LoadReason) String() string {
	if r == APIIncomplete {
		return "api incomplete"
	}
	return "load failed"
}

// PluginLoadError is returned once per plugin path when loading fails. It is
// never retryable.
type PluginLoadError struct {
	Err    error
	Path   string
	Reason LoadReason
}

func (e *PluginLoadError) Error() string {
	return fmt.Sprintf("loading codec plugin %s: %s: %v", e.Path, e.Reason, e.Err)
}

func (e *PluginLoadError) Unwrap() error { return e.Err }

// Retryable always reports false.
func (e *PluginLoadError) Retryable() bool { return false }

var errPluginsUnsupported = errors.New("codec plugins are not supported on this platform")

type pluginResult struct {
	codec Codec
	err   error
}

var (
	pluginMu    sync.Mutex
	pluginCache = make(map[string]pluginResult)
)

// LoadPlugin opens the codec plugin at path. Results, including failures,
// are cached for the lifetime of the process: a loaded codec is shared by
// every archive opened through it.
func LoadPlugin(path string) (Codec, error) {
	pluginMu.Lock()
	defer pluginMu.Unlock()

	if r, ok := pluginCache[path]; ok {
		return r.codec, r.err
	}
	c, err := openPlugin(path)
	pluginCache[path] = pluginResult{codec: c, err: err}
	return c, err
}

// codecFromSymbol accepts the two export shapes a plugin may use.
func codecFromSymbol(path string, sym any) (Codec, error) {
	switch v := sym.(type) {
	case *Codec:
		if *v == nil {
			return nil, &PluginLoadError{Path: path, Reason: APIIncomplete, Err: errors.New("exported codec is nil")}
		}
		return *v, nil
	case func() Codec:
		c := v()
		if c == nil {
			return nil, &PluginLoadError{Path: path, Reason: APIIncomplete, Err: errors.New("codec constructor returned nil")}
		}
		return c, nil
	default:
		return nil, &PluginLoadError{
			Path:   path,
			Reason: APIIncomplete,
			Err:    fmt.Errorf("symbol %s has type %T", PluginSymbol, sym),
		}
	}
}
