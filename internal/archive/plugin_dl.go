//go:build (linux || darwin || freebsd) && cgo

package archive

import "plugin"

func openPlugin(path string) (Codec, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, &PluginLoadError{Path: path, Reason: LoadFailed, Err: err}
	}
	sym, err := p.Lookup(PluginSymbol)
	if err != nil {
		return nil, &PluginLoadError{Path: path, Reason: APIIncomplete, Err: err}
	}
	return codecFromSymbol(path, sym)
}
