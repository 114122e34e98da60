//go:build !((linux || darwin || freebsd) && cgo)

package archive

func openPlugin(path string) (Codec, error) {
	return nil, &PluginLoadError{Path: path, Reason: LoadFailed, Err: errPluginsUnsupported}
}
