package platform

import (
	"os"
	"sync"
)

// globalTmpRegistry tracks in-progress temporary files (archive staging
// copies, spooled entries, extracted nested archives) so an interrupted
// process can still remove them.
var globalTmpRegistry = &tmpRegistry{}

type tmpRegistry struct {
	paths map[string]struct{}
	mu    sync.Mutex
}

// RegisterTmp adds a temporary file path to the global registry.
func RegisterTmp(path string) {
	globalTmpRegistry.mu.Lock()
	defer globalTmpRegistry.mu.Unlock()
	if globalTmpRegistry.paths == nil {
		globalTmpRegistry.paths = make(map[string]struct{})
	}
	globalTmpRegistry.paths[path] = struct{}{}
}

// DeregisterTmp removes a temporary file path from the global registry.
func DeregisterTmp(path string) {
	globalTmpRegistry.mu.Lock()
	defer globalTmpRegistry.mu.Unlock()
	delete(globalTmpRegistry.paths, path)
}

// RemoveTmp deletes a registered temporary file and forgets it.
func RemoveTmp(path string) {
	DeregisterTmp(path)
	_ = os.Remove(path)
}

// CleanupTmpFiles removes all registered temporary files.
func CleanupTmpFiles() {
	globalTmpRegistry.mu.Lock()
	paths := make([]string, 0, len(globalTmpRegistry.paths))
	for p := range globalTmpRegistry.paths {
		paths = append(paths, p)
	}
	globalTmpRegistry.paths = nil
	globalTmpRegistry.mu.Unlock()

	for _, p := range paths {
		_ = os.Remove(p)
	}
}
