// Package platform holds the OS-specific pieces of the local data path:
// pooled transfer buffers, preallocation, raw stat fields and the registry
// of in-flight temporary files.
package platform

import "sync"

// DefaultBlockSize is the transfer block size used when none is configured.
const DefaultBlockSize = 1 << 20 // 1 MiB

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, DefaultBlockSize)
		return &b
	},
}

// GetBuffer returns a buffer of exactly size bytes. Buffers of the default
// size come from a pool and must be handed back with PutBuffer.
func GetBuffer(size int) *[]byte {
	if size <= 0 || size == DefaultBlockSize {
		return bufPool.Get().(*[]byte) //nolint:errcheck,forcetypeassert // pool only holds *[]byte
	}
	b := make([]byte, size)
	return &b
}

// PutBuffer returns a buffer obtained from GetBuffer.
func PutBuffer(b *[]byte) {
	if b != nil && len(*b) == DefaultBlockSize {
		bufPool.Put(b)
	}
}
