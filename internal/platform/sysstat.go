package platform

import (
	"io/fs"
	"time"
)

// SysStat carries the stat fields os.FileInfo does not expose portably.
type SysStat struct {
	AccTime time.Time
	Dev     uint64
	Ino     uint64
	UID     int
	GID     int
}

// SysStatOf extracts the raw stat fields of fi. ok is false when the
// platform provides none.
func SysStatOf(fi fs.FileInfo) (st SysStat, ok bool) {
	if fi == nil {
		return SysStat{}, false
	}
	return sysStat(fi)
}
