//go:build darwin

package platform

import (
	"io/fs"
	"syscall"
	"time"
)

func sysStat(fi fs.FileInfo) (SysStat, bool) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return SysStat{}, false
	}
	return SysStat{
		Dev:     uint64(st.Dev), //nolint:gosec // G115: dev_t is int32 on darwin, always non-negative
		Ino:     st.Ino,
		UID:     int(st.Uid),
		GID:     int(st.Gid),
		AccTime: time.Unix(st.Atimespec.Sec, st.Atimespec.Nsec),
	}, true
}
