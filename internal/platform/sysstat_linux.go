//go:build linux

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
		Dev:     st.Dev,
		Ino:     st.Ino,
		UID:     int(st.Uid),
		GID:     int(st.Gid),
		AccTime: time.Unix(st.Atim.Sec, st.Atim.Nsec),
	}, true
}
