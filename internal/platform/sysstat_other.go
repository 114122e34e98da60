//go:build !linux && !darwin

package platform

import "io/fs"

func sysStat(_ fs.FileInfo) (SysStat, bool) { return SysStat{}, false }
