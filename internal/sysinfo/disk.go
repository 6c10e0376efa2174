//go:build linux || darwin

// Package sysinfo probes the machine the exhibition runs on.
package sysinfo

import "golang.org/x/sys/unix"

// FreeDiskGB returns the free space of the filesystem holding path, in
// gigabytes. Months of generated objects plus python temp files can fill a
// gallery machine; the dashboard surfaces this so someone notices in time.
func FreeDiskGB(path string) float64 {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0
	}
	return float64(st.Bavail) * float64(st.Bsize) / 1e9
}
