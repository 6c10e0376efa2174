//go:build !linux && !darwin

package sysinfo

// FreeDiskGB is not implemented on this platform; the dashboard shows the
// field as unavailable when it reads 0.
func FreeDiskGB(path string) float64 {
	return 0
}
