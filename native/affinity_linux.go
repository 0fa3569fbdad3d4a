//go:build linux

// CPU pinning for scheduler threads
package native

import "golang.org/x/sys/unix"

// SetCPUAffinity pins the current thread to a single CPU core.
func SetCPUAffinity(core int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	return unix.SchedSetaffinity(0, &set)
}
