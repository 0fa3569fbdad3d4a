//go:build !linux

// Affinity is a no-op off linux; the thread stays OS-scheduled
package native

// SetCPUAffinity pins the current thread to a single CPU core.
func SetCPUAffinity(core int) error { return nil }
