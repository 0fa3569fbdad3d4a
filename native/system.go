// Process-wide driver initialization and per-thread core pinning
package native

import (
	"runtime"
	"sync"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultPoolSize is the frame count used when the configuration does
	// not specify one.
	DefaultPoolSize = 2048
	// DefaultCacheSize is the per-core cache hint passed through to the pool.
	DefaultCacheSize = 32
)

var (
	systemMu    sync.Mutex
	defaultPool *Mempool
)

// InitSystem initializes the process-wide driver state: the frame pool
// shared by all ports and schedulers. It is called exactly once at startup.
func InitSystem(name string, poolSize, cacheSize int) {
	systemMu.Lock()
	defer systemMu.Unlock()
	if defaultPool != nil {
		return
	}
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	defaultPool = NewMempool(poolSize, cacheSize)
	log.Infof("🚀 driver initialized: instance %s, %d frames of %d bytes", name, poolSize, FrameSize)
}

// DefaultPool returns the process-wide frame pool. When InitSystem has not
// run yet, it creates the pool with DefaultPoolSize and DefaultCacheSize.
func DefaultPool() *Mempool {
	systemMu.Lock()
	defer systemMu.Unlock()
	if defaultPool == nil {
		defaultPool = NewMempool(DefaultPoolSize, DefaultCacheSize)
	}
	return defaultPool
}

// InitThread locks the calling goroutine to its OS thread and pins it to
// the given core. Every scheduler thread calls this before entering its
// run loop.
func InitThread(tid, core int) error {
	runtime.LockOSThread()
	return SetCPUAffinity(core)
}
