// Package netbricks is a programmable software dataplane: typed zero-copy
// packets, lazy batch operators, and per-core cooperative schedulers over
// a kernel-bypass poll-mode driver.
package netbricks

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/xid"
	log "github.com/sirupsen/logrus"

	"github.com/netsys/netbricks/config"
	"github.com/netsys/netbricks/ports"
	"github.com/netsys/netbricks/scheduler"
)

// SignalHandler decides what a received signal does: the returned code is
// the process exit code, and shutdown reports whether the runtime should
// stop. A HUP handler returning (0, false) keeps running; any other result,
// including a non-zero code with shutdown false, stops the runtime.
type SignalHandler func(sig os.Signal) (code int, shutdown bool)

// DefaultSignalHandler ignores HUP and shuts down cleanly on INT/TERM.
func DefaultSignalHandler(sig os.Signal) (int, bool) {
	return 0, sig != syscall.SIGHUP
}

// Runtime wires configuration, ports, and schedulers together and drives
// them from the main thread.
type Runtime struct {
	ctx *Context
	cfg *config.Configuration
}

// Init initializes the netbricks context and starts the background
// schedulers.
func Init(cfg *config.Configuration) (*Runtime, error) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.WithField("run_id", xid.New().String()).Infof("initializing context:\n%s", cfg)

	ctx, err := initializeSystem(cfg)
	if err != nil {
		return nil, err
	}
	ctx.StartSchedulers()

	rt := &Runtime{ctx: ctx, cfg: cfg}
	if cfg.MetricsAddr != "" {
		rt.startMetricsServer(cfg.MetricsAddr)
	}
	return rt, nil
}

// Context exposes the initialized system for direct task installation.
func (r *Runtime) Context() *Context { return r.ctx }

// AddPipeline registers a packet-processing pipeline installer. The
// installer runs once per active core with that core's port queues.
func (r *Runtime) AddPipeline(install func([]*ports.PortQueue, *scheduler.Scheduler)) {
	r.ctx.AddPipeline(install)
}

// Execute starts the dataplane and blocks the main thread on the signal
// stream. HUP is delegated to the handler and may continue or stop;
// INT and TERM always stop. On shutdown the schedulers are joined and the
// process exits with the handler's code. When the configuration sets
// Duration, Execute runs in test mode instead: it stops after that many
// seconds and exits with code 0.
func (r *Runtime) Execute(onSignal SignalHandler) {
	if r.cfg.Duration > 0 {
		r.ExecuteTest(time.Duration(r.cfg.Duration) * time.Second)
		os.Exit(0)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	r.ctx.Execute()

	for sig := range sigCh {
		code, shutdown := onSignal(sig)
		if sig == syscall.SIGHUP && !shutdown && code == 0 {
			log.Info("SIGHUP handled, continuing")
			continue
		}
		log.Infof("shutting down on %s", sig)
		r.ctx.Shutdown()
		log.Infof("exiting with code %d", code)
		os.Exit(code)
	}
}

// ExecuteTest starts the dataplane, waits for the configured duration,
// and shuts down. Used by the integration tests.
func (r *Runtime) ExecuteTest(duration time.Duration) {
	r.ctx.Execute()
	log.Infof("waiting for %s", duration)
	time.Sleep(duration)
	log.Info("shutting down context")
	r.ctx.Shutdown()
}
