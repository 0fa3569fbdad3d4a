// Runtime context: ports, queues, and per-core schedulers
package netbricks

import (
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/netsys/netbricks/common"
	"github.com/netsys/netbricks/config"
	"github.com/netsys/netbricks/native"
	"github.com/netsys/netbricks/ports"
	"github.com/netsys/netbricks/scheduler"
)

// Context owns the initialized system: every bound port, the queue-to-core
// binding, and one scheduler thread per active core.
type Context struct {
	Ports       map[string]*ports.PmdPort
	RxQueues    map[int][]*ports.PortQueue
	ActiveCores []int

	channels map[int]chan scheduler.Command
	wg       sync.WaitGroup
}

// initializeSystem brings up the driver and binds every configured port,
// building the queue-to-core map pipelines are installed against.
func initializeSystem(cfg *config.Configuration) (*Context, error) {
	native.InitSystem(cfg.Name, cfg.PoolSize, cfg.CacheSize)

	ctx := &Context{
		Ports:    make(map[string]*ports.PmdPort),
		RxQueues: make(map[int][]*ports.PortQueue),
		channels: make(map[int]chan scheduler.Command),
	}

	for _, portCfg := range cfg.Ports {
		if _, dup := ctx.Ports[portCfg.Name]; dup {
			return nil, common.ConfigurationError{Message: "port " + portCfg.Name + " appears twice in specification"}
		}
		port, err := ports.NewPmdPort(ports.PortSpec{
			Name:     portCfg.Name,
			RxQueues: len(portCfg.RxQueues),
			TxQueues: len(portCfg.TxQueues),
			Loopback: portCfg.Loopback,
		})
		if err != nil {
			return nil, err
		}
		ctx.Ports[portCfg.Name] = port

		for rxq, core := range portCfg.RxQueues {
			queue, err := port.NewQueuePair(rxq, rxq)
			if err != nil {
				return nil, err
			}
			ctx.RxQueues[core] = append(ctx.RxQueues[core], queue)
		}
	}

	for core := range ctx.RxQueues {
		ctx.ActiveCores = append(ctx.ActiveCores, core)
	}
	sort.Ints(ctx.ActiveCores)
	return ctx, nil
}

// StartSchedulers spawns one pinned scheduler thread per active core.
func (c *Context) StartSchedulers() {
	for _, core := range c.ActiveCores {
		c.startScheduler(core)
	}
}

func (c *Context) startScheduler(core int) {
	ch := make(chan scheduler.Command, 4)
	c.channels[core] = ch
	c.wg.Add(1)
	go func(core int) {
		defer c.wg.Done()
		if err := native.InitThread(core, core); err != nil {
			log.Warnf("could not pin scheduler to core %d: %v", core, err)
		}
		sched := scheduler.NewWithChannel(ch)
		log.Infof("⚙️ scheduler running on core %d", core)
		sched.HandleRequests()
	}(core)
}

// AddPipeline clones the installer onto every active core, handing it the
// core's port queues and scheduler.
func (c *Context) AddPipeline(install func([]*ports.PortQueue, *scheduler.Scheduler)) {
	for core, ch := range c.channels {
		queues := c.RxQueues[core]
		ch <- scheduler.Command{
			Kind:      scheduler.CommandRun,
			Installer: func(s *scheduler.Scheduler) { install(queues, s) },
		}
	}
}

// AddTaskOnCore installs a single task on one core's scheduler.
func (c *Context) AddTaskOnCore(core int, task scheduler.Executable) error {
	ch, running := c.channels[core]
	if !running {
		return common.NoRunningSchedulerOnCoreError{Core: core}
	}
	ch <- scheduler.Command{
		Kind:      scheduler.CommandRun,
		Installer: func(s *scheduler.Scheduler) { s.AddTask(task) },
	}
	return nil
}

// Execute starts the tick loop on every scheduler.
func (c *Context) Execute() {
	for core, ch := range c.channels {
		ch <- scheduler.Command{Kind: scheduler.CommandExecute}
		log.Infof("starting scheduler on core %d", core)
	}
}

// Shutdown stops every scheduler and joins the threads.
func (c *Context) Shutdown() {
	for _, ch := range c.channels {
		close(ch)
	}
	c.wg.Wait()
	for name, port := range c.Ports {
		if err := port.Close(); err != nil {
			log.Warnf("closing port %s: %v", name, err)
		}
	}
	log.Info("context shut down")
}

// Queues returns every bound port queue, in core order.
func (c *Context) Queues() []*ports.PortQueue {
	var out []*ports.PortQueue
	for _, core := range c.ActiveCores {
		out = append(out, c.RxQueues[core]...)
	}
	return out
}
