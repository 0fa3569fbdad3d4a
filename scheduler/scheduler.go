// Per-core cooperative task executor
package scheduler

import (
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// Executable is anything the scheduler can poll: a pipeline terminus, a
// periodic job, or the control server's poll step. Execute runs one burst
// to completion and never suspends.
type Executable interface {
	Execute()
	// Dependencies lists the task handles that must run earlier in the
	// same tick.
	Dependencies() []int
}

// Func adapts a closure with no dependencies into an Executable.
type Func func()

func (f Func) Execute() { f() }

func (f Func) Dependencies() []int { return nil }

// runnable pairs a task with its recorded dependencies.
type runnable struct {
	task Executable
	deps []int
}

// Scheduler round-robins a per-core task list. All state is confined to
// the core's pinned thread; only the shutdown flag and the command channel
// are touched from outside.
type Scheduler struct {
	tasks    []runnable
	executed []bool
	stop     atomic.Bool
	commands <-chan Command
}

// New creates a scheduler without a command channel, for embedded use.
func New() *Scheduler {
	return &Scheduler{}
}

// NewWithChannel creates a scheduler driven by runtime commands.
func NewWithChannel(commands <-chan Command) *Scheduler {
	return &Scheduler{commands: commands}
}

// AddTask appends a task and returns its handle. Dependency handles always
// refer to earlier tasks, so in-order execution within a tick satisfies
// them; later handles are dropped with a warning.
func (s *Scheduler) AddTask(task Executable) (int, error) {
	handle := len(s.tasks)
	var deps []int
	for _, dep := range task.Dependencies() {
		if dep >= handle || dep < 0 {
			log.Warnf("task %d lists invalid dependency %d, ignored", handle, dep)
			continue
		}
		deps = append(deps, dep)
	}
	s.tasks = append(s.tasks, runnable{task: task, deps: deps})
	s.executed = append(s.executed, false)
	return handle, nil
}

// execTask runs the task's unexecuted dependencies, then the task itself.
func (s *Scheduler) execTask(handle int) {
	if s.executed[handle] {
		return
	}
	s.executed[handle] = true
	for _, dep := range s.tasks[handle].deps {
		s.execTask(dep)
	}
	s.tasks[handle].task.Execute()
}

// ExecuteOne runs a single tick: every task once, dependencies first.
// Task errors are the tasks' own to log; a panic here would take down the
// core, so pipelines are expected to convert failures into aborts.
func (s *Scheduler) ExecuteOne() {
	for i := range s.executed {
		s.executed[i] = false
	}
	for handle := range s.tasks {
		s.execTask(handle)
	}
}

// Execute runs ticks until shutdown is requested.
func (s *Scheduler) Execute() {
	for !s.stop.Load() {
		s.ExecuteOne()
		s.poll()
	}
}

// Shutdown makes the run loop exit before its next tick. Safe to call
// from any thread.
func (s *Scheduler) Shutdown() {
	s.stop.Store(true)
}

// poll applies any pending runtime command between ticks.
func (s *Scheduler) poll() {
	if s.commands == nil {
		return
	}
	select {
	case cmd, ok := <-s.commands:
		if !ok {
			s.Shutdown()
			return
		}
		s.apply(cmd)
	default:
	}
}

// HandleRequests is the entry point of a scheduler thread: it waits for
// commands, installs pipelines, and runs the tick loop when told to.
func (s *Scheduler) HandleRequests() {
	for cmd := range s.commands {
		s.apply(cmd)
		if s.stop.Load() {
			return
		}
	}
}

func (s *Scheduler) apply(cmd Command) {
	switch cmd.Kind {
	case CommandRun:
		cmd.Installer(s)
	case CommandExecute:
		s.Execute()
	case CommandShutdown:
		s.Shutdown()
	}
}

// CommandKind selects the action a runtime command carries.
type CommandKind int

const (
	// CommandRun installs a pipeline on the scheduler's core.
	CommandRun CommandKind = iota
	// CommandExecute starts the tick loop.
	CommandExecute
	// CommandShutdown stops the tick loop.
	CommandShutdown
)

// Command is a message from the runtime to a scheduler thread.
type Command struct {
	Kind      CommandKind
	Installer func(*Scheduler)
}
