package scheduler

import (
	"testing"
	"time"
)

// recorder is a task that appends its id to a shared trace.
type recorder struct {
	id    int
	deps  []int
	trace *[]int
}

func (r *recorder) Execute() { *r.trace = append(*r.trace, r.id) }

func (r *recorder) Dependencies() []int { return r.deps }

func TestExecuteOrderAndDependencies(t *testing.T) {
	var trace []int
	s := New()

	h0, _ := s.AddTask(&recorder{id: 0, trace: &trace})
	h1, _ := s.AddTask(&recorder{id: 1, trace: &trace})
	if h0 != 0 || h1 != 1 {
		t.Fatalf("handles = %d, %d", h0, h1)
	}
	// Task 2 depends on both; insertion order already satisfies it.
	s.AddTask(&recorder{id: 2, deps: []int{h0, h1}, trace: &trace})

	s.ExecuteOne()
	want := []int{0, 1, 2}
	if len(trace) != 3 {
		t.Fatalf("trace = %v", trace)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("trace = %v, want %v", trace, want)
		}
	}

	// A second tick runs everything again.
	s.ExecuteOne()
	if len(trace) != 6 {
		t.Errorf("second tick trace = %v", trace)
	}
}

func TestInvalidDependencyIgnored(t *testing.T) {
	var trace []int
	s := New()
	s.AddTask(&recorder{id: 0, deps: []int{5}, trace: &trace})
	s.ExecuteOne()
	if len(trace) != 1 {
		t.Errorf("trace = %v", trace)
	}
}

func TestFuncTask(t *testing.T) {
	ran := false
	s := New()
	s.AddTask(Func(func() { ran = true }))
	s.ExecuteOne()
	if !ran {
		t.Error("Func task did not run")
	}
}

func TestPeriodicTaskGating(t *testing.T) {
	count := 0
	task := NewPeriodicTask(50*time.Millisecond, func() { count++ })

	task.Execute()
	task.Execute()
	task.Execute()
	if count != 1 {
		t.Fatalf("count = %d, want 1 before the period elapses", count)
	}
	time.Sleep(60 * time.Millisecond)
	task.Execute()
	if count != 2 {
		t.Errorf("count = %d, want 2 after the period", count)
	}
}

func TestShutdownStopsLoop(t *testing.T) {
	s := New()
	ticks := 0
	s.AddTask(Func(func() {
		ticks++
		if ticks == 3 {
			s.Shutdown()
		}
	}))

	done := make(chan struct{})
	go func() {
		s.Execute()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Execute did not stop after Shutdown")
	}
	if ticks != 3 {
		t.Errorf("ticks = %d", ticks)
	}
}

func TestCommandChannel(t *testing.T) {
	ch := make(chan Command, 4)
	s := NewWithChannel(ch)

	var ticks int
	ch <- Command{Kind: CommandRun, Installer: func(s *Scheduler) {
		s.AddTask(Func(func() { ticks++ }))
	}}
	ch <- Command{Kind: CommandExecute}

	done := make(chan struct{})
	go func() {
		s.HandleRequests()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	close(ch)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleRequests did not exit on channel close")
	}
	if ticks == 0 {
		t.Error("pipeline task never ran")
	}
}
