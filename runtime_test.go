package netbricks_test

import (
	"testing"
	"time"

	netbricks "github.com/netsys/netbricks"
	"github.com/netsys/netbricks/config"
	"github.com/netsys/netbricks/operators"
	"github.com/netsys/netbricks/packets"
	"github.com/netsys/netbricks/ports"
	"github.com/netsys/netbricks/scheduler"
)

// The runtime brings up a virtual port, runs a pass-through pipeline for a
// fixed duration, and shuts down cleanly with traffic accounted.
func TestRuntimeExecuteTest(t *testing.T) {
	cfg := &config.Configuration{
		Name:  "runtime-test",
		Cores: []int{0},
		Ports: []config.PortConfiguration{
			{Name: "virt", RxQueues: []int{0}, TxQueues: []int{0}},
		},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	rt, err := netbricks.Init(cfg)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	rt.AddPipeline(func(queues []*ports.PortQueue, s *scheduler.Scheduler) {
		for _, q := range queues {
			pipeline := operators.NewSend(
				operators.NewFilter(operators.NewReceive(q), func(p packets.Packet) bool {
					return p.Len() > 0
				}),
				q,
			)
			s.AddTask(pipeline)
		}
	})

	rt.ExecuteTest(100 * time.Millisecond)

	var rx, tx uint64
	for _, q := range rt.Context().Queues() {
		rx += q.Stats().Rx.Packets.Load()
		tx += q.Stats().Tx.Packets.Load()
	}
	if rx == 0 {
		t.Error("no packets received from the virtual port")
	}
	if tx != rx {
		t.Errorf("tx = %d, rx = %d; pass-through should forward everything", tx, rx)
	}
}

// Installing a task on a core without a scheduler is rejected.
func TestAddTaskOnUnknownCore(t *testing.T) {
	cfg := &config.Configuration{
		Name:  "task-test",
		Cores: []int{0},
		Ports: []config.PortConfiguration{
			{Name: "virt", RxQueues: []int{0}, TxQueues: []int{0}},
		},
	}
	rt, err := netbricks.Init(cfg)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer rt.ExecuteTest(10 * time.Millisecond)

	if err := rt.Context().AddTaskOnCore(42, scheduler.Func(func() {})); err == nil {
		t.Error("AddTaskOnCore on a coreless scheduler succeeded")
	}
}
