//go:build linux

// AF_XDP port backend: kernel-bypass bursts over XDP sockets
package ports

import (
	"fmt"
	"net"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/asm"
	"github.com/cilium/ebpf/link"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
	"gvisor.dev/gvisor/pkg/xdp"

	"github.com/netsys/netbricks/common"
	"github.com/netsys/netbricks/native"
)

const (
	xdpFrames      = 4096
	xdpDescriptors = 2048
)

// afXdpBackend drives one AF_XDP socket per queue on a physical
// interface. Received frames are copied into pool mbufs so the pipeline
// owns its buffers; UMEM frames go straight back to the fill queue.
type afXdpBackend struct {
	iface *net.Interface
	pool  *native.Mempool
	cbs   []*xdp.ControlBlock
	prog  *ebpf.Program
	xsks  *ebpf.Map
	link  link.Link
	mac   [6]byte
}

func newAfXdpBackend(ifaceName string, pool *native.Mempool, rxqs, txqs int) (*afXdpBackend, error) {
	if rxqs != txqs {
		return nil, common.ConfigurationError{Message: "xdp ports need matching rx and tx queue counts"}
	}
	ifi, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, common.BadDevError{Device: ifaceName}
	}

	b := &afXdpBackend{iface: ifi, pool: pool}
	if len(ifi.HardwareAddr) == 6 {
		copy(b.mac[:], ifi.HardwareAddr)
	}

	if err := b.setupRedirect(rxqs); err != nil {
		return nil, err
	}

	for q := 0; q < rxqs; q++ {
		opts := xdp.DefaultOpts()
		opts.NFrames = xdpFrames
		opts.FrameSize = native.FrameSize
		opts.NDescriptors = xdpDescriptors
		opts.Bind = true
		opts.UseNeedWakeup = true

		cb, err := xdp.New(uint32(ifi.Index), uint32(q), opts)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("xdp socket on %s queue %d: %w", ifaceName, q, err)
		}
		cb.UMEM.Lock()
		cb.Fill.FillAll(&cb.UMEM)
		cb.UMEM.Unlock()

		if err := b.xsks.Update(uint32(q), uint32(cb.UMEM.SockFD()), ebpf.UpdateAny); err != nil {
			b.Close()
			return nil, fmt.Errorf("xsk map update: %w", err)
		}
		b.cbs = append(b.cbs, cb)
	}

	log.Infof("🔄 AF_XDP bound to %s with %d queue(s)", ifaceName, rxqs)
	return b, nil
}

// setupRedirect assembles and attaches the XDP program that steers every
// frame on a bound queue into its XDP socket.
func (b *afXdpBackend) setupRedirect(queues int) error {
	xsks, err := ebpf.NewMap(&ebpf.MapSpec{
		Name:       "xsks_map",
		Type:       ebpf.XSKMap,
		KeySize:    4,
		ValueSize:  4,
		MaxEntries: uint32(queues),
	})
	if err != nil {
		return fmt.Errorf("xsk map: %w", err)
	}
	b.xsks = xsks

	// bpf_redirect_map(xsks_map, ctx->rx_queue_index, XDP_PASS)
	prog, err := ebpf.NewProgram(&ebpf.ProgramSpec{
		Name:    "xdp_redirect_xsk",
		Type:    ebpf.XDP,
		License: "Dual MIT/GPL",
		Instructions: asm.Instructions{
			asm.LoadMem(asm.R2, asm.R1, 16, asm.Word),
			asm.LoadMapPtr(asm.R1, xsks.FD()),
			asm.Mov.Imm(asm.R3, 2),
			asm.FnRedirectMap.Call(),
			asm.Return(),
		},
	})
	if err != nil {
		return fmt.Errorf("xdp program: %w", err)
	}
	b.prog = prog

	l, err := link.AttachXDP(link.XDPOptions{
		Program:   prog,
		Interface: b.iface.Index,
		Flags:     link.XDPDriverMode,
	})
	if err != nil {
		// Fall back to generic mode when the driver lacks native XDP.
		l, err = link.AttachXDP(link.XDPOptions{
			Program:   prog,
			Interface: b.iface.Index,
			Flags:     link.XDPGenericMode,
		})
		if err != nil {
			return fmt.Errorf("attach xdp: %w", err)
		}
	}
	b.link = l
	return nil
}

func (b *afXdpBackend) RecvQueue(rxq int, pkts []*native.Mbuf) (int, error) {
	cb := b.cbs[rxq]

	cb.UMEM.Lock()
	nReceived, index := cb.RX.Peek()
	if nReceived == 0 {
		cb.Fill.FillAll(&cb.UMEM)
		cb.UMEM.Unlock()
		return 0, nil
	}
	if int(nReceived) > len(pkts) {
		nReceived = uint32(len(pkts))
	}

	count := 0
	for i := uint32(0); i < nReceived; i++ {
		desc := cb.RX.Get(index + i)
		frame := cb.UMEM.Get(desc)
		m, err := b.pool.Alloc()
		if err != nil {
			cb.UMEM.FreeFrame(uint64(desc.Addr))
			continue
		}
		m.AddDataEnd(len(frame))
		copy(m.Data(), frame)
		cb.UMEM.FreeFrame(uint64(desc.Addr))
		pkts[count] = m
		count++
	}
	cb.RX.Release(nReceived)
	cb.Fill.FillAll(&cb.UMEM)
	cb.UMEM.Unlock()

	// TODO: map UMEM frames straight into mbufs to avoid this RX copy.
	return count, nil
}

func (b *afXdpBackend) SendQueue(txq int, pkts []*native.Mbuf) (int, error) {
	cb := b.cbs[txq]

	cb.UMEM.Lock()
	defer cb.UMEM.Unlock()

	b.reapCompletions(cb)

	nReserved, index := cb.TX.Reserve(&cb.UMEM, uint32(len(pkts)))
	if nReserved == 0 {
		b.reapCompletions(cb)
		nReserved, index = cb.TX.Reserve(&cb.UMEM, uint32(len(pkts)))
		if nReserved == 0 {
			return 0, nil
		}
	}

	sent := 0
	for i := uint32(0); i < nReserved; i++ {
		m := pkts[sent]
		frameAddr := cb.UMEM.AllocFrame()
		if frameAddr == 0 {
			break
		}
		desc := unix.XDPDesc{Addr: frameAddr, Len: uint32(m.DataLen())}
		frame := cb.UMEM.Get(desc)
		copy(frame, m.Data())
		cb.TX.Set(index+i, desc)
		b.pool.Free(m)
		sent++
	}
	if sent > 0 {
		cb.TX.Notify()
	}
	return sent, nil
}

// reapCompletions returns transmitted frames to the UMEM. Caller holds
// the UMEM lock.
func (b *afXdpBackend) reapCompletions(cb *xdp.ControlBlock) {
	nCompleted, completionIndex := cb.Completion.Peek()
	if nCompleted == 0 {
		return
	}
	for i := uint32(0); i < nCompleted; i++ {
		cb.UMEM.FreeFrame(cb.Completion.Get(completionIndex + i))
	}
	cb.Completion.Release(nCompleted)
}

func (b *afXdpBackend) MacAddr() [6]byte { return b.mac }

func (b *afXdpBackend) Close() error {
	if b.link != nil {
		b.link.Close()
	}
	if b.prog != nil {
		b.prog.Close()
	}
	if b.xsks != nil {
		b.xsks.Close()
	}
	return nil
}
