package netbricks_test

import (
	"bytes"
	"encoding/binary"
	"net/netip"
	"sync"
	"testing"

	"github.com/netsys/netbricks/native"
	"github.com/netsys/netbricks/operators"
	"github.com/netsys/netbricks/packets"
	"github.com/netsys/netbricks/ports"
	"github.com/netsys/netbricks/state"
	"github.com/netsys/netbricks/utils"
)

func newRingPort(t *testing.T) (*ports.PmdPort, *ports.PortQueue) {
	t.Helper()
	port, err := ports.NewPmdPort(ports.PortSpec{Name: "ring:e2e", RxQueues: 1, TxQueues: 1})
	if err != nil {
		t.Fatalf("NewPmdPort: %v", err)
	}
	q, err := port.NewQueuePair(0, 0)
	if err != nil {
		t.Fatalf("NewQueuePair: %v", err)
	}
	return port, q
}

func drainOne(t *testing.T, port *ports.PmdPort) *native.Mbuf {
	t.Helper()
	out := make([]*native.Mbuf, 32)
	n := port.DrainTx(0, out)
	if n != 1 {
		t.Fatalf("transmitted %d packets, want 1", n)
	}
	return out[0]
}

// fold verifies ones-complement checksums independently of the packets
// package.
func fold(chunks ...[]byte) uint16 {
	var sum uint32
	for _, chunk := range chunks {
		for i := 0; i+1 < len(chunk); i += 2 {
			sum += uint32(binary.BigEndian.Uint16(chunk[i : i+2]))
		}
		if len(chunk)%2 == 1 {
			sum += uint32(chunk[len(chunk)-1]) << 8
		}
	}
	for sum > 0xFFFF {
		sum = (sum >> 16) + (sum & 0xFFFF)
	}
	return uint16(sum)
}

var (
	macA = packets.NewMacAddr(0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA)
	macB = packets.NewMacAddr(0xBB, 0xBB, 0xBB, 0xBB, 0xBB, 0xBB)
)

// buildUdpV4 assembles Ethernet/IPv4/UDP with the given payload and valid
// checksums.
func buildUdpV4(t *testing.T, srcIP, dstIP string, srcPort, dstPort uint16, ttl uint8, payload []byte) *native.Mbuf {
	t.Helper()
	raw, err := packets.RawFromBytes(payload)
	if err != nil {
		t.Fatalf("RawFromBytes: %v", err)
	}
	udpView, err := packets.PushUdp(pushV4(t, raw, srcIP, dstIP, ttl))
	if err != nil {
		t.Fatalf("PushUdp: %v", err)
	}
	udpView.SetSrcPort(srcPort)
	udpView.SetDstPort(dstPort)
	udpView.SetLength(uint16(udpView.Len()))
	ip := udpView.Envelope().(*packets.Ipv4)
	ip.SetProtocol(packets.ProtocolUdp)
	ip.SetTotalLen(uint16(ip.Len()))
	udpView.Cascade()
	return raw.Mbuf()
}

func pushV4(t *testing.T, raw *packets.Raw, srcIP, dstIP string, ttl uint8) *packets.Ipv4 {
	t.Helper()
	eth, err := packets.PushEthernet(raw)
	if err != nil {
		t.Fatalf("PushEthernet: %v", err)
	}
	eth.SetSrc(macA)
	eth.SetDst(macB)
	eth.SetEtherType(packets.EtherTypeIpv4)
	v4, err := packets.PushIpv4(eth)
	if err != nil {
		t.Fatalf("PushIpv4: %v", err)
	}
	v4.SetSrc(netip.MustParseAddr(srcIP))
	v4.SetDst(netip.MustParseAddr(dstIP))
	v4.SetTtl(ttl)
	return v4
}

// Scenario: macswap. Source and destination swap, payload untouched.
func TestMacswapPipeline(t *testing.T) {
	port, q := newRingPort(t)
	pool := native.DefaultPool()

	payload := []byte{0x10, 0x20, 0x30, 0x40}
	m := buildUdpV4(t, "10.0.0.1", "10.0.0.2", 1234, 5678, 64, payload)
	port.InjectRx(0, []*native.Mbuf{m})

	send := operators.NewSend(
		operators.NewMap(operators.NewReceive(q), func(p packets.Packet) (packets.Packet, error) {
			eth, err := p.(*packets.Raw).ParseEthernet()
			if err != nil {
				return nil, err
			}
			eth.SwapAddresses()
			return eth, nil
		}),
		q,
	)
	send.Execute()

	out := drainOne(t, port)
	defer pool.Free(out)
	eth, err := packets.RawFromMbuf(out).ParseEthernet()
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if eth.Src() != macB || eth.Dst() != macA {
		t.Errorf("addresses not swapped: %s > %s", eth.Src(), eth.Dst())
	}
	if !bytes.Equal(out.Data()[len(out.Data())-4:], payload) {
		t.Error("payload changed")
	}
}

// ttlHop decrements the TTL or drops the packet when it is exhausted.
func ttlHop(p packets.Packet) (packets.Packet, error) {
	v4 := p.(*packets.Ipv4)
	if v4.Ttl() == 0 {
		return nil, nil
	}
	v4.SetTtl(v4.Ttl() - 1)
	return v4, nil
}

// Scenario: a forwarding chain of four TTL-decrementing NFs.
func TestTtlChainPipeline(t *testing.T) {
	run := func(ttl uint8) (int, *native.Mbuf) {
		port, q := newRingPort(t)
		m := buildUdpV4(t, "10.0.0.1", "10.0.0.2", 1234, 5678, ttl, []byte{1, 2, 3, 4})
		port.InjectRx(0, []*native.Mbuf{m})

		var b operators.Batch = operators.NewMap(operators.NewReceive(q), func(p packets.Packet) (packets.Packet, error) {
			eth, err := p.(*packets.Raw).ParseEthernet()
			if err != nil {
				return nil, err
			}
			return eth.ParseIpv4()
		})
		for hop := 0; hop < 4; hop++ {
			b = operators.NewFilterMap(b, ttlHop)
		}
		b = operators.NewForEach(b, func(p packets.Packet) error {
			p.Cascade()
			return nil
		})
		operators.NewSend(b, q).Execute()

		out := make([]*native.Mbuf, 32)
		n := port.DrainTx(0, out)
		if n == 0 {
			return 0, nil
		}
		return n, out[0]
	}

	n, out := run(64)
	if n != 1 {
		t.Fatalf("ttl=64 transmitted %d packets", n)
	}
	defer native.DefaultPool().Free(out)
	eth, _ := packets.RawFromMbuf(out).ParseEthernet()
	v4, err := eth.ParseIpv4()
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if v4.Ttl() != 60 {
		t.Errorf("ttl = %d, want 60", v4.Ttl())
	}
	hdr := out.Data()[14:34]
	if fold(hdr) != 0xFFFF {
		t.Errorf("header checksum does not verify: %04x", fold(hdr))
	}

	// A ttl too small for the chain is dropped.
	if n, _ := run(3); n != 0 {
		t.Errorf("ttl=3 transmitted %d packets, want 0", n)
	}
}

// acl mirrors the firewall example: prefix match plus optional
// established-flow requirement.
type acl struct {
	srcPrefix   *utils.Ipv4Cidr
	established *bool
	drop        bool
}

func (a acl) matches(flow packets.Flow, cache map[packets.Flow]bool) bool {
	if a.srcPrefix != nil && !a.srcPrefix.Contains(flow.SrcIP) {
		return false
	}
	if a.established != nil {
		seen := cache[flow] || cache[flow.Reverse()]
		return seen == *a.established
	}
	return true
}

// Scenario: default-allow ACL caches the flows it forwards.
func TestAclPipeline(t *testing.T) {
	port, q := newRingPort(t)
	pool := native.DefaultPool()

	anywhere, err := utils.ParseIpv4Cidr("0.0.0.0/0")
	if err != nil {
		t.Fatalf("ParseIpv4Cidr: %v", err)
	}
	acls := state.NewAtom([]acl{{srcPrefix: &anywhere}})

	var mu sync.RWMutex
	flowCache := map[packets.Flow]bool{}

	m := buildUdpV4(t, "10.1.1.1", "10.2.2.2", 5000, 53, 64, []byte{9})
	port.InjectRx(0, []*native.Mbuf{m})

	send := operators.NewSend(
		operators.NewFilter(
			operators.NewMap(operators.NewReceive(q), func(p packets.Packet) (packets.Packet, error) {
				eth, err := p.(*packets.Raw).ParseEthernet()
				if err != nil {
					return nil, err
				}
				v4, err := eth.ParseIpv4()
				if err != nil {
					return nil, err
				}
				return packets.ParseUdp(v4)
			}),
			func(p packets.Packet) bool {
				flow := p.(*packets.Udp).Flow()
				for _, a := range acls.Load() {
					mu.RLock()
					matched := a.matches(flow, flowCache)
					mu.RUnlock()
					if matched {
						if !a.drop {
							mu.Lock()
							flowCache[flow] = true
							mu.Unlock()
						}
						return !a.drop
					}
				}
				return false
			},
		),
		q,
	)
	send.Execute()

	out := drainOne(t, port)
	pool.Free(out)

	want := packets.Flow{
		SrcIP:   netip.MustParseAddr("10.1.1.1"),
		DstIP:   netip.MustParseAddr("10.2.2.2"),
		SrcPort: 5000,
		DstPort: 53,
		Proto:   packets.ProtocolUdp,
	}
	mu.RLock()
	defer mu.RUnlock()
	if !flowCache[want] {
		t.Errorf("flow cache does not contain %v", want)
	}
}

// buildV6Frame assembles Ethernet/IPv6 with the given payload length.
func buildV6Frame(t *testing.T, payloadLen int) *native.Mbuf {
	t.Helper()
	payload := make([]byte, payloadLen)
	for i := range payload {
		payload[i] = byte(i)
	}
	raw, err := packets.RawFromBytes(payload)
	if err != nil {
		t.Fatalf("RawFromBytes: %v", err)
	}
	eth, _ := packets.PushEthernet(raw)
	eth.SetSrc(macA)
	eth.SetDst(macB)
	eth.SetEtherType(packets.EtherTypeIpv6)
	v6, err := packets.PushIpv6(eth)
	if err != nil {
		t.Fatalf("PushIpv6: %v", err)
	}
	v6.SetSrc(netip.MustParseAddr("2001:db8::1"))
	v6.SetDst(netip.MustParseAddr("2001:db8::2"))
	v6.SetNextHeader(packets.ProtocolUdp)
	v6.SetPayloadLength(uint16(payloadLen))
	return raw.Mbuf()
}

// Scenario: frames over the IPv6 minimum MTU come back as packet-too-big
// reports; smaller frames pass.
func TestMtuTooBigPipeline(t *testing.T) {
	port, q := newRingPort(t)
	pool := native.DefaultPool()

	big := buildV6Frame(t, 1400)
	small := buildV6Frame(t, 100)
	port.InjectRx(0, []*native.Mbuf{big, small})

	tooBigNf := func(p packets.Packet) (packets.Packet, error) {
		eth, err := p.(*packets.Raw).ParseEthernet()
		if err != nil {
			return nil, err
		}
		eth.SwapAddresses()
		old, err := eth.ParseIpv6()
		if err != nil {
			return nil, err
		}
		oldSrc, oldDst := old.Src(), old.Dst()

		// Push a fresh IPv6/ICMPv6 pair ahead of the invoking packet.
		newV6, err := packets.PushIpv6(eth)
		if err != nil {
			return nil, err
		}
		newV6.SetSrc(oldDst)
		newV6.SetDst(oldSrc)
		newV6.SetNextHeader(packets.ProtocolIcmpv6)
		tooBig, err := packets.PushPacketTooBig(newV6)
		if err != nil {
			return nil, err
		}
		tooBig.SetMtu(packets.Ipv6MinMtu)
		tooBig.TrimPayload()
		newV6.SetPayloadLength(uint16(tooBig.Len()))
		tooBig.Cascade()
		return tooBig, nil
	}

	send := operators.NewSend(
		operators.NewGroupBy(operators.NewReceive(q),
			func(p packets.Packet) bool {
				return p.Len() > packets.Ipv6MinMtu+packets.EthernetMinLen
			},
			func(c *operators.GroupComposer[bool]) {
				c.Group(true, func(up operators.Batch) operators.Batch {
					return operators.NewEmit(operators.NewMap(up, tooBigNf))
				})
				c.Default(func(up operators.Batch) operators.Batch { return up })
			}),
		q,
	)
	send.Execute()

	out := make([]*native.Mbuf, 32)
	n := port.DrainTx(0, out)
	if n != 2 {
		t.Fatalf("transmitted %d packets, want 2", n)
	}
	defer pool.FreeBulk(out[:n])

	// First out is the too-big report for the oversized frame.
	eth, err := packets.RawFromMbuf(out[0]).ParseEthernet()
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if eth.Src() != macB || eth.Dst() != macA {
		t.Errorf("report macs not swapped: %s > %s", eth.Src(), eth.Dst())
	}
	v6, err := eth.ParseIpv6()
	if err != nil {
		t.Fatalf("reparse v6: %v", err)
	}
	if v6.Src() != netip.MustParseAddr("2001:db8::2") || v6.Dst() != netip.MustParseAddr("2001:db8::1") {
		t.Errorf("report addresses not swapped: %s > %s", v6.Src(), v6.Dst())
	}
	if v6.NextHeader() != packets.ProtocolIcmpv6 {
		t.Errorf("next header = %d", v6.NextHeader())
	}
	icmp, err := packets.ParseIcmpv6(v6)
	if err != nil {
		t.Fatalf("reparse icmp: %v", err)
	}
	report, err := icmp.ParsePacketTooBig()
	if err != nil {
		t.Fatalf("ParsePacketTooBig: %v", err)
	}
	if report.Mtu() != 1280 {
		t.Errorf("mtu = %d, want 1280", report.Mtu())
	}

	// Second out is the small frame, untouched.
	if out[1].DataLen() != 14+40+100 {
		t.Errorf("small frame len = %d", out[1].DataLen())
	}
}

// Scenario: ICMPv6 echo requests come back as echo replies with swapped
// addressing and valid checksums.
func TestEchoReplyPipeline(t *testing.T) {
	port, q := newRingPort(t)
	pool := native.DefaultPool()

	// Build the request.
	raw, err := packets.NewRaw()
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}
	eth, _ := packets.PushEthernet(raw)
	eth.SetSrc(macA)
	eth.SetDst(macB)
	eth.SetEtherType(packets.EtherTypeIpv6)
	v6, _ := packets.PushIpv6(eth)
	v6.SetSrc(netip.MustParseAddr("2001:db8::1"))
	v6.SetDst(netip.MustParseAddr("2001:db8::2"))
	v6.SetNextHeader(packets.ProtocolIcmpv6)
	icmp, err := packets.PushIcmpv6(v6, packets.Icmpv6EchoRequest, 4)
	if err != nil {
		t.Fatalf("PushIcmpv6: %v", err)
	}
	req, _ := icmp.ParseEchoRequest()
	req.SetIdentifier(7)
	req.SetSeqNo(3)
	if err := req.SetData([]byte{0xDE, 0xAD}); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	v6.SetPayloadLength(uint16(req.Len()))
	req.Cascade()
	port.InjectRx(0, []*native.Mbuf{raw.Mbuf()})

	send := operators.NewSend(
		operators.NewMap(operators.NewReceive(q), func(p packets.Packet) (packets.Packet, error) {
			eth, err := p.(*packets.Raw).ParseEthernet()
			if err != nil {
				return nil, err
			}
			eth.SwapAddresses()
			v6, err := eth.ParseIpv6()
			if err != nil {
				return nil, err
			}
			src, dst := v6.Src(), v6.Dst()
			v6.SetSrc(dst)
			v6.SetDst(src)
			icmp, err := packets.ParseIcmpv6(v6)
			if err != nil {
				return nil, err
			}
			icmp.SetType(packets.Icmpv6EchoReply)
			icmp.Cascade()
			return icmp, nil
		}),
		q,
	)
	send.Execute()

	out := drainOne(t, port)
	defer pool.Free(out)

	outEth, _ := packets.RawFromMbuf(out).ParseEthernet()
	if outEth.Src() != macB || outEth.Dst() != macA {
		t.Errorf("reply macs: %s > %s", outEth.Src(), outEth.Dst())
	}
	outV6, err := outEth.ParseIpv6()
	if err != nil {
		t.Fatalf("reparse v6: %v", err)
	}
	if outV6.Src() != netip.MustParseAddr("2001:db8::2") || outV6.Dst() != netip.MustParseAddr("2001:db8::1") {
		t.Errorf("reply addresses: %s > %s", outV6.Src(), outV6.Dst())
	}
	outIcmp, _ := packets.ParseIcmpv6(outV6)
	reply, err := outIcmp.ParseEchoReply()
	if err != nil {
		t.Fatalf("ParseEchoReply: %v", err)
	}
	if reply.Identifier() != 7 || reply.SeqNo() != 3 || !bytes.Equal(reply.Data(), []byte{0xDE, 0xAD}) {
		t.Errorf("reply fields: id=%d seq=%d data=%x", reply.Identifier(), reply.SeqNo(), reply.Data())
	}

	// Checksum verifies with an independent pseudo-header fold.
	pseudo := make([]byte, 40)
	s, d := outV6.Src().As16(), outV6.Dst().As16()
	copy(pseudo[0:16], s[:])
	copy(pseudo[16:32], d[:])
	binary.BigEndian.PutUint32(pseudo[32:36], uint32(outIcmp.Len()))
	pseudo[39] = packets.ProtocolIcmpv6
	msg := out.Data()[54:]
	if fold(pseudo, msg) != 0xFFFF {
		t.Error("reply checksum does not verify")
	}
}
