package packets

import (
	"bytes"
	"encoding/binary"
	"errors"
	"net/netip"
	"testing"

	"github.com/netsys/netbricks/common"
	"github.com/netsys/netbricks/native"
)

// udpFrame is an Ethernet/IPv4/UDP packet with a 4-byte payload.
var udpFrame = []byte{
	// ethernet
	0xBB, 0xBB, 0xBB, 0xBB, 0xBB, 0xBB, // dst
	0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, // src
	0x08, 0x00, // ipv4
	// ipv4: 10.0.0.1 > 10.0.0.2, proto udp, total 32
	0x45, 0x00, 0x00, 0x20, 0x00, 0x00, 0x00, 0x00,
	0x40, 0x11, 0x00, 0x00, 0x0A, 0x00, 0x00, 0x01,
	0x0A, 0x00, 0x00, 0x02,
	// udp: 1234 > 5678, len 12
	0x04, 0xD2, 0x16, 0x2E, 0x00, 0x0C, 0x00, 0x00,
	// payload
	0xDE, 0xAD, 0xBE, 0xEF,
}

// vlanFrame is a 802.1Q-tagged IPv4 frame, header only.
var vlanFrame = []byte{
	0xBB, 0xBB, 0xBB, 0xBB, 0xBB, 0xBB,
	0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA,
	0x81, 0x00, 0x00, 0x7B, // tag, vlan 123
	0x08, 0x00,
	0x45, 0x00, 0x00, 0x14, 0x00, 0x00, 0x00, 0x00,
	0x40, 0x11, 0x00, 0x00, 0x0A, 0x00, 0x00, 0x01,
	0x0A, 0x00, 0x00, 0x02,
}

func frameOf(t *testing.T, data []byte) *Raw {
	t.Helper()
	p, err := RawFromBytes(data)
	if err != nil {
		t.Fatalf("RawFromBytes: %v", err)
	}
	return p
}

func freeMbuf(m *native.Mbuf) { native.DefaultPool().Free(m) }

func TestParseStack(t *testing.T) {
	raw := frameOf(t, udpFrame)
	defer freeMbuf(raw.Mbuf())

	eth, err := raw.ParseEthernet()
	if err != nil {
		t.Fatalf("ParseEthernet: %v", err)
	}
	if eth.Src().String() != "aa:aa:aa:aa:aa:aa" || eth.Dst().String() != "bb:bb:bb:bb:bb:bb" {
		t.Errorf("addresses: %s > %s", eth.Src(), eth.Dst())
	}
	if eth.EtherType() != EtherTypeIpv4 {
		t.Errorf("EtherType = %s", eth.EtherType())
	}

	v4, err := eth.ParseIpv4()
	if err != nil {
		t.Fatalf("ParseIpv4: %v", err)
	}
	if v4.Src() != netip.MustParseAddr("10.0.0.1") || v4.Dst() != netip.MustParseAddr("10.0.0.2") {
		t.Errorf("addrs: %s > %s", v4.Src(), v4.Dst())
	}
	if v4.Ttl() != 64 || v4.Protocol() != ProtocolUdp {
		t.Errorf("ttl=%d proto=%d", v4.Ttl(), v4.Protocol())
	}

	udp, err := ParseUdp(v4)
	if err != nil {
		t.Fatalf("ParseUdp: %v", err)
	}
	if udp.SrcPort() != 1234 || udp.DstPort() != 5678 {
		t.Errorf("ports: %d > %d", udp.SrcPort(), udp.DstPort())
	}
	if !bytes.Equal(udp.Payload(), []byte{0xDE, 0xAD, 0xBE, 0xEF}) {
		t.Errorf("payload = %x", udp.Payload())
	}

	// Offsets are monotonic and header sizes fit data_len.
	offsets := []int{eth.Offset(), v4.Offset(), udp.Offset()}
	if !(offsets[0] < offsets[1] && offsets[1] < offsets[2]) {
		t.Errorf("offsets not monotonic: %v", offsets)
	}
	if udp.PayloadOffset()+udp.PayloadLen() != raw.Mbuf().DataLen() {
		t.Error("header sizes exceed data_len")
	}
}

func TestParseDeparseRoundTrip(t *testing.T) {
	raw := frameOf(t, udpFrame)
	defer freeMbuf(raw.Mbuf())
	before := append([]byte(nil), raw.Mbuf().Data()...)

	eth, _ := raw.ParseEthernet()
	v4, _ := eth.ParseIpv4()
	env := v4.Deparse()
	if env != Packet(eth) {
		t.Error("Deparse did not return the envelope")
	}
	if !bytes.Equal(raw.Mbuf().Data(), before) {
		t.Error("Deparse moved bytes")
	}
	if reset := v4.Reset(); reset.Offset() != 0 || reset.Len() != len(udpFrame) {
		t.Error("Reset did not return the outermost view")
	}
}

func TestPushRemoveRoundTrip(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	raw := frameOf(t, payload)
	defer freeMbuf(raw.Mbuf())

	eth, err := PushEthernet(raw)
	if err != nil {
		t.Fatalf("PushEthernet: %v", err)
	}
	if eth.Offset() != 0 || raw.Mbuf().DataLen() != len(payload)+EthernetMinLen {
		t.Fatalf("push accounting: offset=%d len=%d", eth.Offset(), raw.Mbuf().DataLen())
	}
	if !bytes.Equal(eth.Payload(), payload) {
		t.Errorf("payload after push = %v", eth.Payload())
	}

	eth.SetSrc(NewMacAddr(1, 2, 3, 4, 5, 6))
	eth.SetEtherType(EtherTypeIpv4)

	env, err := removeHeader(eth)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !bytes.Equal(env.Mbuf().Data(), payload) {
		t.Errorf("bytes after remove = %v", env.Mbuf().Data())
	}
}

func TestByteOrderSetters(t *testing.T) {
	raw := frameOf(t, udpFrame)
	defer freeMbuf(raw.Mbuf())
	eth, _ := raw.ParseEthernet()
	v4, _ := eth.ParseIpv4()
	udp, _ := ParseUdp(v4)

	v4.SetTtl(9)
	if v4.Ttl() != 9 {
		t.Errorf("Ttl = %d", v4.Ttl())
	}
	v4.SetTotalLen(0x1234)
	if v4.TotalLen() != 0x1234 {
		t.Errorf("TotalLen = %04x", v4.TotalLen())
	}
	udp.SetSrcPort(0xABCD)
	if udp.SrcPort() != 0xABCD {
		t.Errorf("SrcPort = %04x", udp.SrcPort())
	}
	// Network byte order in the buffer.
	b := udp.Mbuf().DataAddr(udp.Offset())
	if binary.BigEndian.Uint16(b[0:2]) != 0xABCD {
		t.Errorf("wire src port = %x %x", b[0], b[1])
	}

	addr := netip.MustParseAddr("192.168.7.1")
	if err := v4.SetSrc(addr); err != nil || v4.Src() != addr {
		t.Errorf("SetSrc: %v, got %s", err, v4.Src())
	}
}

func TestVlanOffset(t *testing.T) {
	raw := frameOf(t, vlanFrame)
	defer freeMbuf(raw.Mbuf())
	eth, err := raw.ParseEthernet()
	if err != nil {
		t.Fatalf("ParseEthernet: %v", err)
	}
	if !eth.Tagged() || eth.HeaderLen() != 18 {
		t.Fatalf("tagged frame HeaderLen = %d", eth.HeaderLen())
	}
	if eth.EtherType() != EtherTypeIpv4 {
		t.Errorf("effective EtherType = %s", eth.EtherType())
	}
	v4, err := eth.ParseIpv4()
	if err != nil {
		t.Fatalf("ParseIpv4 behind tag: %v", err)
	}
	if v4.Offset() != 18 {
		t.Errorf("v4 offset = %d, want 18", v4.Offset())
	}
}

func TestParseTruncated(t *testing.T) {
	raw := frameOf(t, udpFrame[:16])
	defer freeMbuf(raw.Mbuf())
	eth, err := raw.ParseEthernet()
	if err != nil {
		t.Fatalf("ParseEthernet: %v", err)
	}
	var badOff common.BadOffsetError
	if _, err := eth.ParseIpv4(); !errors.As(err, &badOff) {
		t.Errorf("truncated ParseIpv4 = %v, want BadOffsetError", err)
	}
}

func TestFlow(t *testing.T) {
	raw := frameOf(t, udpFrame)
	defer freeMbuf(raw.Mbuf())
	eth, _ := raw.ParseEthernet()
	v4, _ := eth.ParseIpv4()

	flow, err := v4.Flow()
	if err != nil {
		t.Fatalf("Flow: %v", err)
	}
	want := Flow{
		SrcIP:   netip.MustParseAddr("10.0.0.1"),
		DstIP:   netip.MustParseAddr("10.0.0.2"),
		SrcPort: 1234,
		DstPort: 5678,
		Proto:   ProtocolUdp,
	}
	if flow != want {
		t.Errorf("Flow = %+v", flow)
	}
	if flow.Reverse().Reverse() != flow {
		t.Error("Reverse not an involution")
	}
	if flow.Hash() == flow.Reverse().Hash() {
		t.Error("reverse flow hashes equal")
	}
}

func TestParseMacAddr(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"aa:bb:cc:dd:ee:ff", "aa:bb:cc:dd:ee:ff", true},
		{"00:00:00:00:00:00", "00:00:00:00:00:00", true},
		{"aa:bb:cc:dd:ee", "", false},
		{"gg:bb:cc:dd:ee:ff", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, err := ParseMacAddr(tt.in)
		if tt.ok != (err == nil) {
			t.Errorf("ParseMacAddr(%q) err = %v", tt.in, err)
			continue
		}
		if tt.ok && got.String() != tt.want {
			t.Errorf("ParseMacAddr(%q) = %s", tt.in, got)
		}
	}
}

func TestMutationGuard(t *testing.T) {
	raw := frameOf(t, udpFrame)
	defer freeMbuf(raw.Mbuf())
	eth, _ := raw.ParseEthernet()

	raw.Mbuf().Reference()
	defer native.DefaultPool().Free(raw.Mbuf())
	defer func() {
		if recover() == nil {
			t.Error("mutating a shared buffer did not panic")
		}
	}()
	eth.SwapAddresses()
}
