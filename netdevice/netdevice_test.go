package netdevice_test

import (
	"net"
	"testing"

	"github.com/google/gopacket/layers"

	"github.com/m-lab/netstack/ipv4"
	"github.com/m-lab/netstack/netdevice"
)

var (
	ourMAC  = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	ourIP   = net.IPv4(10, 0, 0, 1)
	peerMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	peerIP  = net.IPv4(10, 0, 0, 2)
)

// TestSendQueuesARPRequestFirst verifies that an unresolved next hop
// triggers an ARP request and holds the datagram until resolved.
func TestSendQueuesARPRequestFirst(t *testing.T) {
	n := netdevice.New(ourMAC, ourIP, netdevice.DefaultConfig())
	n.SendDatagram(ipv4.Datagram{}, peerIP)

	frame, ok := n.MaybeSend()
	if !ok || frame.Type != layers.EthernetTypeARP {
		t.Fatalf("first queued frame = %+v, ok=%v, want an ARP request", frame, ok)
	}
	if frame.ARP.Operation != layers.ARPRequest {
		t.Errorf("ARP.Operation = %d, want ARPRequest", frame.ARP.Operation)
	}

	if _, ok := n.MaybeSend(); ok {
		t.Fatal("datagram was sent before ARP resolved")
	}
}

func TestReplyFlushesPendingDatagram(t *testing.T) {
	n := netdevice.New(ourMAC, ourIP, netdevice.DefaultConfig())
	n.SendDatagram(ipv4.Datagram{}, peerIP)
	n.MaybeSend() // drain the ARP request

	n.RecvFrame(netdevice.EthernetFrame{
		SrcMAC: peerMAC,
		DstMAC: ourMAC,
		Type:   layers.EthernetTypeARP,
		ARP: &netdevice.ARPMessage{
			Operation: layers.ARPReply,
			SenderHW:  peerMAC,
			SenderIP:  peerIP,
			TargetHW:  ourMAC,
			TargetIP:  ourIP,
		},
	})

	frame, ok := n.MaybeSend()
	if !ok || frame.Type != layers.EthernetTypeIPv4 {
		t.Fatalf("frame = %+v, ok=%v, want the queued IPv4 datagram", frame, ok)
	}
	if string(frame.DstMAC) != string(peerMAC) {
		t.Errorf("DstMAC = %v, want %v", frame.DstMAC, peerMAC)
	}
}

func TestSecondSendHitsCache(t *testing.T) {
	n := netdevice.New(ourMAC, ourIP, netdevice.DefaultConfig())
	n.SendDatagram(ipv4.Datagram{}, peerIP)
	n.MaybeSend()
	n.RecvFrame(netdevice.EthernetFrame{
		SrcMAC: peerMAC, DstMAC: ourMAC, Type: layers.EthernetTypeARP,
		ARP: &netdevice.ARPMessage{Operation: layers.ARPReply, SenderHW: peerMAC, SenderIP: peerIP, TargetHW: ourMAC, TargetIP: ourIP},
	})
	n.MaybeSend() // drain the flushed datagram

	n.SendDatagram(ipv4.Datagram{}, peerIP)
	frame, ok := n.MaybeSend()
	if !ok || frame.Type != layers.EthernetTypeIPv4 {
		t.Fatalf("frame = %+v, ok=%v, want a cache hit IPv4 send with no new ARP request", frame, ok)
	}
}

// TestThrottleSuppressesRepeatRequests covers the ARP throttle invariant: a
// second send to the same unresolved address before the throttle elapses
// must not emit a second ARP request.
func TestThrottleSuppressesRepeatRequests(t *testing.T) {
	n := netdevice.New(ourMAC, ourIP, netdevice.Config{ARPRequestThrottleMs: 5000, ARPCacheTTLMs: 30000})
	n.SendDatagram(ipv4.Datagram{}, peerIP)
	n.MaybeSend()

	n.Tick(1000)
	n.SendDatagram(ipv4.Datagram{}, peerIP)
	if _, ok := n.MaybeSend(); ok {
		t.Fatal("throttle window still open, expected no new queued frame")
	}

	n.Tick(5000)
	n.SendDatagram(ipv4.Datagram{}, peerIP)
	frame, ok := n.MaybeSend()
	if !ok || frame.Type != layers.EthernetTypeARP {
		t.Fatalf("frame = %+v, ok=%v, want a retried ARP request after throttle expiry", frame, ok)
	}
}

func TestUnresolvedRequestForUsIsAnswered(t *testing.T) {
	n := netdevice.New(ourMAC, ourIP, netdevice.DefaultConfig())
	n.RecvFrame(netdevice.EthernetFrame{
		SrcMAC: peerMAC,
		DstMAC: netdevice.BroadcastMAC,
		Type:   layers.EthernetTypeARP,
		ARP: &netdevice.ARPMessage{
			Operation: layers.ARPRequest,
			SenderHW:  peerMAC,
			SenderIP:  peerIP,
			TargetIP:  ourIP,
		},
	})

	frame, ok := n.MaybeSend()
	if !ok || frame.Type != layers.EthernetTypeARP || frame.ARP.Operation != layers.ARPReply {
		t.Fatalf("frame = %+v, ok=%v, want an ARP reply", frame, ok)
	}
	if string(frame.DstMAC) != string(peerMAC) {
		t.Errorf("reply DstMAC = %v, want %v", frame.DstMAC, peerMAC)
	}
}

func TestFrameForOtherAddressIgnored(t *testing.T) {
	n := netdevice.New(ourMAC, ourIP, netdevice.DefaultConfig())
	other := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x09}
	_, ok := n.RecvFrame(netdevice.EthernetFrame{
		SrcMAC: peerMAC, DstMAC: other, Type: layers.EthernetTypeIPv4, IPv4: &ipv4.Datagram{},
	})
	if ok {
		t.Fatal("frame addressed to a different MAC should be dropped")
	}
}
