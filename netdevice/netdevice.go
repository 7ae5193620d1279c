// Package netdevice implements a network interface: the ARP resolution
// layer between an IPv4 datagram queue and an Ethernet frame queue.
package netdevice

import (
	"bytes"
	"log"
	"net"
	"os"
	"time"

	"github.com/google/gopacket/layers"

	"github.com/m-lab/go/logx"
	"github.com/m-lab/netstack/ipv4"
	"github.com/m-lab/netstack/metrics"
)

var (
	sparseLogger = log.New(os.Stdout, "netdevice: ", log.LstdFlags|log.Lshortfile)
	sparse1      = logx.NewLogEvery(sparseLogger, 1000*time.Millisecond)
)

// BroadcastMAC is the all-ones Ethernet broadcast address ARP requests are
// sent to.
var BroadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// ARPMessage is a decoded ARP packet, restricted to the Ethernet/IPv4
// address families this stack speaks.
type ARPMessage struct {
	Operation uint16 // layers.ARPRequest or layers.ARPReply
	SenderHW  net.HardwareAddr
	SenderIP  net.IP
	TargetHW  net.HardwareAddr
	TargetIP  net.IP
}

// EthernetFrame is a decoded Ethernet frame carrying either an IPv4
// datagram or an ARP message, matching the two EthernetType values this
// stack handles.
type EthernetFrame struct {
	SrcMAC, DstMAC net.HardwareAddr
	Type           layers.EthernetType
	IPv4           *ipv4.Datagram
	ARP            *ARPMessage
}

// Config tunes ARP resolution timing. Zero values are replaced by
// DefaultConfig's defaults when passed to New.
type Config struct {
	// ARPRequestThrottleMs is the minimum time between ARP requests for
	// the same unresolved address.
	ARPRequestThrottleMs int64
	// ARPCacheTTLMs is how long a resolved address stays usable without a
	// fresh ARP exchange.
	ARPCacheTTLMs int64
}

// DefaultConfig returns the interface's default throttle and TTL timing.
func DefaultConfig() Config {
	return Config{ARPRequestThrottleMs: 5000, ARPCacheTTLMs: 30000}
}

func (c Config) withDefaults() Config {
	if c.ARPRequestThrottleMs == 0 {
		c.ARPRequestThrottleMs = 5000
	}
	if c.ARPCacheTTLMs == 0 {
		c.ARPCacheTTLMs = 30000
	}
	return c
}

type cacheState int

const (
	statePending cacheState = iota
	stateResolved
)

// cacheEntry is the ARP table's discriminated pending/resolved state: a
// timer counting down either to request-retry eligibility (pending) or to
// expiration (resolved), never both.
type cacheEntry struct {
	state   cacheState
	mac     net.HardwareAddr
	timerMs int64
	expired bool // true once timerMs has hit zero and been counted
}

// NetworkInterface resolves IPv4 next hops to Ethernet addresses via ARP
// and queues frames for a caller to physically transmit.
type NetworkInterface struct {
	ownMAC net.HardwareAddr
	ownIP  net.IP
	cfg    Config

	cache         map[uint32]cacheEntry
	pendingFrames map[uint32][]EthernetFrame
	txQueue       []EthernetFrame
}

// New returns a NetworkInterface with the given hardware and IPv4 address.
func New(ownMAC net.HardwareAddr, ownIP net.IP, cfg Config) *NetworkInterface {
	return &NetworkInterface{
		ownMAC:        ownMAC,
		ownIP:         ownIP.To4(),
		cfg:           cfg.withDefaults(),
		cache:         make(map[uint32]cacheEntry),
		pendingFrames: make(map[uint32][]EthernetFrame),
	}
}

func ipKey(ip net.IP) uint32 {
	ip4 := ip.To4()
	return uint32(ip4[0])<<24 | uint32(ip4[1])<<16 | uint32(ip4[2])<<8 | uint32(ip4[3])
}

func macEqual(a, b net.HardwareAddr) bool {
	return bytes.Equal(a, b)
}

// SendDatagram queues dgram for nextHop, resolving its Ethernet address via
// ARP first if necessary. A datagram queued behind an in-flight resolution
// is held until an ARP message from that address arrives; held datagrams
// are never dropped, even if no reply ever comes.
func (n *NetworkInterface) SendDatagram(dgram ipv4.Datagram, nextHop net.IP) {
	key := ipKey(nextHop)
	frame := EthernetFrame{SrcMAC: n.ownMAC, Type: layers.EthernetTypeIPv4, IPv4: &dgram}

	if entry, ok := n.cache[key]; ok {
		switch {
		case entry.state == stateResolved && entry.timerMs > 0:
			frame.DstMAC = entry.mac
			n.txQueue = append(n.txQueue, frame)
			metrics.ARPCacheHits.Inc()
			return
		case entry.state == statePending && entry.timerMs > 0:
			n.pendingFrames[key] = append(n.pendingFrames[key], frame)
			return
		}
	}

	n.cache[key] = cacheEntry{state: statePending, timerMs: n.cfg.ARPRequestThrottleMs}
	n.txQueue = append(n.txQueue, EthernetFrame{
		SrcMAC: n.ownMAC,
		DstMAC: BroadcastMAC,
		Type:   layers.EthernetTypeARP,
		ARP: &ARPMessage{
			Operation: layers.ARPRequest,
			SenderHW:  n.ownMAC,
			SenderIP:  n.ownIP,
			TargetIP:  nextHop.To4(),
		},
	})
	metrics.ARPRequestsSent.Inc()
	n.pendingFrames[key] = append(n.pendingFrames[key], frame)
	metrics.ARPCacheSize.Set(float64(len(n.cache)))
}

// RecvFrame processes an inbound frame addressed to us or broadcast. It
// returns the carried IPv4 datagram when Type is EthernetTypeIPv4; ARP
// frames are consumed internally (learning the sender and, for requests
// targeting us, queuing a reply) and never returned.
func (n *NetworkInterface) RecvFrame(frame EthernetFrame) (*ipv4.Datagram, bool) {
	if !macEqual(frame.DstMAC, n.ownMAC) && !macEqual(frame.DstMAC, BroadcastMAC) {
		return nil, false
	}
	switch frame.Type {
	case layers.EthernetTypeIPv4:
		if frame.IPv4 == nil {
			return nil, false
		}
		return frame.IPv4, true
	case layers.EthernetTypeARP:
		if frame.ARP == nil {
			return nil, false
		}
		n.learnAndFlush(frame.ARP)
		return nil, false
	default:
		sparse1.Println("dropping frame with unrecognized EthernetType", frame.Type)
		return nil, false
	}
}

func (n *NetworkInterface) learnAndFlush(arp *ARPMessage) {
	key := ipKey(arp.SenderIP)
	n.cache[key] = cacheEntry{state: stateResolved, mac: arp.SenderHW, timerMs: n.cfg.ARPCacheTTLMs}
	metrics.ARPCacheSize.Set(float64(len(n.cache)))

	if arp.Operation == layers.ARPRequest && arp.TargetIP.Equal(n.ownIP) {
		n.txQueue = append(n.txQueue, EthernetFrame{
			SrcMAC: n.ownMAC,
			DstMAC: arp.SenderHW,
			Type:   layers.EthernetTypeARP,
			ARP: &ARPMessage{
				Operation: layers.ARPReply,
				SenderHW:  n.ownMAC,
				SenderIP:  n.ownIP,
				TargetHW:  arp.SenderHW,
				TargetIP:  arp.SenderIP,
			},
		})
		metrics.ARPRepliesSent.Inc()
	}

	pending := n.pendingFrames[key]
	delete(n.pendingFrames, key)
	for _, f := range pending {
		f.DstMAC = arp.SenderHW
		n.txQueue = append(n.txQueue, f)
	}
}

// Tick advances every cache entry's timer by ms milliseconds. A resolved
// entry reaching zero becomes eligible for fresh resolution on next send; a
// pending entry reaching zero becomes eligible for a retried ARP request.
// Either transition is counted once in ARPCacheExpirations.
func (n *NetworkInterface) Tick(ms int64) {
	for key, entry := range n.cache {
		if entry.timerMs <= 0 {
			continue
		}
		entry.timerMs -= ms
		if entry.timerMs < 0 {
			entry.timerMs = 0
		}
		if entry.timerMs == 0 && !entry.expired {
			entry.expired = true
			kind := "resolved"
			if entry.state == statePending {
				kind = "pending"
			}
			metrics.ARPCacheExpirations.WithLabelValues(kind).Inc()
		}
		n.cache[key] = entry
	}
}

// MaybeSend dequeues the next frame ready for physical transmission, if
// any.
func (n *NetworkInterface) MaybeSend() (EthernetFrame, bool) {
	if len(n.txQueue) == 0 {
		return EthernetFrame{}, false
	}
	f := n.txQueue[0]
	n.txQueue = n.txQueue[1:]
	return f, true
}

// CacheSize returns the current number of ARP table entries, pending and
// resolved.
func (n *NetworkInterface) CacheSize() int {
	return len(n.cache)
}
