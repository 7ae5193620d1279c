// Package metrics defines package-level prometheus metrics that the
// sender, reassembler, network interface, and router update directly.
//
// When defining new operations or metrics, these are helpful values to
// track:
//  - things coming into or going out of a component: segments, frames, datagrams.
//  - the success or error status of any of the above.
//  - the distribution of processing latency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SenderRetransmits counts TCPSender retransmissions triggered by
	// timer expiry, labeled by whether the retransmit escalated the RTO.
	// Provides metric:
	//    netstack_sender_retransmit_total
	SenderRetransmits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netstack_sender_retransmit_total",
		Help: "The number of segments retransmitted by the TCP sender.",
	}, []string{"backoff"})

	// SenderZeroWindowProbes counts segments sent while the peer's
	// advertised window was zero.
	// Provides metric:
	//    netstack_sender_zero_window_probe_total
	SenderZeroWindowProbes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netstack_sender_zero_window_probe_total",
		Help: "The number of zero-window probe segments sent.",
	})

	// SenderBadAcks counts acknowledgements ignored for being out of range.
	// Provides metric:
	//    netstack_sender_bad_ack_total
	SenderBadAcks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netstack_sender_bad_ack_total",
		Help: "The number of acknowledgements ignored for being out of the valid range.",
	})

	// ReassemblerBytesDropped counts bytes dropped by the reassembler for
	// falling outside the current assembly window.
	// Provides metric:
	//    netstack_reassembler_bytes_dropped_total
	ReassemblerBytesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netstack_reassembler_bytes_dropped_total",
		Help: "The number of bytes dropped by the reassembler for falling outside the assembly window.",
	})

	// ARPCacheSize reports the current number of entries (pending and
	// resolved) in a network interface's ARP table.
	// Provides metric:
	//    netstack_arp_cache_size
	ARPCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "netstack_arp_cache_size",
		Help: "The current number of entries in the ARP cache.",
	})

	// ARPRequestsSent counts outgoing ARP requests.
	// Provides metric:
	//    netstack_arp_requests_sent_total
	ARPRequestsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netstack_arp_requests_sent_total",
		Help: "The number of ARP requests sent.",
	})

	// ARPRepliesSent counts outgoing ARP replies.
	// Provides metric:
	//    netstack_arp_replies_sent_total
	ARPRepliesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netstack_arp_replies_sent_total",
		Help: "The number of ARP replies sent.",
	})

	// ARPCacheHits counts datagram sends resolved directly from a fresh
	// cache entry, without a new ARP exchange.
	// Provides metric:
	//    netstack_arp_cache_hits_total
	ARPCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netstack_arp_cache_hits_total",
		Help: "The number of datagram sends resolved from a fresh ARP cache entry.",
	})

	// ARPCacheExpirations counts cache entries that aged out.
	// Provides metric:
	//    netstack_arp_cache_expirations_total
	ARPCacheExpirations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netstack_arp_cache_expirations_total",
		Help: "The number of ARP cache entries that expired, labeled by entry kind.",
	}, []string{"kind"})

	// RouterForwarded counts datagrams successfully forwarded by the router.
	// Provides metric:
	//    netstack_router_forwarded_total
	RouterForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netstack_router_forwarded_total",
		Help: "The number of datagrams forwarded by the router.",
	})

	// RouterDropped counts datagrams dropped by the router, labeled by reason.
	// Provides metric:
	//    netstack_router_dropped_total
	RouterDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netstack_router_dropped_total",
		Help: "The number of datagrams dropped by the router.",
	}, []string{"reason"})

	// RouterRouteCount reports the current size of the route table.
	// Provides metric:
	//    netstack_router_route_count
	RouterRouteCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "netstack_router_route_count",
		Help: "The current number of entries in the router's route table.",
	})
)
