// Package router implements longest-prefix-match IPv4 forwarding across a
// set of attached network interfaces.
package router

import (
	"encoding/binary"
	"net"
	"sort"

	"github.com/m-lab/netstack/ipv4"
	"github.com/m-lab/netstack/metrics"
	"github.com/m-lab/netstack/netdevice"
)

// Config tunes router behavior. WithChecksum controls whether forwarded
// datagrams get their header checksum recomputed after the TTL decrement;
// it defaults to true and exists mainly so tests can compare datagrams
// byte-for-byte without chasing a moving checksum field.
type Config struct {
	RecomputeChecksum bool
}

// Option configures a Router at construction time.
type Option func(*Config)

// WithChecksum explicitly sets whether forwarded datagrams get their
// header checksum recomputed.
func WithChecksum(recompute bool) Option {
	return func(c *Config) { c.RecomputeChecksum = recompute }
}

func defaultConfig() Config {
	return Config{RecomputeChecksum: true}
}

// route is one forwarding table entry: packets whose destination matches
// the high prefixLength bits of prefix go out interfaceIndex, optionally
// via nextHop (nil means the destination itself is on-link).
type route struct {
	prefix         uint32
	prefixLength   uint8
	nextHop        net.IP
	interfaceIndex int
}

// Router owns a set of network interfaces and a route table, and forwards
// IPv4 datagrams between them by longest-prefix match.
type Router struct {
	cfg        Config
	interfaces []*netdevice.NetworkInterface
	routes     []route
}

// New returns an empty Router. Interfaces are attached with AddInterface
// before routes referencing them are added.
func New(opts ...Option) *Router {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Router{cfg: cfg}
}

// AddInterface attaches a network interface to the router, returning the
// index routes should use to reference it.
func (r *Router) AddInterface(iface *netdevice.NetworkInterface) int {
	r.interfaces = append(r.interfaces, iface)
	return len(r.interfaces) - 1
}

func ipToUint32(ip net.IP) uint32 {
	ip4 := ip.To4()
	return binary.BigEndian.Uint32(ip4)
}

// canonicalize zeros every bit below prefixLength, so two routes that
// differ only in host bits compare equal as table entries.
func canonicalize(prefix uint32, prefixLength uint8) uint32 {
	if prefixLength == 0 {
		return 0
	}
	mask := uint32(0xffffffff) << (32 - prefixLength)
	return prefix & mask
}

// AddRoute installs a forwarding entry: destinations whose top
// prefixLength bits equal prefix (after canonicalization) are sent out
// interfaceIndex, via nextHop if non-nil or directly if nextHop is nil
// (on-link).
func (r *Router) AddRoute(prefix net.IP, prefixLength uint8, nextHop net.IP, interfaceIndex int) {
	r.routes = append(r.routes, route{
		prefix:         canonicalize(ipToUint32(prefix), prefixLength),
		prefixLength:   prefixLength,
		nextHop:        nextHop,
		interfaceIndex: interfaceIndex,
	})
	metrics.RouterRouteCount.Set(float64(len(r.routes)))
}

// match finds the longest-prefix-matching route for dst, if any.
func (r *Router) match(dst uint32) (route, bool) {
	candidates := make([]route, 0, len(r.routes))
	for _, rt := range r.routes {
		if canonicalize(dst, rt.prefixLength) == rt.prefix {
			candidates = append(candidates, rt)
		}
	}
	if len(candidates) == 0 {
		return route{}, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].prefixLength > candidates[j].prefixLength
	})
	return candidates[0], true
}

// RouteDatagram forwards dgram by longest-prefix match: decrements TTL,
// drops it if TTL would reach zero or no route matches, recomputes the
// header checksum (unless disabled), and queues it on the matching
// interface toward the next hop.
func (r *Router) RouteDatagram(dgram ipv4.Datagram) {
	if dgram.Header.TTL <= 1 {
		metrics.RouterDropped.WithLabelValues("ttl_expired").Inc()
		return
	}

	rt, ok := r.match(ipToUint32(dgram.Header.DstIP))
	if !ok {
		metrics.RouterDropped.WithLabelValues("no_route").Inc()
		return
	}
	if rt.interfaceIndex < 0 || rt.interfaceIndex >= len(r.interfaces) {
		metrics.RouterDropped.WithLabelValues("bad_interface").Inc()
		return
	}

	dgram.Header.TTL--
	if r.cfg.RecomputeChecksum {
		dgram.Header.Checksum = headerChecksum(dgram.Header)
	}

	nextHop := dgram.Header.DstIP
	if rt.nextHop != nil {
		nextHop = rt.nextHop
	}

	r.interfaces[rt.interfaceIndex].SendDatagram(dgram, nextHop)
	metrics.RouterForwarded.Inc()
}
