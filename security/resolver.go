// Package security resolves the effective client address of HTTP requests
// and gRPC calls, honouring forwarding headers only when they were set by a
// trusted proxy.
package security

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

// defaultHeaderPriority is the ordered list of header keys inspected when the
// caller does not provide an explicit HeaderPriority.
var defaultHeaderPriority = []string{"x-forwarded-for", "x-real-ip"}

// Config holds the configuration for a Resolver.
type Config struct {
	// TrustedProxies lists CIDRs or bare IPs whose forwarding headers are
	// believed. An empty list means headers are never consulted.
	TrustedProxies []string
	// HeaderPriority lists header names in lookup order (case-insensitive).
	HeaderPriority []string
}

// Resolver determines the client address of an inbound request.
type Resolver struct {
	trustedProxies []netip.Prefix
	headerPriority []string
}

// NewResolver parses cfg up-front and returns an error if any trusted-proxy
// entry is invalid.
func NewResolver(cfg Config) (*Resolver, error) {
	proxies, err := ParsePrefixes(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("security: invalid trusted proxy: %w", err)
	}

	hp := make([]string, 0, len(cfg.HeaderPriority))
	for _, h := range cfg.HeaderPriority {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hp = append(hp, h)
		}
	}
	if len(hp) == 0 {
		hp = defaultHeaderPriority
	}

	return &Resolver{trustedProxies: proxies, headerPriority: hp}, nil
}

// FromRequest returns the client address of r. When the peer in
// r.RemoteAddr is a trusted proxy, the first valid address found in the
// priority headers wins; for X-Forwarded-For the left-most entry is used.
func (res *Resolver) FromRequest(r *http.Request) (netip.Addr, bool) {
	peerAddr, ok := parseHostPort(r.RemoteAddr)
	if !ok {
		return netip.Addr{}, false
	}
	if res != nil && matchesAny(peerAddr, res.trustedProxies) {
		if addr, found := addrFromHeaders(r.Header.Values, res.headerPriority); found {
			return addr, true
		}
	}
	return peerAddr, true
}

// FromGRPC is the gRPC counterpart of FromRequest: the peer comes from ctx
// and forwarding headers from the incoming metadata.
func (res *Resolver) FromGRPC(ctx context.Context, md metadata.MD) (netip.Addr, bool) {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return netip.Addr{}, false
	}
	peerAddr, ok := addrFromNetAddr(p.Addr)
	if !ok {
		return netip.Addr{}, false
	}
	if res != nil && matchesAny(peerAddr, res.trustedProxies) {
		if addr, found := addrFromHeaders(md.Get, res.headerPriority); found {
			return addr, true
		}
	}
	return peerAddr, true
}

// RemoteAddr is FromRequest rendered as a string, "" when unknown.
func (res *Resolver) RemoteAddr(r *http.Request) string {
	if addr, ok := res.FromRequest(r); ok {
		return addr.String()
	}
	return ""
}

// addrFromNetAddr parses a net.Addr into a netip.Addr, stripping any port.
func addrFromNetAddr(addr net.Addr) (netip.Addr, bool) {
	return parseHostPort(addr.String())
}

// parseHostPort accepts "ip", "ip:port" and "[ipv6]:port". IPv4-mapped IPv6
// addresses are unmapped so CIDR checks behave as expected.
func parseHostPort(s string) (netip.Addr, bool) {
	s = strings.TrimSpace(s)
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.Trim(s, "[]")
	ip, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return ip.Unmap(), true
}

// addrFromHeaders walks the header keys in priority order and returns the
// first valid IP address found. Multi-value headers such as X-Forwarded-For
// are split on commas and read left to right.
func addrFromHeaders(get func(string) []string, priority []string) (netip.Addr, bool) {
	for _, key := range priority {
		for _, v := range get(key) {
			for part := range strings.SplitSeq(v, ",") {
				if ip, ok := parseHostPort(part); ok {
					return ip, true
				}
			}
		}
	}
	return netip.Addr{}, false
}
