package security

import (
	"fmt"
	"net/netip"
)

// Mode controls how the CIDR list of an IPFilter is interpreted.
type Mode int

const (
	// AllowList only admits addresses that match at least one CIDR.
	AllowList Mode = iota
	// DenyList rejects addresses that match any CIDR and admits all others.
	DenyList
)

// IPFilter decides whether a resolved client address is admitted. Request
// logging uses a DenyList filter to skip health probes and internal callers.
type IPFilter struct {
	mode  Mode
	cidrs []netip.Prefix
}

// NewIPFilter parses cidrs up-front and returns an error for invalid entries.
func NewIPFilter(mode Mode, cidrs []string) (*IPFilter, error) {
	prefixes, err := ParsePrefixes(cidrs)
	if err != nil {
		return nil, fmt.Errorf("security: invalid CIDR: %w", err)
	}
	return &IPFilter{mode: mode, cidrs: prefixes}, nil
}

// Admit reports whether addr passes the filter. A nil filter admits
// everything; an invalid address is never admitted.
func (f *IPFilter) Admit(addr netip.Addr) bool {
	if f == nil {
		return true
	}
	if !addr.IsValid() {
		return false
	}

	matched := matchesAny(addr, f.cidrs)

	switch f.mode {
	case AllowList:
		return matched
	case DenyList:
		return !matched
	default:
		return false
	}
}

// matchesAny reports whether addr is contained in any of the prefixes.
func matchesAny(addr netip.Addr, prefixes []netip.Prefix) bool {
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ParsePrefixes parses a slice of CIDR strings into netip.Prefix values.
// A plain IP address (without a prefix length) is treated as a single-host
// prefix (/32 for IPv4, /128 for IPv6).
func ParsePrefixes(raw []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(raw))
	for _, s := range raw {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			addr, addrErr := netip.ParseAddr(s)
			if addrErr != nil {
				return nil, fmt.Errorf("%q: %w", s, err)
			}
			p = netip.PrefixFrom(addr, addr.BitLen())
		}
		out = append(out, p.Masked())
	}
	return out, nil
}
