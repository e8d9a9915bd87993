package security

import (
	"net/netip"
	"testing"
)

func TestIPFilter(t *testing.T) {
	tests := []struct {
		name  string
		mode  Mode
		cidrs []string
		addr  string
		want  bool
	}{
		{"deny matching", DenyList, []string{"10.0.0.0/8"}, "10.1.2.3", false},
		{"deny non-matching", DenyList, []string{"10.0.0.0/8"}, "192.168.1.1", true},
		{"allow matching", AllowList, []string{"192.168.0.0/16"}, "192.168.1.50", true},
		{"allow non-matching", AllowList, []string{"192.168.0.0/16"}, "10.0.0.1", false},
		{"bare ip", DenyList, []string{"127.0.0.1"}, "127.0.0.1", false},
		{"ipv6", DenyList, []string{"2001:db8::/32"}, "2001:db8::5", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewIPFilter(tt.mode, tt.cidrs)
			if err != nil {
				t.Fatal(err)
			}
			if got := f.Admit(netip.MustParseAddr(tt.addr)); got != tt.want {
				t.Fatalf("Admit(%s) = %v, want %v", tt.addr, got, tt.want)
			}
		})
	}
}

func TestIPFilter_NilAdmitsAll(t *testing.T) {
	var f *IPFilter
	if !f.Admit(netip.MustParseAddr("10.0.0.1")) {
		t.Fatal("nil filter should admit everything")
	}
}

func TestIPFilter_InvalidAddrRejected(t *testing.T) {
	f, err := NewIPFilter(DenyList, nil)
	if err != nil {
		t.Fatal(err)
	}
	if f.Admit(netip.Addr{}) {
		t.Fatal("invalid address must not be admitted")
	}
}

func TestNewIPFilter_InvalidCIDR(t *testing.T) {
	if _, err := NewIPFilter(DenyList, []string{"not-a-cidr"}); err == nil {
		t.Fatal("expected error for invalid CIDR")
	}
}
