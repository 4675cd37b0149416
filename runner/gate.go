package runner

import (
	"context"
	"net"
	"net/netip"
	"net/url"
	"strings"

	"github.com/ammiranda/request_tree/internal/apperr"
)

// Resolver looks up the addresses of a host. *net.Resolver satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// metadataHost is the cloud metadata hostname.
const metadataHost = "metadata.google.internal"

var privatePrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("::/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

// IsPrivateAddr reports whether addr is loopback, private, link-local,
// carrier-grade NAT, unspecified or the metadata address. IPv4-mapped IPv6
// addresses are checked as IPv4 and IPv6 zones are ignored.
func IsPrivateAddr(addr netip.Addr) bool {
	addr = addr.WithZone("").Unmap()
	for _, p := range privatePrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Gate decides whether a URL may be fetched.
type Gate struct {
	resolver Resolver
	allowed  []string
}

// NewGate creates a gate. An empty allow-list admits every public host.
func NewGate(resolver Resolver, allowedHosts []string) *Gate {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	allowed := make([]string, 0, len(allowedHosts))
	for _, h := range allowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			allowed = append(allowed, h)
		}
	}
	return &Gate{resolver: resolver, allowed: allowed}
}

// Check returns a BadRequest error with code invalid_protocol, invalid_host,
// blocked_host, blocked_ip or dns_lookup_failed when u must not be fetched.
func (g *Gate) Check(ctx context.Context, u *url.URL) error {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return apperr.BadRequest("invalid_protocol")
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return apperr.BadRequest("invalid_host")
	}
	if !g.hostAllowed(host) || blockedHostname(host) {
		return apperr.BadRequest("blocked_host")
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if IsPrivateAddr(addr) {
			return apperr.BadRequest("blocked_ip")
		}
		return nil
	}

	addrs, err := g.resolver.LookupIPAddr(ctx, host)
	if err != nil || len(addrs) == 0 {
		return apperr.BadRequest("dns_lookup_failed")
	}
	for _, a := range addrs {
		ip, ok := netip.AddrFromSlice(a.IP)
		if !ok || IsPrivateAddr(ip) {
			return apperr.BadRequest("blocked_ip")
		}
	}
	return nil
}

func (g *Gate) hostAllowed(host string) bool {
	if len(g.allowed) == 0 {
		return true
	}
	for _, entry := range g.allowed {
		if host == entry || strings.HasSuffix(host, "."+entry) {
			return true
		}
	}
	return false
}

func blockedHostname(host string) bool {
	host = strings.TrimSuffix(host, ".")
	switch {
	case host == "localhost", host == metadataHost:
		return true
	case strings.HasSuffix(host, ".localhost"),
		strings.HasSuffix(host, ".local"),
		strings.HasSuffix(host, ".internal"):
		return true
	}
	return false
}
