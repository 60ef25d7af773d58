package external

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"time"
)

// egressDNSTimeout bounds the lookup made before each guarded dial.
const egressDNSTimeout = 500 * time.Millisecond

// ErrEgressBlocked is returned when a forecast URL resolves to a private,
// loopback or otherwise internal address.
var ErrEgressBlocked = errors.New("egress: destination address is blocked")

// blockedPrefixes are never dialed by a guarded client. 169.254.0.0/16
// covers the instance metadata service.
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("224.0.0.0/4"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

// IsBlockedAddr reports whether addr falls in a blocked range. IPv4-mapped
// IPv6 addresses are checked as IPv4.
func IsBlockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Resolver abstracts DNS resolution for testability.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// EgressGuard dials only public addresses. Every address a host resolves
// to is checked before connecting, so a name mixing public and private
// records is rejected as a whole.
type EgressGuard struct {
	Resolver Resolver // default net.DefaultResolver
	Dialer   *net.Dialer
}

// DialContext resolves addr, rejects blocked destinations and dials the
// first resolved address.
func (g *EgressGuard) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("egress: invalid address %q: %w", addr, err)
	}

	addrs, err := g.resolve(ctx, host)
	if err != nil {
		return nil, err
	}

	dialer := g.Dialer
	if dialer == nil {
		dialer = &net.Dialer{Timeout: 10 * time.Second}
	}
	return dialer.DialContext(ctx, network, net.JoinHostPort(addrs[0].String(), port))
}

// CheckRedirect limits redirects to maxRedirects and rejects redirects to
// blocked destinations before they are followed.
func (g *EgressGuard) CheckRedirect(maxRedirects int) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("egress: stopped after %d redirects", maxRedirects)
		}
		_, err := g.resolve(req.Context(), req.URL.Hostname())
		return err
	}
}

func (g *EgressGuard) resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	if host == "" {
		return nil, fmt.Errorf("%w: empty host", ErrEgressBlocked)
	}

	if ip, err := netip.ParseAddr(host); err == nil {
		if IsBlockedAddr(ip) {
			return nil, fmt.Errorf("%w: %s", ErrEgressBlocked, ip)
		}
		return []netip.Addr{ip}, nil
	}

	resolver := g.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	dnsCtx, cancel := context.WithTimeout(ctx, egressDNSTimeout)
	defer cancel()

	addrs, err := resolver.LookupNetIP(dnsCtx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("egress: resolving %q: %w", host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("egress: %q resolved to no addresses", host)
	}
	for _, a := range addrs {
		if IsBlockedAddr(a) {
			return nil, fmt.Errorf("%w: %s (resolved from %s)", ErrEgressBlocked, a.Unmap(), host)
		}
	}
	return addrs, nil
}

// NewGuardedHTTPClient returns an http.Client whose connections and
// redirects go through an EgressGuard.
func NewGuardedHTTPClient(timeout time.Duration, maxRedirects int, resolver Resolver) *http.Client {
	guard := &EgressGuard{Resolver: resolver}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = guard.DialContext

	return &http.Client{
		Transport:     transport,
		Timeout:       timeout,
		CheckRedirect: guard.CheckRedirect(maxRedirects),
	}
}
