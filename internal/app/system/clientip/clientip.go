// internal/app/system/clientip/clientip.go
package clientip

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Resolver picks the client address of a request. Forwarding headers are
// believed only when the immediate peer is a configured proxy. A nil
// Resolver trusts no proxy and always answers with the peer address.
type Resolver struct {
	trusted []*net.IPNet
}

// Parse builds a Resolver from a comma-separated list of IP addresses or
// CIDR ranges. An empty list yields a Resolver that trusts nothing.
func Parse(list string) (*Resolver, error) {
	res := &Resolver{}
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if !strings.Contains(item, "/") {
			ip := net.ParseIP(item)
			if ip == nil {
				return nil, fmt.Errorf("trusted proxy %q is not an IP address or CIDR", item)
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			res.trusted = append(res.trusted, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(item)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", item, err)
		}
		res.trusted = append(res.trusted, n)
	}
	return res, nil
}

func (res *Resolver) trusts(addr string) bool {
	if res == nil {
		return false
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range res.trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// IP returns the client address of r.
//
// When the peer is trusted, X-Forwarded-For is walked from the right and
// the first hop that is not itself a trusted proxy wins; X-Real-IP is used
// when there is no X-Forwarded-For. Otherwise the peer address is returned
// and the headers are ignored.
func (res *Resolver) IP(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	if !res.trusts(peer) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if i == 0 || !res.trusts(hop) {
				return hop
			}
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peer
}
