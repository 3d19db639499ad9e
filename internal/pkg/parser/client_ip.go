package parser

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// TrustedProxies decides whether forwarding headers on a request can be believed.
// A nil *TrustedProxies trusts nobody and always answers with RemoteAddr.
type TrustedProxies struct {
	nets []*net.IPNet
}

// NewTrustedProxies accepts bare IPs and CIDR ranges.
func NewTrustedProxies(entries []string) (*TrustedProxies, error) {
	p := &TrustedProxies{}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.Contains(e, "/") {
			ip := net.ParseIP(e)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", e)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			p.nets = append(p.nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(e)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", e, err)
		}
		p.nets = append(p.nets, n)
	}
	return p, nil
}

func (p *TrustedProxies) trusts(addr string) bool {
	if p == nil {
		return false
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range p.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP returns RemoteAddr unless it is a trusted proxy. Behind a trusted
// proxy it walks X-Forwarded-For from the right and returns the first hop that
// is not itself trusted, then falls back to X-Real-IP.
func (p *TrustedProxies) ClientIP(r *http.Request) string {
	remote := RemoteIP(r)
	if !p.trusts(remote) {
		return remote
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if !p.trusts(hop) || i == 0 {
				return hop
			}
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	return remote
}

// RemoteIP is the host part of r.RemoteAddr.
func RemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
