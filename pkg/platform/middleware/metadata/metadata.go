package metadata

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"certhub/pkg/requestcontext"
)

// TrustedProxies lists the networks whose forwarding headers are believed.
// The zero value trusts nobody and the client IP is the socket peer.
type TrustedProxies []netip.Prefix

// ParseTrustedProxies accepts CIDR ranges or bare addresses.
func ParseTrustedProxies(values []string) (TrustedProxies, error) {
	var out TrustedProxies
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if strings.Contains(v, "/") {
			p, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", v, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", v, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func (t TrustedProxies) contains(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range t {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientMetadata extracts client IP address and User-Agent from the request
// and adds them to the context for use by handlers and services. Forwarding
// headers are ignored.
func ClientMetadata(next http.Handler) http.Handler {
	return ClientMetadataWith(nil)(next)
}

// ClientMetadataWith is ClientMetadata honouring X-Forwarded-For and
// X-Real-IP when the peer is one of trusted.
func ClientMetadataWith(trusted TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIPFromRequest(r, trusted)
			userAgent := r.Header.Get("User-Agent")
			ctx := requestcontext.WithClientMetadata(r.Context(), ip, userAgent)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIPFromRequest returns the client IP. Behind trusted proxies the
// X-Forwarded-For chain is walked right to left and the first hop that is
// not a trusted proxy wins.
func ClientIPFromRequest(r *http.Request, trusted TrustedProxies) string {
	peer := remoteHost(r.RemoteAddr)
	if len(trusted) == 0 || !trusted.contains(peer) {
		return peer
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if _, err := netip.ParseAddr(hop); err != nil {
				break
			}
			if !trusted.contains(hop) {
				return hop
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if _, err := netip.ParseAddr(xri); err == nil {
			return xri
		}
	}
	return peer
}

func remoteHost(addr string) string {
	if addr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
