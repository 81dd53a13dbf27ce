package httpmw

import (
	"context"
	"net/http"
	"net/netip"
	"strings"
)

type clientIPKey struct{}

// ClientIPOptions controls how much of X-Forwarded-For is believed.
type ClientIPOptions struct {
	// TrustedHops is how many proxies sit in front of the server. 0 ignores
	// X-Forwarded-For entirely, 1 takes the rightmost entry (single load
	// balancer), 2 the one before it, and so on.
	TrustedHops int
}

// ClientIP is ClientIPWithOptions with zero trusted hops.
func ClientIP(next http.Handler) http.Handler {
	return ClientIPWithOptions(ClientIPOptions{})(next)
}

// ClientIPWithOptions stores the client address in the request context for
// the rate limiter and the request logger.
func ClientIPWithOptions(opts ClientIPOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientAddr(r, opts.TrustedHops)
			next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), ip)))
		})
	}
}

// clientAddr only consults forwarding headers when the peer is a private
// address and hops are configured. Otherwise the headers are stripped so
// nothing further down trusts them.
func clientAddr(r *http.Request, trustedHops int) string {
	peer, err := netip.ParseAddrPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr without a port, as some test harnesses set it
		a, err := netip.ParseAddr(r.RemoteAddr)
		if err != nil {
			stripForwarded(r)
			return "0.0.0.0"
		}
		peer = netip.AddrPortFrom(a, 0)
	}
	addr := peer.Addr().Unmap()

	if trustedHops <= 0 || !addr.IsPrivate() {
		stripForwarded(r)
		return addr.String()
	}

	xf := r.Header.Get("X-Forwarded-For")
	if xf == "" {
		return addr.String()
	}
	parts := strings.Split(xf, ",")
	idx := len(parts) - trustedHops
	if idx < 0 {
		// fewer entries than proxies: misconfigured or forged
		stripForwarded(r)
		return addr.String()
	}
	if fwd, err := netip.ParseAddr(strings.TrimSpace(parts[idx])); err == nil {
		return fwd.Unmap().String()
	}
	return addr.String()
}

func stripForwarded(r *http.Request) {
	r.Header.Del("X-Forwarded-For")
	r.Header.Del("X-Forwarded-Proto")
}

func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}
