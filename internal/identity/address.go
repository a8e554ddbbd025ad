package identity

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Unknown stands in for a request with no usable address.
const Unknown = "unknown"

// ClientAddress resolves the address a request came from. With trustForwarded the
// first X-Forwarded-For entry wins, then X-Real-IP; otherwise, or when both are
// empty, the host part of RemoteAddr is used. IP addresses are canonicalized so one
// client always derives one identity.
func ClientAddress(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if a := canonical(first); a != "" {
				return a
			}
		}
		if a := canonical(r.Header.Get("X-Real-IP")); a != "" {
			return a
		}
	}

	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if a := canonical(host); a != "" {
		return a
	}
	return Unknown
}

func canonical(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap().String()
	}
	if a, err := netip.ParseAddr(strings.Trim(s, "[]")); err == nil {
		return a.Unmap().String()
	}
	return s
}
