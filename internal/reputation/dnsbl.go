package reputation

import (
	"context"
	"fmt"
	"net/netip"
	"strings"

	"github.com/miekg/dns"

	apperrors "github.com/ItsCrafted/blooket-hacks/internal/errors"
)

// DNSBL flags addresses listed in a DNS blocklist zone. The address octets are
// reversed under the zone and queried for an A record: any answer means listed,
// NXDOMAIN means clean.
type DNSBL struct {
	Zone   string
	Server string // host:port of the resolver
	Client *dns.Client
}

// NewDNSBL creates a blocklist checker querying server over UDP.
func NewDNSBL(zone, server string) *DNSBL {
	return &DNSBL{
		Zone:   zone,
		Server: server,
		Client: &dns.Client{Net: "udp"},
	}
}

// QueryName returns the name looked up for addr, or false for addresses the list
// cannot cover (anything but IPv4).
func (c *DNSBL) QueryName(addr string) (string, bool) {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return "", false
	}
	ip = ip.Unmap()
	if !ip.Is4() {
		return "", false
	}
	o := ip.As4()
	name := fmt.Sprintf("%d.%d.%d.%d.%s", o[3], o[2], o[1], o[0], strings.TrimSuffix(c.Zone, "."))
	return dns.Fqdn(name), true
}

// Check implements Checker.
func (c *DNSBL) Check(ctx context.Context, addr string) (bool, error) {
	name, ok := c.QueryName(addr)
	if !ok {
		return false, nil
	}

	q := new(dns.Msg)
	q.SetQuestion(name, dns.TypeA)
	q.RecursionDesired = true

	resp, _, err := c.Client.ExchangeContext(ctx, q, c.Server)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.CodeReputationFailed, "dnsbl query")
	}

	switch resp.Rcode {
	case dns.RcodeNameError:
		return false, nil
	case dns.RcodeSuccess:
		for _, rr := range resp.Answer {
			if _, ok := rr.(*dns.A); ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, apperrors.Newf(apperrors.CodeReputationFailed, "dnsbl rcode %s", dns.RcodeToString[resp.Rcode])
	}
}
