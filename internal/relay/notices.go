package relay

import "fmt"

// System notices sent only to the connection that triggered them.
var (
	FilterBanNotice = Outbound{
		Type:    TypeMsg,
		Src:     SrcSystem,
		Content: "You have been banned for using a filtered word!",
		Name:    "Ban Hammer",
		ID:      IDBanHammer,
	}
	BanNotice = Outbound{
		Type:    TypeMsg,
		Src:     SrcSystem,
		Content: "You have been banned!",
		Name:    "Ban Hammer",
		ID:      IDBanHammer,
	}
	SecurityNotice = Outbound{
		Type:    TypeMsg,
		Src:     SrcSystem,
		Content: "VPNs/proxies are not allowed!",
		Name:    "Security System",
		ID:      IDSecurity,
	}
	ParseErrorNotice = Outbound{
		Type:    TypeError,
		Src:     SrcSystem,
		Content: "Error: invalid message frame",
		Name:    "System",
		ID:      IDError,
	}
)

// RateLimitNotice tells the sender how many whole seconds remain.
func RateLimitNotice(seconds int) Outbound {
	return Outbound{
		Type:    TypeMsg,
		Src:     SrcSystem,
		Content: fmt.Sprintf("Wait %ds before sending another message", seconds),
		Name:    "Ratelimiting",
		ID:      IDRateLimit,
	}
}

