// Package relay runs inbound chat frames through moderation and relays the survivors.
package relay

import "time"

// Relay configuration constants
const (
	// Frame types
	TypeMsg   = "msg"
	TypeError = "error"

	// Frame sources
	SrcLocal  = "local"
	SrcSystem = "system"

	// System notice identities
	IDBanHammer = "banhammer"
	IDRateLimit = "ratelimit"
	IDSecurity  = "security"
	IDError     = "error"

	// How often Maintain prunes expired cooldown records.
	PruneInterval = time.Minute
)
