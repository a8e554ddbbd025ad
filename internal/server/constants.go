package server

import "time"

// Server configuration constants
const (
	// Largest websocket frame accepted from a chat client
	ReadLimit = 32 << 10

	// Largest /join request body forwarded upstream
	MaxJoinBody = 64 << 10

	// Bound on the security notice write before a flagged socket is closed
	RejectWriteTimeout = 2 * time.Second

	// Outbound queue for presence sockets; they only ever receive counts
	PresenceSendBuffer = 4
)

// Static pages served from the configured directory.
const (
	PageIndex          = "index.html"
	PageBookmarklet    = "bookmarklet.html"
	PageCredits        = "credits.html"
	PageDiscordCredits = "discordcredits.html"
	PageScript         = "script.js"
)
