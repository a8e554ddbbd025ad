package grpcclient

import "time"

// Client configuration defaults
const (
	// Keepalive configuration
	DefaultKeepaliveTime    = 30 * time.Second
	DefaultKeepaliveTimeout = 5 * time.Second

	// Per-call deadline applied when the caller's context has none
	DefaultCallTimeout = 10 * time.Second
)
