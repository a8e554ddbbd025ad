// Package reputation asks outside services whether a client address belongs to a VPN,
// proxy or hosting network.
package reputation

import "context"

// Checker reports whether addr should be refused. Errors mean the answer is unknown.
type Checker interface {
	Check(ctx context.Context, addr string) (bool, error)
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, addr string) (bool, error)

// Check calls f.
func (f CheckerFunc) Check(ctx context.Context, addr string) (bool, error) {
	return f(ctx, addr)
}
