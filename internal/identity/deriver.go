// Package identity turns client network addresses into stable pseudonymous identities.
//
// An Identity is HMAC-SHA256(key, address) truncated to its leading 52 bits and
// rendered as a 16-digit zero-padded decimal string. The key is derived from the
// operator secret with HKDF, so identities are stable for a given secret and cannot be
// reversed to the address without it.
package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	// Width is the number of decimal digits in a canonical Identity.
	Width = 16
	// Bits is how much of the digest an Identity keeps.
	Bits = 52

	keyInfo = "relay identity v1"
	keySize = 32
	maxID   = uint64(1)<<Bits - 1
)

// Identity is the canonical, fixed-width decimal form of a derived identity.
type Identity string

func (i Identity) String() string { return string(i) }

// Deriver computes identities under one key. It is safe for concurrent use.
type Deriver struct {
	key []byte
}

// NewDeriver derives the HMAC key from secret. An empty secret is accepted; callers
// decide whether that is acceptable.
func NewDeriver(secret []byte) *Deriver {
	key := make([]byte, keySize)
	r := hkdf.New(sha256.New, secret, nil, []byte(keyInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		// HKDF-SHA256 can produce far more than keySize bytes.
		panic(fmt.Sprintf("identity: hkdf: %v", err))
	}
	return &Deriver{key: key}
}

// Derive maps addr to its identity. It never fails; any string, including an empty one,
// has an identity.
func (d *Deriver) Derive(addr string) Identity {
	mac := hmac.New(sha256.New, d.key)
	mac.Write([]byte(addr))
	sum := mac.Sum(nil)
	return format(binary.BigEndian.Uint64(sum[:8]) >> (64 - Bits))
}

// Normalize parses a decimal identity as typed by an operator or read from storage and
// returns its canonical form. Leading zeros and surrounding whitespace are tolerated.
func Normalize(s string) (Identity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("identity: empty")
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return "", fmt.Errorf("identity %q: not a decimal number", s)
	}
	if n > maxID {
		return "", fmt.Errorf("identity %q: out of range", s)
	}
	return format(n), nil
}

func format(n uint64) Identity {
	return Identity(fmt.Sprintf("%0*d", Width, n))
}
