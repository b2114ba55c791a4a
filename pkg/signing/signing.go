// Package signing derives short-lived, date-scoped signing keys from a
// deployment root secret.
//
// A derived key is scoped to exactly one (date, region, service, protocol)
// tuple through a fixed chain of HMAC-SHA256 steps. Keys are never stored;
// any holder of the root secret can recompute them on demand, so issuance is
// idempotent and needs no persistent token table.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"time"
)

// Protocol names the wire protocol a derived key signs for.
type Protocol string

const (
	// ProtocolJWT scopes a key to JSON Web Token signing.
	ProtocolJWT Protocol = "jwt"
	// ProtocolBasicAuth scopes a key to HTTP basic-auth signing.
	ProtocolBasicAuth Protocol = "basic-auth"
)

// Valid reports whether p is a known protocol.
func (p Protocol) Valid() bool {
	return p == ProtocolJWT || p == ProtocolBasicAuth
}

// KeySpec is the full derivation input for one signing key.
type KeySpec struct {
	Region   string
	Service  string
	Date     string // YYYYMMDD
	Protocol Protocol
}

// Validate checks the spec fields for well-formedness.
func (s KeySpec) Validate() error {
	if s.Region == "" {
		return fmt.Errorf("region is required")
	}
	if s.Service == "" {
		return fmt.Errorf("service is required")
	}
	if !s.Protocol.Valid() {
		return fmt.Errorf("unknown protocol %q", s.Protocol)
	}
	if _, err := time.Parse("20060102", s.Date); err != nil {
		return fmt.Errorf("date must be YYYYMMDD: %w", err)
	}
	return nil
}

// Derive computes the signing key for spec from the root secret. The chain is
// root -> date -> region -> service -> protocol; each step keys an
// HMAC-SHA256 of the next scope component.
func Derive(rootSecret []byte, spec KeySpec) []byte {
	key := keyedHash(rootSecret, spec.Date)
	key = keyedHash(key, spec.Region)
	key = keyedHash(key, spec.Service)
	key = keyedHash(key, string(spec.Protocol))
	return key
}

func keyedHash(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}
