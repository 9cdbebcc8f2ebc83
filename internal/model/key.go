// Package model defines the protocol ledger entities and the invariants
// their mutations enforce: users, master agents, minted agents, referral
// registries, and the protocol configuration record.
package model

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// PublicKey identifies an account: a user authority, a mint, or an agent.
type PublicKey [32]byte

// ErrInvalidKey is returned when a key string cannot be decoded.
var ErrInvalidKey = errors.New("model: invalid public key")

// ParsePublicKey decodes a 64-character hex key, with or without 0x.
func ParsePublicKey(s string) (PublicKey, error) {
	var k PublicKey
	if len(s) >= 2 && s[:2] == "0x" {
		s = s[2:]
	}
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != len(k) {
		return k, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	copy(k[:], raw)
	return k, nil
}

// IsZero reports whether the key is the all-zero default.
func (k PublicKey) IsZero() bool { return k == PublicKey{} }

func (k PublicKey) String() string { return hex.EncodeToString(k[:]) }

// MarshalJSON renders the key as a hex string.
func (k PublicKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON accepts a hex string key.
func (k *PublicKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePublicKey(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
