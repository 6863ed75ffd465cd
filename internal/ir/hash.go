package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for fingerprints. The version suffix allows the
// structure hashed under a domain to change without colliding with old ids.
const (
	DomainQuery    = "qdsl/query/v" + FormatVersion
	DomainMutation = "qdsl/mutation/v" + FormatVersion
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte separates domain from data so that no (domain, data) pair
// can be confused with another.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint returns the hex SHA-256 of the canonical JSON of v under domain.
// Equal structures always produce equal fingerprints.
func Fingerprint(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}

// MustFingerprint is like Fingerprint but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFingerprint(domain string, v any) string {
	id, err := Fingerprint(domain, v)
	if err != nil {
		panic(err)
	}
	return id
}
