// Package ir provides the literal value model and canonical serialization
// shared by query descriptors.
//
// This package imports nothing internal. Every other internal package may
// import it, so it stays the foundational layer with no import cycles.
//
// Key design constraints:
//   - No float literals: numbers are int64 so fingerprints are exact
//   - Canonical JSON (sorted UTF-16 keys, NFC strings) is the only input
//     to fingerprint hashing
package ir
