package keri

import (
	"encoding/base64"

	"golang.org/x/crypto/blake2b"

	"verigate/pkg/domain"
)

// Derivation codes for self-addressing identifiers.
const (
	codeDigest byte = 'E' // BLAKE2b-256 content digest
	codeKey    byte = 'D' // ed25519 public key prefix
)

func qb64(code byte, raw [32]byte) string {
	// Pad to 33 bytes so the base64 expansion is exactly 44 characters,
	// then substitute the derivation code for the leading pad character.
	padded := make([]byte, 33)
	copy(padded[1:], raw[:])
	s := []byte(base64.RawURLEncoding.EncodeToString(padded))
	s[0] = code
	return string(s)
}

// DigestSAID computes the content-addressed identifier for data.
func DigestSAID(data []byte) domain.SAID {
	return domain.SAID(qb64(codeDigest, blake2b.Sum256(data)))
}

// KeyAID derives a self-certifying identifier from an ed25519 public key.
func KeyAID(pub []byte) domain.AID {
	var raw [32]byte
	copy(raw[:], pub)
	return domain.AID(qb64(codeKey, raw))
}
