// Package domain provides type-safe identifiers so AIDs, SAIDs and LEIs
// cannot be mixed up at compile time.
package domain

import (
	"strconv"
	"strings"

	dErrors "verigate/pkg/domain-errors"
)

// Distinct identifier types used across the verifier.
type (
	// AID is a qb64 autonomic identifier prefix, resolvable to key state.
	AID string
	// SAID is a qb64 self-addressing content digest, the primary key for
	// credentials and report uploads.
	SAID string
	// LEI is an ISO 17442 legal entity identifier.
	LEI string
)

// qb64 identifiers are fixed-width base64url text.
const qb64Len = 44

const b64Charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

func validQB64(s string, what string) error {
	if s == "" {
		return dErrors.New(dErrors.CodeInvalidInput, what+" cannot be empty")
	}
	if len(s) != qb64Len {
		return dErrors.New(dErrors.CodeInvalidInput, what+" must be "+strconv.Itoa(qb64Len)+" characters")
	}
	for i := 0; i < len(s); i++ {
		if !strings.ContainsRune(b64Charset, rune(s[i])) {
			return dErrors.New(dErrors.CodeInvalidInput, what+" contains non-base64url character")
		}
	}
	return nil
}

// Parse functions - use at trust boundaries (handlers, manifest decoding).

func ParseAID(s string) (AID, error) {
	if err := validQB64(s, "AID"); err != nil {
		return "", err
	}
	return AID(s), nil
}

func ParseSAID(s string) (SAID, error) {
	if err := validQB64(s, "SAID"); err != nil {
		return "", err
	}
	return SAID(s), nil
}

// ParseLEI validates the 20 character alphanumeric LEI shape. Checksum digits
// are not verified; the allow-list is the authority on acceptable values.
func ParseLEI(s string) (LEI, error) {
	if len(s) != 20 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "LEI must be 20 characters")
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'Z') {
			return "", dErrors.New(dErrors.CodeInvalidInput, "LEI contains invalid character")
		}
	}
	return LEI(s), nil
}

// String methods - for logging and key construction.

func (a AID) String() string  { return string(a) }
func (s SAID) String() string { return string(s) }
func (l LEI) String() string  { return string(l) }

func (a AID) IsEmpty() bool  { return a == "" }
func (s SAID) IsEmpty() bool { return s == "" }
func (l LEI) IsEmpty() bool  { return l == "" }
