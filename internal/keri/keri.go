// Package keri defines the verifier's view of the external identifier and
// credential subsystem: key-state resolution, raw signature verification and
// the parse pipeline for presented credential bodies. The verifier treats all
// of this as a black box; key state may be unknown or change between calls.
package keri

import (
	"crypto/ed25519"
	"encoding/base64"
	"strings"

	dErrors "verigate/pkg/domain-errors"
	"verigate/pkg/domain"
)

// KeyState is the current verification key set known for an identifier.
type KeyState struct {
	Sequence uint64
	Keys     []ed25519.PublicKey
}

// Verify checks sig against msg using the key at the declared index.
// An out-of-range index simply fails verification.
func (k KeyState) Verify(index int, sig, msg []byte) bool {
	if index < 0 || index >= len(k.Keys) {
		return false
	}
	return ed25519.Verify(k.Keys[index], msg, sig)
}

// KeyStateResolver resolves an identifier to its current key state.
type KeyStateResolver interface {
	KeyState(aid domain.AID) (KeyState, bool)
}

// Subject is the credential subject with its issued claims.
type Subject struct {
	ID     domain.AID
	Claims map[string]string
}

// Credential is a parsed, validated credential held by the external
// credential store and referenced here by its SAID.
type Credential struct {
	SAID    domain.SAID
	Schema  string
	Issuer  domain.AID
	Subject Subject
}

// TxState is the latest registry transaction-event type for a credential.
type TxState string

const (
	TxIss TxState = "iss" // issued
	TxBis TxState = "bis" // issued, backed
	TxRev TxState = "rev" // revoked
	TxBrv TxState = "brv" // revoked, backed
)

// Issued reports whether the state is an issuance variant.
func (t TxState) Issued() bool { return t == TxIss || t == TxBis }

// Revoked reports whether the state is a revocation variant.
func (t TxState) Revoked() bool { return t == TxRev || t == TxBrv }

// CredentialSource exposes the external credential store and registry.
type CredentialSource interface {
	// Saved reports whether the credential has been cryptographically
	// verified and persisted by the external subsystem.
	Saved(said domain.SAID) bool
	// Credential returns the parsed credential, or found=false when the
	// subsystem has not resolved it yet.
	Credential(said domain.SAID) (Credential, bool)
	// VCState returns the latest registry transaction state for the
	// credential, or found=false when no registry event has been seen.
	VCState(said domain.SAID) (TxState, bool)
}

// PresentationParser runs a presented message body through the external
// parse pipeline and returns the SAIDs of credentials actually processed.
type PresentationParser interface {
	ParsePresentation(body []byte) ([]domain.SAID, error)
}

const b64Charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// IndexedSig is a signature bound to a key index in the signer's key state.
type IndexedSig struct {
	Index int
	Raw   []byte
}

// ParseIndexedSig decodes the manifest signature form: a single base64url
// character encoding the key index followed by the base64url raw signature.
func ParseIndexedSig(qb64 string) (IndexedSig, error) {
	if len(qb64) < 2 {
		return IndexedSig{}, dErrors.New(dErrors.CodeInvalidInput, "signature too short")
	}
	index := strings.IndexByte(b64Charset, qb64[0])
	if index < 0 {
		return IndexedSig{}, dErrors.New(dErrors.CodeInvalidInput, "invalid signature index code")
	}
	raw, err := base64.RawURLEncoding.DecodeString(qb64[1:])
	if err != nil {
		return IndexedSig{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid signature encoding")
	}
	if len(raw) != ed25519.SignatureSize {
		return IndexedSig{}, dErrors.New(dErrors.CodeInvalidInput, "signature has wrong length")
	}
	return IndexedSig{Index: index, Raw: raw}, nil
}

// EncodeIndexedSig is the inverse of ParseIndexedSig, used by signing tools
// and test fixtures.
func EncodeIndexedSig(index int, raw []byte) string {
	return string(b64Charset[index]) + base64.RawURLEncoding.EncodeToString(raw)
}

// ParseCigar decodes an unindexed signature as used on signed requests.
func ParseCigar(qb64 string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(qb64)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid signature encoding")
	}
	if len(raw) != ed25519.SignatureSize {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "signature has wrong length")
	}
	return raw, nil
}
