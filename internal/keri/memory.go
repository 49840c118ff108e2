package keri

import (
	"crypto/ed25519"
	"encoding/json"
	"sync"

	dErrors "verigate/pkg/domain-errors"
	"verigate/pkg/domain"
)

// Keeper is an in-memory implementation of the external subsystem ports.
// It backs local deployments and tests; a production deployment replaces it
// with an adapter over the real key-state and credential infrastructure.
type Keeper struct {
	mu     sync.RWMutex
	states map[domain.AID]KeyState
	creds  map[domain.SAID]Credential
	vcs    map[domain.SAID]TxState
}

// NewKeeper returns an empty Keeper.
func NewKeeper() *Keeper {
	return &Keeper{
		states: make(map[domain.AID]KeyState),
		creds:  make(map[domain.SAID]Credential),
		vcs:    make(map[domain.SAID]TxState),
	}
}

// AddKeyState registers (or rotates) the key state for aid.
func (k *Keeper) AddKeyState(aid domain.AID, state KeyState) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.states[aid] = state
}

// KeyState implements KeyStateResolver.
func (k *Keeper) KeyState(aid domain.AID) (KeyState, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	state, ok := k.states[aid]
	return state, ok
}

// AddCredential stores a parsed credential as saved and issued.
func (k *Keeper) AddCredential(cred Credential) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.creds[cred.SAID] = cred
	if _, ok := k.vcs[cred.SAID]; !ok {
		k.vcs[cred.SAID] = TxIss
	}
}

// SetVCState overrides the registry transaction state for a credential.
func (k *Keeper) SetVCState(said domain.SAID, state TxState) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.vcs[said] = state
}

// Saved implements CredentialSource.
func (k *Keeper) Saved(said domain.SAID) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.creds[said]
	return ok
}

// Credential implements CredentialSource.
func (k *Keeper) Credential(said domain.SAID) (Credential, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	cred, ok := k.creds[said]
	return cred, ok
}

// VCState implements CredentialSource.
func (k *Keeper) VCState(said domain.SAID) (TxState, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	state, ok := k.vcs[said]
	return state, ok
}

// presentedCredential is the envelope format the Keeper's parse pipeline
// accepts: a JSON list of credentials.
type presentedCredential struct {
	SAID    string            `json:"said"`
	Schema  string            `json:"schema"`
	Issuer  string            `json:"issuer"`
	Subject string            `json:"subject"`
	Claims  map[string]string `json:"claims"`
}

// ParsePresentation implements PresentationParser. Each credential in the
// body is validated for shape, registered with the Keeper, and its SAID
// reported as processed.
func (k *Keeper) ParsePresentation(body []byte) ([]domain.SAID, error) {
	var presented []presentedCredential
	if err := json.Unmarshal(body, &presented); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed presentation body")
	}

	var processed []domain.SAID
	for _, p := range presented {
		said, err := domain.ParseSAID(p.SAID)
		if err != nil {
			continue
		}
		issuer, err := domain.ParseAID(p.Issuer)
		if err != nil {
			continue
		}
		subject, err := domain.ParseAID(p.Subject)
		if err != nil {
			continue
		}
		k.AddCredential(Credential{
			SAID:   said,
			Schema: p.Schema,
			Issuer: issuer,
			Subject: Subject{
				ID:     subject,
				Claims: p.Claims,
			},
		})
		processed = append(processed, said)
	}
	return processed, nil
}

// GenerateIdentity creates a fresh ed25519 identity, registers its key state
// and returns the AID with its private key. Used by local tooling and tests.
func (k *Keeper) GenerateIdentity() (domain.AID, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return "", nil, dErrors.Wrap(err, dErrors.CodeInternal, "generating identity key")
	}
	aid := KeyAID(pub)
	k.AddKeyState(aid, KeyState{Sequence: 0, Keys: []ed25519.PublicKey{pub}})
	return aid, priv, nil
}
