package keri

import (
	"crypto/ed25519"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verigate/pkg/domain"
)

func TestDigestSAID_ShapeAndDeterminism(t *testing.T) {
	said := DigestSAID([]byte("report content"))
	_, err := domain.ParseSAID(said.String())
	require.NoError(t, err)
	assert.Equal(t, byte('E'), said.String()[0])

	again := DigestSAID([]byte("report content"))
	assert.Equal(t, said, again)

	other := DigestSAID([]byte("other content"))
	assert.NotEqual(t, said, other)
}

func TestKeyAID_Shape(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	aid := KeyAID(pub)
	_, err = domain.ParseAID(aid.String())
	require.NoError(t, err)
	assert.Equal(t, byte('D'), aid.String()[0])
}

func TestIndexedSig_RoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	msg := []byte("signed payload")
	raw := ed25519.Sign(priv, msg)

	qb64 := EncodeIndexedSig(1, raw)
	sig, err := ParseIndexedSig(qb64)
	require.NoError(t, err)
	assert.Equal(t, 1, sig.Index)
	assert.Equal(t, raw, sig.Raw)

	state := KeyState{Keys: []ed25519.PublicKey{nil, pub}}
	assert.True(t, state.Verify(sig.Index, sig.Raw, msg))
	assert.False(t, state.Verify(sig.Index, sig.Raw, []byte("tampered")))
}

func TestParseIndexedSig_Rejections(t *testing.T) {
	_, err := ParseIndexedSig("")
	require.Error(t, err)

	_, err = ParseIndexedSig("A")
	require.Error(t, err)

	// bad index code
	_, err = ParseIndexedSig("!AAAA")
	require.Error(t, err)

	// wrong signature length
	_, err = ParseIndexedSig("AAAAA")
	require.Error(t, err)
}

func TestKeyState_Verify_OutOfRangeIndex(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	msg := []byte("payload")
	raw := ed25519.Sign(priv, msg)

	state := KeyState{Keys: []ed25519.PublicKey{pub}}
	assert.True(t, state.Verify(0, raw, msg))
	assert.False(t, state.Verify(1, raw, msg))
	assert.False(t, state.Verify(-1, raw, msg))
}

func TestKeeper_ParsePresentation(t *testing.T) {
	keeper := NewKeeper()

	issuer := DigestSAID([]byte("issuer"))
	subject := DigestSAID([]byte("subject"))
	said := DigestSAID([]byte("credential"))

	body, err := json.Marshal([]map[string]any{{
		"said":    said.String(),
		"schema":  "EEy9PkikFcANV1l7EHukCeXqrzT1hNZjGlUk7wuMO5jw",
		"issuer":  issuer.String(),
		"subject": subject.String(),
		"claims":  map[string]string{"LEI": "254900OPPU84GM83MG36"},
	}})
	require.NoError(t, err)

	processed, err := keeper.ParsePresentation(body)
	require.NoError(t, err)
	require.Len(t, processed, 1)
	assert.Equal(t, said, processed[0])

	assert.True(t, keeper.Saved(said))
	cred, found := keeper.Credential(said)
	require.True(t, found)
	assert.Equal(t, "254900OPPU84GM83MG36", cred.Subject.Claims["LEI"])

	state, found := keeper.VCState(said)
	require.True(t, found)
	assert.True(t, state.Issued())
}

func TestKeeper_ParsePresentation_MalformedBody(t *testing.T) {
	keeper := NewKeeper()
	_, err := keeper.ParsePresentation([]byte("not json"))
	require.Error(t, err)
}

func TestKeeper_ParsePresentation_SkipsInvalidEntries(t *testing.T) {
	keeper := NewKeeper()
	body := []byte(`[{"said":"short","schema":"x","issuer":"y","subject":"z"}]`)
	processed, err := keeper.ParsePresentation(body)
	require.NoError(t, err)
	assert.Empty(t, processed)
}

func TestKeeper_VCStateTransitions(t *testing.T) {
	keeper := NewKeeper()
	said := DigestSAID([]byte("cred"))
	keeper.AddCredential(Credential{SAID: said})

	state, _ := keeper.VCState(said)
	assert.True(t, state.Issued())
	assert.False(t, state.Revoked())

	keeper.SetVCState(said, TxRev)
	state, _ = keeper.VCState(said)
	assert.True(t, state.Revoked())
}
