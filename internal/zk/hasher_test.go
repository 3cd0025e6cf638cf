package zk

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestHashPairDeterministic(t *testing.T) {
	h := NewMiMCHasher()
	a := common.HexToHash("0x01")
	b := common.HexToHash("0x02")

	first := h.HashPair(a, b)
	second := h.HashPair(a, b)
	assert.Equal(t, first, second)
	assert.NotEqual(t, common.Hash{}, first)
}

func TestHashPairOrderSensitive(t *testing.T) {
	h := NewMiMCHasher()
	a := common.HexToHash("0x01")
	b := common.HexToHash("0x02")

	assert.NotEqual(t, h.HashPair(a, b), h.HashPair(b, a))
}

func TestDeriveNullifierHashDeterministic(t *testing.T) {
	seed := common.HexToHash("0xdeadbeef")

	first := DeriveNullifierHash(seed)
	second := DeriveNullifierHash(seed)
	assert.Equal(t, first, second)

	other := DeriveNullifierHash(common.HexToHash("0xdeadbeef01"))
	assert.NotEqual(t, first, other)
}

func TestHashToFieldReducesIntoScalarField(t *testing.T) {
	// A digest above the BN254 modulus must still map into the field.
	var big common.Hash
	for i := range big {
		big[i] = 0xff
	}
	v := HashToField(big)
	assert.NotNil(t, v)
	assert.True(t, v.Sign() >= 0)
	assert.Less(t, v.BitLen(), 255)
}

func TestRejectAllVerifierRefusesEverything(t *testing.T) {
	v := RejectAllVerifier{}
	assert.False(t, v.VerifyProof(nil, PublicInputs{}))
	assert.False(t, v.VerifyProof([]byte{1, 2, 3}, PublicInputs{
		Root:          common.HexToHash("0x01"),
		NullifierHash: common.HexToHash("0x02"),
		Fee:           3_000_000,
	}))
}
