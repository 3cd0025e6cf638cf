// Package zk holds the pool's cryptographic capabilities: the two-input
// MiMC compression function shared with the proof circuit, the withdrawal
// circuit definition, and the Groth16 proof verifier.
package zk

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/ethereum/go-ethereum/common"
)

// MiMCHasher implements merkle.Hasher over the BN254 scalar field using the
// same MiMC permutation as the gnark circuit gadget. Inputs are reduced into
// the field before absorbing so arbitrary 32-byte digests are accepted.
type MiMCHasher struct{}

// NewMiMCHasher returns the pool's default compression function.
func NewMiMCHasher() MiMCHasher { return MiMCHasher{} }

// HashPair computes MiMC(a, b) and returns the digest as a 32-byte hash.
func (MiMCHasher) HashPair(a, b common.Hash) common.Hash {
	var ea, eb fr.Element
	ea.SetBytes(a[:])
	eb.SetBytes(b[:])

	h := mimc.NewMiMC()
	ab := ea.Bytes()
	bb := eb.Bytes()
	h.Write(ab[:])
	h.Write(bb[:])

	var out common.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// DeriveNullifierHash computes the deterministic nullifier hash for a
// nullifier seed, MiMC(seed). Withdrawers run the same derivation offline;
// the circuit enforces it against the revealed public input.
func DeriveNullifierHash(seed common.Hash) common.Hash {
	var e fr.Element
	e.SetBytes(seed[:])

	h := mimc.NewMiMC()
	b := e.Bytes()
	h.Write(b[:])

	var out common.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// HashToField reduces a 32-byte digest into the BN254 scalar field and
// returns it as a big integer, the form gnark witnesses expect.
func HashToField(h common.Hash) *big.Int {
	var e fr.Element
	e.SetBytes(h[:])
	return e.BigInt(new(big.Int))
}
