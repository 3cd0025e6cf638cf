package zk

import (
	"bytes"
	"fmt"
	"math/big"
	"os"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// PublicInputs is the public statement a withdrawal proof is checked
// against. It must match the circuit's public input order bit for bit.
type PublicInputs struct {
	Root          common.Hash
	NullifierHash common.Hash
	Recipient     common.Address
	Fee           uint64
}

// ProofVerifier validates a zero-knowledge proof against public inputs.
// Implementations must be pure predicates: no side effects, no state.
type ProofVerifier interface {
	VerifyProof(proof []byte, inputs PublicInputs) bool
}

// Groth16Verifier checks BN254 Groth16 proofs for the withdrawal circuit
// against a fixed verifying key.
type Groth16Verifier struct {
	vk    groth16.VerifyingKey
	depth int
}

// NewGroth16Verifier wraps a loaded verifying key for trees of depth depth.
func NewGroth16Verifier(vk groth16.VerifyingKey, depth int) *Groth16Verifier {
	return &Groth16Verifier{vk: vk, depth: depth}
}

// LoadVerifyingKey reads a serialized Groth16 verifying key from disk.
func LoadVerifyingKey(path string) (groth16.VerifyingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open verifying key: %w", err)
	}
	defer f.Close()

	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(f); err != nil {
		return nil, fmt.Errorf("failed to parse verifying key: %w", err)
	}
	return vk, nil
}

// VerifyProof unmarshals the proof, builds the public-only witness and runs
// pairing verification. Any failure along the way is a rejection.
func (v *Groth16Verifier) VerifyProof(proof []byte, inputs PublicInputs) bool {
	grothProof := groth16.NewProof(ecc.BN254)
	if _, err := grothProof.ReadFrom(bytes.NewReader(proof)); err != nil {
		return false
	}

	assignment := NewWithdrawCircuit(v.depth)
	assignment.Root = HashToField(inputs.Root)
	assignment.NullifierHash = HashToField(inputs.NullifierHash)
	assignment.Recipient = new(big.Int).SetBytes(inputs.Recipient.Bytes())
	assignment.Fee = new(big.Int).SetUint64(inputs.Fee)

	witness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return false
	}

	return groth16.Verify(grothProof, v.vk, witness) == nil
}

// RejectAllVerifier refuses every proof. It is the fallback when no
// verifying key is configured, keeping withdrawals closed rather than
// insecurely open.
type RejectAllVerifier struct{}

func (RejectAllVerifier) VerifyProof([]byte, PublicInputs) bool {
	logrus.Warn("proof rejected: no verifying key configured")
	return false
}
