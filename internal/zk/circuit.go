package zk

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

// WithdrawCircuit proves knowledge of the opening of some commitment already
// in the tree rooted at Root, without revealing which one, and that
// NullifierHash is the unique derivation of that commitment's nullifier
// seed. Recipient and Fee are bound into the statement so a relayer cannot
// redirect an intercepted proof.
type WithdrawCircuit struct {
	// Public inputs, in the order the verifier supplies them.
	Root          frontend.Variable `gnark:",public"`
	NullifierHash frontend.Variable `gnark:",public"`
	Recipient     frontend.Variable `gnark:",public"`
	Fee           frontend.Variable `gnark:",public"`

	// Private witness.
	NullifierSeed frontend.Variable
	Secret        frontend.Variable
	PathElements  []frontend.Variable
	PathIndices   []frontend.Variable // 0 = current node is the left child
}

// NewWithdrawCircuit allocates a circuit shell for a tree of the given
// depth, for compiling, witness building and public-only verification.
func NewWithdrawCircuit(depth int) *WithdrawCircuit {
	return &WithdrawCircuit{
		PathElements: make([]frontend.Variable, depth),
		PathIndices:  make([]frontend.Variable, depth),
	}
}

func (c *WithdrawCircuit) Define(api frontend.API) error {
	// Nullifier hash is MiMC(seed).
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	h.Write(c.NullifierSeed)
	api.AssertIsEqual(c.NullifierHash, h.Sum())

	// Commitment opens as MiMC(seed, secret).
	h.Reset()
	h.Write(c.NullifierSeed)
	h.Write(c.Secret)
	cur := h.Sum()

	// Merkle membership of the commitment under Root.
	for i := 0; i < len(c.PathElements); i++ {
		api.AssertIsBoolean(c.PathIndices[i])
		left := api.Select(c.PathIndices[i], c.PathElements[i], cur)
		right := api.Select(c.PathIndices[i], cur, c.PathElements[i])
		h.Reset()
		h.Write(left)
		h.Write(right)
		cur = h.Sum()
	}
	api.AssertIsEqual(c.Root, cur)

	// Bind recipient and fee into the proof.
	api.Mul(c.Recipient, c.Recipient)
	api.Mul(c.Fee, c.Fee)

	return nil
}
