// Package merkle implements the append-only commitment accumulator and the
// bounded root history used by the shielded pool engine.
//
// The tree has a fixed depth D and capacity 2^D leaves. Nodes live in a flat
// arena indexed heap-style (children of node i are 2i+1 and 2i+2), so path
// recomputation is index arithmetic rather than pointer chasing. Unfilled
// subtrees hold precomputed zero hashes, which keeps an insert at O(D) hash
// invocations.
package merkle

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// MaxDepth is the largest supported tree depth (2^20 leaves).
const MaxDepth = 20

var (
	ErrTreeFull     = errors.New("merkle: tree is full")
	ErrBadDepth     = errors.New("merkle: depth must be in [1, 20]")
	ErrTooManyLeafs = errors.New("merkle: leaf sequence exceeds capacity")
)

// Hasher is the two-input compression function used for all tree nodes.
// It must be the exact function the offline proof circuit uses.
type Hasher interface {
	HashPair(a, b common.Hash) common.Hash
}

// Tree is a fixed-depth, append-only merkle accumulator.
// It is not safe for concurrent use; the pool engine serializes access.
type Tree struct {
	depth     int
	hasher    Hasher
	nodes     []common.Hash // arena of 2^(depth+1)-1 nodes, nodes[0] is the root
	zeros     []common.Hash // zeros[k] = root of an empty subtree of height k
	leafCount uint32
}

// NewTree builds an empty accumulator of the given depth.
func NewTree(depth int, hasher Hasher) (*Tree, error) {
	if depth < 1 || depth > MaxDepth {
		return nil, ErrBadDepth
	}

	zeros := make([]common.Hash, depth+1)
	for k := 1; k <= depth; k++ {
		zeros[k] = hasher.HashPair(zeros[k-1], zeros[k-1])
	}

	nodes := make([]common.Hash, (1<<(depth+1))-1)
	// Level l (0 = root) spans [2^l-1, 2^(l+1)-2] and holds subtrees of
	// height depth-l.
	for l := 0; l <= depth; l++ {
		z := zeros[depth-l]
		for i := (1 << l) - 1; i <= (1<<(l+1))-2; i++ {
			nodes[i] = z
		}
	}

	return &Tree{
		depth:  depth,
		hasher: hasher,
		nodes:  nodes,
		zeros:  zeros,
	}, nil
}

// Depth returns the fixed tree depth.
func (t *Tree) Depth() int { return t.depth }

// Capacity returns the maximum number of leaves, 2^depth.
func (t *Tree) Capacity() uint32 { return 1 << t.depth }

// LeafCount returns the number of inserted leaves.
func (t *Tree) LeafCount() uint32 { return t.leafCount }

// Root returns the current accumulator root.
func (t *Tree) Root() common.Hash { return t.nodes[0] }

// EmptyRoot returns the root of a tree with no leaves.
func (t *Tree) EmptyRoot() common.Hash { return t.zeros[t.depth] }

// RootAfter computes the index and root the next insert of leaf would
// produce, without mutating the tree. The deposit flow commits the database
// transaction against this preview and only then applies Insert, so a failed
// transaction never leaves the in-memory tree ahead of the store.
func (t *Tree) RootAfter(leaf common.Hash) (uint32, common.Hash, error) {
	return t.computePath(leaf, false)
}

// Insert appends leaf at the next free index, recomputes the D ancestors on
// its path and returns the assigned index and the new root. Fails with
// ErrTreeFull at capacity. For a fixed sequence of leaves the resulting root
// is a pure function of that sequence.
func (t *Tree) Insert(leaf common.Hash) (uint32, common.Hash, error) {
	idx, root, err := t.computePath(leaf, true)
	if err != nil {
		return 0, common.Hash{}, err
	}
	t.leafCount++
	return idx, root, nil
}

// computePath walks the leaf-to-root path, optionally writing the updated
// nodes into the arena. Sibling reads hit either already-filled nodes or the
// pre-seeded zero hashes, so no subtree is ever recomputed.
func (t *Tree) computePath(leaf common.Hash, write bool) (uint32, common.Hash, error) {
	if t.leafCount >= t.Capacity() {
		return 0, common.Hash{}, ErrTreeFull
	}

	idx := t.leafCount
	i := int((1 << t.depth) - 1 + idx) // arena position of the new leaf
	cur := leaf
	if write {
		t.nodes[i] = cur
	}

	for i > 0 {
		var left, right common.Hash
		if i%2 == 1 { // left child
			left, right = cur, t.nodes[i+1]
		} else {
			left, right = t.nodes[i-1], cur
		}
		i = (i - 1) / 2
		cur = t.hasher.HashPair(left, right)
		if write {
			t.nodes[i] = cur
		}
	}

	return idx, cur, nil
}

// Rebuild replays an ordered leaf sequence into a fresh tree of the same
// depth. Used on process restart to restore the accumulator from the
// persisted commitment log.
func (t *Tree) Rebuild(leaves []common.Hash) error {
	if uint32(len(leaves)) > t.Capacity() {
		return ErrTooManyLeafs
	}
	fresh, err := NewTree(t.depth, t.hasher)
	if err != nil {
		return err
	}
	for _, leaf := range leaves {
		if _, _, err := fresh.Insert(leaf); err != nil {
			return err
		}
	}
	*t = *fresh
	return nil
}
