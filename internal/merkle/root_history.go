package merkle

import "github.com/ethereum/go-ethereum/common"

// RootHistory is a bounded window of recently valid accumulator roots.
//
// A withdrawal proof is generated against the root at proof-creation time,
// which may lag the latest deposit. The engine accepts any of the last W
// roots; W trades liveness under deposit contention against stale-root
// exposure. Spend checks are independent of which historical root a proof
// used, so a wider window never enables a double withdrawal.
type RootHistory struct {
	size  int
	roots []common.Hash
}

// NewRootHistory creates a history window holding at most size roots.
// A size below 1 is clamped to 1 (current-root-only policy).
func NewRootHistory(size int) *RootHistory {
	if size < 1 {
		size = 1
	}
	return &RootHistory{
		size:  size,
		roots: make([]common.Hash, 0, size),
	}
}

// Size returns the configured window size W.
func (h *RootHistory) Size() int { return h.size }

// Len returns the number of roots currently in the window.
func (h *RootHistory) Len() int { return len(h.roots) }

// Push appends root and evicts the oldest entry once the window exceeds W.
func (h *RootHistory) Push(root common.Hash) {
	h.roots = append(h.roots, root)
	if len(h.roots) > h.size {
		h.roots = h.roots[1:]
	}
}

// Contains reports whether root is still accepted for withdrawal.
// The current root is always a member.
func (h *RootHistory) Contains(root common.Hash) bool {
	for _, r := range h.roots {
		if r == root {
			return true
		}
	}
	return false
}

// Current returns the most recent root, or the zero hash if none was pushed.
func (h *RootHistory) Current() common.Hash {
	if len(h.roots) == 0 {
		return common.Hash{}
	}
	return h.roots[len(h.roots)-1]
}

// Recent returns the window contents, oldest first.
func (h *RootHistory) Recent() []common.Hash {
	out := make([]common.Hash, len(h.roots))
	copy(out, h.roots)
	return out
}
