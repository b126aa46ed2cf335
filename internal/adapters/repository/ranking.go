package repository

import (
	"math"
	"math/rand/v2"
)

// Treap-based ranking index over analyst scores.
//
// Ordering: score DESC, then analyst ID ASC (deterministic).
// We implement a BST comparator where "less" means ranks earlier
// (i.e., higher score ranks earlier). This makes in-order traversal
// produce the leaderboard from best to worst. Node priorities are random,
// which keeps the expected depth logarithmic.

// scoreScale controls fixed-point scaling from float64.
const scoreScale = 1_000_000_000_000 // 12 decimal places; scores live in [0, 100]

type scoreFP int64

func toFixedPoint(x float64) scoreFP {
	if math.IsNaN(x) {
		return 0
	}
	scaled := x * scoreScale
	if scaled > float64(math.MaxInt64) {
		return scoreFP(math.MaxInt64)
	}
	if scaled < float64(math.MinInt64) {
		return scoreFP(math.MinInt64)
	}
	return scoreFP(math.Round(scaled))
}

// treap node
type node struct {
	id    string
	score scoreFP
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aScore, aID) should appear before (bScore, bID).
func less(aScore scoreFP, aID string, bScore scoreFP, bID string) bool {
	if aScore != bScore {
		return aScore > bScore // higher score ranks earlier
	}
	return aID < bID // tie-breaker by id asc
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, score scoreFP) *node {
	if n == nil {
		return &node{id: id, score: score, prio: rand.Uint64(), size: 1} //nolint:gosec // balancing only
	}
	if less(score, id, n.score, n.id) {
		n.left = insert(n.left, id, score)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, score)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, score scoreFP) *node {
	if n == nil {
		return nil
	}
	if score == n.score && id == n.id {
		// Merge children by rotating highest priority up until leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, score)
		}
	} else if less(score, id, n.score, n.id) {
		n.left = deleteNode(n.left, id, score)
	} else {
		n.right = deleteNode(n.right, id, score)
	}
	fix(n)
	return n
}

// collectTop appends up to limit ids in rank order.
func collectTop(n *node, limit int, out *[]string) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTop(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, n.id)
	}
	if len(*out) < limit {
		collectTop(n.right, limit, out)
	}
}

// countAbove returns the number of nodes with a score strictly above score.
func countAbove(n *node, score scoreFP) int {
	count := 0
	for n != nil {
		if n.score > score {
			count += nsize(n.left) + 1
			n = n.right
		} else {
			n = n.left
		}
	}
	return count
}

// ranking keeps analysts ordered by score. Not safe for concurrent use; the
// owning store serializes access.
type ranking struct {
	root *node
	byID map[string]scoreFP
}

func newRanking() *ranking {
	return &ranking{byID: make(map[string]scoreFP)}
}

// upsert sets the score for id, repositioning it in O(log n) expected time.
func (r *ranking) upsert(id string, score float64) {
	ns := toFixedPoint(score)
	if old, ok := r.byID[id]; ok {
		if old == ns {
			return
		}
		r.root = deleteNode(r.root, id, old)
	}
	r.byID[id] = ns
	r.root = insert(r.root, id, ns)
}

// rank returns the competition rank of id: one plus the number of analysts
// with a strictly higher score. Equal scores share a rank.
func (r *ranking) rank(id string) (int, bool) {
	score, ok := r.byID[id]
	if !ok {
		return 0, false
	}
	return countAbove(r.root, score) + 1, true
}

// top returns up to n ids from best to worst; n <= 0 returns all.
func (r *ranking) top(n int) []string {
	if n <= 0 || n > len(r.byID) {
		n = len(r.byID)
	}
	out := make([]string, 0, n)
	collectTop(r.root, n, &out)
	return out
}

func (r *ranking) len() int {
	return len(r.byID)
}
