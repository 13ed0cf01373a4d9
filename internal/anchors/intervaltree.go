package anchors

import "sort"

type interval struct {
	start, end int
	id         string
}

// overlaps reports whether the interval intersects the query [start, end).
// A zero-width interval or query behaves as the single point it sits on.
func (iv interval) overlaps(start, end int) bool {
	switch {
	case start == end && iv.start == iv.end:
		return iv.start == start
	case start == end:
		return iv.start <= start && start < iv.end
	case iv.start == iv.end:
		return start <= iv.start && iv.start < end
	default:
		return iv.start < end && iv.end > start
	}
}

// node of an augmented interval tree ordered by start; maxEnd is the largest
// end offset in the subtree.
type node struct {
	iv          interval
	maxEnd      int
	left, right *node
}

// buildTree builds a balanced tree from the intervals in O(n log n).
func buildTree(ivs []interval) *node {
	sort.Slice(ivs, func(i, j int) bool {
		if ivs[i].start != ivs[j].start {
			return ivs[i].start < ivs[j].start
		}
		if ivs[i].end != ivs[j].end {
			return ivs[i].end < ivs[j].end
		}
		return ivs[i].id < ivs[j].id
	})
	return buildSorted(ivs)
}

func buildSorted(ivs []interval) *node {
	if len(ivs) == 0 {
		return nil
	}
	mid := len(ivs) / 2
	n := &node{iv: ivs[mid], maxEnd: ivs[mid].end}
	n.left = buildSorted(ivs[:mid])
	n.right = buildSorted(ivs[mid+1:])
	if n.left != nil && n.left.maxEnd > n.maxEnd {
		n.maxEnd = n.left.maxEnd
	}
	if n.right != nil && n.right.maxEnd > n.maxEnd {
		n.maxEnd = n.right.maxEnd
	}
	return n
}

// collect appends the ids of intervals overlapping [start, end) in start order.
func (n *node) collect(start, end int, out []string) []string {
	if n == nil || start > n.maxEnd {
		return out
	}
	out = n.left.collect(start, end, out)
	if n.iv.overlaps(start, end) {
		out = append(out, n.iv.id)
	}
	// Everything to the right starts at or after this node
	if n.iv.start <= end {
		out = n.right.collect(start, end, out)
	}
	return out
}
