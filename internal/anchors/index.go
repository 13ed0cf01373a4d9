package anchors

import (
	"sort"

	"github.com/custodia-labs/marginalia/internal/core/domain"
)

// ShiftResult reports how ApplyOffsetShift treated each anchor it touched.
type ShiftResult struct {
	// Shifted anchors lay after the edit and moved by the edit delta
	Shifted []string
	// Adjusted anchors contained the edit; only their end moved
	Adjusted []string
	// Stale anchors straddled an edit boundary and need re-resolution
	Stale []string
}

// Index is a range index over the anchors of one document's threads. It holds
// the same thread pointers as its owner, which remains the source of truth;
// the tree is a cache rebuilt whenever anchors change shape.
// Index is not safe for concurrent use.
type Index struct {
	threads map[string]*domain.CommentThread
	root    *node
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{threads: make(map[string]*domain.CommentThread)}
}

// Build discards the index and rebuilds it from threads.
func (x *Index) Build(threads []*domain.CommentThread) {
	x.threads = make(map[string]*domain.CommentThread, len(threads))
	for _, t := range threads {
		x.threads[t.ID] = t
	}
	x.rebuild()
}

func (x *Index) rebuild() {
	ivs := make([]interval, 0, len(x.threads))
	for id, t := range x.threads {
		ivs = append(ivs, interval{start: t.Anchor.StartOffset, end: t.Anchor.EndOffset, id: id})
	}
	x.root = buildTree(ivs)
}

// Get returns the indexed thread with the given id.
func (x *Index) Get(id string) (*domain.CommentThread, bool) {
	t, ok := x.threads[id]
	return t, ok
}

// Len returns the number of indexed threads.
func (x *Index) Len() int {
	return len(x.threads)
}

// Query returns the threads whose anchor covers offset, ordered by start.
func (x *Index) Query(offset int) []*domain.CommentThread {
	return x.QueryRange(offset, offset)
}

// QueryRange returns the threads whose anchor overlaps [start, end), ordered
// by start.
func (x *Index) QueryRange(start, end int) []*domain.CommentThread {
	ids := x.root.collect(start, end, nil)
	out := make([]*domain.CommentThread, 0, len(ids))
	for _, id := range ids {
		out = append(out, x.threads[id])
	}
	return out
}

// ApplyOffsetShift updates anchors after the range [changedFrom, changedTo)
// of the old text was replaced by insertedLength bytes. Anchors after the
// edit move by the length delta, anchors containing the edit have their end
// adjusted, and anchors straddling an edit boundary are left in place and
// reported as stale. The tree is rebuilt once for the whole batch.
func (x *Index) ApplyOffsetShift(changedFrom, changedTo, insertedLength int) ShiftResult {
	delta := insertedLength - (changedTo - changedFrom)
	var res ShiftResult

	for id, t := range x.threads {
		a := &t.Anchor
		switch {
		case a.StartOffset >= changedTo:
			if delta == 0 {
				continue
			}
			a.StartOffset += delta
			a.EndOffset += delta
			res.Shifted = append(res.Shifted, id)
		case a.EndOffset <= changedFrom:
			// Entirely before the edit
		case a.StartOffset <= changedFrom && a.EndOffset >= changedTo:
			a.EndOffset += delta
			if a.EndOffset < a.StartOffset {
				a.EndOffset = a.StartOffset
			}
			res.Adjusted = append(res.Adjusted, id)
		default:
			res.Stale = append(res.Stale, id)
		}
	}

	sort.Strings(res.Shifted)
	sort.Strings(res.Adjusted)
	sort.Strings(res.Stale)
	x.rebuild()
	return res
}
