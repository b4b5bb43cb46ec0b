package storage

import "sort"

// CSREdgeTarget is one compacted edge as stored in a CSR segment: the
// relationship type and destination, keyed implicitly by the source whose
// offset range contains it.
type CSREdgeTarget struct {
	Rel SymbolID
	Dst NodeID
}

// CSRSegment is a compressed-sparse-row layout for a contiguous range of
// source node ids: offsets[i] is the start index into edges[] for source
// MinSrc+i, and offsets[len] is the end of the array.
//
// An empty segment has a single zero offset and no edges.
type CSRSegment struct {
	MinSrc  NodeID
	MaxSrc  NodeID
	Offsets []uint32
	Edges   []CSREdgeTarget
}

// EmptyCSRSegment returns a segment with no sources and no edges.
func EmptyCSRSegment() *CSRSegment {
	return &CSRSegment{MinSrc: 0, MaxSrc: 0, Offsets: []uint32{0}, Edges: nil}
}

// Neighbors returns the slice of targets for src, optionally filtered by
// rel. Out-of-range src yields nil.
func (c *CSRSegment) Neighbors(src NodeID, rel *SymbolID) []CSREdgeTarget {
	if c == nil || len(c.Offsets) < 2 || src < c.MinSrc || src > c.MaxSrc {
		return nil
	}
	idx := int(src - c.MinSrc)
	start, end := c.Offsets[idx], c.Offsets[idx+1]
	all := c.Edges[start:end]
	if rel == nil {
		return all
	}
	out := make([]CSREdgeTarget, 0, len(all))
	for _, e := range all {
		if e.Rel == *rel {
			out = append(out, e)
		}
	}
	return out
}

// BuildCSRSegment constructs a segment from a (possibly unsorted,
// possibly-duplicate-containing) set of source-to-targets lists. Each
// source's targets are sorted by (Rel, Dst) with a stable sort so
// duplicate targets (multiplicity) stay contiguous.
func BuildCSRSegment(bySrc map[NodeID][]CSREdgeTarget) *CSRSegment {
	if len(bySrc) == 0 {
		return EmptyCSRSegment()
	}

	srcs := make([]NodeID, 0, len(bySrc))
	for s := range bySrc {
		srcs = append(srcs, s)
	}
	sort.Slice(srcs, func(i, j int) bool { return srcs[i] < srcs[j] })

	minSrc := srcs[0]
	maxSrc := srcs[len(srcs)-1]
	width := int(maxSrc-minSrc) + 1

	offsets := make([]uint32, width+1)
	total := 0
	counts := make([]int, width)
	for s, targets := range bySrc {
		counts[int(s-minSrc)] = len(targets)
		total += len(targets)
	}
	running := uint32(0)
	for i := 0; i < width; i++ {
		offsets[i] = running
		running += uint32(counts[i])
	}
	offsets[width] = running

	edges := make([]CSREdgeTarget, total)
	for s, targets := range bySrc {
		cp := append([]CSREdgeTarget(nil), targets...)
		sort.SliceStable(cp, func(i, j int) bool {
			if cp[i].Rel != cp[j].Rel {
				return cp[i].Rel < cp[j].Rel
			}
			return cp[i].Dst < cp[j].Dst
		})
		idx := int(s - minSrc)
		copy(edges[offsets[idx]:offsets[idx+1]], cp)
	}

	return &CSRSegment{MinSrc: minSrc, MaxSrc: maxSrc, Offsets: offsets, Edges: edges}
}
