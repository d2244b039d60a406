package farm

import "sort"

// Patcher constructs a new pool snapshot by applying a diff to a previous
// one. Every entry in the result owns its memory: observers can mirror the
// registry by folding diffs without ever sharing state with the source. The
// result is ordered by pool ID.
func Patcher(prev []PoolView, diff FarmDiff) ([]PoolView, error) {
	next := make(map[uint64]PoolView, len(prev))
	for _, p := range prev {
		next[p.ID] = deepCopyPoolView(p)
	}

	for _, id := range diff.Deletions {
		delete(next, id)
	}
	for _, p := range diff.Updates {
		next[p.ID] = deepCopyPoolView(p)
	}
	for _, p := range diff.Additions {
		next[p.ID] = deepCopyPoolView(p)
	}

	out := make([]PoolView, 0, len(next))
	for _, p := range next {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
