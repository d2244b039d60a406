package farm

// FarmDiff summarizes the changes between two registry snapshots.
type FarmDiff struct {
	Additions []PoolView `json:"additions,omitempty"`
	Updates   []PoolView `json:"updates,omitempty"`
	Deletions []uint64   `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d FarmDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// Differ calculates the difference between two pool snapshots, keyed by pool
// ID. It compares only the fields a refresh or a stake movement can change:
// weight, total staked, accumulator, last reward block, and holding balance.
func Differ(old, new []PoolView) FarmDiff {
	oldPools := make(map[uint64]PoolView, len(old))
	for _, p := range old {
		oldPools[p.ID] = p
	}
	newPools := make(map[uint64]PoolView, len(new))
	for _, p := range new {
		newPools[p.ID] = p
	}

	var additions []PoolView
	var updates []PoolView
	var deletions []uint64

	for id, newPool := range newPools {
		oldPool, exists := oldPools[id]
		if !exists {
			additions = append(additions, newPool)
			continue
		}
		if oldPool.Weight != newPool.Weight ||
			oldPool.LastRewardBlock != newPool.LastRewardBlock ||
			oldPool.TotalStaked.Cmp(newPool.TotalStaked) != 0 ||
			oldPool.AccRewardPerShare.Cmp(newPool.AccRewardPerShare) != 0 ||
			oldPool.Holding.Cmp(newPool.Holding) != 0 {
			updates = append(updates, newPool)
		}
	}

	for id := range oldPools {
		if _, exists := newPools[id]; !exists {
			deletions = append(deletions, id)
		}
	}

	return FarmDiff{
		Additions: additions,
		Updates:   updates,
		Deletions: deletions,
	}
}
