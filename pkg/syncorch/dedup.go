package syncorch

import (
	"fmt"

	"github.com/engagic/ingest/pkg/vendor"
)

// dedupItems groups a meeting's items by matter reference and keeps
// only the most complete item per matter, preserving the position of
// each kept item's first occurrence. Items with no matter reference
// pass through untouched -- they are never grouped with one another.
func dedupItems(items []vendor.ItemDTO) ([]vendor.ItemDTO, int) {
	type group struct {
		firstIndex int
		best       vendor.ItemDTO
		bestScore  int
		count      int
	}
	groups := make(map[string]*group)
	order := make([]string, 0, len(items))

	for i, it := range items {
		key := matterKey(i, it)
		g, ok := groups[key]
		if !ok {
			groups[key] = &group{firstIndex: i, best: it, bestScore: completeness(it), count: 1}
			order = append(order, key)
			continue
		}
		g.count++
		if score := completeness(it); score > g.bestScore {
			g.best, g.bestScore = it, score
		}
	}

	out := make([]vendor.ItemDTO, 0, len(order))
	removed := 0
	for _, key := range order {
		g := groups[key]
		out = append(out, g.best)
		removed += g.count - 1
	}
	return out, removed
}

func matterKey(index int, it vendor.ItemDTO) string {
	if it.MatterFile != "" {
		return "file:" + it.MatterFile
	}
	if it.MatterID != "" {
		return "id:" + it.MatterID
	}
	return fmt.Sprintf("none:%d", index)
}

// completeness scores how much information an item carries, used to
// pick which of several items sharing a matter reference to keep.
func completeness(it vendor.ItemDTO) int {
	score := 0
	if it.AgendaNumber != "" {
		score++
	}
	if it.Description != "" {
		score++
	}
	if len(it.Attachments) > 0 {
		score += 2
	}
	if len(it.Sponsors) > 0 {
		score++
	}
	return score
}
