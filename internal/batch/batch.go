// Package batch plans inference batches under a token budget.
package batch

import "sort"

// Plan groups record indices so the padded token count of every group
// stays within toksPerBatch. Records are ordered by token length, so a
// group's cost is its longest member times its size. extraToksPerSeq
// accounts for special tokens added during encoding.
//
// A single record whose own cost exceeds the budget still forms a
// one-record group rather than failing.
func Plan(lengths []int, toksPerBatch, extraToksPerSeq int) [][]int {
	type entry struct {
		size int
		idx  int
	}
	entries := make([]entry, len(lengths))
	for i, n := range lengths {
		entries[i] = entry{size: n + extraToksPerSeq, idx: i}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].size != entries[j].size {
			return entries[i].size < entries[j].size
		}
		return entries[i].idx < entries[j].idx
	})

	var (
		batches [][]int
		buf     []int
		maxLen  int
	)
	flush := func() {
		if len(buf) > 0 {
			batches = append(batches, buf)
			buf = nil
			maxLen = 0
		}
	}

	for _, e := range entries {
		sz := e.size
		if sz < maxLen {
			sz = maxLen
		}
		if sz*(len(buf)+1) > toksPerBatch {
			flush()
		}
		if e.size > maxLen {
			maxLen = e.size
		}
		buf = append(buf, e.idx)
	}
	flush()
	return batches
}
