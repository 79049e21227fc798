package extract

import (
	"fmt"
	"sort"
)

// NormalizeLayers resolves the user-facing layer indices against a model
// of depth numLayers. Valid indices lie in [-(L+1), L]; negatives count
// back from the final layer, so -1 is the last block's output. The result
// is sorted and deduplicated.
func NormalizeLayers(layers []int, numLayers int) ([]int, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("no representation layers requested")
	}
	seen := make(map[int]bool, len(layers))
	out := make([]int, 0, len(layers))
	for _, l := range layers {
		if l < -(numLayers+1) || l > numLayers {
			return nil, fmt.Errorf("layer index %d out of range [%d, %d]", l, -(numLayers + 1), numLayers)
		}
		r := (l + numLayers + 1) % (numLayers + 1)
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	sort.Ints(out)
	return out, nil
}
