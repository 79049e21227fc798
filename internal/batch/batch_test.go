package batch

import (
	"reflect"
	"testing"
)

func TestPlanRespectsBudget(t *testing.T) {
	lengths := []int{10, 10, 10, 10}
	// Budget fits two 12-token sequences (10 + 2 extra) per batch.
	plan := Plan(lengths, 24, 2)

	if len(plan) != 2 {
		t.Fatalf("got %d batches, want 2: %v", len(plan), plan)
	}
	for _, b := range plan {
		if len(b) != 2 {
			t.Errorf("batch size: got %d, want 2", len(b))
		}
	}
}

func TestPlanPaddedCostWithinBudget(t *testing.T) {
	lengths := []int{3, 50, 7, 51, 8, 49}
	budget := 120
	plan := Plan(lengths, budget, 1)

	seen := map[int]bool{}
	for _, b := range plan {
		maxLen := 0
		for _, idx := range b {
			if seen[idx] {
				t.Fatalf("index %d appears twice", idx)
			}
			seen[idx] = true
			if n := lengths[idx] + 1; n > maxLen {
				maxLen = n
			}
		}
		if len(b) > 1 && maxLen*len(b) > budget {
			t.Errorf("batch %v: padded cost %d exceeds budget %d", b, maxLen*len(b), budget)
		}
	}
	if len(seen) != len(lengths) {
		t.Errorf("plan covers %d of %d records", len(seen), len(lengths))
	}
}

func TestPlanOversizedSingleton(t *testing.T) {
	lengths := []int{5, 1000, 6}
	plan := Plan(lengths, 64, 1)

	found := false
	for _, b := range plan {
		for _, idx := range b {
			if idx == 1 {
				found = true
				if len(b) != 1 {
					t.Errorf("oversized record shares batch %v", b)
				}
			}
		}
	}
	if !found {
		t.Error("oversized record missing from plan")
	}
}

func TestPlanGroupsByLength(t *testing.T) {
	lengths := []int{100, 2, 100, 2}
	plan := Plan(lengths, 210, 0)

	// Sorted by length: the two short records come first and fit together.
	if !reflect.DeepEqual(plan[0], []int{1, 3}) {
		t.Errorf("first batch: got %v, want [1 3]", plan[0])
	}
}

func TestPlanEmpty(t *testing.T) {
	if plan := Plan(nil, 100, 1); len(plan) != 0 {
		t.Errorf("empty input: got %v", plan)
	}
}
