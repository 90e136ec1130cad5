package nsga

import (
	"math"
	"sort"
)

// SortNondominated partitions pop into Pareto fronts and sets each
// individual's Rank to its front index, starting at 0.
func SortNondominated[K comparable](pop []*Individual[K]) [][]*Individual[K] {
	n := len(pop)
	if n == 0 {
		return nil
	}
	dominatedBy := make([]int, n)
	dominates := make([][]int, n)

	var front []int
	for p := 0; p < n; p++ {
		for q := 0; q < n; q++ {
			if p == q {
				continue
			}
			if Dominates(pop[p].Fitness, pop[q].Fitness) {
				dominates[p] = append(dominates[p], q)
			} else if Dominates(pop[q].Fitness, pop[p].Fitness) {
				dominatedBy[p]++
			}
		}
		if dominatedBy[p] == 0 {
			front = append(front, p)
		}
	}

	var fronts [][]*Individual[K]
	for rank := 0; len(front) > 0; rank++ {
		members := make([]*Individual[K], len(front))
		var next []int
		for i, p := range front {
			pop[p].Rank = rank
			members[i] = pop[p]
			for _, q := range dominates[p] {
				dominatedBy[q]--
				if dominatedBy[q] == 0 {
					next = append(next, q)
				}
			}
		}
		fronts = append(fronts, members)
		front = next
	}
	return fronts
}

// AssignCrowding sets the crowding distance of every member of one front.
// Boundary members along any objective get +Inf.
func AssignCrowding[K comparable](front []*Individual[K]) {
	for _, ind := range front {
		ind.Crowding = 0
	}
	if len(front) == 0 {
		return
	}
	if len(front) <= 2 {
		for _, ind := range front {
			ind.Crowding = math.Inf(1)
		}
		return
	}

	sorted := append([]*Individual[K](nil), front...)
	last := len(sorted) - 1
	for m := range front[0].Fitness {
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Fitness[m] < sorted[j].Fitness[m]
		})
		sorted[0].Crowding = math.Inf(1)
		sorted[last].Crowding = math.Inf(1)

		span := sorted[last].Fitness[m] - sorted[0].Fitness[m]
		if span == 0 {
			continue
		}
		for i := 1; i < last; i++ {
			sorted[i].Crowding += (sorted[i+1].Fitness[m] - sorted[i-1].Fitness[m]) / span
		}
	}
}

// Rank sorts pop into fronts and assigns crowding distances within each.
func Rank[K comparable](pop []*Individual[K]) [][]*Individual[K] {
	fronts := SortNondominated(pop)
	for _, f := range fronts {
		AssignCrowding(f)
	}
	return fronts
}

// CrowdedLess reports whether a beats b under the crowded-comparison
// operator: lower rank first, then larger crowding distance.
func CrowdedLess[K comparable](a, b *Individual[K]) bool {
	if a.Rank != b.Rank {
		return a.Rank < b.Rank
	}
	return a.Crowding > b.Crowding
}
