// Package spatial turns an evolved population into a shortlist of
// candidates whose centroids are mutually separated.
package spatial

import (
	"math"
	"sort"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/sells-group/siteopt/internal/apperr"
	"github.com/sells-group/siteopt/internal/nsga"
)

// Locator resolves a genome to its centroid. ok is false when the genome
// does not name a known candidate.
type Locator[K comparable] func(genome K) (c geom.Coord, ok bool)

// Unique collapses pop to one individual per genome. Genomes keep the
// order of their first appearance; the representative is the last
// individual seen with that genome.
func Unique[K comparable](pop []*nsga.Individual[K]) []*nsga.Individual[K] {
	pos := make(map[K]int, len(pop))
	out := make([]*nsga.Individual[K], 0, len(pop))
	for _, ind := range pop {
		if i, ok := pos[ind.Genome]; ok {
			out[i] = ind
			continue
		}
		pos[ind.Genome] = len(out)
		out = append(out, ind)
	}
	return out
}

// SelectDiverse picks up to n candidates from pop in descending order of
// summed fitness, accepting a candidate only when its centroid is at least
// minDistance from every centroid already accepted. Fewer than n are
// returned when the distance constraint cannot be met.
func SelectDiverse[K comparable](pop []*nsga.Individual[K], locate Locator[K], minDistance float64, n int) ([]*nsga.Individual[K], error) {
	if n <= 0 {
		return nil, apperr.Config("spatial: num_to_select must be positive, got %d", n)
	}
	if minDistance < 0 || math.IsNaN(minDistance) {
		return nil, apperr.Config("spatial: min_distance must not be negative, got %g", minDistance)
	}

	candidates := Unique(pop)
	valid := candidates[:0]
	for _, ind := range candidates {
		if ind.Valid() {
			valid = append(valid, ind)
		}
	}
	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].Score() > valid[j].Score()
	})

	selected := make([]*nsga.Individual[K], 0, n)
	accepted := make([]geom.Coord, 0, n)
	for _, ind := range valid {
		if len(selected) >= n {
			break
		}
		c, ok := locate(ind.Genome)
		if !ok {
			return nil, apperr.Internal("spatial: genome %v has no centroid", ind.Genome)
		}
		if farFromAll(c, accepted, minDistance) {
			selected = append(selected, ind)
			accepted = append(accepted, c)
		}
	}
	return selected, nil
}

func farFromAll(c geom.Coord, accepted []geom.Coord, minDistance float64) bool {
	for _, a := range accepted {
		if xy.Distance(c, a) < minDistance {
			return false
		}
	}
	return true
}
