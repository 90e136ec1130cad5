// Package nsga implements a generational multi-objective evolutionary search
// ranked by weighted Pareto dominance and crowding distance.
package nsga

// Individual is one candidate: a genome plus its cached weighted fitness and
// the front rank and crowding distance assigned during ranking.
type Individual[K comparable] struct {
	Genome K
	// Fitness holds the weighted objective values; nil until evaluated.
	Fitness  []float64
	Rank     int
	Crowding float64
}

// Valid reports whether the fitness is current.
func (ind *Individual[K]) Valid() bool {
	return ind.Fitness != nil
}

// Invalidate drops the cached fitness after the genome changed.
func (ind *Individual[K]) Invalidate() {
	ind.Fitness = nil
}

// Score is the sum of the weighted fitness components.
func (ind *Individual[K]) Score() float64 {
	var s float64
	for _, v := range ind.Fitness {
		s += v
	}
	return s
}

// Clone returns a deep copy.
func (ind *Individual[K]) Clone() *Individual[K] {
	c := *ind
	if ind.Fitness != nil {
		c.Fitness = append([]float64(nil), ind.Fitness...)
	}
	return &c
}

// Dominates reports whether a is no worse than b on every objective and
// strictly better on at least one. Higher values are better.
func Dominates(a, b []float64) bool {
	better := false
	for i := range a {
		switch {
		case a[i] < b[i]:
			return false
		case a[i] > b[i]:
			better = true
		}
	}
	return better
}
