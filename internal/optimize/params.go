package optimize

import (
	"math"

	"github.com/sells-group/siteopt/internal/apperr"
	"github.com/sells-group/siteopt/internal/nsga"
	"github.com/sells-group/siteopt/internal/raster"
)

// Params configures the repeated search.
type Params struct {
	PopSize       int
	Generations   int
	NumRuns       int
	CrossoverProb float64
	MutationProb  float64
	// Objectives and Weights are parallel; each weight scales its objective
	// before dominance ranking.
	Objectives  []string
	Weights     []float64
	MinDistance float64
	NumToSelect int
	// Parallel caps the number of runs executed concurrently.
	Parallel int
	// Seed makes runs reproducible; 0 draws fresh random streams.
	Seed      uint64
	EarlyStop int
}

// DefaultParams returns the standard search settings, with flood risk
// weighted three times the other objectives.
func DefaultParams() Params {
	return Params{
		PopSize:       100,
		Generations:   20,
		NumRuns:       5,
		CrossoverProb: nsga.DefaultCrossoverProb,
		MutationProb:  nsga.DefaultMutationProb,
		Objectives:    append([]string(nil), raster.ObjectiveLayers...),
		Weights:       []float64{1, 1, 1, 3, 1},
		MinDistance:   1000,
		NumToSelect:   5,
		Parallel:      1,
	}
}

// Validate rejects unusable hyperparameters.
func (p Params) Validate() error {
	switch {
	case p.NumRuns < 1:
		return apperr.Config("optimize: num_runs must be at least 1, got %d", p.NumRuns)
	case p.NumToSelect <= 0:
		return apperr.Config("optimize: num_to_select must be positive, got %d", p.NumToSelect)
	case p.MinDistance < 0 || math.IsNaN(p.MinDistance) || math.IsInf(p.MinDistance, 0):
		return apperr.Config("optimize: min_distance must be a non-negative number, got %g", p.MinDistance)
	case p.Parallel < 1:
		return apperr.Config("optimize: parallel must be at least 1, got %d", p.Parallel)
	case len(p.Objectives) == 0:
		return apperr.Config("optimize: no objectives")
	case len(p.Objectives) != len(p.Weights):
		return apperr.Config("optimize: %d objectives but %d weights", len(p.Objectives), len(p.Weights))
	}
	for i, w := range p.Weights {
		if w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return apperr.Config("optimize: weight for %s must be positive, got %g", p.Objectives[i], w)
		}
	}
	return nil
}
