package nsga

import (
	"context"
	"math/rand/v2"

	"github.com/sells-group/siteopt/internal/apperr"
)

// Default operator probabilities.
const (
	DefaultCrossoverProb = 0.7
	DefaultMutationProb  = 0.3
)

// OptimizerConfig holds the hyperparameters and operators of one search.
// Sample and Evaluate are required; Mate defaults to swapping the two
// genomes and Mutate defaults to drawing a fresh genome with Sample.
type OptimizerConfig[K comparable] struct {
	PopSize       int
	Generations   int
	CrossoverProb float64
	MutationProb  float64
	// Weights multiply each objective before dominance is computed.
	Weights []float64
	// EarlyStop ends the run once the first front's genomes have been
	// unchanged for this many consecutive generations. 0 disables it.
	EarlyStop int

	Sample   func(rng *rand.Rand) K
	Evaluate func(genome K) []float64
	Mate     func(a, b K, rng *rand.Rand) (K, K)
	Mutate   func(genome K, rng *rand.Rand) K

	// OnGeneration, when set, observes the ranked population before each
	// generation is bred.
	OnGeneration func(gen int, fronts [][]*Individual[K])
}

// Validate checks hyperparameters and required operators.
func (c OptimizerConfig[K]) Validate() error {
	switch {
	case c.PopSize < 2:
		return apperr.Config("nsga: pop_size must be at least 2, got %d", c.PopSize)
	case c.Generations < 0:
		return apperr.Config("nsga: generations must not be negative, got %d", c.Generations)
	case c.CrossoverProb < 0 || c.CrossoverProb > 1:
		return apperr.Config("nsga: crossover probability %g outside [0,1]", c.CrossoverProb)
	case c.MutationProb < 0 || c.MutationProb > 1:
		return apperr.Config("nsga: mutation probability %g outside [0,1]", c.MutationProb)
	case c.EarlyStop < 0:
		return apperr.Config("nsga: early stop must not be negative, got %d", c.EarlyStop)
	case len(c.Weights) == 0:
		return apperr.Config("nsga: no objective weights")
	case c.Sample == nil || c.Evaluate == nil:
		return apperr.Config("nsga: Sample and Evaluate operators are required")
	}
	return nil
}

// Result is the outcome of one search.
type Result[K comparable] struct {
	// Population is the final generation, ranked.
	Population  []*Individual[K]
	Generations int
	Cancelled   bool
	Stalled     bool
}

// Engine runs one search with its own random stream. An Engine is not safe
// for concurrent use; independent runs use independent engines.
type Engine[K comparable] struct {
	cfg OptimizerConfig[K]
	rng *rand.Rand
}

// NewEngine validates cfg and binds it to rng.
func NewEngine[K comparable](cfg OptimizerConfig[K], rng *rand.Rand) (*Engine[K], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, apperr.Config("nsga: nil random source")
	}
	if cfg.Mate == nil {
		cfg.Mate = func(a, b K, _ *rand.Rand) (K, K) { return b, a }
	}
	if cfg.Mutate == nil {
		sample := cfg.Sample
		cfg.Mutate = func(_ K, rng *rand.Rand) K { return sample(rng) }
	}
	return &Engine[K]{cfg: cfg, rng: rng}, nil
}

// Run evolves a random initial population for the configured number of
// generations. Cancellation is checked between generations and ends the run
// early with the current population; it is not an error.
func (e *Engine[K]) Run(ctx context.Context) (*Result[K], error) {
	pop := make([]*Individual[K], e.cfg.PopSize)
	for i := range pop {
		pop[i] = &Individual[K]{Genome: e.cfg.Sample(e.rng)}
		if err := e.evaluate(pop[i]); err != nil {
			return nil, err
		}
	}

	res := &Result[K]{}
	var prevFront map[K]struct{}
	stable := 0
	for gen := 0; gen < e.cfg.Generations; gen++ {
		if ctx.Err() != nil {
			res.Cancelled = true
			break
		}
		fronts := Rank(pop)
		if e.cfg.OnGeneration != nil {
			e.cfg.OnGeneration(gen, fronts)
		}
		if e.cfg.EarlyStop > 0 {
			front := genomeSet(fronts[0])
			if prevFront != nil && sameSet(front, prevFront) {
				stable++
			} else {
				stable = 0
			}
			prevFront = front
			if stable >= e.cfg.EarlyStop {
				res.Stalled = true
				break
			}
		}

		next, err := e.breed(pop)
		if err != nil {
			return nil, err
		}
		pop = next
		res.Generations++
	}

	Rank(pop)
	res.Population = pop
	return res, nil
}

// breed produces the next generation: crowded tournament selection, clone,
// pairwise crossover, mutation and re-evaluation of changed individuals.
func (e *Engine[K]) breed(pop []*Individual[K]) ([]*Individual[K], error) {
	offspring := make([]*Individual[K], len(pop))
	for i := range offspring {
		offspring[i] = e.tournament(pop).Clone()
	}

	for i := 1; i < len(offspring); i += 2 {
		if e.rng.Float64() < e.cfg.CrossoverProb {
			a, b := offspring[i-1], offspring[i]
			a.Genome, b.Genome = e.cfg.Mate(a.Genome, b.Genome, e.rng)
			a.Invalidate()
			b.Invalidate()
		}
	}
	for _, ind := range offspring {
		if e.rng.Float64() < e.cfg.MutationProb {
			ind.Genome = e.cfg.Mutate(ind.Genome, e.rng)
			ind.Invalidate()
		}
	}

	for _, ind := range offspring {
		if ind.Valid() {
			continue
		}
		if err := e.evaluate(ind); err != nil {
			return nil, err
		}
	}
	return offspring, nil
}

// tournament picks two individuals uniformly and returns the crowded-
// comparison winner, breaking full ties at random.
func (e *Engine[K]) tournament(pop []*Individual[K]) *Individual[K] {
	a := pop[e.rng.IntN(len(pop))]
	b := pop[e.rng.IntN(len(pop))]
	switch {
	case CrowdedLess(a, b):
		return a
	case CrowdedLess(b, a):
		return b
	case e.rng.IntN(2) == 0:
		return a
	default:
		return b
	}
}

func (e *Engine[K]) evaluate(ind *Individual[K]) error {
	raw := e.cfg.Evaluate(ind.Genome)
	if len(raw) != len(e.cfg.Weights) {
		return apperr.Internal("nsga: evaluation returned %d objectives, want %d", len(raw), len(e.cfg.Weights))
	}
	fit := make([]float64, len(raw))
	for i, v := range raw {
		fit[i] = v * e.cfg.Weights[i]
	}
	ind.Fitness = fit
	return nil
}

func genomeSet[K comparable](front []*Individual[K]) map[K]struct{} {
	set := make(map[K]struct{}, len(front))
	for _, ind := range front {
		set[ind.Genome] = struct{}{}
	}
	return set
}

func sameSet[K comparable](a, b map[K]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
