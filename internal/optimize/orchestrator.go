package optimize

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/siteopt/internal/grid"
	"github.com/sells-group/siteopt/internal/nsga"
	"github.com/sells-group/siteopt/internal/spatial"
)

// Individual is a search candidate whose genome is a patch id.
type Individual = nsga.Individual[int]

// RunResult summarises one completed run.
type RunResult struct {
	Index       int
	Generations int
	Stalled     bool
	FrontSize   int
	Selected    []*Individual
	Elapsed     time.Duration
}

// Selection is one selected individual tagged with the run that chose it.
type Selection struct {
	Run        int
	Individual *Individual
}

// Outcome collects every completed run. Combined concatenates the runs'
// selections in run order without removing repeated patch ids.
type Outcome struct {
	Runs      []RunResult
	Combined  []Selection
	Cancelled bool
}

// Orchestrator repeats search and selection over one frozen table.
type Orchestrator struct {
	table  *grid.Table
	obj    *Objectives
	params Params
}

// New validates params and prepares the normalized objectives of t.
func New(t *grid.Table, p Params) (*Orchestrator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	obj, err := NewObjectives(t, p.Objectives)
	if err != nil {
		return nil, err
	}
	o := &Orchestrator{table: t, obj: obj, params: p}
	if err := o.engineConfig().Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// Objectives exposes the normalized objective table.
func (o *Orchestrator) Objectives() *Objectives {
	return o.obj
}

// Run executes NumRuns independent runs, up to Parallel at a time.
// Cancellation is checked between runs and between generations; runs
// interrupted before finishing are discarded and the outcome is marked
// cancelled. Cancellation is not an error.
func (o *Orchestrator) Run(ctx context.Context) (*Outcome, error) {
	log := zap.L().With(zap.String("component", "optimize"))
	log.Info("optimize: starting",
		zap.Int("patches", o.obj.Len()),
		zap.Int("runs", o.params.NumRuns),
		zap.Int("pop_size", o.params.PopSize),
		zap.Int("generations", o.params.Generations),
		zap.Int("parallel", o.params.Parallel),
	)

	results := make([]*RunResult, o.params.NumRuns)
	var mu sync.Mutex
	cancelled := false

	var g errgroup.Group
	g.SetLimit(o.params.Parallel)
	for i := 0; i < o.params.NumRuns; i++ {
		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				cancelled = true
				mu.Unlock()
				return nil
			}
			rr, err := o.runOnce(ctx, i, log)
			if err != nil {
				return err
			}
			if rr == nil {
				mu.Lock()
				cancelled = true
				mu.Unlock()
				return nil
			}
			results[i] = rr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Outcome{Cancelled: cancelled}
	for _, rr := range results {
		if rr == nil {
			continue
		}
		out.Runs = append(out.Runs, *rr)
		for _, ind := range rr.Selected {
			out.Combined = append(out.Combined, Selection{Run: rr.Index, Individual: ind})
		}
	}
	log.Info("optimize: finished",
		zap.Int("completed_runs", len(out.Runs)),
		zap.Int("selected", len(out.Combined)),
		zap.Bool("cancelled", out.Cancelled),
	)
	return out, nil
}

// runOnce returns nil without error when the run was cancelled.
func (o *Orchestrator) runOnce(ctx context.Context, index int, log *zap.Logger) (*RunResult, error) {
	start := time.Now()
	rlog := log.With(zap.Int("run", index+1))

	engine, err := nsga.NewEngine(o.engineConfig(), o.rngFor(index))
	if err != nil {
		return nil, err
	}
	res, err := engine.Run(ctx)
	if err != nil {
		return nil, err
	}
	if res.Cancelled {
		rlog.Warn("optimize: run cancelled", zap.Int("generation", res.Generations))
		return nil, nil
	}

	selected, err := spatial.SelectDiverse(res.Population, o.locate, o.params.MinDistance, o.params.NumToSelect)
	if err != nil {
		return nil, err
	}
	front := 0
	for _, ind := range res.Population {
		if ind.Rank == 0 {
			front++
		}
	}

	rr := &RunResult{
		Index:       index,
		Generations: res.Generations,
		Stalled:     res.Stalled,
		FrontSize:   front,
		Selected:    selected,
		Elapsed:     time.Since(start),
	}
	rlog.Info("optimize: run complete",
		zap.Int("generations", rr.Generations),
		zap.Bool("stalled", rr.Stalled),
		zap.Int("front", rr.FrontSize),
		zap.Int("selected", len(selected)),
		zap.Duration("elapsed", rr.Elapsed),
	)
	return rr, nil
}

func (o *Orchestrator) engineConfig() nsga.OptimizerConfig[int] {
	obj := o.obj
	return nsga.OptimizerConfig[int]{
		PopSize:       o.params.PopSize,
		Generations:   o.params.Generations,
		CrossoverProb: o.params.CrossoverProb,
		MutationProb:  o.params.MutationProb,
		Weights:       o.params.Weights,
		EarlyStop:     o.params.EarlyStop,
		Sample: func(rng *rand.Rand) int {
			return obj.ID(rng.IntN(obj.Len()))
		},
		Evaluate: func(id int) []float64 {
			v, _ := obj.Normalized(id)
			return v
		},
	}
}

// rngFor derives the random stream of one run.
func (o *Orchestrator) rngFor(index int) *rand.Rand {
	if o.params.Seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(o.params.Seed, uint64(index)))
}

func (o *Orchestrator) locate(id int) (geom.Coord, bool) {
	p, ok := o.table.Lookup(id)
	if !ok {
		return nil, false
	}
	return geom.Coord{p.CentroidX, p.CentroidY}, true
}
