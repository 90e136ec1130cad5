// Package store persists optimization run history and the selection
// records each run produced.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sells-group/siteopt/internal/result"
)

// ErrNotFound is returned when a run id does not exist.
var ErrNotFound = errors.New("not found")

// RunStatus is the lifecycle state of a stored run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusComplete  RunStatus = "complete"
	RunStatusCancelled RunStatus = "cancelled"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one optimization invocation; the individual stochastic runs it
// performed are counted in Runs.
type Run struct {
	ID        string          `json:"id"`
	Status    RunStatus       `json:"status"`
	Params    json.RawMessage `json:"params"`
	Patches   int             `json:"patches"`
	Runs      int             `json:"runs"`
	Selected  int             `json:"selected"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Summary describes the outcome recorded when a run finishes.
type Summary struct {
	Status  RunStatus
	Patches int
	Runs    int
	Error   string
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status RunStatus `json:"status,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

// Store defines the run history persistence interface.
type Store interface {
	CreateRun(ctx context.Context, params any) (*Run, error)
	FinishRun(ctx context.Context, id string, summary Summary, records []result.Record) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)
	ListRecords(ctx context.Context, id string) ([]result.Record, error)

	Migrate(ctx context.Context) error
	Close() error
}

// recordColumns are the selection_records columns after run_id, in Record order.
var recordColumns = []string{
	"rank", "patch_id", "run", "centroid_x", "centroid_y", "report_centroid_x", "report_centroid_y",
	"bbox", "landcover_suitability", "slope", "soil", "flood_risk", "urban_proximity", "overall_score",
}

func recordValues(runID string, r result.Record) []any {
	return []any{
		runID, r.Rank, r.PatchID, r.Run, r.CentroidX, r.CentroidY, r.ReportX, r.ReportY,
		r.BBox, r.LandcoverSuitability, r.Slope, r.Soil, r.FloodRisk, r.UrbanProximity, r.OverallScore,
	}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (result.Record, error) {
	var r result.Record
	err := row.Scan(&r.Rank, &r.PatchID, &r.Run, &r.CentroidX, &r.CentroidY, &r.ReportX, &r.ReportY,
		&r.BBox, &r.LandcoverSuitability, &r.Slope, &r.Soil, &r.FloodRisk, &r.UrbanProximity, &r.OverallScore)
	return r, err
}

func limitOf(f RunFilter) int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}
