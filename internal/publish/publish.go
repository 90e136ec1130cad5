// Package publish uploads the best selection records to a Postgres results
// table.
package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/siteopt/internal/apperr"
	"github.com/sells-group/siteopt/internal/db"
	"github.com/sells-group/siteopt/internal/proj"
	"github.com/sells-group/siteopt/internal/resilience"
	"github.com/sells-group/siteopt/internal/result"
)

// DefaultTable is the results table used when none is configured.
const DefaultTable = "results"

// Config controls what is published and how.
type Config struct {
	Table string
	// TopN is the number of distinct patches published, best score first.
	TopN int
	// Geometry adds the cell polygon as EWKB in the geom column.
	Geometry bool
	// Upsert merges on patch_id instead of appending.
	Upsert bool
}

// Publisher writes selection records into Postgres.
type Publisher struct {
	pool   db.Pool
	cfg    Config
	policy resilience.Policy
	now    func() time.Time
}

// New returns a publisher over pool. A missing table name falls back to
// DefaultTable.
func New(pool db.Pool, cfg Config) (*Publisher, error) {
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if cfg.TopN <= 0 {
		return nil, apperr.Config("publish: top_n must be positive, got %d", cfg.TopN)
	}
	policy := resilience.DefaultPolicy()
	policy.OnRetry = resilience.LogRetries("postgres", "publish")
	return &Publisher{pool: pool, cfg: cfg, policy: policy, now: time.Now}, nil
}

// Columns returns the inserted column list for the configuration.
func (p *Publisher) Columns() []string {
	cols := []string{
		"patch_id", "rank", "run", "centroid_x", "centroid_y", "bbox",
		"landcover_suitability", "slope", "soil", "flood_risk", "urban_proximity",
		"overall_score", "created_at",
	}
	if p.cfg.Geometry {
		cols = append(cols, "geom")
	}
	return cols
}

// EnsureTable creates the results table if it does not exist.
func (p *Publisher) EnsureTable(ctx context.Context) error {
	geomCol := ""
	if p.cfg.Geometry {
		geomCol = ",\n\tgeom BYTEA"
	}
	unique := ""
	if p.cfg.Upsert {
		unique = " UNIQUE"
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id                    BIGSERIAL PRIMARY KEY,
	patch_id              INTEGER NOT NULL%s,
	rank                  INTEGER NOT NULL,
	run                   INTEGER NOT NULL,
	centroid_x            DOUBLE PRECISION NOT NULL,
	centroid_y            DOUBLE PRECISION NOT NULL,
	bbox                  TEXT NOT NULL,
	landcover_suitability DOUBLE PRECISION NOT NULL,
	slope                 DOUBLE PRECISION NOT NULL,
	soil                  DOUBLE PRECISION NOT NULL,
	flood_risk            DOUBLE PRECISION NOT NULL,
	urban_proximity       DOUBLE PRECISION NOT NULL,
	overall_score         DOUBLE PRECISION NOT NULL,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()%s
)`, db.Identifier(p.cfg.Table).Sanitize(), unique, geomCol)

	_, err := p.pool.Exec(ctx, ddl)
	return eris.Wrapf(err, "publish: create table %s", p.cfg.Table)
}

// Publish writes the top records of rep and returns the number of rows
// written. Centroids are published in the reporting CRS.
func (p *Publisher) Publish(ctx context.Context, rep *result.Report) (int64, error) {
	records := result.TopN(rep.Records, p.cfg.TopN)
	if len(records) == 0 {
		return 0, nil
	}
	rows, err := p.rows(rep.SourceCRS, records)
	if err != nil {
		return 0, err
	}

	n, err := resilience.Do(ctx, p.policy, func(ctx context.Context) (int64, error) {
		if p.cfg.Upsert {
			return db.BulkUpsert(ctx, p.pool, db.UpsertConfig{
				Table:        p.cfg.Table,
				Columns:      p.Columns(),
				ConflictKeys: []string{"patch_id"},
			}, rows)
		}
		return db.CopyFrom(ctx, p.pool, p.cfg.Table, p.Columns(), rows)
	})
	if err != nil {
		return 0, eris.Wrapf(err, "publish: write %s", p.cfg.Table)
	}
	zap.L().Info("published results",
		zap.String("table", p.cfg.Table),
		zap.Int64("rows", n),
		zap.Bool("upsert", p.cfg.Upsert),
	)
	return n, nil
}

func (p *Publisher) rows(sourceCRS string, records []result.Record) ([][]any, error) {
	srid := 0
	if p.cfg.Geometry {
		crs, err := proj.Parse(sourceCRS)
		if err != nil {
			return nil, err
		}
		srid = crs.EPSG
	}
	created := p.now().UTC()
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		row := []any{
			r.PatchID, r.Rank, r.Run, r.ReportX, r.ReportY, r.BBox,
			r.LandcoverSuitability, r.Slope, r.Soil, r.FloodRisk, r.UrbanProximity,
			r.OverallScore, created,
		}
		if p.cfg.Geometry {
			if r.Geometry == nil {
				return nil, apperr.Input("publish: patch %d has no geometry", r.PatchID)
			}
			data, err := ewkb.Marshal(r.Geometry.Clone().SetSRID(srid), ewkb.NDR)
			if err != nil {
				return nil, eris.Wrapf(err, "publish: encode patch %d", r.PatchID)
			}
			row = append(row, data)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
