package main

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/sells-group/siteopt/internal/pipeline"
	"github.com/sells-group/siteopt/internal/result"
	"github.com/sells-group/siteopt/internal/store"
)

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	if title != "" {
		t.SetTitle(title)
	}
	return t
}

func formatPrepare(w io.Writer, res *pipeline.PrepareResult) {
	t := newTable(w, "Prepared Grid")
	b := res.Extent.Bounds
	t.AppendRows([]table.Row{
		{"CRS", res.Extent.CRS},
		{"Bounds", fmt.Sprintf("%.2f, %.2f, %.2f, %.2f", b[0], b[1], b[2], b[3])},
		{"Raster", fmt.Sprintf("%d x %d", res.Extent.Rows, res.Extent.Cols)},
		{"Grid size", res.Extent.GridSize},
		{"Valid patches", res.Extent.Patches},
		{"Dropped cells", res.Extent.Dropped},
	})
	t.Render()
	formatFiles(w, res.Files)
}

func formatOptimize(w io.Writer, res *pipeline.OptimizeResult, top int) {
	status := "complete"
	if res.Cancelled {
		status = "cancelled"
	}
	_, _ = fmt.Fprintf(w, "Optimization %s: %d runs over %d patches, %d selections\n",
		status, res.Runs, res.Patches, len(res.Records))
	if res.RunID != "" {
		_, _ = fmt.Fprintf(w, "Run ID: %s\n", res.RunID)
	}
	formatRecords(w, res.Records, top)
	formatFiles(w, res.Files)
}

// formatRecords renders at most top records; top <= 0 renders all.
func formatRecords(w io.Writer, records []result.Record, top int) {
	if len(records) == 0 {
		_, _ = fmt.Fprintln(w, "No selections.")
		return
	}
	t := newTable(w, "Selected Patches")
	t.AppendHeader(table.Row{"RANK", "PATCH", "RUN", "LON", "LAT", "LANDCOVER", "SLOPE", "SOIL", "FLOOD", "URBAN", "SCORE"})
	for i, r := range records {
		if top > 0 && i >= top {
			break
		}
		t.AppendRow(table.Row{
			r.Rank, r.PatchID, r.Run,
			fmt.Sprintf("%.5f", r.ReportX), fmt.Sprintf("%.5f", r.ReportY),
			fmt.Sprintf("%.3f", r.LandcoverSuitability), fmt.Sprintf("%.3f", r.Slope),
			fmt.Sprintf("%.3f", r.Soil), fmt.Sprintf("%.3f", r.FloodRisk),
			fmt.Sprintf("%.3f", r.UrbanProximity), fmt.Sprintf("%.4f", r.OverallScore),
		})
	}
	if top > 0 && len(records) > top {
		t.AppendFooter(table.Row{"", "", "", "", "", "", "", "", "", "shown", fmt.Sprintf("%d of %d", top, len(records))})
	}
	t.Render()
}

func formatFiles(w io.Writer, files []string) {
	if len(files) == 0 {
		return
	}
	t := newTable(w, "Files")
	for _, f := range files {
		t.AppendRow(table.Row{filepath.Base(f), filepath.Dir(f)})
	}
	t.Render()
}

func formatRunsList(w io.Writer, runs []store.Run) {
	t := newTable(w, "")
	t.AppendHeader(table.Row{"ID", "STATUS", "PATCHES", "RUNS", "SELECTED", "CREATED", "DURATION"})
	for _, r := range runs {
		t.AppendRow(table.Row{
			truncateID(r.ID),
			r.Status,
			r.Patches,
			r.Runs,
			r.Selected,
			r.CreatedAt.Format("2006-01-02 15:04"),
			r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String(),
		})
	}
	t.Render()
}

func formatRunDetail(w io.Writer, r *store.Run) {
	t := newTable(w, "Run "+r.ID)
	t.AppendRows([]table.Row{
		{"Status", r.Status},
		{"Patches", r.Patches},
		{"Runs", r.Runs},
		{"Selected", r.Selected},
		{"Created", r.CreatedAt.Format(time.RFC3339)},
		{"Updated", r.UpdatedAt.Format(time.RFC3339)},
		{"Params", string(r.Params)},
	})
	if r.Error != "" {
		t.AppendRow(table.Row{"Error", r.Error})
	}
	t.Render()
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
