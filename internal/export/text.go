package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/siteopt/internal/optimize"
	"github.com/sells-group/siteopt/internal/result"
)

// WriteBBoxes writes one line per record with its reporting-CRS bounding box.
func WriteBBoxes(w io.Writer, rep *result.Report) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# Bounding Box Coordinates (%s)\n", rep.ReportCRS)
	for _, r := range rep.Records {
		fmt.Fprintf(bw, "Patch %d (Rank %d): %s\n", r.PatchID, r.Rank, r.BBox)
	}
	return eris.Wrap(bw.Flush(), "export: write bounding boxes")
}

// RunSelection is one selected individual in the per-run listing.
type RunSelection struct {
	PatchID  int       `json:"patch_id"`
	Fitness  []float64 `json:"fitness"`
	Score    float64   `json:"score"`
	Rank     int       `json:"front_rank"`
	Crowding *float64  `json:"crowding"`
}

// RunListing is the per-run view of an optimization outcome.
type RunListing struct {
	Run         int            `json:"run"`
	Generations int            `json:"generations"`
	Stalled     bool           `json:"stalled"`
	FrontSize   int            `json:"front_size"`
	ElapsedMS   int64          `json:"elapsed_ms"`
	Selected    []RunSelection `json:"selected"`
}

// Listings converts runs to their JSON view; infinite crowding distances
// become null.
func Listings(runs []optimize.RunResult) []RunListing {
	out := make([]RunListing, 0, len(runs))
	for _, rr := range runs {
		l := RunListing{
			Run:         rr.Index + 1,
			Generations: rr.Generations,
			Stalled:     rr.Stalled,
			FrontSize:   rr.FrontSize,
			ElapsedMS:   rr.Elapsed.Milliseconds(),
			Selected:    make([]RunSelection, 0, len(rr.Selected)),
		}
		for _, ind := range rr.Selected {
			s := RunSelection{
				PatchID: ind.Genome,
				Fitness: ind.Fitness,
				Score:   ind.Score(),
				Rank:    ind.Rank,
			}
			if c := ind.Crowding; !math.IsInf(c, 0) && !math.IsNaN(c) {
				s.Crowding = &c
			}
			l.Selected = append(l.Selected, s)
		}
		out = append(out, l)
	}
	return out
}

// WriteRuns writes the per-run selections as JSON.
func WriteRuns(w io.Writer, runs []optimize.RunResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(Listings(runs)), "export: encode runs")
}

// ReadRuns loads a listing written by WriteRuns.
func ReadRuns(r io.Reader) ([]RunListing, error) {
	var out []RunListing
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, eris.Wrap(err, "export: decode runs")
	}
	return out, nil
}
