package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/siteopt/internal/apperr"
	"github.com/sells-group/siteopt/internal/optimize"
	"github.com/sells-group/siteopt/internal/pipeline"
	"github.com/sells-group/siteopt/internal/raster"
	"github.com/sells-group/siteopt/internal/result"
	"github.com/sells-group/siteopt/internal/store"
)

type fakeService struct {
	plotDir    string
	st         store.Store
	prepareErr error
	optimizeFn func(optimize.Params) (*pipeline.OptimizeResult, error)
	reports    []string
	reportsErr error
	gotParams  optimize.Params
}

func (f *fakeService) Prepare(context.Context) (*pipeline.PrepareResult, error) {
	if f.prepareErr != nil {
		return nil, f.prepareErr
	}
	return &pipeline.PrepareResult{Cells: 15, Extent: pipeline.Extent{CRS: "EPSG:32630", GridSize: 500}}, nil
}

func (f *fakeService) Optimize(_ context.Context, p optimize.Params) (*pipeline.OptimizeResult, error) {
	f.gotParams = p
	if f.optimizeFn != nil {
		return f.optimizeFn(p)
	}
	return &pipeline.OptimizeResult{RunID: "run-1", Patches: 15, Runs: p.NumRuns}, nil
}

func (f *fakeService) Reports(context.Context) ([]string, error) {
	return f.reports, f.reportsErr
}

func (f *fakeService) PlotPath(name string) string {
	return filepath.Join(f.plotDir, name)
}

func (f *fakeService) Store() store.Store {
	return f.st
}

func defaultParams() optimize.Params {
	return optimize.Params{
		PopSize:       20,
		Generations:   5,
		NumRuns:       2,
		CrossoverProb: 0.9,
		MutationProb:  0.1,
		Objectives:    append([]string(nil), raster.ObjectiveLayers...),
		Weights:       []float64{1, 1, 1, 3, 1},
		NumToSelect:   3,
	}
}

func newTestServer(t *testing.T, svc *fakeService) http.Handler {
	t.Helper()
	srv := New(svc, Options{
		Defaults: defaultParams(),
		Cache:    NewArtifactCache(4, time.Minute),
	})
	return srv.Router()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, &fakeService{})
	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
}

func TestPrepare(t *testing.T) {
	h := newTestServer(t, &fakeService{})
	rec := do(t, h, http.MethodPost, "/prepare", "")
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[pipeline.PrepareResult](t, rec)
	assert.Equal(t, 15, res.Cells)
	assert.Equal(t, "EPSG:32630", res.Extent.CRS)
}

func TestPrepare_InputErrorIs422(t *testing.T) {
	svc := &fakeService{prepareErr: eris.Wrap(apperr.Input("raster: slope: shape mismatch"), "pipeline: load")}
	rec := do(t, newTestServer(t, svc), http.MethodPost, "/prepare", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, "input", body.Kind)
	assert.Contains(t, body.Error, "shape mismatch")
}

func TestOptimize_DefaultsWithoutBody(t *testing.T) {
	svc := &fakeService{}
	rec := do(t, newTestServer(t, svc), http.MethodPost, "/optimize", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultParams(), svc.gotParams)
	res := decode[pipeline.OptimizeResult](t, rec)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, 2, res.Runs)
}

func TestOptimize_Overrides(t *testing.T) {
	svc := &fakeService{}
	body := `{"pop_size": 40, "num_runs": 4, "seed": 11, "weights": {"slope": 2.5}}`
	rec := do(t, newTestServer(t, svc), http.MethodPost, "/optimize", body)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 40, svc.gotParams.PopSize)
	assert.Equal(t, 4, svc.gotParams.NumRuns)
	assert.Equal(t, uint64(11), svc.gotParams.Seed)
	assert.Equal(t, 5, svc.gotParams.Generations)
	assert.Equal(t, []float64{1, 2.5, 1, 3, 1}, svc.gotParams.Weights)
}

func TestOptimize_OverridesDoNotLeakIntoDefaults(t *testing.T) {
	svc := &fakeService{}
	h := newTestServer(t, svc)
	rec := do(t, h, http.MethodPost, "/optimize", `{"weights": {"soil": 9}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/optimize", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []float64{1, 1, 1, 3, 1}, svc.gotParams.Weights)
}

func TestOptimize_UnknownObjectiveIs400(t *testing.T) {
	rec := do(t, newTestServer(t, &fakeService{}), http.MethodPost, "/optimize", `{"weights": {"elevation": 1}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "config", decode[errorBody](t, rec).Kind)
}

func TestOptimize_MalformedBody(t *testing.T) {
	rec := do(t, newTestServer(t, &fakeService{}), http.MethodPost, "/optimize", `{"pop_size":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "request", decode[errorBody](t, rec).Kind)
}

func TestOptimize_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"config", apperr.Config("optimize: pop_size must be >= 2"), http.StatusBadRequest, "config"},
		{"input", apperr.Input("pipeline: no valid patches"), http.StatusUnprocessableEntity, "input"},
		{"internal", apperr.Internal("nsga: rank overflow"), http.StatusInternalServerError, "internal"},
		{"unclassified", eris.New("disk full"), http.StatusInternalServerError, "internal"},
		{"cancelled", eris.Wrap(context.Canceled, "raster: load"), http.StatusServiceUnavailable, "cancelled"},
		{"not found", eris.Wrap(store.ErrNotFound, "store: get run"), http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{optimizeFn: func(optimize.Params) (*pipeline.OptimizeResult, error) {
				return nil, tt.err
			}}
			rec := do(t, newTestServer(t, svc), http.MethodPost, "/optimize", "")
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.kind, decode[errorBody](t, rec).Kind)
		})
	}
}

func TestReportsAndPlots(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "composite.png")
	require.NoError(t, os.WriteFile(path, []byte("png-v1"), 0o644))

	svc := &fakeService{plotDir: dir, reports: []string{path, filepath.Join(dir, "pareto_slope_soil.png")}}
	h := newTestServer(t, svc)

	rec := do(t, h, http.MethodGet, "/reports/composite.png", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "miss", rec.Header().Get("X-Cache"))
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "png-v1", rec.Body.String())

	require.NoError(t, os.WriteFile(path, []byte("png-v2"), 0o644))
	rec = do(t, h, http.MethodGet, "/reports/composite.png", "")
	assert.Equal(t, "hit", rec.Header().Get("X-Cache"))
	assert.Equal(t, "png-v1", rec.Body.String())

	rec = do(t, h, http.MethodPost, "/reports", "")
	require.Equal(t, http.StatusOK, rec.Code)
	plots := decode[map[string][]string](t, rec)
	assert.Equal(t, []string{"composite.png", "pareto_slope_soil.png"}, plots["plots"])

	// re-rendering invalidates cached bytes
	rec = do(t, h, http.MethodGet, "/reports/composite.png", "")
	assert.Equal(t, "miss", rec.Header().Get("X-Cache"))
	assert.Equal(t, "png-v2", rec.Body.String())
}

func TestPlot_RejectsUnknownFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	h := newTestServer(t, &fakeService{plotDir: dir})

	for _, target := range []string{"/reports/notes.txt", "/reports/missing.png", "/reports/..png"} {
		rec := do(t, h, http.MethodGet, target, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
	}
}

func TestReports_RequiresOptimize(t *testing.T) {
	svc := &fakeService{reportsErr: apperr.Input("pipeline: read records (run optimize first)")}
	rec := do(t, newTestServer(t, svc), http.MethodPost, "/reports", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRuns_DisabledStore(t *testing.T) {
	h := newTestServer(t, &fakeService{})
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/runs", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/runs/x/records", "").Code)
}

func TestRuns_History(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	done, err := st.CreateRun(ctx, defaultParams())
	require.NoError(t, err)
	records := []result.Record{{Rank: 1, PatchID: 4, Run: 1, BBox: "0,0,1,1", OverallScore: 0.7}}
	require.NoError(t, st.FinishRun(ctx, done.ID, store.Summary{Status: store.RunStatusComplete, Patches: 15, Runs: 2}, records))
	_, err = st.CreateRun(ctx, defaultParams())
	require.NoError(t, err)

	h := newTestServer(t, &fakeService{st: st})

	rec := do(t, h, http.MethodGet, "/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]store.Run](t, rec), 2)

	rec = do(t, h, http.MethodGet, "/runs?status=complete", "")
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decode[[]store.Run](t, rec)
	require.Len(t, runs, 1)
	assert.Equal(t, done.ID, runs[0].ID)

	rec = do(t, h, http.MethodGet, "/runs?status=failed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/runs?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/runs/"+done.ID+"/records", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]result.Record](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, 4, got[0].PatchID)

	rec = do(t, h, http.MethodGet, "/runs/nope/records", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[errorBody](t, rec).Kind)
}

func TestCORSPreflight(t *testing.T) {
	srv := New(&fakeService{}, Options{Defaults: defaultParams(), CORSOrigins: []string{"https://maps.example.com"}})
	req := httptest.NewRequest(http.MethodOptions, "/optimize", nil)
	req.Header.Set("Origin", "https://maps.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, "https://maps.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
