// Package server exposes the pipeline stages, run history and rendered
// reports over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/siteopt/internal/apperr"
	"github.com/sells-group/siteopt/internal/optimize"
	"github.com/sells-group/siteopt/internal/pipeline"
	"github.com/sells-group/siteopt/internal/store"
)

// Service is the pipeline surface the server drives. *pipeline.Pipeline
// implements it.
type Service interface {
	Prepare(ctx context.Context) (*pipeline.PrepareResult, error)
	Optimize(ctx context.Context, params optimize.Params) (*pipeline.OptimizeResult, error)
	Reports(ctx context.Context) ([]string, error)
	PlotPath(name string) string
	Store() store.Store
}

// Options configures a Server.
type Options struct {
	// Defaults are the optimizer parameters a request body overrides.
	Defaults    optimize.Params
	CORSOrigins []string
	Cache       *ArtifactCache
}

// Server routes HTTP requests to a Service.
type Server struct {
	svc      Service
	defaults optimize.Params
	origins  []string
	cache    *ArtifactCache
}

// New creates a Server.
func New(svc Service, opts Options) *Server {
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{svc: svc, defaults: opts.Defaults, origins: origins, cache: opts.Cache}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Post("/prepare", s.prepare)
	r.Post("/optimize", s.optimize)
	r.Post("/reports", s.reports)
	r.Get("/reports/{file}", s.plot)
	r.Get("/runs", s.listRuns)
	r.Get("/runs/{id}/records", s.listRecords)
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.cache != nil {
		body["cache"] = s.cache.Stats()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) prepare(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Prepare(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// OptimizeRequest overrides individual optimizer parameters. Weights are
// keyed by objective layer name.
type OptimizeRequest struct {
	PopSize       *int               `json:"pop_size"`
	Generations   *int               `json:"generations"`
	NumRuns       *int               `json:"num_runs"`
	CrossoverProb *float64           `json:"crossover_prob"`
	MutationProb  *float64           `json:"mutation_prob"`
	MinDistance   *float64           `json:"min_distance"`
	NumToSelect   *int               `json:"num_to_select"`
	Seed          *uint64            `json:"seed"`
	EarlyStop     *int               `json:"early_stop_generations"`
	Weights       map[string]float64 `json:"weights"`
}

// Apply returns base with the request's overrides.
func (req OptimizeRequest) Apply(base optimize.Params) (optimize.Params, error) {
	p := base
	p.Objectives = append([]string(nil), base.Objectives...)
	p.Weights = append([]float64(nil), base.Weights...)
	setInt(&p.PopSize, req.PopSize)
	setInt(&p.Generations, req.Generations)
	setInt(&p.NumRuns, req.NumRuns)
	setInt(&p.NumToSelect, req.NumToSelect)
	setInt(&p.EarlyStop, req.EarlyStop)
	if req.CrossoverProb != nil {
		p.CrossoverProb = *req.CrossoverProb
	}
	if req.MutationProb != nil {
		p.MutationProb = *req.MutationProb
	}
	if req.MinDistance != nil {
		p.MinDistance = *req.MinDistance
	}
	if req.Seed != nil {
		p.Seed = *req.Seed
	}
	for name, w := range req.Weights {
		i := indexOf(p.Objectives, name)
		if i < 0 {
			return p, apperr.Config("server: unknown objective %q", name)
		}
		p.Weights[i] = w
	}
	return p, nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func (s *Server) optimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body", Kind: "request"})
		return
	}
	params, err := req.Apply(s.defaults)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.svc.Optimize(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.cache != nil {
		s.cache.Purge()
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) reports(w http.ResponseWriter, r *http.Request) {
	paths, err := s.svc.Reports(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if s.cache != nil {
		s.cache.Purge()
	}
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
	}
	writeJSON(w, http.StatusOK, map[string]any{"plots": names})
}

func (s *Server) plot(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "file")
	if !strings.HasSuffix(name, ".png") || filepath.Base(name) != name || strings.HasPrefix(name, ".") {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown plot", Kind: "not_found"})
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if s.cache != nil {
		if data := s.cache.Get(name); data != nil {
			w.Header().Set("X-Cache", "hit")
			_, _ = w.Write(data)
			return
		}
	}
	data, err := os.ReadFile(s.svc.PlotPath(name))
	if errors.Is(err, fs.ErrNotExist) {
		w.Header().Del("Content-Type")
		writeJSON(w, http.StatusNotFound, errorBody{Error: "plot not rendered: " + name, Kind: "not_found"})
		return
	}
	if err != nil {
		w.Header().Del("Content-Type")
		writeError(w, err)
		return
	}
	if s.cache != nil {
		s.cache.Put(name, data)
		w.Header().Set("X-Cache", "miss")
	}
	_, _ = w.Write(data)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	st := s.svc.Store()
	if st == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "run history is disabled", Kind: "unavailable"})
		return
	}
	q := r.URL.Query()
	filter := store.RunFilter{Status: store.RunStatus(q.Get("status"))}
	var err error
	if filter.Limit, err = queryInt(q.Get("limit")); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid limit", Kind: "request"})
		return
	}
	if filter.Offset, err = queryInt(q.Get("offset")); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid offset", Kind: "request"})
		return
	}

	runs, err := st.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func queryInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	st := s.svc.Store()
	if st == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "run history is disabled", Kind: "unavailable"})
		return
	}
	recs, err := st.ListRecords(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// StatusFor maps an error to its HTTP status and kind label.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "cancelled"
	}
	switch k := apperr.KindOf(err); k {
	case apperr.KindInput:
		return http.StatusUnprocessableEntity, k.String()
	case apperr.KindConfig:
		return http.StatusBadRequest, k.String()
	default:
		return http.StatusInternalServerError, apperr.KindInternal.String()
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, kind := StatusFor(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("server: request failed", zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
