package raster

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/siteopt/internal/apperr"
	"github.com/sells-group/siteopt/internal/resilience"
)

// HTTPOptions configures an HTTPSource.
type HTTPOptions struct {
	Timeout   time.Duration
	UserAgent string
	// RequestsPerSecond throttles downloads from the layer host.
	RequestsPerSecond float64
	Retry             resilience.Policy
}

// HTTPSource downloads pre-exported ESRI ASCII layers from a static host,
// laid out as <base>/<name>.asc with an optional <base>/layers.yaml.
type HTTPSource struct {
	baseURL    string
	defaultCRS string
	client     *resty.Client
	limiter    *rate.Limiter
	retry      resilience.Policy
	manifest   *Manifest
}

// NewHTTPSource creates a source rooted at baseURL and fetches its manifest if one exists.
func NewHTTPSource(ctx context.Context, baseURL, defaultCRS string, opts HTTPOptions) (*HTTPSource, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "siteopt/1.0"
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 5
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.LogRetries("raster", "download")
	}

	s := &HTTPSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		defaultCRS: defaultCRS,
		client:     resty.New().SetTimeout(opts.Timeout).SetHeader("User-Agent", opts.UserAgent),
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		retry:      opts.Retry,
	}

	body, status, err := s.fetch(ctx, ManifestFile)
	switch {
	case err != nil && status == http.StatusNotFound:
		s.manifest = &Manifest{}
	case err != nil:
		return nil, err
	default:
		var m Manifest
		if err := yaml.Unmarshal(body, &m); err != nil {
			return nil, apperr.WrapInput(err, "raster: parse remote manifest")
		}
		s.manifest = &m
	}
	return s, nil
}

// Load downloads and parses the named layer.
func (s *HTTPSource) Load(ctx context.Context, name string) (*Layer, error) {
	file, crs, nodata := s.manifest.entry(name, s.defaultCRS)
	body, _, err := s.fetch(ctx, file)
	if err != nil {
		return nil, err
	}
	layer, err := ReadASCII(bytes.NewReader(body), name, crs)
	if err != nil {
		return nil, err
	}
	applyNoData(layer, nodata)
	return layer, nil
}

// fetch downloads one file, returning the last HTTP status seen.
func (s *HTTPSource) fetch(ctx context.Context, file string) ([]byte, int, error) {
	url := s.baseURL + "/" + file
	var status int
	body, err := resilience.Do(ctx, s.retry, func(ctx context.Context) ([]byte, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "raster: rate limiter wait")
		}
		resp, err := s.client.R().SetContext(ctx).Get(url)
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrapf(err, "raster: get %s", url), 0)
		}
		status = resp.StatusCode()
		if resilience.IsTransientHTTPStatus(status) {
			return nil, resilience.NewTransientError(fmt.Errorf("raster: get %s: status %d", url, status), status)
		}
		if status != http.StatusOK {
			return nil, apperr.Input("raster: get %s: status %d", url, status)
		}
		return resp.Body(), nil
	})
	return body, status, err
}
