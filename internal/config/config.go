// Package config loads siteopt settings from config.yaml, SITEOPT_* env
// vars and defaults.
package config

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/siteopt/internal/apperr"
	"github.com/sells-group/siteopt/internal/mcda"
	"github.com/sells-group/siteopt/internal/optimize"
	"github.com/sells-group/siteopt/internal/raster"
)

// Config holds the full application configuration.
type Config struct {
	Data      DataConfig      `yaml:"data" mapstructure:"data"`
	Grid      GridConfig      `yaml:"grid" mapstructure:"grid"`
	Composite CompositeConfig `yaml:"composite" mapstructure:"composite"`
	Optimizer OptimizerConfig `yaml:"optimizer" mapstructure:"optimizer"`
	Report    ReportConfig    `yaml:"report" mapstructure:"report"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Publish   PublishConfig   `yaml:"publish" mapstructure:"publish"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// DataConfig locates the input layers and the prepare-stage workspace.
type DataConfig struct {
	// Dir holds <layer>.asc files and an optional layers.yaml.
	Dir string `yaml:"dir" mapstructure:"dir"`
	// BaseURL switches loading to a remote host when set.
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	CRS               string  `yaml:"crs" mapstructure:"crs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	// WorkDir receives valid_patches.geojson, composite.asc and extent.json.
	WorkDir string `yaml:"work_dir" mapstructure:"work_dir"`
}

// GridConfig sizes the patch grid.
type GridConfig struct {
	Size    float64 `yaml:"size" mapstructure:"size"`
	Workers int     `yaml:"workers" mapstructure:"workers"`
}

// LayerWeights assigns one weight per suitability layer.
type LayerWeights struct {
	LandcoverSuitability float64 `yaml:"landcover_suitability" mapstructure:"landcover_suitability"`
	Slope                float64 `yaml:"slope" mapstructure:"slope"`
	Soil                 float64 `yaml:"soil" mapstructure:"soil"`
	FloodRisk            float64 `yaml:"flood_risk" mapstructure:"flood_risk"`
	UrbanProximity       float64 `yaml:"urban_proximity" mapstructure:"urban_proximity"`
}

// Ordered returns the weights in raster.ObjectiveLayers order.
func (w LayerWeights) Ordered() []float64 {
	return []float64{w.LandcoverSuitability, w.Slope, w.Soil, w.FloodRisk, w.UrbanProximity}
}

// CompositeConfig weights the reporting overlay.
type CompositeConfig struct {
	Weights LayerWeights `yaml:"weights" mapstructure:"weights"`
}

// MCDAWeights converts the configured weights for mcda.Composite.
func (c CompositeConfig) MCDAWeights() mcda.Weights {
	vals := c.Weights.Ordered()
	w := make(mcda.Weights, len(vals))
	for i, name := range raster.ObjectiveLayers {
		w[i] = mcda.Weight{Layer: name, Value: vals[i]}
	}
	return w
}

// OptimizerConfig holds the search hyperparameters.
type OptimizerConfig struct {
	PopSize              int          `yaml:"pop_size" mapstructure:"pop_size"`
	Generations          int          `yaml:"generations" mapstructure:"generations"`
	NumRuns              int          `yaml:"num_runs" mapstructure:"num_runs"`
	CrossoverProb        float64      `yaml:"crossover_prob" mapstructure:"crossover_prob"`
	MutationProb         float64      `yaml:"mutation_prob" mapstructure:"mutation_prob"`
	Weights              LayerWeights `yaml:"weights" mapstructure:"weights"`
	MinDistance          float64      `yaml:"min_distance" mapstructure:"min_distance"`
	NumToSelect          int          `yaml:"num_to_select" mapstructure:"num_to_select"`
	ParallelRuns         int          `yaml:"parallel_runs" mapstructure:"parallel_runs"`
	Seed                 uint64       `yaml:"seed" mapstructure:"seed"`
	EarlyStopGenerations int          `yaml:"early_stop_generations" mapstructure:"early_stop_generations"`
}

// Params converts the section to orchestrator parameters.
func (o OptimizerConfig) Params() optimize.Params {
	return optimize.Params{
		PopSize:       o.PopSize,
		Generations:   o.Generations,
		NumRuns:       o.NumRuns,
		CrossoverProb: o.CrossoverProb,
		MutationProb:  o.MutationProb,
		Objectives:    append([]string(nil), raster.ObjectiveLayers...),
		Weights:       o.Weights.Ordered(),
		MinDistance:   o.MinDistance,
		NumToSelect:   o.NumToSelect,
		Parallel:      o.ParallelRuns,
		Seed:          o.Seed,
		EarlyStop:     o.EarlyStopGenerations,
	}
}

// ReportConfig controls result aggregation and artifact output.
type ReportConfig struct {
	CRS       string `yaml:"crs" mapstructure:"crs"`
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
	Dedupe    bool   `yaml:"dedupe" mapstructure:"dedupe"`
	Plots     bool   `yaml:"plots" mapstructure:"plots"`
}

// StoreConfig configures run history. Driver is sqlite, postgres or none.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// PublishConfig configures the Postgres results upload.
type PublishConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
	TopN        int    `yaml:"top_n" mapstructure:"top_n"`
	Geometry    bool   `yaml:"geometry" mapstructure:"geometry"`
	Upsert      bool   `yaml:"upsert" mapstructure:"upsert"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port         int      `yaml:"port" mapstructure:"port"`
	CORSOrigins  []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	CacheEntries int      `yaml:"cache_entries" mapstructure:"cache_entries"`
	CacheTTLMins int      `yaml:"cache_ttl_mins" mapstructure:"cache_ttl_mins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Mode names the command a configuration is validated for.
type Mode string

const (
	ModePrepare  Mode = "prepare"
	ModeOptimize Mode = "optimize"
	ModePublish  Mode = "publish"
	ModeServe    Mode = "serve"
)

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SITEOPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := optimize.DefaultParams()
	objWeights := []string{"landcover_suitability", "slope", "soil", "flood_risk", "urban_proximity"}

	v.SetDefault("data.dir", "data")
	v.SetDefault("data.base_url", "")
	v.SetDefault("data.crs", "EPSG:32630")
	v.SetDefault("data.requests_per_second", 5)
	v.SetDefault("data.timeout_secs", 60)
	v.SetDefault("data.work_dir", "work")
	v.SetDefault("grid.size", 1000)
	v.SetDefault("grid.workers", 0)
	for i, w := range []float64{1, 1, 1, 2, 1} {
		v.SetDefault("composite.weights."+objWeights[i], w)
	}
	v.SetDefault("optimizer.pop_size", def.PopSize)
	v.SetDefault("optimizer.generations", def.Generations)
	v.SetDefault("optimizer.num_runs", def.NumRuns)
	v.SetDefault("optimizer.crossover_prob", def.CrossoverProb)
	v.SetDefault("optimizer.mutation_prob", def.MutationProb)
	for i, w := range def.Weights {
		v.SetDefault("optimizer.weights."+objWeights[i], w)
	}
	v.SetDefault("optimizer.min_distance", def.MinDistance)
	v.SetDefault("optimizer.num_to_select", def.NumToSelect)
	v.SetDefault("optimizer.parallel_runs", def.Parallel)
	v.SetDefault("optimizer.seed", 0)
	v.SetDefault("optimizer.early_stop_generations", 0)
	v.SetDefault("report.crs", "EPSG:4326")
	v.SetDefault("report.output_dir", "output")
	v.SetDefault("report.dedupe", true)
	v.SetDefault("report.plots", true)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "siteopt.db")
	v.SetDefault("store.database_url", "")
	v.SetDefault("publish.database_url", "")
	v.SetDefault("publish.geometry", false)
	v.SetDefault("publish.upsert", false)
	v.SetDefault("publish.table", "results")
	v.SetDefault("publish.top_n", 5)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.cache_entries", 64)
	v.SetDefault("server.cache_ttl_mins", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode Mode) error {
	switch mode {
	case ModePrepare:
		return c.validatePrepare()
	case ModeOptimize:
		return c.validateOptimize()
	case ModePublish:
		if c.Publish.DatabaseURL == "" {
			return apperr.Config("config: publish.database_url is required")
		}
		if c.Publish.TopN <= 0 {
			return apperr.Config("config: publish.top_n must be positive, got %d", c.Publish.TopN)
		}
		return nil
	case ModeServe:
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			return apperr.Config("config: server.port %d out of range", c.Server.Port)
		}
		if err := c.validatePrepare(); err != nil {
			return err
		}
		return c.validateOptimize()
	}
	return apperr.Config("config: unknown mode %q", mode)
}

func (c *Config) validatePrepare() error {
	switch {
	case c.Data.Dir == "" && c.Data.BaseURL == "":
		return apperr.Config("config: data.dir or data.base_url is required")
	case c.Data.WorkDir == "":
		return apperr.Config("config: data.work_dir is required")
	case !(c.Grid.Size > 0) || math.IsInf(c.Grid.Size, 0):
		return apperr.Config("config: grid.size must be positive, got %g", c.Grid.Size)
	}
	_, err := c.Composite.MCDAWeights().Normalize()
	return err
}

func (c *Config) validateOptimize() error {
	o := c.Optimizer
	switch {
	case c.Data.WorkDir == "":
		return apperr.Config("config: data.work_dir is required")
	case c.Report.OutputDir == "":
		return apperr.Config("config: report.output_dir is required")
	case o.PopSize < 2:
		return apperr.Config("config: optimizer.pop_size must be at least 2, got %d", o.PopSize)
	case o.Generations < 0:
		return apperr.Config("config: optimizer.generations must not be negative, got %d", o.Generations)
	case !inUnit(o.CrossoverProb):
		return apperr.Config("config: optimizer.crossover_prob must be in [0,1], got %g", o.CrossoverProb)
	case !inUnit(o.MutationProb):
		return apperr.Config("config: optimizer.mutation_prob must be in [0,1], got %g", o.MutationProb)
	case o.EarlyStopGenerations < 0:
		return apperr.Config("config: optimizer.early_stop_generations must not be negative, got %d", o.EarlyStopGenerations)
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	return o.Params().Validate()
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case "", "none":
		return nil
	case "sqlite":
		if c.Store.Path == "" {
			return apperr.Config("config: store.path is required for sqlite")
		}
		return nil
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return apperr.Config("config: store.database_url is required for postgres")
		}
		return nil
	}
	return apperr.Config("config: unknown store.driver %q", c.Store.Driver)
}

func inUnit(p float64) bool {
	return p >= 0 && p <= 1
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return nil
}
