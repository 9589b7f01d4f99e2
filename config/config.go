// Package config provides configuration loading and access for slope runs.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all run configuration parameters.
type Config struct {
	Simulation   SimulationConfig   `yaml:"simulation"`
	PorePressure PorePressureConfig `yaml:"pore_pressure"`
	Sampler      SamplerConfig      `yaml:"sampler"`
	Scene        SceneConfig        `yaml:"scene"`
	Material     MaterialConfig     `yaml:"material"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Geochem      GeochemConfig      `yaml:"geochem"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// SimulationConfig holds host loop parameters.
type SimulationConfig struct {
	DT           float64 `yaml:"dt"`            // Seconds per integration step
	Iterations   int     `yaml:"iterations"`    // Steps per run
	SamplePeriod int     `yaml:"sample_period"` // Sampler cadence in steps
}

// PorePressureConfig holds the hydrostatic pore pressure profile.
type PorePressureConfig struct {
	Enabled         bool    `yaml:"enabled"`
	SurfaceP0       float64 `yaml:"surface_p0"`        // Pore pressure at z = 0
	UnitWeightWater float64 `yaml:"unit_weight_water"` // kN/m^3
}

// SamplerConfig holds sampler options.
type SamplerConfig struct {
	ReferenceParticle int `yaml:"reference_particle"` // Ensemble index tracked for displacement
	ParallelThreshold int `yaml:"parallel_threshold"` // Min particles before fan-out (0 = never)
}

// SceneConfig describes the geometry and integrator handed to the DEM engine.
type SceneConfig struct {
	Box        BoxConfig        `yaml:"box"`
	Cloud      CloudConfig      `yaml:"cloud"`
	Integrator IntegratorConfig `yaml:"integrator"`
}

// BoxConfig is the facet box containing the slope.
type BoxConfig struct {
	Center   [3]float64 `yaml:"center"`
	Extents  [3]float64 `yaml:"extents"`   // Half sizes
	WallMask int        `yaml:"wall_mask"` // Bit per wall, 31 leaves the top open
}

// CloudConfig is the loose sphere cloud generated inside the box.
type CloudConfig struct {
	MinCorner [3]float64 `yaml:"min_corner"`
	MaxCorner [3]float64 `yaml:"max_corner"`
	RMean     float64    `yaml:"r_mean"`
	RRelFuzz  float64    `yaml:"r_rel_fuzz"` // Relative radius spread
}

// IntegratorConfig holds the Newton integrator settings.
type IntegratorConfig struct {
	Damping float64    `yaml:"damping"`
	Gravity [3]float64 `yaml:"gravity"`
}

// LogValue implements slog.LogValuer for structured logging.
func (s SceneConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("box_center", s.Box.Center),
		slog.Any("box_extents", s.Box.Extents),
		slog.Int("wall_mask", s.Box.WallMask),
		slog.Any("cloud_min", s.Cloud.MinCorner),
		slog.Any("cloud_max", s.Cloud.MaxCorner),
		slog.Float64("r_mean", s.Cloud.RMean),
		slog.Float64("r_rel_fuzz", s.Cloud.RRelFuzz),
		slog.Float64("damping", s.Integrator.Damping),
		slog.Any("gravity", s.Integrator.Gravity),
	)
}

// MaterialConfig describes the frictional material handed to the DEM engine.
type MaterialConfig struct {
	Young              float64 `yaml:"young"`
	Poisson            float64 `yaml:"poisson"`
	Density            float64 `yaml:"density"` // kg/m^3
	FrictionAngleDeg   float64 `yaml:"friction_angle_deg"`
	DensityFromGeochem bool    `yaml:"density_from_geochem"` // Replace Density with the geochem mean
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	LogStats   bool `yaml:"log_stats"`
	StatsEvery int  `yaml:"stats_every"` // Log every Nth tick result when LogStats is set
}

// GeochemConfig points at the geochemical dataset.
type GeochemConfig struct {
	Path      string `yaml:"path"`
	Delimiter string `yaml:"delimiter"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	FrictionAngleRad float64 // Material.FrictionAngleDeg in radians
	Delimiter        rune    // First rune of Geochem.Delimiter
	SamplePeriodSec  float64 // SamplePeriod * DT
}

// Override adjusts a loaded configuration before derived values are computed
// and the result is validated. Used for command line flags.
type Override func(c *Config)

// WithGeochemPath sets geochem.path when path is not empty.
func WithGeochemPath(path string) Override {
	return func(c *Config) {
		if path != "" {
			c.Geochem.Path = path
		}
	}
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string, overrides ...Override) error {
	cfg, err := Load(path, overrides...)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Defaults returns the embedded defaults.
func Defaults() (*Config, error) {
	return Load("")
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used. Overrides run after the
// file is applied; the result is validated.
func Load(path string, overrides ...Override) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	for _, o := range overrides {
		o(cfg)
	}

	cfg.computeDerived()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) computeDerived() {
	c.Derived.FrictionAngleRad = c.Material.FrictionAngleDeg * math.Pi / 180
	c.Derived.SamplePeriodSec = float64(c.Simulation.SamplePeriod) * c.Simulation.DT

	c.Derived.Delimiter = ';'
	for _, r := range c.Geochem.Delimiter {
		c.Derived.Delimiter = r
		break
	}
}

// Validate reports every invalid field, each wrapped with ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if !finite(c.Simulation.DT) || c.Simulation.DT <= 0 {
		bad("simulation.dt must be positive, got %v", c.Simulation.DT)
	}
	if c.Simulation.Iterations < 0 {
		bad("simulation.iterations must not be negative, got %d", c.Simulation.Iterations)
	}
	if c.Simulation.SamplePeriod < 1 {
		bad("simulation.sample_period must be at least 1, got %d", c.Simulation.SamplePeriod)
	}
	if !finite(c.PorePressure.SurfaceP0) {
		bad("pore_pressure.surface_p0 must be finite, got %v", c.PorePressure.SurfaceP0)
	}
	if !finite(c.PorePressure.UnitWeightWater) || c.PorePressure.UnitWeightWater < 0 {
		bad("pore_pressure.unit_weight_water must be finite and non-negative, got %v", c.PorePressure.UnitWeightWater)
	}
	if c.Sampler.ReferenceParticle < 0 {
		bad("sampler.reference_particle must not be negative, got %d", c.Sampler.ReferenceParticle)
	}
	if c.Sampler.ParallelThreshold < 0 {
		bad("sampler.parallel_threshold must not be negative, got %d", c.Sampler.ParallelThreshold)
	}
	for i := 0; i < 3; i++ {
		if !(c.Scene.Box.Extents[i] > 0) || !finite(c.Scene.Box.Extents[i]) {
			bad("scene.box.extents must be positive, got %v", c.Scene.Box.Extents)
			break
		}
	}
	for i := 0; i < 3; i++ {
		if !(c.Scene.Cloud.MaxCorner[i] > c.Scene.Cloud.MinCorner[i]) {
			bad("scene.cloud.max_corner must exceed min_corner on every axis, got %v and %v",
				c.Scene.Cloud.MinCorner, c.Scene.Cloud.MaxCorner)
			break
		}
	}
	if !(c.Scene.Cloud.RMean > 0) {
		bad("scene.cloud.r_mean must be positive, got %v", c.Scene.Cloud.RMean)
	}
	if c.Scene.Cloud.RRelFuzz < 0 || c.Scene.Cloud.RRelFuzz >= 1 {
		bad("scene.cloud.r_rel_fuzz must be in [0, 1), got %v", c.Scene.Cloud.RRelFuzz)
	}
	if c.Scene.Integrator.Damping < 0 || c.Scene.Integrator.Damping >= 1 {
		bad("scene.integrator.damping must be in [0, 1), got %v", c.Scene.Integrator.Damping)
	}
	for _, g := range c.Scene.Integrator.Gravity {
		if !finite(g) {
			bad("scene.integrator.gravity must be finite, got %v", c.Scene.Integrator.Gravity)
			break
		}
	}
	if c.Material.Young <= 0 {
		bad("material.young must be positive, got %v", c.Material.Young)
	}
	if c.Material.Poisson < 0 || c.Material.Poisson >= 0.5 {
		bad("material.poisson must be in [0, 0.5), got %v", c.Material.Poisson)
	}
	if c.Material.Density <= 0 {
		bad("material.density must be positive, got %v", c.Material.Density)
	}
	if c.Material.FrictionAngleDeg <= 0 || c.Material.FrictionAngleDeg >= 90 {
		bad("material.friction_angle_deg must be in (0, 90), got %v", c.Material.FrictionAngleDeg)
	}
	if c.Material.DensityFromGeochem && c.Geochem.Path == "" {
		bad("material.density_from_geochem requires geochem.path")
	}
	if c.Telemetry.StatsEvery < 0 {
		bad("telemetry.stats_every must not be negative, got %d", c.Telemetry.StatsEvery)
	}

	return errors.Join(errs...)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
