package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pthm-cable/slope/config"
	"github.com/pthm-cable/slope/engine"
	"github.com/pthm-cable/slope/ensemble"
	"github.com/pthm-cable/slope/geochem"
	"github.com/pthm-cable/slope/sampler"
	"github.com/pthm-cable/slope/store"
	"github.com/pthm-cable/slope/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	framesPath := flag.String("frames", "", "Engine frame export to replay (iter,id,x,y,z[,radius][,stress])")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	maxIters := flag.Int("max-iters", 0, "Stop after N iterations (0 = use config)")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (empty = off)")
	dbPath := flag.String("db", "", "SQLite database for results (empty = off)")
	dbParticles := flag.Bool("db-particles", false, "Store per-particle effective stress in the database")
	geochemPath := flag.String("geochem", "", "Geochemical CSV (overrides config geochem.path)")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(options{
		configPath:  *configPath,
		framesPath:  *framesPath,
		outputDir:   *outputDir,
		maxIters:    *maxIters,
		logStats:    *logStats,
		metricsAddr: *metricsAddr,
		dbPath:      *dbPath,
		dbParticles: *dbParticles,
		geochemPath: *geochemPath,
	}); err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}

type options struct {
	configPath  string
	framesPath  string
	outputDir   string
	maxIters    int
	logStats    bool
	metricsAddr string
	dbPath      string
	dbParticles bool
	geochemPath string
}

func run(opts options) error {
	// Initialize config before anything else
	if err := config.Init(opts.configPath, config.WithGeochemPath(opts.geochemPath)); err != nil {
		return err
	}
	cfg := config.Cfg()

	rows, err := loadGeochem(cfg)
	if err != nil {
		return err
	}

	slog.Info("scene", "scene", cfg.Scene)
	slog.Info("material",
		"young", cfg.Material.Young,
		"poisson", cfg.Material.Poisson,
		"density", cfg.Material.Density,
		"friction_angle_rad", cfg.Derived.FrictionAngleRad,
	)

	smp, err := sampler.New(sampler.Options{
		ReferenceParticle: cfg.Sampler.ReferenceParticle,
		PorePressure: sampler.PorePressureParams{
			SurfaceP0:       cfg.PorePressure.SurfaceP0,
			UnitWeightWater: cfg.PorePressure.UnitWeightWater,
		},
		UpdateStress:      cfg.PorePressure.Enabled,
		ParallelThreshold: cfg.Sampler.ParallelThreshold,
	})
	if err != nil {
		return err
	}

	ens := ensemble.New(0)
	var stepper engine.Stepper
	if opts.framesPath != "" {
		replay, err := engine.LoadReplay(opts.framesPath)
		if err != nil {
			return err
		}
		if err := replay.Seed(ens); err != nil {
			return err
		}
		stepper = replay
		slog.Info("replay loaded",
			"frames", replay.Frames(),
			"first_iter", replay.FirstIter(),
			"last_iter", replay.LastIter(),
			"particles", ens.Len(),
		)
	} else {
		slog.Warn("no frames given, sampling an empty ensemble")
	}

	out, err := telemetry.NewOutputManager(opts.outputDir)
	if err != nil {
		return err
	}
	defer out.Close()
	if err := out.WriteConfig(cfg); err != nil {
		return err
	}
	if len(rows) > 0 {
		if err := out.WriteGeochem(rows); err != nil {
			return err
		}
	}

	recOpts := telemetry.RecorderOptions{
		Output:     out,
		LogStats:   opts.logStats || cfg.Telemetry.LogStats,
		StatsEvery: cfg.Telemetry.StatsEvery,
	}

	if opts.dbPath != "" {
		path := opts.dbPath
		if !filepath.IsAbs(path) && opts.outputDir != "" {
			path = filepath.Join(opts.outputDir, path)
		}
		db, err := store.Open(path, opts.dbParticles)
		if err != nil {
			return err
		}
		defer db.Close()
		recOpts.Store = db
	}

	if opts.metricsAddr != "" {
		m := telemetry.NewMetrics()
		recOpts.Metrics = m
		srv := &http.Server{Addr: opts.metricsAddr, Handler: metricsMux(m), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server", "error", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
		slog.Info("serving metrics", "addr", opts.metricsAddr)
	}

	rec := telemetry.NewRecorder(recOpts)

	eng := engine.New(cfg.Simulation.DT, ens, stepper)
	err = eng.Every(cfg.Simulation.SamplePeriod, "sampler", func(c *engine.Context) error {
		return rec.Record(smp.Tick(c.Time, c.Iter, c.Ensemble))
	})
	if err != nil {
		return err
	}

	iterations := cfg.Simulation.Iterations
	if opts.maxIters > 0 {
		iterations = opts.maxIters
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting run",
		"iterations", iterations,
		"start_iter", eng.Iter(),
		"dt", cfg.Simulation.DT,
		"sample_period", cfg.Simulation.SamplePeriod,
		"reference_particle", cfg.Sampler.ReferenceParticle,
		"output_dir", out.Dir(),
	)

	start := time.Now()
	runErr := eng.Run(ctx, iterations)
	eng.Perf().Log()

	if errors.Is(runErr, context.Canceled) {
		slog.Info("run interrupted", "iter", eng.Iter())
		runErr = nil
	}
	if runErr != nil {
		return runErr
	}

	last, _ := smp.Series().Last()
	slog.Info("run complete",
		"iter", eng.Iter(),
		"time", eng.Time(),
		"samples", smp.Series().Len(),
		"ticks", rec.Ticks(),
		"last_displacement", last.Displacement,
		"elapsed", time.Since(start).String(),
	)
	return nil
}

// loadGeochem reads the configured dataset and applies the derived density
// when the material asks for it.
func loadGeochem(cfg *config.Config) ([]geochem.Record, error) {
	if cfg.Geochem.Path == "" {
		return nil, nil
	}
	rows, err := geochem.Load(cfg.Geochem.Path, cfg.Derived.Delimiter)
	if err != nil {
		return nil, err
	}

	sum := geochem.Summarize(rows)
	slog.Info("geochem loaded",
		"path", cfg.Geochem.Path,
		"rows", sum.Rows,
		"valid", sum.Valid,
		"density_mean", sum.Mean,
		"density_min", sum.Min,
		"density_max", sum.Max,
	)

	if cfg.Material.DensityFromGeochem {
		if sum.Valid == 0 {
			return nil, errors.New("geochem: no valid density to apply to material")
		}
		cfg.Material.Density = sum.MeanDensityKgM3()
	}
	return rows, nil
}

func metricsMux(m *telemetry.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}
