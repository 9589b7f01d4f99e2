// Package main back-calculates the hydrostatic pore pressure profile from
// measured effective stress using CMA-ES.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/slope/config"
)

// formatDuration formats a duration as MM:SS.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	return fmt.Sprintf("%dm%02ds", m, s)
}

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	obsPath := flag.String("observations", "", "CSV with id,z,stress,observed columns")
	maxEvals := flag.Int("max-evals", 400, "Maximum number of evaluations")
	population := flag.Int("population", 0, "CMA-ES population size (0 = auto)")
	outputDir := flag.String("output", "", "Output directory for results")
	flag.Parse()

	if *outputDir == "" || *obsPath == "" {
		log.Fatal("--output and --observations are required")
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	if err := config.Init(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	baseCfg := config.Cfg()

	obs, err := LoadObservations(*obsPath)
	if err != nil {
		log.Fatal(err)
	}
	evaluator, err := NewFitnessEvaluator(obs, baseCfg.Sampler.ParallelThreshold)
	if err != nil {
		log.Fatal(err)
	}

	params := NewParamVector(baseCfg)
	dim := params.Dim()
	initX := params.Normalize(params.DefaultVector())

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return evaluator.Evaluate(params.Clamp(params.Denormalize(x)))
		},
	}

	settings := &optimize.Settings{
		FuncEvaluations: *maxEvals,
		Concurrent:      0, // Sequential evaluation
	}

	popSize := *population
	if popSize == 0 {
		popSize = 4 + int(3.0*float64(dim)/2.0)
	}

	method := &optimize.CmaEsChol{
		InitStepSize: 0.3,
		Population:   popSize,
	}

	evalLog, err := newEvalLog(filepath.Join(*outputDir, "calibrate_log.csv"), params)
	if err != nil {
		log.Fatal(err)
	}

	evalCount := 0
	bestFitness := evaluator.Evaluate(params.DefaultVector())
	bestParams := params.DefaultVector()
	startTime := time.Now()

	originalFunc := problem.Func
	problem.Func = func(x []float64) float64 {
		fitness := originalFunc(x)
		evalCount++

		clamped := params.Clamp(params.Denormalize(x))
		if fitness < bestFitness {
			bestFitness = fitness
			bestParams = clamped
		}

		evalLog.Write(evalCount, fitness, clamped)
		return fitness
	}

	fmt.Printf("Calibrating %d parameters against %d observations, population=%d, max_evals=%d\n",
		dim, len(obs), popSize, *maxEvals)

	if _, err := optimize.Minimize(problem, initX, settings, method); err != nil {
		log.Printf("optimization ended: %v", err)
	}

	fmt.Printf("\nCalibration complete after %d evaluations in %s\n", evalCount, formatDuration(time.Since(startTime)))
	fmt.Printf("Best RMSE: %.6f\n", bestFitness)
	for i, spec := range params.Specs {
		fmt.Printf("  %s: %.6f\n", spec.Path, bestParams[i])
	}

	if err := evalLog.Close(); err != nil {
		log.Printf("failed to write evaluation log: %v", err)
	}

	configOutPath := filepath.Join(*outputDir, "calibrated_config.yaml")
	if err := writeCalibrated(baseCfg, params, bestParams, configOutPath); err != nil {
		log.Fatalf("failed to write calibrated config: %v", err)
	}
	fmt.Printf("\nCalibrated config saved to: %s\n", configOutPath)
}

// writeCalibrated saves a copy of base with the calibrated values applied.
func writeCalibrated(base *config.Config, params *ParamVector, values []float64, path string) error {
	cfg := *base
	params.ApplyToConfig(&cfg, values)
	if err := cfg.Validate(); err != nil {
		return err
	}
	return cfg.WriteYAML(path)
}

// evalLog records every evaluation as one CSV row. Write errors surface on Close.
type evalLog struct {
	f *os.File
	w *csv.Writer
}

func newEvalLog(path string, params *ParamVector) (*evalLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create evaluation log: %w", err)
	}
	l := &evalLog{f: f, w: csv.NewWriter(f)}

	header := []string{"eval", "rmse"}
	for _, spec := range params.Specs {
		header = append(header, spec.Name)
	}
	if err := l.w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write evaluation log header: %w", err)
	}
	return l, nil
}

func (l *evalLog) Write(eval int, rmse float64, values []float64) {
	row := []string{strconv.Itoa(eval), fmt.Sprintf("%.6f", rmse)}
	for _, v := range values {
		row = append(row, fmt.Sprintf("%.6f", v))
	}
	// Errors are sticky in csv.Writer and reported by Close
	_ = l.w.Write(row)
}

func (l *evalLog) Close() error {
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		l.f.Close()
		return err
	}
	return l.f.Close()
}
