// Geochem tool - reads the geochemical dataset and writes the table with the
// derived silica density column.
//
// Usage: go run ./cmd/geochem -in data.csv [-out density.csv]
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/slope/config"
	"github.com/pthm-cable/slope/geochem"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	in := flag.String("in", "", "Geochemical CSV (empty = config geochem.path)")
	out := flag.String("out", "", "Output CSV (empty = stdout)")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	sum, err := run(*configPath, *in, *out, os.Stdout)
	if err != nil {
		slog.Error("geochem failed", "error", err)
		os.Exit(1)
	}
	slog.Info("density",
		"rows", sum.Rows,
		"valid", sum.Valid,
		"mean", sum.Mean,
		"min", sum.Min,
		"max", sum.Max,
	)
}

// run writes the table to outPath, or to stdout when outPath is empty.
func run(configPath, in, outPath string, stdout io.Writer) (geochem.Summary, error) {
	cfg, err := config.Load(configPath, config.WithGeochemPath(in))
	if err != nil {
		return geochem.Summary{}, err
	}
	if cfg.Geochem.Path == "" {
		return geochem.Summary{}, errors.New("no input: pass -in or set geochem.path")
	}

	rows, err := geochem.Load(cfg.Geochem.Path, cfg.Derived.Delimiter)
	if err != nil {
		return geochem.Summary{}, err
	}

	if outPath == "" {
		if err := gocsv.Marshal(rows, stdout); err != nil {
			return geochem.Summary{}, fmt.Errorf("write csv: %w", err)
		}
		return geochem.Summarize(rows), nil
	}

	f, err := os.Create(outPath)
	if err != nil {
		return geochem.Summary{}, fmt.Errorf("create output: %w", err)
	}
	if err := gocsv.Marshal(rows, f); err != nil {
		f.Close()
		return geochem.Summary{}, fmt.Errorf("write csv: %w", err)
	}
	if err := f.Close(); err != nil {
		return geochem.Summary{}, fmt.Errorf("close output: %w", err)
	}
	return geochem.Summarize(rows), nil
}
