package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/slope/config"
	"github.com/pthm-cable/slope/geochem"
)

// OutputManager handles run output with CSV logging.
type OutputManager struct {
	dir              string
	displacementFile *os.File
	stressFile       *os.File

	// Track if headers have been written
	displacementHeaderWritten bool
	stressHeaderWritten       bool
}

// NewOutputManager creates a new output manager and initializes the output directory.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}

	f, err := os.Create(filepath.Join(dir, "displacement.csv"))
	if err != nil {
		return nil, fmt.Errorf("creating displacement.csv: %w", err)
	}
	om.displacementFile = f

	f, err = os.Create(filepath.Join(dir, "stress.csv"))
	if err != nil {
		om.displacementFile.Close()
		return nil, fmt.Errorf("creating stress.csv: %w", err)
	}
	om.stressFile = f

	return om, nil
}

// WriteConfig saves the run configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteDisplacement appends one row to displacement.csv.
func (om *OutputManager) WriteDisplacement(rec DisplacementRecord) error {
	if om == nil {
		return nil
	}
	if err := appendCSV(om.displacementFile, []DisplacementRecord{rec}, &om.displacementHeaderWritten); err != nil {
		return fmt.Errorf("writing displacement: %w", err)
	}
	return nil
}

// WriteStress appends one row to stress.csv.
func (om *OutputManager) WriteStress(stats StressStats) error {
	if om == nil {
		return nil
	}
	if err := appendCSV(om.stressFile, []StressStats{stats}, &om.stressHeaderWritten); err != nil {
		return fmt.Errorf("writing stress: %w", err)
	}
	return nil
}

// WriteGeochem saves the filtered geochemical table with its density column.
func (om *OutputManager) WriteGeochem(rows []geochem.Record) error {
	if om == nil {
		return nil
	}
	path := filepath.Join(om.dir, "geochem.csv")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating geochem.csv: %w", err)
	}
	defer f.Close()

	if err := gocsv.Marshal(rows, f); err != nil {
		return fmt.Errorf("writing geochem: %w", err)
	}
	return nil
}

// appendCSV writes records, including the header on the first call.
func appendCSV(f *os.File, records any, headerWritten *bool) error {
	if !*headerWritten {
		if err := gocsv.Marshal(records, f); err != nil {
			return err
		}
		*headerWritten = true
		return nil
	}
	return gocsv.MarshalWithoutHeaders(records, f)
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	var firstErr error

	if om.displacementFile != nil {
		if err := om.displacementFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if om.stressFile != nil {
		if err := om.stressFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
