// Package geochem reads the geochemical borehole dataset and derives a
// density estimate from silica content.
package geochem

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Columns kept from the dataset.
var Columns = []string{"DepthFrom", "DepthTo", "SiO2_%", "FeO_%", "MgO_%", "Al2O3_%", "CaO_%", "Stratigraphy"}

// Silica density model: Density = BaseDensity * (1 + SilicaFactor * SiO2_%).
const (
	BaseDensity  = 2.7
	SilicaFactor = 0.01
)

// Number is a numeric cell. Empty or unparseable text coerces to NaN.
type Number struct {
	V     float64
	Valid bool
}

// Num returns a valid Number.
func Num(v float64) Number {
	return Number{V: v, Valid: !math.IsNaN(v)}
}

// Float returns the value, or NaN when the cell held no number.
func (n Number) Float() float64 {
	if !n.Valid {
		return math.NaN()
	}
	return n.V
}

// NaN reports whether the cell held no usable number.
func (n Number) NaN() bool {
	return !n.Valid || math.IsNaN(n.V)
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (n *Number) UnmarshalCSV(s string) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		*n = Number{}
		return nil
	}
	*n = Num(v)
	return nil
}

// MarshalCSV implements gocsv.TypeMarshaller.
func (n Number) MarshalCSV() (string, error) {
	if n.NaN() {
		return "", nil
	}
	return strconv.FormatFloat(n.V, 'g', -1, 64), nil
}

// Record is one row of the filtered dataset plus the derived density.
type Record struct {
	DepthFrom    Number `csv:"DepthFrom"`
	DepthTo      Number `csv:"DepthTo"`
	SiO2         Number `csv:"SiO2_%"`
	FeO          Number `csv:"FeO_%"`
	MgO          Number `csv:"MgO_%"`
	Al2O3        Number `csv:"Al2O3_%"`
	CaO          Number `csv:"CaO_%"`
	Stratigraphy string `csv:"Stratigraphy"`
	Density      Number `csv:"Density"`
}

// Density returns the silica density estimate in g/cm^3. NaN silica gives NaN.
func Density(sio2 float64) float64 {
	return BaseDensity * (1 + SilicaFactor*sio2)
}

// Load reads a delimited geochemical CSV file.
func Load(path string, delimiter rune) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geochem data: %w", err)
	}
	defer f.Close()
	return Read(f, delimiter)
}

// Read parses delimited CSV, keeps the known columns and derives Density.
// Every column in Columns must be present in the header.
func Read(r io.Reader, delimiter rune) ([]Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read geochem data: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	header, err := newReader(data, delimiter).Read()
	if err != nil {
		return nil, fmt.Errorf("read geochem header: %w", err)
	}
	if missing := missingColumns(header); len(missing) > 0 {
		return nil, fmt.Errorf("geochem data missing columns %v", missing)
	}

	var rows []Record
	if err := gocsv.UnmarshalCSV(newReader(data, delimiter), &rows); err != nil {
		return nil, fmt.Errorf("parse geochem data: %w", err)
	}
	for i := range rows {
		rows[i].Density = Num(Density(rows[i].SiO2.Float()))
	}
	return rows, nil
}

func newReader(data []byte, delimiter rune) *csv.Reader {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = delimiter
	cr.TrimLeadingSpace = true
	return cr
}

func missingColumns(header []string) []string {
	have := make(map[string]bool, len(header))
	for _, h := range header {
		have[strings.TrimSpace(h)] = true
	}
	var missing []string
	for _, c := range Columns {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	return missing
}

// Summary describes the derived density column.
type Summary struct {
	Rows  int
	Valid int
	Mean  float64
	Min   float64
	Max   float64
}

// Summarize skips NaN densities. With no valid rows Mean, Min and Max are NaN.
func Summarize(rows []Record) Summary {
	s := Summary{Rows: len(rows), Mean: math.NaN(), Min: math.NaN(), Max: math.NaN()}

	values := make([]float64, 0, len(rows))
	for _, r := range rows {
		if !r.Density.NaN() {
			values = append(values, r.Density.V)
		}
	}
	s.Valid = len(values)
	if s.Valid == 0 {
		return s
	}

	s.Mean = stat.Mean(values, nil)
	s.Min = floats.Min(values)
	s.Max = floats.Max(values)
	return s
}

// MeanDensityKgM3 converts the mean density to kg/m^3.
func (s Summary) MeanDensityKgM3() float64 {
	return s.Mean * 1000
}
