package feature

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrLenMismatch    = errors.New("feature length does not match the number of rows in the set")
	ErrSchemaMismatch = errors.New("feature set does not match the trained schema")
	ErrEmptySet       = errors.New("empty feature set")
)

// Set is an ordered table of feature columns with one row per period.
type Set struct {
	m      int
	labels *Labels
	cols   [][]float64
}

func NewSet() *Set {
	return &Set{labels: NewLabels(nil)}
}

// Len returns the number of rows.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return s.m
}

// Width returns the number of columns.
func (s *Set) Width() int {
	if s == nil {
		return 0
	}
	return s.labels.Len()
}

// Labels returns the ordered column labels.
func (s *Set) Labels() *Labels {
	return s.labels
}

// Names returns the ordered column names, the schema of the set.
func (s *Set) Names() []string {
	return s.labels.Names()
}

// Set stores a copy of data under f, replacing the column if it already exists. The first column
// stored fixes the row count.
func (s *Set) Set(f Feature, data []float64) error {
	if s.labels.Len() > 0 && len(data) != s.m {
		return fmt.Errorf("%s has %d rows, expected %d, %w", f.String(), len(data), s.m, ErrLenMismatch)
	}
	s.m = len(data)

	col := make([]float64, len(data))
	copy(col, data)
	if idx, exists := s.labels.Index(f.String()); exists {
		s.cols[idx] = col
		return nil
	}
	s.labels.append(f)
	s.cols = append(s.cols, col)
	return nil
}

// Get returns the column stored for name.
func (s *Set) Get(name string) ([]float64, bool) {
	idx, exists := s.labels.Index(name)
	if !exists {
		return nil, false
	}
	return s.cols[idx], true
}

// Row returns a copy of row i in column order.
func (s *Set) Row(i int) []float64 {
	row := make([]float64, len(s.cols))
	for j, col := range s.cols {
		row[j] = col[i]
	}
	return row
}

// Slice returns a copy of rows [start, end).
func (s *Set) Slice(start, end int) *Set {
	start = min(max(start, 0), s.m)
	end = min(max(end, start), s.m)
	out := NewSet()
	for j, f := range s.labels.labels {
		// lengths are consistent by construction
		_ = out.Set(f, s.cols[j][start:end])
	}
	out.m = end - start
	return out
}

// Rename returns a copy of s with columns renamed through mapping. Columns absent from mapping keep
// their name.
func (s *Set) Rename(mapping map[string]string) *Set {
	out := NewSet()
	for j, f := range s.labels.labels {
		if name, ok := mapping[f.String()]; ok {
			f = NewRaw(name)
		}
		// lengths are consistent by construction
		_ = out.Set(f, s.cols[j])
	}
	out.m = s.m
	return out
}

// AppendRows appends the rows of o. Both sets must have identical schemas.
func (s *Set) AppendRows(o *Set) error {
	if s.Width() == 0 {
		*s = *o.Slice(0, o.Len())
		return nil
	}
	names, other := s.Names(), o.Names()
	if len(names) != len(other) {
		return fmt.Errorf("got %d columns, expected %d, %w", len(other), len(names), ErrSchemaMismatch)
	}
	for i := range names {
		if names[i] != other[i] {
			return fmt.Errorf("column %d is %s, expected %s, %w", i, other[i], names[i], ErrSchemaMismatch)
		}
	}
	for j := range s.cols {
		s.cols[j] = append(s.cols[j], o.cols[j]...)
	}
	s.m += o.m
	return nil
}

// Matrix returns the set as an m x n dense matrix in column order.
func (s *Set) Matrix() (*mat.Dense, error) {
	return s.Select(s.Names())
}

// Select returns an m x n dense matrix with the columns named in order. Every name must exist.
func (s *Set) Select(names []string) (*mat.Dense, error) {
	if s.Len() == 0 || len(names) == 0 {
		return nil, ErrEmptySet
	}
	n := len(names)
	obs := make([]float64, s.m*n)
	for j, name := range names {
		col, exists := s.Get(name)
		if !exists {
			return nil, fmt.Errorf("missing column %s, %w", name, ErrSchemaMismatch)
		}
		for i := 0; i < s.m; i++ {
			obs[n*i+j] = col[i]
		}
	}
	return mat.NewDense(s.m, n, obs), nil
}

// Sanitize replaces every NaN or infinite cell with 0.
func (s *Set) Sanitize() {
	for _, col := range s.cols {
		for i, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				col[i] = 0
			}
		}
	}
}

// Finite reports whether every cell is a finite number.
func (s *Set) Finite() bool {
	for _, col := range s.cols {
		for _, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
