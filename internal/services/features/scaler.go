package features

import (
	"errors"
	"fmt"
	"math"

	"FinCast/internal/domain/models"
)

// ErrEmptyReference is returned when Fit receives no rows.
var ErrEmptyReference = errors.New("scaler: empty reference data")

// ScalerState is a fitted per-feature min-max transform. It is immutable once
// fitted and is persisted alongside the model weights.
type ScalerState struct {
	Names []string  `json:"names"`
	Min   []float64 `json:"min"`
	Max   []float64 `json:"max"`
	// Range is Max-Min, or 1 for zero-variance features.
	Range []float64 `json:"range"`
	Clamp bool      `json:"clamp"`
}

// Fit computes per-feature min and max over reference. When some features have
// zero variance the returned state is still usable and the error is a
// *models.ScalingDegenerateFeatureError.
func Fit(reference [][]float64, names []string, clamp bool) (*ScalerState, error) {
	if len(reference) == 0 {
		return nil, ErrEmptyReference
	}
	dim := len(reference[0])
	if dim == 0 {
		return nil, fmt.Errorf("scaler: zero-width rows")
	}
	if len(names) != dim {
		return nil, fmt.Errorf("scaler: %d names for %d features", len(names), dim)
	}

	st := &ScalerState{
		Names: append([]string(nil), names...),
		Min:   make([]float64, dim),
		Max:   make([]float64, dim),
		Range: make([]float64, dim),
		Clamp: clamp,
	}
	for j := 0; j < dim; j++ {
		st.Min[j] = math.Inf(1)
		st.Max[j] = math.Inf(-1)
	}
	for i, row := range reference {
		if len(row) != dim {
			return nil, fmt.Errorf("scaler: row %d has %d features, want %d", i, len(row), dim)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("scaler: row %d feature %s is not finite", i, names[j])
			}
			st.Min[j] = math.Min(st.Min[j], v)
			st.Max[j] = math.Max(st.Max[j], v)
		}
	}

	var degenerate []string
	for j := 0; j < dim; j++ {
		st.Range[j] = st.Max[j] - st.Min[j]
		if st.Range[j] == 0 {
			st.Range[j] = 1
			degenerate = append(degenerate, names[j])
		}
	}
	if len(degenerate) > 0 {
		return st, &models.ScalingDegenerateFeatureError{Features: degenerate}
	}
	return st, nil
}

// Dim returns the number of features the state was fitted on.
func (s *ScalerState) Dim() int { return len(s.Min) }

// Transform maps values into the fitted [0,1] range.
func (s *ScalerState) Transform(values [][]float64) [][]float64 {
	out := make([][]float64, len(values))
	for i, row := range values {
		out[i] = s.TransformRow(row)
	}
	return out
}

// TransformRow maps a single vector. Out-of-range inputs extrapolate linearly
// unless Clamp is set.
func (s *ScalerState) TransformRow(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		x := (v - s.Min[j]) / s.Range[j]
		if s.Clamp {
			x = math.Max(0, math.Min(1, x))
		}
		out[j] = x
	}
	return out
}

// InverseTransform maps scaled values back to original units.
func (s *ScalerState) InverseTransform(scaled [][]float64) [][]float64 {
	out := make([][]float64, len(scaled))
	for i, row := range scaled {
		r := make([]float64, len(row))
		for j, x := range row {
			r[j] = x*s.Range[j] + s.Min[j]
		}
		out[i] = r
	}
	return out
}

// Validate checks the state shape after deserialization.
func (s *ScalerState) Validate() error {
	n := len(s.Min)
	if n == 0 || len(s.Max) != n || len(s.Range) != n || len(s.Names) != n {
		return fmt.Errorf("scaler: inconsistent state dimensions")
	}
	for j, r := range s.Range {
		if r == 0 || math.IsNaN(r) || math.IsInf(r, 0) {
			return fmt.Errorf("scaler: invalid range for %s", s.Names[j])
		}
	}
	return nil
}
