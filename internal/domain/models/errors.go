package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTrainingInProgress is returned when a second training run is requested.
var ErrTrainingInProgress = errors.New("training already in progress")

// ErrNoRecords is returned when a history query matches nothing.
var ErrNoRecords = errors.New("no records found")

// DataSourceError reports an unreachable or malformed record source.
type DataSourceError struct {
	Op      string
	Missing []string
	Err     error
}

func (e *DataSourceError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("data source %s: missing columns: %s", e.Op, strings.Join(e.Missing, ", "))
	}
	if e.Err != nil {
		return fmt.Sprintf("data source %s: %v", e.Op, e.Err)
	}
	return "data source " + e.Op + " failed"
}

func (e *DataSourceError) Unwrap() error { return e.Err }

// InvalidInputError reports a prediction request that cannot be served.
type InvalidInputError struct {
	Missing []string
	Reason  string
}

func (e *InvalidInputError) Error() string {
	if len(e.Missing) > 0 {
		return "missing required columns: " + strings.Join(e.Missing, ", ")
	}
	return "invalid input: " + e.Reason
}

// ModelUnavailableError reports a missing or corrupt model artifact.
type ModelUnavailableError struct {
	Path string
	Err  error
}

func (e *ModelUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model unavailable (%s): %v", e.Path, e.Err)
	}
	return fmt.Sprintf("model unavailable (%s)", e.Path)
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

// ScalingDegenerateFeatureError names features with zero variance in the
// reference data. The scaler falls back to a unit range for them, so this
// error is a warning.
type ScalingDegenerateFeatureError struct {
	Features []string
}

func (e *ScalingDegenerateFeatureError) Error() string {
	return "zero-variance features scaled with unit range: " + strings.Join(e.Features, ", ")
}
