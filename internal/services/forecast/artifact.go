package forecast

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"FinCast/internal/domain/models"
	"FinCast/internal/services/features"
)

// ArtifactVersion is bumped when the on-disk layout changes.
const ArtifactVersion = 1

// Artifact is the persisted model: weights plus the scaler that encoded the
// training data.
type Artifact struct {
	Version      int                   `json:"version"`
	Architecture Architecture          `json:"architecture"`
	Params       []float64             `json:"params"`
	Scaler       *features.ScalerState `json:"scaler"`
	Framing      features.StepMode     `json:"framing"`
	WindowSize   int                   `json:"window_size"`
	FutureSteps  int                   `json:"future_steps,omitempty"`
	Report       *TrainReport          `json:"report,omitempty"`
	TrainedAt    time.Time             `json:"trained_at"`
}

// NewArtifact snapshots a trained model.
func NewArtifact(m *Model, sc *features.ScalerState, b features.SequenceBuilder, rep *TrainReport) *Artifact {
	return &Artifact{
		Version:      ArtifactVersion,
		Architecture: m.Architecture(),
		Params:       m.Params(),
		Scaler:       sc,
		Framing:      b.Mode,
		WindowSize:   b.WindowSize,
		FutureSteps:  b.FutureSteps,
		Report:       rep,
		TrainedAt:    time.Now().UTC(),
	}
}

// Model rebuilds the model held by the artifact.
func (a *Artifact) Model() (*Model, error) {
	return ModelFromParams(a.Architecture, a.Params)
}

// Validate checks the artifact is complete and self-consistent.
func (a *Artifact) Validate() error {
	if a.Version != ArtifactVersion {
		return fmt.Errorf("unsupported artifact version %d", a.Version)
	}
	if err := a.Architecture.Validate(); err != nil {
		return err
	}
	if a.Scaler == nil {
		return errors.New("artifact has no scaler")
	}
	if err := a.Scaler.Validate(); err != nil {
		return err
	}
	if a.Scaler.Dim() != a.Architecture.Features {
		return fmt.Errorf("scaler has %d features, model %d", a.Scaler.Dim(), a.Architecture.Features)
	}
	if a.WindowSize < 1 {
		return fmt.Errorf("invalid window size %d", a.WindowSize)
	}
	return nil
}

// Info describes the artifact for the model endpoint.
func (a *Artifact) Info(path string) *models.ModelInfo {
	info := &models.ModelInfo{
		Path:        path,
		Framing:     string(a.Framing),
		WindowSize:  a.WindowSize,
		FutureSteps: a.FutureSteps,
		Hidden:      a.Architecture.Hidden,
		Horizon:     a.Architecture.Horizon,
		TrainedAt:   a.TrainedAt,
	}
	if a.Report != nil {
		info.TrainMSE = a.Report.TrainMSE
		info.ValMSE = a.Report.ValMSE
		info.TestMSE = a.Report.TestMSE
		info.Samples = a.Report.Samples
	}
	return info
}

// SaveArtifact writes a to path through a temp file and rename.
func SaveArtifact(path string, a *Artifact) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	b, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".artifact-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename artifact: %w", err)
	}
	return nil
}

// LoadArtifact reads and validates the artifact at path. Every failure is a
// *models.ModelUnavailableError.
func LoadArtifact(path string) (*Artifact, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &models.ModelUnavailableError{Path: path, Err: err}
	}
	var a Artifact
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, &models.ModelUnavailableError{Path: path, Err: fmt.Errorf("decode: %w", err)}
	}
	if err := a.Validate(); err != nil {
		return nil, &models.ModelUnavailableError{Path: path, Err: err}
	}
	if _, err := a.Model(); err != nil {
		return nil, &models.ModelUnavailableError{Path: path, Err: err}
	}
	return &a, nil
}
