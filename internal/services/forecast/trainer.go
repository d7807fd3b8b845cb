package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"FinCast/internal/services/features"
	applogger "FinCast/pkg/logger"
)

// ErrNotEnoughData is returned when the split leaves no training pairs.
var ErrNotEnoughData = errors.New("not enough training pairs")

// TrainConfig holds optimizer and split settings.
type TrainConfig struct {
	Hidden       int
	Epochs       int
	BatchSize    int
	LearningRate float64
	// Patience is the number of epochs without validation improvement
	// tolerated before stopping. 0 disables early stopping.
	Patience  int
	ClipNorm  float64
	SplitSeed int64
	InitSeed  int64
}

// DefaultTrainConfig mirrors the production settings.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Hidden:       32,
		Epochs:       50,
		BatchSize:    32,
		LearningRate: 0.001,
		Patience:     5,
		ClipNorm:     5,
		SplitSeed:    42,
		InitSeed:     42,
	}
}

// TrainReport summarizes a training run.
type TrainReport struct {
	Samples   int           `json:"samples"`
	TrainSize int           `json:"train_size"`
	ValSize   int           `json:"val_size"`
	TestSize  int           `json:"test_size"`
	Epochs    int           `json:"epochs"`
	BestEpoch int           `json:"best_epoch"`
	TrainMSE  float64       `json:"train_mse"`
	ValMSE    float64       `json:"val_mse"`
	TestMSE   float64       `json:"test_mse"`
	Duration  time.Duration `json:"duration"`
}

// Trainer fits a Model on training pairs.
type Trainer struct {
	cfg TrainConfig
	l   *applogger.Logger
}

func NewTrainer(cfg TrainConfig) *Trainer {
	return &Trainer{cfg: cfg}
}

// SetLogger injects a structured logger.
func (t *Trainer) SetLogger(l *applogger.Logger) { t.l = l }

// Split partitions pairs 60/20/20 after a seeded shuffle.
func Split(pairs []features.TrainingPair, seed int64) (train, val, test []features.TrainingPair) {
	n := len(pairs)
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	hold := int(math.Ceil(0.4 * float64(n)))
	nTest := int(math.Ceil(0.5 * float64(hold)))
	nVal := hold - nTest
	nTrain := n - hold

	pick := func(idx []int) []features.TrainingPair {
		out := make([]features.TrainingPair, len(idx))
		for i, j := range idx {
			out[i] = pairs[j]
		}
		return out
	}
	return pick(perm[:nTrain]), pick(perm[nTrain : nTrain+nVal]), pick(perm[nTrain+nVal:])
}

// Train fits a model on pairs. When init is non-nil and has a matching
// architecture, training continues from its weights.
func (t *Trainer) Train(ctx context.Context, pairs []features.TrainingPair, init *Model) (*Model, *TrainReport, error) {
	start := time.Now()
	if len(pairs) == 0 {
		return nil, nil, ErrNotEnoughData
	}
	horizon := len(pairs[0].Target)
	if horizon == 0 || len(pairs[0].Target[0]) == 0 {
		return nil, nil, fmt.Errorf("empty training target")
	}
	dim := len(pairs[0].Target[0])
	for i, p := range pairs {
		if len(p.Target) != horizon {
			return nil, nil, fmt.Errorf("pair %d: target horizon %d, want %d", i, len(p.Target), horizon)
		}
	}

	train, val, test := Split(pairs, t.cfg.SplitSeed)
	if len(train) == 0 {
		return nil, nil, fmt.Errorf("%w: %d pairs", ErrNotEnoughData, len(pairs))
	}

	arch := Architecture{Features: dim, Hidden: t.cfg.Hidden, Horizon: horizon}
	var (
		m   *Model
		err error
	)
	if init != nil && init.Architecture() == arch {
		m = init.Clone()
	} else {
		if init != nil && t.l != nil {
			t.l.Warn("existing model architecture differs, training from scratch",
				applogger.Any("existing", init.Architecture()),
				applogger.Any("wanted", arch),
			)
		}
		m, err = NewModel(arch, t.cfg.InitSeed)
		if err != nil {
			return nil, nil, err
		}
	}

	batch := t.cfg.BatchSize
	if batch <= 0 {
		batch = 32
	}
	epochs := t.cfg.Epochs
	if epochs <= 0 {
		epochs = 1
	}

	opt := newAdam(len(m.params), t.cfg.LearningRate)
	grad := make([]float64, len(m.params))
	gw := bind(grad, arch)
	rng := rand.New(rand.NewSource(t.cfg.SplitSeed + 1))

	best := math.Inf(1)
	bestParams := m.Params()
	bestEpoch := 0
	wait := 0
	ran := 0

	for epoch := 1; epoch <= epochs; epoch++ {
		ran = epoch
		order := rng.Perm(len(train))
		var sse float64
		for lo := 0; lo < len(order); lo += batch {
			if err := ctx.Err(); err != nil {
				return nil, nil, fmt.Errorf("training cancelled: %w", err)
			}
			hi := lo + batch
			if hi > len(order) {
				hi = len(order)
			}
			mb := make([]features.TrainingPair, 0, hi-lo)
			for _, idx := range order[lo:hi] {
				mb = append(mb, train[idx])
			}
			mb = features.PadBatch(mb)

			for i := range grad {
				grad[i] = 0
			}
			scale := 1 / float64(len(mb)*arch.Outputs())
			for _, p := range mb {
				sse += m.accumulate(p, gw, scale)
			}
			clipNorm(grad, t.cfg.ClipNorm)
			opt.step(m.params, grad)
		}
		trainMSE := sse / float64(len(train)*arch.Outputs())

		monitor := trainMSE
		if len(val) > 0 {
			monitor = m.MSE(val)
		}
		if t.l != nil {
			t.l.Debug("epoch done",
				applogger.Int("epoch", epoch),
				applogger.Float64("train_mse", trainMSE),
				applogger.Float64("val_mse", monitor),
			)
		}
		if math.IsNaN(monitor) || math.IsInf(monitor, 0) {
			return nil, nil, fmt.Errorf("training diverged at epoch %d", epoch)
		}
		if monitor < best {
			best = monitor
			bestParams = m.Params()
			bestEpoch = epoch
			wait = 0
		} else {
			wait++
			if t.cfg.Patience > 0 && wait >= t.cfg.Patience {
				break
			}
		}
	}

	copy(m.params, bestParams)

	rep := &TrainReport{
		Samples:   len(pairs),
		TrainSize: len(train),
		ValSize:   len(val),
		TestSize:  len(test),
		Epochs:    ran,
		BestEpoch: bestEpoch,
		TrainMSE:  m.MSE(train),
		ValMSE:    m.MSE(val),
		TestMSE:   m.MSE(test),
		Duration:  time.Since(start),
	}
	if t.l != nil {
		t.l.Info("training finished",
			applogger.Int("samples", rep.Samples),
			applogger.Int("epochs", rep.Epochs),
			applogger.Int("best_epoch", rep.BestEpoch),
			applogger.Float64("train_mse", rep.TrainMSE),
			applogger.Float64("val_mse", rep.ValMSE),
			applogger.Float64("test_mse", rep.TestMSE),
			applogger.Duration("duration_ms", rep.Duration),
		)
	}
	return m, rep, nil
}
