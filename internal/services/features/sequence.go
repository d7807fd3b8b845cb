package features

import "fmt"

// StepMode selects how training targets are framed.
type StepMode string

const (
	SingleStep StepMode = "single"
	MultiStep  StepMode = "multi"
)

// ParseStepMode validates a configured framing name.
func ParseStepMode(s string) (StepMode, error) {
	switch StepMode(s) {
	case SingleStep, "":
		return SingleStep, nil
	case MultiStep:
		return MultiStep, nil
	default:
		return "", fmt.Errorf("unknown step mode %q", s)
	}
}

// Window is an ordered sequence of feature vectors, left-padded with zero
// vectors. Mask is false at padded positions.
type Window struct {
	Steps [][]float64
	Mask  []bool
}

// Len returns the padded length.
func (w Window) Len() int { return len(w.Steps) }

// Real returns the number of unmasked positions.
func (w Window) Real() int {
	n := 0
	for _, m := range w.Mask {
		if m {
			n++
		}
	}
	return n
}

// TrainingPair is one supervised example.
type TrainingPair struct {
	Input  Window
	Target [][]float64
}

// SequenceBuilder turns a scaled per-asset series into training pairs.
type SequenceBuilder struct {
	Mode        StepMode
	WindowSize  int
	FutureSteps int
	// MaxHistory caps multi-step inputs to their latest rows. 0 is unlimited.
	MaxHistory int
}

// Horizon is the number of target vectors per pair.
func (b SequenceBuilder) Horizon() int {
	if b.Mode == MultiStep {
		return b.FutureSteps
	}
	return 1
}

// Validate checks the builder configuration.
func (b SequenceBuilder) Validate() error {
	switch b.Mode {
	case SingleStep:
		if b.WindowSize < 1 {
			return fmt.Errorf("window_size must be >= 1")
		}
	case MultiStep:
		if b.FutureSteps < 1 {
			return fmt.Errorf("future_steps must be >= 1")
		}
	default:
		return fmt.Errorf("unknown step mode %q", b.Mode)
	}
	if b.MaxHistory < 0 {
		return fmt.Errorf("max_history must be >= 0")
	}
	return nil
}

// Build emits the pairs of one series. A series too short for a single pair
// yields nil.
func (b SequenceBuilder) Build(series [][]float64) []TrainingPair {
	if b.Mode == MultiStep {
		return b.buildMulti(series)
	}
	return b.buildSingle(series)
}

func (b SequenceBuilder) buildSingle(series [][]float64) []TrainingPair {
	w := b.WindowSize
	if w < 1 || len(series) <= w {
		return nil
	}
	pairs := make([]TrainingPair, 0, len(series)-w)
	for i := w; i < len(series); i++ {
		pairs = append(pairs, TrainingPair{
			Input:  fullWindow(series[i-w : i]),
			Target: [][]float64{copyRow(series[i])},
		})
	}
	return pairs
}

// buildMulti emits one pair per position i in [f-1, n-f-1]: the input grows
// from f rows and the target is the next f rows, so fewer than 2f rows
// yield no pairs.
func (b SequenceBuilder) buildMulti(series [][]float64) []TrainingPair {
	f := b.FutureSteps
	if f < 1 || len(series) < 2*f {
		return nil
	}
	var pairs []TrainingPair
	for i := f - 1; i+f <= len(series)-1; i++ {
		start := 0
		if b.MaxHistory > 0 && i+1 > b.MaxHistory {
			start = i + 1 - b.MaxHistory
		}
		target := make([][]float64, f)
		for k := 0; k < f; k++ {
			target[k] = copyRow(series[i+1+k])
		}
		pairs = append(pairs, TrainingPair{
			Input:  fullWindow(series[start : i+1]),
			Target: target,
		})
	}
	return pairs
}

// BuildAll concatenates the pairs of every series. Pairs never span two series.
func (b SequenceBuilder) BuildAll(series [][][]float64) []TrainingPair {
	var out []TrainingPair
	for _, s := range series {
		out = append(out, b.Build(s)...)
	}
	return out
}

// PadBatch left-pads every input to the longest input in the batch.
func PadBatch(pairs []TrainingPair) []TrainingPair {
	longest := 0
	for _, p := range pairs {
		if p.Input.Len() > longest {
			longest = p.Input.Len()
		}
	}
	out := make([]TrainingPair, len(pairs))
	for i, p := range pairs {
		out[i] = TrainingPair{Input: PadWindow(p.Input, longest), Target: p.Target}
	}
	return out
}

// PadWindow left-pads w with zero vectors to length n. Longer windows are
// returned unchanged.
func PadWindow(w Window, n int) Window {
	pad := n - w.Len()
	if pad <= 0 {
		return w
	}
	dim := 0
	if w.Len() > 0 {
		dim = len(w.Steps[0])
	}
	steps := make([][]float64, 0, n)
	mask := make([]bool, 0, n)
	for i := 0; i < pad; i++ {
		steps = append(steps, make([]float64, dim))
		mask = append(mask, false)
	}
	steps = append(steps, w.Steps...)
	mask = append(mask, w.Mask...)
	return Window{Steps: steps, Mask: mask}
}

func fullWindow(rows [][]float64) Window {
	steps := make([][]float64, len(rows))
	mask := make([]bool, len(rows))
	for i, r := range rows {
		steps[i] = copyRow(r)
		mask[i] = true
	}
	return Window{Steps: steps, Mask: mask}
}

func copyRow(r []float64) []float64 {
	return append([]float64(nil), r...)
}
