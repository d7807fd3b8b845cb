package forecast

import (
	"fmt"
	"math"
	"math/rand"

	"FinCast/internal/services/features"

	"gonum.org/v1/gonum/floats"
)

// Architecture fixes the shape of the recurrent model.
type Architecture struct {
	Features int `json:"features"`
	Hidden   int `json:"hidden"`
	// Horizon is the number of feature vectors emitted per window.
	Horizon int `json:"horizon"`
}

// Outputs is the width of the dense output layer.
func (a Architecture) Outputs() int { return a.Horizon * a.Features }

// ParamCount is the total number of learned weights.
func (a Architecture) ParamCount() int {
	g := 4 * a.Hidden
	return g*a.Features + g*a.Hidden + g + a.Outputs()*a.Hidden + a.Outputs()
}

// Validate checks that every dimension is positive.
func (a Architecture) Validate() error {
	if a.Features < 1 || a.Hidden < 1 || a.Horizon < 1 {
		return fmt.Errorf("invalid architecture %+v", a)
	}
	return nil
}

// weights are views into one flat parameter vector. Gate rows are ordered
// input, forget, cell candidate, output.
type weights struct {
	wx, wh, b, wy, by []float64
}

func bind(p []float64, a Architecture) weights {
	g := 4 * a.Hidden
	o := a.Outputs()
	var w weights
	off := 0
	take := func(n int) []float64 {
		s := p[off : off+n : off+n]
		off += n
		return s
	}
	w.wx = take(g * a.Features)
	w.wh = take(g * a.Hidden)
	w.b = take(g)
	w.wy = take(o * a.Hidden)
	w.by = take(o)
	return w
}

// Model is a single-layer LSTM followed by a dense regression head. Masked
// timesteps carry hidden and cell state through unchanged.
type Model struct {
	arch   Architecture
	params []float64
	w      weights
}

// NewModel initializes weights with a Glorot-uniform draw from seed. Forget
// gate biases start at 1.
func NewModel(arch Architecture, seed int64) (*Model, error) {
	if err := arch.Validate(); err != nil {
		return nil, err
	}
	m := &Model{arch: arch, params: make([]float64, arch.ParamCount())}
	m.w = bind(m.params, arch)

	rng := rand.New(rand.NewSource(seed))
	uniform := func(dst []float64, fanIn, fanOut int) {
		limit := math.Sqrt(6 / float64(fanIn+fanOut))
		for i := range dst {
			dst[i] = (2*rng.Float64() - 1) * limit
		}
	}
	h := arch.Hidden
	uniform(m.w.wx, arch.Features, 4*h)
	uniform(m.w.wh, h, 4*h)
	uniform(m.w.wy, h, arch.Outputs())
	for j := h; j < 2*h; j++ {
		m.w.b[j] = 1
	}
	return m, nil
}

// ModelFromParams rebuilds a model from persisted weights.
func ModelFromParams(arch Architecture, params []float64) (*Model, error) {
	if err := arch.Validate(); err != nil {
		return nil, err
	}
	if len(params) != arch.ParamCount() {
		return nil, fmt.Errorf("param count %d does not match architecture (%d)", len(params), arch.ParamCount())
	}
	for i, v := range params {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("param %d is not finite", i)
		}
	}
	m := &Model{arch: arch, params: append([]float64(nil), params...)}
	m.w = bind(m.params, arch)
	return m, nil
}

// Architecture returns the model shape.
func (m *Model) Architecture() Architecture { return m.arch }

// Params returns a copy of the flat weight vector.
func (m *Model) Params() []float64 { return append([]float64(nil), m.params...) }

// Clone returns a deep copy.
func (m *Model) Clone() *Model {
	c, _ := ModelFromParams(m.arch, m.params)
	return c
}

// Predict maps a window to Horizon feature vectors. It does not mutate the
// model and is safe for concurrent use.
func (m *Model) Predict(w features.Window) [][]float64 {
	_, y, _ := m.forward(w, false)
	f := m.arch.Features
	out := make([][]float64, m.arch.Horizon)
	for k := range out {
		out[k] = append([]float64(nil), y[k*f:(k+1)*f]...)
	}
	return out
}

type stepCache struct {
	active            bool
	x, hPrev, cPrev   []float64
	i, f, g, o, tanhC []float64
}

func (m *Model) forward(w features.Window, keep bool) ([]float64, []float64, []stepCache) {
	H := m.arch.Hidden
	F := m.arch.Features
	h := make([]float64, H)
	c := make([]float64, H)
	z := make([]float64, 4*H)

	var caches []stepCache
	if keep {
		caches = make([]stepCache, len(w.Steps))
	}

	for t, x := range w.Steps {
		if t < len(w.Mask) && !w.Mask[t] {
			continue
		}
		copy(z, m.w.b)
		for r := 0; r < 4*H; r++ {
			z[r] += floats.Dot(m.w.wx[r*F:(r+1)*F], x) + floats.Dot(m.w.wh[r*H:(r+1)*H], h)
		}
		ig := make([]float64, H)
		fg := make([]float64, H)
		gg := make([]float64, H)
		og := make([]float64, H)
		nc := make([]float64, H)
		nh := make([]float64, H)
		tc := make([]float64, H)
		for j := 0; j < H; j++ {
			ig[j] = sigmoid(z[j])
			fg[j] = sigmoid(z[H+j])
			gg[j] = math.Tanh(z[2*H+j])
			og[j] = sigmoid(z[3*H+j])
			nc[j] = fg[j]*c[j] + ig[j]*gg[j]
			tc[j] = math.Tanh(nc[j])
			nh[j] = og[j] * tc[j]
		}
		if keep {
			caches[t] = stepCache{active: true, x: x, hPrev: h, cPrev: c, i: ig, f: fg, g: gg, o: og, tanhC: tc}
		}
		h, c = nh, nc
	}

	out := make([]float64, m.arch.Outputs())
	for k := range out {
		out[k] = m.w.by[k] + floats.Dot(m.w.wy[k*H:(k+1)*H], h)
	}
	return h, out, caches
}

// accumulate runs forward and backward passes for one pair, adding
// scale * dLoss/dParams into grad, and returns the pair's sum of squared errors.
func (m *Model) accumulate(p features.TrainingPair, grad weights, scale float64) float64 {
	H := m.arch.Hidden
	F := m.arch.Features
	hT, y, caches := m.forward(p.Input, true)

	dy := make([]float64, len(y))
	var sse float64
	for k := 0; k < m.arch.Horizon; k++ {
		for j := 0; j < F; j++ {
			idx := k*F + j
			d := y[idx] - p.Target[k][j]
			sse += d * d
			dy[idx] = 2 * d * scale
		}
	}

	dh := make([]float64, H)
	for k, d := range dy {
		floats.AddScaled(grad.wy[k*H:(k+1)*H], d, hT)
		grad.by[k] += d
		floats.AddScaled(dh, d, m.w.wy[k*H:(k+1)*H])
	}

	dc := make([]float64, H)
	dz := make([]float64, 4*H)
	for t := len(caches) - 1; t >= 0; t-- {
		sc := caches[t]
		if !sc.active {
			continue
		}
		for j := 0; j < H; j++ {
			dO := dh[j] * sc.tanhC[j]
			dC := dc[j] + dh[j]*sc.o[j]*(1-sc.tanhC[j]*sc.tanhC[j])
			dz[j] = dC * sc.g[j] * sc.i[j] * (1 - sc.i[j])
			dz[H+j] = dC * sc.cPrev[j] * sc.f[j] * (1 - sc.f[j])
			dz[2*H+j] = dC * sc.i[j] * (1 - sc.g[j]*sc.g[j])
			dz[3*H+j] = dO * sc.o[j] * (1 - sc.o[j])
			dc[j] = dC * sc.f[j]
		}
		for r := 0; r < 4*H; r++ {
			floats.AddScaled(grad.wx[r*F:(r+1)*F], dz[r], sc.x)
			floats.AddScaled(grad.wh[r*H:(r+1)*H], dz[r], sc.hPrev)
		}
		floats.Add(grad.b, dz)
		for j := range dh {
			dh[j] = 0
		}
		for r := 0; r < 4*H; r++ {
			floats.AddScaled(dh, dz[r], m.w.wh[r*H:(r+1)*H])
		}
	}
	return sse
}

// MSE is the mean squared error over every output element of pairs, or 0
// when pairs is empty.
func (m *Model) MSE(pairs []features.TrainingPair) float64 {
	if len(pairs) == 0 {
		return 0
	}
	var sse float64
	for _, p := range pairs {
		y := m.Predict(p.Input)
		for k := range y {
			for j := range y[k] {
				d := y[k][j] - p.Target[k][j]
				sse += d * d
			}
		}
	}
	return sse / float64(len(pairs)*m.arch.Outputs())
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
