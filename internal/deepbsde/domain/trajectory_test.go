package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/wyfcoding/deepbsde/pkg/autodiff"
	"github.com/wyfcoding/deepbsde/pkg/randstream"
)

func newTestSimulator(t *testing.T, cfg SimulatorConfig, coeffs CoefficientSet) *Simulator {
	t.Helper()
	net, err := NewNetwork(cfg.Dim, 6, 2, randstream.NewKey(1))
	if err != nil {
		t.Fatal(err)
	}
	sim, err := NewSimulator(cfg, net, coeffs)
	if err != nil {
		t.Fatal(err)
	}
	return sim
}

func defaultTestConfig() SimulatorConfig {
	return SimulatorConfig{Dim: 2, NoiseDim: 2, NumTimesteps: 5, T0: 0, Dt: 0.2}
}

func TestSimulatorConfigValidation(t *testing.T) {
	net, _ := NewNetwork(2, 4, 1, randstream.NewKey(1))
	coeffs := BlackScholesBarenblatt(0.05, 0.4)

	cases := []struct {
		name string
		cfg  SimulatorConfig
	}{
		{"zero dim", SimulatorConfig{Dim: 0, NoiseDim: 2, NumTimesteps: 5, Dt: 0.2}},
		{"noise dim mismatch", SimulatorConfig{Dim: 2, NoiseDim: 3, NumTimesteps: 5, Dt: 0.2}},
		{"zero timesteps", SimulatorConfig{Dim: 2, NoiseDim: 2, NumTimesteps: 0, Dt: 0.2}},
		{"negative dt", SimulatorConfig{Dim: 2, NoiseDim: 2, NumTimesteps: 5, Dt: -0.1}},
	}
	for _, c := range cases {
		if _, err := NewSimulator(c.cfg, net, coeffs); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s: err = %v, want ErrInvalidConfig", c.name, err)
		}
	}

	if _, err := NewSimulator(defaultTestConfig(), nil, coeffs); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("nil network: err = %v, want ErrInvalidConfig", err)
	}
	if _, err := NewSimulator(defaultTestConfig(), net, CoefficientSet{}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("empty coefficients: err = %v, want ErrInvalidConfig", err)
	}
}

func TestRunRejectsWrongDimension(t *testing.T) {
	sim := newTestSimulator(t, defaultTestConfig(), BlackScholesBarenblatt(0.05, 0.4))
	if _, err := sim.Run([]float64{1}, randstream.NewKey(2)); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestRunProducesExactStepCount(t *testing.T) {
	cfg := defaultTestConfig()
	sim := newTestSimulator(t, cfg, BlackScholesBarenblatt(0.05, 0.4))

	res, err := sim.Run([]float64{1.0, 0.5}, randstream.NewKey(2))
	if err != nil {
		t.Fatal(err)
	}
	if res.FinalIndex != cfg.NumTimesteps {
		t.Errorf("FinalIndex = %d, want %d", res.FinalIndex, cfg.NumTimesteps)
	}
	if len(res.X) != cfg.NumTimesteps || len(res.YTilde) != cfg.NumTimesteps || len(res.Y) != cfg.NumTimesteps {
		t.Errorf("trace lengths = %d/%d/%d, want %d", len(res.X), len(res.YTilde), len(res.Y), cfg.NumTimesteps)
	}
	for _, y := range res.Y {
		if math.IsNaN(y) || math.IsInf(y, 0) {
			t.Fatal("non-finite Y in trajectory")
		}
	}
}

func TestRunBitwiseReproducible(t *testing.T) {
	sim := newTestSimulator(t, defaultTestConfig(), BlackScholesBarenblatt(0.05, 0.4))
	x0 := []float64{1.0, 0.5}

	a, err := sim.Run(x0, randstream.NewKey(9))
	if err != nil {
		t.Fatal(err)
	}
	b, err := sim.Run(x0, randstream.NewKey(9))
	if err != nil {
		t.Fatal(err)
	}

	if a.InitialY != b.InitialY || a.FinalY != b.FinalY {
		t.Error("scalar outputs differ across identical keys")
	}
	for i := range a.FinalX {
		if a.FinalX[i] != b.FinalX[i] {
			t.Fatalf("FinalX[%d] differs across identical keys", i)
		}
	}
	for i := range a.YTilde {
		if a.YTilde[i] != b.YTilde[i] {
			t.Fatalf("YTilde[%d] differs across identical keys", i)
		}
	}
}

func TestZeroVolatilityFreezesState(t *testing.T) {
	// σ ≡ 0 且 μ ≡ 0 时正向过程不动
	sim := newTestSimulator(t, defaultTestConfig(), BlackScholesBarenblatt(0.05, 0))
	x0 := []float64{1.0, 0.5}

	res, err := sim.Run(x0, randstream.NewKey(4))
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range res.FinalX {
		if math.Abs(v-x0[i]) > 1e-12 {
			t.Errorf("FinalX[%d] = %v, want %v", i, v, x0[i])
		}
	}

	// 首步 Y_tilde 退化为无噪声 Euler 更新 Y + φ·dt，与抽取的 dW 无关
	dot := 0.0
	for i := range x0 {
		dot += x0[i] * res.InitialZ[i]
	}
	want := res.InitialY + 0.05*(res.InitialY-dot)*0.2
	if math.Abs(res.YTilde[0]-want) > 1e-12 {
		t.Errorf("YTilde[0] = %v, want noise-free Euler value %v", res.YTilde[0], want)
	}
}

func TestStepTimesRecomputedFromIndex(t *testing.T) {
	// 每步传给系数的时刻必须是 t0 + i·dt 的重新计算值
	cfg := SimulatorConfig{Dim: 1, NoiseDim: 1, NumTimesteps: 4, T0: 0.3, Dt: 0.25}
	var seen []float64
	coeffs := BlackScholesBarenblatt(0.05, 0.4)
	base := coeffs.Sigma
	coeffs.Sigma = func(tp *autodiff.Tape, tNow float64, x autodiff.Vector, y autodiff.Value) autodiff.Vector {
		seen = append(seen, tNow)
		return base(tp, tNow, x, y)
	}

	sim := newTestSimulator(t, cfg, coeffs)
	if _, err := sim.Run([]float64{1}, randstream.NewKey(5)); err != nil {
		t.Fatal(err)
	}
	if len(seen) != cfg.NumTimesteps {
		t.Fatalf("sigma called %d times, want %d", len(seen), cfg.NumTimesteps)
	}
	for i, got := range seen {
		want := cfg.T0 + float64(i)*cfg.Dt
		if math.Abs(got-want) > 1e-15 {
			t.Errorf("step %d time = %v, want %v", i, got, want)
		}
	}
}

func TestRunBatchMatchesSequentialRuns(t *testing.T) {
	sim := newTestSimulator(t, defaultTestConfig(), BlackScholesBarenblatt(0.05, 0.4))
	x0 := []float64{1.0, 0.5}
	keys := randstream.NewKey(8).SplitN(4)
	x0s := [][]float64{x0, x0, x0, x0}

	batch, err := sim.RunBatch(x0s, keys)
	if err != nil {
		t.Fatal(err)
	}
	for m := range x0s {
		solo, err := sim.Run(x0s[m], keys[m])
		if err != nil {
			t.Fatal(err)
		}
		if batch[m].FinalY != solo.FinalY {
			t.Errorf("member %d: batch FinalY %v != solo %v", m, batch[m].FinalY, solo.FinalY)
		}
	}

	// 不同令牌的成员应当走出不同轨迹
	if batch[0].FinalY == batch[1].FinalY {
		t.Error("distinct keys produced identical trajectories")
	}
}

func TestRunBatchValidation(t *testing.T) {
	sim := newTestSimulator(t, defaultTestConfig(), BlackScholesBarenblatt(0.05, 0.4))
	if _, err := sim.RunBatch(nil, nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("empty batch: err = %v, want ErrInvalidConfig", err)
	}
	if _, err := sim.RunBatch([][]float64{{1, 0.5}}, randstream.NewKey(1).SplitN(2)); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("key count mismatch: err = %v, want ErrInvalidConfig", err)
	}
}
