package domain

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/deepbsde/pkg/autodiff"
	"github.com/wyfcoding/deepbsde/pkg/randstream"
)

// SimulatorConfig 轨迹模拟配置。
// 所有约束在构造时检查，模拟过程中不再出错。
type SimulatorConfig struct {
	Dim          int
	NoiseDim     int
	NumTimesteps int
	T0           float64
	Dt           float64
}

// Validate 检查配置合法性
func (c SimulatorConfig) Validate() error {
	if c.Dim <= 0 {
		return fmt.Errorf("%w: dim must be positive, got %d", ErrInvalidConfig, c.Dim)
	}
	if c.NoiseDim <= 0 {
		return fmt.Errorf("%w: noise dim must be positive, got %d", ErrInvalidConfig, c.NoiseDim)
	}
	if c.NoiseDim != c.Dim {
		return fmt.Errorf("%w: noise dim %d must match state dim %d for the element-wise diffusion scheme", ErrInvalidConfig, c.NoiseDim, c.Dim)
	}
	if c.NumTimesteps <= 0 {
		return fmt.Errorf("%w: num timesteps must be positive, got %d", ErrInvalidConfig, c.NumTimesteps)
	}
	if c.Dt <= 0 {
		return fmt.Errorf("%w: dt must be positive, got %v", ErrInvalidConfig, c.Dt)
	}
	return nil
}

// Simulator 将单步转移沿时间轴折叠固定步数，并支持批量独立轨迹。
// 批量成员共享一套网络参数，但各自持有独立的随机令牌，互不耦合。
type Simulator struct {
	cfg    SimulatorConfig
	net    *Network
	coeffs CoefficientSet
}

// NewSimulator 构造模拟器，配置错误在此处拒绝
func NewSimulator(cfg SimulatorConfig, net *Network, coeffs CoefficientSet) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if net == nil {
		return nil, fmt.Errorf("%w: network is required", ErrInvalidConfig)
	}
	if net.Dim() != cfg.Dim {
		return nil, fmt.Errorf("%w: network dim %d does not match config dim %d", ErrInvalidConfig, net.Dim(), cfg.Dim)
	}
	if coeffs.Mu == nil || coeffs.Sigma == nil || coeffs.Phi == nil {
		return nil, fmt.Errorf("%w: coefficient set is incomplete", ErrInvalidConfig)
	}
	return &Simulator{cfg: cfg, net: net, coeffs: coeffs}, nil
}

// Config 返回模拟配置
func (s *Simulator) Config() SimulatorConfig { return s.cfg }

// trajectory 磁带层面的一条完整轨迹
type trajectory struct {
	initialY autodiff.Value
	initialZ autodiff.Vector
	final    StepState
	steps    []StepOutput
}

// simulateOn 在给定磁带上展开一条轨迹。
// 初始 Y0/Z0 来自 (t0, x0) 处的一次网络求值，随后折叠恰好 NumTimesteps 次转移。
func (s *Simulator) simulateOn(tape *autodiff.Tape, oracle *Oracle, x0 []float64, key randstream.Key) trajectory {
	x := autodiff.ConstVector(tape, x0)
	y0, z0 := oracle.Eval(s.cfg.T0, x)

	st := StepState{
		Index: 0,
		T0:    s.cfg.T0,
		Dt:    s.cfg.Dt,
		X:     x,
		Y:     y0,
		Z:     z0,
		Key:   key,
	}

	stepper := NewStepper(tape, oracle, s.coeffs, s.cfg.NoiseDim)
	steps := make([]StepOutput, 0, s.cfg.NumTimesteps)
	for i := 0; i < s.cfg.NumTimesteps; i++ {
		var out StepOutput
		st, out = stepper.Step(st)
		steps = append(steps, out)
	}
	return trajectory{initialY: y0, initialZ: z0, final: st, steps: steps}
}

// TrajectoryResult 一条轨迹的数值视图
type TrajectoryResult struct {
	InitialY   float64
	InitialZ   []float64
	X          [][]float64
	YTilde     []float64
	Y          []float64
	FinalX     []float64
	FinalY     float64
	FinalZ     []float64
	FinalIndex int
}

// Run 模拟一条轨迹并返回数值结果
func (s *Simulator) Run(x0 []float64, key randstream.Key) (*TrajectoryResult, error) {
	if len(x0) != s.cfg.Dim {
		return nil, fmt.Errorf("%w: x0 length %d does not match dim %d", ErrInvalidConfig, len(x0), s.cfg.Dim)
	}
	tape := autodiff.NewTape()
	oracle := s.net.Bind(tape)
	traj := s.simulateOn(tape, oracle, x0, key)

	res := &TrajectoryResult{
		InitialY:   traj.initialY.Value(),
		InitialZ:   traj.initialZ.Values(),
		X:          make([][]float64, len(traj.steps)),
		YTilde:     make([]float64, len(traj.steps)),
		Y:          make([]float64, len(traj.steps)),
		FinalX:     traj.final.X.Values(),
		FinalY:     traj.final.Y.Value(),
		FinalZ:     traj.final.Z.Values(),
		FinalIndex: traj.final.Index,
	}
	for i, out := range traj.steps {
		res.X[i] = out.X.Values()
		res.YTilde[i] = out.YTilde.Value()
		res.Y[i] = out.YNext.Value()
	}
	return res, nil
}

// RunBatch 并行模拟一批独立轨迹。
// 成员间无共享可变状态，输出顺序与输入顺序一致。
func (s *Simulator) RunBatch(x0s [][]float64, keys []randstream.Key) ([]*TrajectoryResult, error) {
	if len(x0s) == 0 {
		return nil, fmt.Errorf("%w: batch must not be empty", ErrInvalidConfig)
	}
	if len(keys) != len(x0s) {
		return nil, fmt.Errorf("%w: got %d keys for %d trajectories", ErrInvalidConfig, len(keys), len(x0s))
	}

	results := make([]*TrajectoryResult, len(x0s))
	var g errgroup.Group
	for m := range x0s {
		g.Go(func() error {
			res, err := s.Run(x0s[m], keys[m])
			if err != nil {
				return err
			}
			results[m] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
