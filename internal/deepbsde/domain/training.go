package domain

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/deepbsde/pkg/autodiff"
	"github.com/wyfcoding/deepbsde/pkg/randstream"
)

// ErrNonFiniteLoss 训练损失出现 NaN/Inf。
// 核心不做恢复，由外层驱动决定中止或调整学习率。
var ErrNonFiniteLoss = errors.New("deepbsde: non-finite training loss")

// Trainer 损失装配与单步训练。
// 损失 = 逐步一致性平方误差 + 终端值平方误差 + 终端梯度平方误差，
// 按批量与时间求和而非平均——这个字面缩放是方法的一部分，不做“修正”。
type Trainer struct {
	sim  *Simulator
	term TerminalCondition
	opt  *Adam
}

// NewTrainer 构造训练器，配置错误在此处拒绝
func NewTrainer(sim *Simulator, term TerminalCondition, learningRate float64) (*Trainer, error) {
	if sim == nil {
		return nil, fmt.Errorf("%w: simulator is required", ErrInvalidConfig)
	}
	if term.G == nil || term.GradG == nil {
		return nil, fmt.Errorf("%w: terminal condition is incomplete", ErrInvalidConfig)
	}
	opt, err := NewAdam(learningRate, sim.net.ParamCount())
	if err != nil {
		return nil, err
	}
	return &Trainer{sim: sim, term: term, opt: opt}, nil
}

// Network 返回受训网络
func (tr *Trainer) Network() *Network { return tr.sim.net }

// Optimizer 返回优化器
func (tr *Trainer) Optimizer() *Adam { return tr.opt }

// TrainStepResult 单步训练输出
type TrainStepResult struct {
	// Loss 批量与时间求和后的标量损失
	Loss float64
	// YPred 每个批量成员逐步的网络 Y 估计，顺序与输入批量一致
	YPred [][]float64
	// Y0 每个批量成员在 (t0, x0) 处的初值估计
	Y0 []float64
}

// memberResult 单个批量成员的前向+反向产物
type memberResult struct {
	loss  float64
	grads []float64
	yPred []float64
	y0    float64
}

// lossOn 在成员自己的磁带上装配损失
func (tr *Trainer) lossOn(tape *autodiff.Tape, traj trajectory) autodiff.Value {
	var loss autodiff.Value
	first := true
	add := func(v autodiff.Value) {
		if first {
			loss = v
			first = false
			return
		}
		loss = tape.Add(loss, v)
	}

	for _, out := range traj.steps {
		add(tape.Square(tape.Sub(out.YTilde, out.YNext)))
	}

	final := traj.final
	add(tape.Square(tape.Sub(final.Y, tr.term.G(tape, final.X))))

	gradG := tr.term.GradG(tape, final.X)
	for i := range final.Z {
		add(tape.Square(tape.Sub(final.Z[i], gradG[i])))
	}
	return loss
}

// runMember 单个批量成员：独立磁带、共享参数的独立提升、
// 一条完整轨迹的前向与反向
func (tr *Trainer) runMember(x0 []float64, key randstream.Key) memberResult {
	tape := autodiff.NewTape()
	oracle := tr.sim.net.Bind(tape)
	traj := tr.sim.simulateOn(tape, oracle, x0, key)
	loss := tr.lossOn(tape, traj)
	adj := tape.Backward(loss)

	yPred := make([]float64, len(traj.steps))
	for i, out := range traj.steps {
		yPred[i] = out.YNext.Value()
	}
	return memberResult{
		loss:  loss.Value(),
		grads: oracle.Gradients(adj),
		yPred: yPred,
		y0:    traj.initialY.Value(),
	}
}

// TrainStep 执行一步训练：批量成员并行前向+反向，
// 按成员顺序归约损失与梯度，最后应用一次优化器更新。
// 参数与优化器状态恰好前进一步；损失非有限时参数保持不变并返回 ErrNonFiniteLoss。
func (tr *Trainer) TrainStep(x0s [][]float64, keys []randstream.Key) (*TrainStepResult, error) {
	if len(x0s) == 0 {
		return nil, fmt.Errorf("%w: batch must not be empty", ErrInvalidConfig)
	}
	if len(keys) != len(x0s) {
		return nil, fmt.Errorf("%w: got %d keys for %d batch members", ErrInvalidConfig, len(keys), len(x0s))
	}
	for m, x0 := range x0s {
		if len(x0) != tr.sim.cfg.Dim {
			return nil, fmt.Errorf("%w: batch member %d has length %d, want %d", ErrInvalidConfig, m, len(x0), tr.sim.cfg.Dim)
		}
	}

	members := make([]memberResult, len(x0s))
	var g errgroup.Group
	for m := range x0s {
		g.Go(func() error {
			members[m] = tr.runMember(x0s[m], keys[m])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// 成员顺序固定的归约，保证逐位可复现
	total := 0.0
	grads := make([]float64, tr.sim.net.ParamCount())
	res := &TrainStepResult{
		YPred: make([][]float64, len(members)),
		Y0:    make([]float64, len(members)),
	}
	for m, mr := range members {
		total += mr.loss
		for i, gv := range mr.grads {
			grads[i] += gv
		}
		res.YPred[m] = mr.yPred
		res.Y0[m] = mr.y0
	}
	res.Loss = total

	if math.IsNaN(total) || math.IsInf(total, 0) {
		return res, fmt.Errorf("%w: loss=%v", ErrNonFiniteLoss, total)
	}

	if err := tr.opt.Update(tr.sim.net.Params(), grads); err != nil {
		return nil, err
	}
	return res, nil
}
