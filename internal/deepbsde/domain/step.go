package domain

import (
	"math"

	"github.com/wyfcoding/deepbsde/pkg/autodiff"
	"github.com/wyfcoding/deepbsde/pkg/randstream"
)

// StepState 递推携带的不可变状态元组。
// 每次转移消费一次随机令牌并派生下一步的新令牌，
// 同一令牌绝不跨步复用，整条轨迹由初始令牌唯一确定。
type StepState struct {
	Index int
	T0    float64
	Dt    float64
	X     autodiff.Vector
	Y     autodiff.Value
	Z     autodiff.Vector
	Key   randstream.Key
}

// StepOutput 单步输出：新状态、仅由随机更新得到的 Y_tilde、
// 以及网络在新状态处的估计 Y_next。训练损失逐步惩罚两者之差。
type StepOutput struct {
	X      autodiff.Vector
	YTilde autodiff.Value
	YNext  autodiff.Value
}

// Stepper 单步 Euler–Maruyama 转移。
// 系数束与网络视图在构造时注入，Step 本身除确定性随机派生外是纯函数。
type Stepper struct {
	oracle   *Oracle
	coeffs   CoefficientSet
	noiseDim int
	tape     *autodiff.Tape
}

// NewStepper 构造步进器，noiseDim 为布朗运动维度
func NewStepper(tape *autodiff.Tape, oracle *Oracle, coeffs CoefficientSet, noiseDim int) *Stepper {
	return &Stepper{oracle: oracle, coeffs: coeffs, noiseDim: noiseDim, tape: tape}
}

// Step 执行一次转移 (i, t0, dt, X, Y, Z, key) → (i+1, t0, dt, X', Y', Z', key')。
// 时刻由步号重新计算而非累加，避免长时域上的浮点漂移。
func (s *Stepper) Step(st StepState) (StepState, StepOutput) {
	tp := s.tape

	drawKey, carryKey := st.Key.Split()
	dW := autodiff.ConstVector(tp, drawKey.ScaledNormals(s.noiseDim, math.Sqrt(st.Dt)))

	currT := st.T0 + float64(st.Index)*st.Dt
	nextT := st.T0 + float64(st.Index+1)*st.Dt

	sigma := s.coeffs.Sigma(tp, currT, st.X, st.Y)
	diffusion := autodiff.MulVec(tp, sigma, dW)

	// X' = X + μ·dt + σ ⊙ dW
	drift := autodiff.ScaleVec(tp, s.coeffs.Mu(tp, currT, st.X, st.Y, st.Z), st.Dt)
	xNext := autodiff.AddVec(tp, autodiff.AddVec(tp, st.X, drift), diffusion)

	// Y_tilde = Y + φ·dt + Z·(σ ⊙ dW)，不经过网络
	phi := s.coeffs.Phi(tp, currT, st.X, st.Y, st.Z)
	yTilde := tp.Add(tp.Add(st.Y, tp.Scale(phi, st.Dt)), autodiff.Dot(tp, st.Z, diffusion))

	// 每步唯一一次网络调用
	yNext, zNext := s.oracle.Eval(nextT, xNext)

	next := StepState{
		Index: st.Index + 1,
		T0:    st.T0,
		Dt:    st.Dt,
		X:     xNext,
		Y:     yNext,
		Z:     zNext,
		Key:   carryKey,
	}
	return next, StepOutput{X: xNext, YTilde: yTilde, YNext: yNext}
}
