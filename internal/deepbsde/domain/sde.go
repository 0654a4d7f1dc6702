package domain

import "github.com/wyfcoding/deepbsde/pkg/autodiff"

// CoefficientSet 正倒向随机微分方程的系数束。
// 三个函数都是纯函数，步进与训练逻辑对其完全不透明，
// 换一个定价问题只需换一组系数。
type CoefficientSet struct {
	// Mu 正向过程漂移项 μ(t, X, Y, Z) → vector[dim]
	Mu func(tp *autodiff.Tape, t float64, x autodiff.Vector, y autodiff.Value, z autodiff.Vector) autodiff.Vector
	// Sigma 扩散项 σ(t, X, Y) → vector[dim]，与布朗增量逐元素相乘
	Sigma func(tp *autodiff.Tape, t float64, x autodiff.Vector, y autodiff.Value) autodiff.Vector
	// Phi 倒向过程生成元 φ(t, X, Y, Z) → scalar
	Phi func(tp *autodiff.Tape, t float64, x autodiff.Vector, y autodiff.Value, z autodiff.Vector) autodiff.Value
}

// TerminalCondition 终端条件 g(X) 及其梯度 ∇g(X)。
// 闭式已知，只依赖问题定义，不依赖可训练参数。
type TerminalCondition struct {
	G     func(tp *autodiff.Tape, x autodiff.Vector) autodiff.Value
	GradG func(tp *autodiff.Tape, x autodiff.Vector) autodiff.Vector
}

// BlackScholesBarenblatt 默认系数：无漂移、状态比例波动率、
// 仿射生成元 φ = r·(Y - Σ XᵢZᵢ)。对应 Black–Scholes–Barenblatt 方程。
func BlackScholesBarenblatt(rate, vol float64) CoefficientSet {
	return CoefficientSet{
		Mu: func(tp *autodiff.Tape, _ float64, x autodiff.Vector, _ autodiff.Value, _ autodiff.Vector) autodiff.Vector {
			zero := make(autodiff.Vector, len(x))
			for i := range zero {
				zero[i] = tp.Const(0)
			}
			return zero
		},
		Sigma: func(tp *autodiff.Tape, _ float64, x autodiff.Vector, _ autodiff.Value) autodiff.Vector {
			return autodiff.ScaleVec(tp, x, vol)
		},
		Phi: func(tp *autodiff.Tape, _ float64, x autodiff.Vector, y autodiff.Value, z autodiff.Vector) autodiff.Value {
			return tp.Scale(tp.Sub(y, autodiff.Dot(tp, x, z)), rate)
		},
	}
}

// SquaredNormTerminal 默认终端条件 g(X) = Σ Xᵢ²，∇g(X) = 2X
func SquaredNormTerminal() TerminalCondition {
	return TerminalCondition{
		G: func(tp *autodiff.Tape, x autodiff.Vector) autodiff.Value {
			return autodiff.SumSquares(tp, x)
		},
		GradG: func(tp *autodiff.Tape, x autodiff.Vector) autodiff.Vector {
			return autodiff.ScaleVec(tp, x, 2)
		},
	}
}
