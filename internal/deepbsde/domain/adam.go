package domain

import (
	"fmt"
	"math"
)

// Adam 一阶矩/二阶矩自适应优化器。
// 内部矩状态随每次 Update 前进一步，外部只观察到整步前后的参数。
type Adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64
	m     []float64
	v     []float64
	t     int
}

// NewAdam 以标准超参 β1=0.9, β2=0.999, ε=1e-8 构造优化器
func NewAdam(lr float64, paramCount int) (*Adam, error) {
	if lr <= 0 {
		return nil, fmt.Errorf("%w: learning rate must be positive, got %v", ErrInvalidConfig, lr)
	}
	if paramCount <= 0 {
		return nil, fmt.Errorf("%w: param count must be positive, got %d", ErrInvalidConfig, paramCount)
	}
	return &Adam{
		lr:    lr,
		beta1: 0.9,
		beta2: 0.999,
		eps:   1e-8,
		m:     make([]float64, paramCount),
		v:     make([]float64, paramCount),
	}, nil
}

// Step 返回已执行的更新步数
func (a *Adam) Step() int { return a.t }

// LearningRate 返回学习率
func (a *Adam) LearningRate() float64 { return a.lr }

// Update 就地应用一次带偏差修正的 Adam 更新
func (a *Adam) Update(params, grads []float64) error {
	if len(params) != len(a.m) || len(grads) != len(a.m) {
		return fmt.Errorf("%w: length mismatch, state %d params %d grads %d", ErrInvalidConfig, len(a.m), len(params), len(grads))
	}
	a.t++
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))
	for i, g := range grads {
		a.m[i] = a.beta1*a.m[i] + (1-a.beta1)*g
		a.v[i] = a.beta2*a.v[i] + (1-a.beta2)*g*g
		mHat := a.m[i] / c1
		vHat := a.v[i] / c2
		params[i] -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
	}
	return nil
}
