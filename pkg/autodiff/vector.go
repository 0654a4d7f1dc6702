package autodiff

// Vector 磁带上的稠密向量，逐元素持有标量句柄
type Vector []Value

// ConstVector 将普通浮点向量逐元素记录为叶子节点
func ConstVector(t *Tape, xs []float64) Vector {
	v := make(Vector, len(xs))
	for i, x := range xs {
		v[i] = t.Const(x)
	}
	return v
}

// Values 返回向量的前向值
func (v Vector) Values() []float64 {
	out := make([]float64, len(v))
	for i, e := range v {
		out[i] = e.Value()
	}
	return out
}

// AddVec 向量加法 a + b
func AddVec(t *Tape, a, b Vector) Vector {
	out := make(Vector, len(a))
	for i := range a {
		out[i] = t.Add(a[i], b[i])
	}
	return out
}

// MulVec 向量逐元素乘法 a ⊙ b
func MulVec(t *Tape, a, b Vector) Vector {
	out := make(Vector, len(a))
	for i := range a {
		out[i] = t.Mul(a[i], b[i])
	}
	return out
}

// ScaleVec 向量常数倍 k * a
func ScaleVec(t *Tape, a Vector, k float64) Vector {
	out := make(Vector, len(a))
	for i := range a {
		out[i] = t.Scale(a[i], k)
	}
	return out
}

// Dot 内积 Σ aᵢbᵢ
func Dot(t *Tape, a, b Vector) Value {
	acc := t.Mul(a[0], b[0])
	for i := 1; i < len(a); i++ {
		acc = t.Add(acc, t.Mul(a[i], b[i]))
	}
	return acc
}

// SumSquares 平方和 Σ aᵢ²
func SumSquares(t *Tape, a Vector) Value {
	acc := t.Square(a[0])
	for i := 1; i < len(a); i++ {
		acc = t.Add(acc, t.Square(a[i]))
	}
	return acc
}
