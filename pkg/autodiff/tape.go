// Package autodiff 提供基于磁带（tape）的反向模式自动微分。
// 磁带按执行顺序记录每个标量运算及其对输入的局部偏导，
// 反向扫描一次即可得到根节点对所有叶子节点的精确梯度。
package autodiff

import "math"

// noParent 表示节点没有对应的父节点
const noParent = -1

// node 磁带上的一个标量运算节点
// p0/p1 为父节点下标，d0/d1 为对应的局部偏导
type node struct {
	value  float64
	p0, p1 int
	d0, d1 float64
}

// Tape 计算磁带
// 只允许追加节点，一次前向构图对应一次反向扫描
type Tape struct {
	nodes []node
}

// Value 磁带上的一个标量值句柄
type Value struct {
	tape *Tape
	idx  int
}

// NewTape 创建空磁带
func NewTape() *Tape {
	return &Tape{nodes: make([]node, 0, 1024)}
}

// Len 返回磁带上的节点数
func (t *Tape) Len() int {
	return len(t.nodes)
}

func (t *Tape) push(n node) Value {
	t.nodes = append(t.nodes, n)
	return Value{tape: t, idx: len(t.nodes) - 1}
}

// Const 在磁带上记录一个叶子节点
// 叶子既用于常量（随机增量、初始状态），也用于可训练参数，
// 参数叶子的下标由调用方持有，反向扫描后按下标取梯度
func (t *Tape) Const(v float64) Value {
	return t.push(node{value: v, p0: noParent, p1: noParent})
}

// Value 返回节点的前向值
func (v Value) Value() float64 {
	return v.tape.nodes[v.idx].value
}

// Index 返回节点在磁带上的下标
func (v Value) Index() int {
	return v.idx
}

// Add 加法 a + b
func (t *Tape) Add(a, b Value) Value {
	return t.push(node{
		value: t.nodes[a.idx].value + t.nodes[b.idx].value,
		p0:    a.idx, d0: 1,
		p1: b.idx, d1: 1,
	})
}

// Sub 减法 a - b
func (t *Tape) Sub(a, b Value) Value {
	return t.push(node{
		value: t.nodes[a.idx].value - t.nodes[b.idx].value,
		p0:    a.idx, d0: 1,
		p1: b.idx, d1: -1,
	})
}

// Mul 乘法 a * b
func (t *Tape) Mul(a, b Value) Value {
	av := t.nodes[a.idx].value
	bv := t.nodes[b.idx].value
	return t.push(node{
		value: av * bv,
		p0:    a.idx, d0: bv,
		p1: b.idx, d1: av,
	})
}

// Scale 常数倍 k * a
func (t *Tape) Scale(a Value, k float64) Value {
	return t.push(node{
		value: k * t.nodes[a.idx].value,
		p0:    a.idx, d0: k,
		p1: noParent,
	})
}

// Shift 常数偏移 a + k
func (t *Tape) Shift(a Value, k float64) Value {
	return t.push(node{
		value: t.nodes[a.idx].value + k,
		p0:    a.idx, d0: 1,
		p1: noParent,
	})
}

// Square 平方 a²
func (t *Tape) Square(a Value) Value {
	av := t.nodes[a.idx].value
	return t.push(node{
		value: av * av,
		p0:    a.idx, d0: 2 * av,
		p1: noParent,
	})
}

// Tanh 双曲正切激活
func (t *Tape) Tanh(a Value) Value {
	y := math.Tanh(t.nodes[a.idx].value)
	return t.push(node{
		value: y,
		p0:    a.idx, d0: 1 - y*y,
		p1: noParent,
	})
}

// Backward 从 root 出发做一次反向扫描，
// 返回 root 对磁带上每个节点的伴随值（adjoint）
func (t *Tape) Backward(root Value) []float64 {
	adj := make([]float64, len(t.nodes))
	adj[root.idx] = 1
	for i := root.idx; i >= 0; i-- {
		a := adj[i]
		if a == 0 {
			continue
		}
		n := &t.nodes[i]
		if n.p0 != noParent {
			adj[n.p0] += a * n.d0
		}
		if n.p1 != noParent {
			adj[n.p1] += a * n.d1
		}
	}
	return adj
}
