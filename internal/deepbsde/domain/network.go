package domain

import (
	"fmt"
	"math"

	"github.com/wyfcoding/deepbsde/pkg/autodiff"
	"github.com/wyfcoding/deepbsde/pkg/randstream"
)

// layer 一层全连接的形状与参数在扁平向量中的偏移
type layer struct {
	in, out    int
	wOff, bOff int
}

// Network 值与梯度神经网络（value-and-gradient oracle）。
// 输入为 concat(t, x)，输出标量 u(t,x)；
// ∇ₓu 由同一次前向计算的精确反向扫描得到，而非数值差分。
// 参数以扁平向量持有，训练循环是唯一的写入者。
type Network struct {
	dim    int
	width  int
	depth  int
	layers []layer
	params []float64
}

// NewNetwork 构造 MLP 并按 ±1/√fan_in 均匀初始化参数。
// depth 为隐藏层数，width 为每层宽度。
func NewNetwork(dim, width, depth int, key randstream.Key) (*Network, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dim must be positive, got %d", ErrInvalidConfig, dim)
	}
	if width <= 0 || depth <= 0 {
		return nil, fmt.Errorf("%w: width and depth must be positive, got %d/%d", ErrInvalidConfig, width, depth)
	}

	layers := make([]layer, 0, depth+1)
	off := 0
	in := dim + 1
	for l := 0; l < depth; l++ {
		layers = append(layers, layer{in: in, out: width, wOff: off, bOff: off + in*width})
		off += in*width + width
		in = width
	}
	layers = append(layers, layer{in: in, out: 1, wOff: off, bOff: off + in})
	off += in + 1

	n := &Network{dim: dim, width: width, depth: depth, layers: layers, params: make([]float64, off)}
	keys := key.SplitN(len(layers))
	for i, ly := range layers {
		bound := 1 / math.Sqrt(float64(ly.in))
		vals := keys[i].Uniform(ly.in*ly.out+ly.out, bound)
		copy(n.params[ly.wOff:ly.bOff+ly.out], vals)
	}
	return n, nil
}

// Dim 返回状态维度
func (n *Network) Dim() int { return n.dim }

// Width 返回隐藏层宽度
func (n *Network) Width() int { return n.width }

// Depth 返回隐藏层数
func (n *Network) Depth() int { return n.depth }

// ParamCount 返回参数总数
func (n *Network) ParamCount() int { return len(n.params) }

// Params 返回参数切片（调用方不得在训练步之外修改）
func (n *Network) Params() []float64 { return n.params }

// CloneParams 返回参数副本
func (n *Network) CloneParams() []float64 {
	out := make([]float64, len(n.params))
	copy(out, n.params)
	return out
}

// SetParams 整体替换参数
func (n *Network) SetParams(p []float64) error {
	if len(p) != len(n.params) {
		return fmt.Errorf("%w: param length mismatch, want %d got %d", ErrInvalidConfig, len(n.params), len(p))
	}
	copy(n.params, p)
	return nil
}

// Oracle 绑定到某条磁带的网络视图。
// 参数被提升为磁带叶子，同一磁带上的所有求值共享同一组叶子，
// 反向扫描后按叶子下标取出参数梯度。
type Oracle struct {
	net    *Network
	tape   *autodiff.Tape
	params autodiff.Vector
}

// Bind 将参数提升到磁带上，返回绑定视图
func (n *Network) Bind(tape *autodiff.Tape) *Oracle {
	lifted := make(autodiff.Vector, len(n.params))
	for i, p := range n.params {
		lifted[i] = tape.Const(p)
	}
	return &Oracle{net: n, tape: tape, params: lifted}
}

// weight 取第 l 层 (j,i) 权重叶子
func (o *Oracle) weight(l, j, i int) autodiff.Value {
	ly := o.net.layers[l]
	return o.params[ly.wOff+j*ly.in+i]
}

// bias 取第 l 层第 j 个偏置叶子
func (o *Oracle) bias(l, j int) autodiff.Value {
	return o.params[o.net.layers[l].bOff+j]
}

// Eval 在 (t, x) 处求值，返回 u 与 ∇ₓu。
// 前向：u = W_out·tanh(...tanh(W_0·[t;x]+b_0)...)+b_out；
// 反向：δ_L = W_out，δ_{l-1} = W_lᵀ(δ_l ⊙ (1-a_l²))，
// 整个反向扫描同样以磁带运算表达，因此 Z = ∇ₓu 对参数仍可微。
func (o *Oracle) Eval(t float64, x autodiff.Vector) (autodiff.Value, autodiff.Vector) {
	tp := o.tape
	net := o.net

	in := make(autodiff.Vector, net.dim+1)
	in[0] = tp.Const(t)
	copy(in[1:], x)

	// 前向，保留各隐藏层激活
	acts := make([]autodiff.Vector, net.depth)
	inputs := make([]autodiff.Vector, net.depth)
	cur := in
	for l := 0; l < net.depth; l++ {
		inputs[l] = cur
		next := make(autodiff.Vector, net.layers[l].out)
		for j := range next {
			s := o.bias(l, j)
			for i := range cur {
				s = tp.Add(s, tp.Mul(o.weight(l, j, i), cur[i]))
			}
			next[j] = tp.Tanh(s)
		}
		acts[l] = next
		cur = next
	}

	outLayer := net.depth
	u := o.bias(outLayer, 0)
	for i := range cur {
		u = tp.Add(u, tp.Mul(o.weight(outLayer, 0, i), cur[i]))
	}

	// 反向：输出层的 δ 就是输出权重行
	delta := make(autodiff.Vector, net.layers[outLayer].in)
	for i := range delta {
		delta[i] = o.weight(outLayer, 0, i)
	}

	for l := net.depth - 1; l >= 0; l-- {
		// γ_j = δ_j · (1 - a_j²)
		gamma := make(autodiff.Vector, len(delta))
		for j := range gamma {
			one := tp.Shift(tp.Scale(tp.Square(acts[l][j]), -1), 1)
			gamma[j] = tp.Mul(delta[j], one)
		}
		prev := make(autodiff.Vector, len(inputs[l]))
		for i := range prev {
			s := tp.Mul(o.weight(l, 0, i), gamma[0])
			for j := 1; j < len(gamma); j++ {
				s = tp.Add(s, tp.Mul(o.weight(l, j, i), gamma[j]))
			}
			prev[i] = s
		}
		delta = prev
	}

	// 去掉 t 分量，只保留对 x 的梯度
	return u, autodiff.Vector(delta[1:])
}

// Gradients 由一次反向扫描的伴随值取出扁平参数梯度
func (o *Oracle) Gradients(adj []float64) []float64 {
	g := make([]float64, len(o.params))
	for i, p := range o.params {
		g[i] = adj[p.Index()]
	}
	return g
}
