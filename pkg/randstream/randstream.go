// Package randstream 提供可分裂的确定性随机流。
// Key 是纯值类型：同一个 Key 永远生成同一串随机数，
// Split 以计数哈希方式派生互不相关的子流，从不复用底层状态，
// 因此批量轨迹可以并行执行且整体可精确复现。
package randstream

import "math/rand/v2"

// Key 随机流令牌
type Key struct {
	hi, lo uint64
}

// splitmix64 标准 SplitMix64 混合函数
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// NewKey 由种子构造根令牌
func NewKey(seed uint64) Key {
	return Key{
		hi: splitmix64(seed),
		lo: splitmix64(splitmix64(seed)),
	}
}

// child 以序号 n 派生子令牌
func (k Key) child(n uint64) Key {
	return Key{
		hi: splitmix64(k.hi ^ splitmix64(n)),
		lo: splitmix64(k.lo ^ splitmix64(n^0xa5a5a5a5a5a5a5a5)),
	}
}

// Split 派生两个独立子令牌，原令牌随即废弃
func (k Key) Split() (Key, Key) {
	return k.child(1), k.child(2)
}

// SplitN 派生 n 个独立子令牌，用于批量成员的扇出
func (k Key) SplitN(n int) []Key {
	keys := make([]Key, n)
	for i := range keys {
		keys[i] = k.child(uint64(i) + 3)
	}
	return keys
}

// Source 返回由令牌确定性初始化的 PCG 随机源
func (k Key) Source() *rand.Rand {
	return rand.New(rand.NewPCG(k.hi, k.lo))
}

// Normals 生成 n 个标准正态样本
func (k Key) Normals(n int) []float64 {
	rng := k.Source()
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.NormFloat64()
	}
	return out
}

// ScaledNormals 生成 n 个 N(0, scale²) 样本，
// 用于布朗增量 dW ~ N(0, dt·I)，scale = √dt
func (k Key) ScaledNormals(n int, scale float64) []float64 {
	out := k.Normals(n)
	for i := range out {
		out[i] *= scale
	}
	return out
}

// Uniform 生成 [-bound, bound) 均匀样本，用于参数初始化
func (k Key) Uniform(n int, bound float64) []float64 {
	rng := k.Source()
	out := make([]float64, n)
	for i := range out {
		out[i] = (2*rng.Float64() - 1) * bound
	}
	return out
}
