package domain

// StepCost 单步转移的静态成本画像。
// 纯诊断特征，用于容量规划与成本模型训练，不参与求解正确性。
type StepCost struct {
	// ParamCount 网络参数总数
	ParamCount int `json:"param_count"`
	// Flops 单步浮点运算量估计
	Flops float64 `json:"flops"`
	// BytesAccessed 单步内存访问量估计（字节）
	BytesAccessed float64 `json:"bytes_accessed"`
	// ArithmeticIntensity Flops / BytesAccessed
	ArithmeticIntensity float64 `json:"arithmetic_intensity"`
}

// EstimateStepCost 由网络与模拟配置解析地估计单步成本。
// 网络求值的前向约 2 flop/参数，磁带反向扫描再翻一倍；
// 系数束与 Euler–Maruyama 更新是 O(dim) 的小头。
func EstimateStepCost(net *Network, cfg SimulatorConfig) StepCost {
	params := float64(net.ParamCount())
	dim := float64(cfg.Dim)

	forward := 2 * params
	backward := 2 * forward
	stepping := 12 * dim

	flops := forward + backward + stepping
	// 每个磁带节点一次写与两次读，每个参数叶子一次读
	bytes := (3*(forward/2) + params + 4*dim) * 8

	cost := StepCost{
		ParamCount:    net.ParamCount(),
		Flops:         flops,
		BytesAccessed: bytes,
	}
	if bytes > 0 {
		cost.ArithmeticIntensity = flops / bytes
	}
	return cost
}
