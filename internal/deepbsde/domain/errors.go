package domain

import "errors"

// ErrInvalidConfig 配置错误：非法维度、步长、步数等。
// 一律在构造期拒绝，模拟一旦开始便不再出现此类错误。
var ErrInvalidConfig = errors.New("deepbsde: invalid configuration")
