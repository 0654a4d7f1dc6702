package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RunStatus 训练任务状态
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
)

// TrainingRun 训练任务实体。
// 只记录配置、进度与结果摘要，训练出的网络参数不做持久化。
type TrainingRun struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Dim          int     `json:"dim"`
	NoiseDim     int     `json:"noise_dim"`
	BatchSize    int     `json:"batch_size"`
	NumTimesteps int     `json:"num_timesteps"`
	T0           float64 `json:"t0"`
	Dt           float64 `json:"dt"`
	Width        int     `json:"width"`
	Depth        int     `json:"depth"`
	LearningRate float64 `json:"learning_rate"`
	NumIters     int     `json:"num_iters"`
	Seed         uint64  `json:"seed"`

	Status        RunStatus       `json:"status"`
	InitialLoss   decimal.Decimal `json:"initial_loss"`
	FinalLoss     decimal.Decimal `json:"final_loss"`
	Y0Estimate    decimal.Decimal `json:"y0_estimate"`
	ParamCount    int             `json:"param_count"`
	StepFlops     float64         `json:"step_flops"`
	DurationMs    int64           `json:"duration_ms"`
	FailureReason string          `json:"failure_reason"`
}

// LossSample 单次迭代的损失采样
type LossSample struct {
	ID        uint      `json:"id"`
	RunID     string    `json:"run_id"`
	Iter      int       `json:"iter"`
	Loss      float64   `json:"loss"`
	CreatedAt time.Time `json:"created_at"`
}
