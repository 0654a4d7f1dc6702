package domain

import "time"

// TrainingRunStartedEvent 训练开始事件
type TrainingRunStartedEvent struct {
	RunID        string    `json:"run_id"`
	Dim          int       `json:"dim"`
	BatchSize    int       `json:"batch_size"`
	NumTimesteps int       `json:"num_timesteps"`
	NumIters     int       `json:"num_iters"`
	StartedAt    int64     `json:"started_at"`
	OccurredOn   time.Time `json:"occurred_on"`
}

// TrainingRunCompletedEvent 训练完成事件
type TrainingRunCompletedEvent struct {
	RunID       string    `json:"run_id"`
	InitialLoss float64   `json:"initial_loss"`
	FinalLoss   float64   `json:"final_loss"`
	Y0Estimate  float64   `json:"y0_estimate"`
	DurationMs  int64     `json:"duration_ms"`
	CompletedAt int64     `json:"completed_at"`
	OccurredOn  time.Time `json:"occurred_on"`
}

// TrainingRunFailedEvent 训练失败事件
type TrainingRunFailedEvent struct {
	RunID      string    `json:"run_id"`
	Iter       int       `json:"iter"`
	Reason     string    `json:"reason"`
	FailedAt   int64     `json:"failed_at"`
	OccurredOn time.Time `json:"occurred_on"`
}
