package mysql

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/wyfcoding/deepbsde/internal/deepbsde/domain"
)

// TrainingRunModel 训练任务数据库模型
type TrainingRunModel struct {
	gorm.Model
	ID            string  `gorm:"column:id;type:varchar(32);primaryKey"`
	Dim           int     `gorm:"column:dim;type:int;not null"`
	NoiseDim      int     `gorm:"column:noise_dim;type:int;not null"`
	BatchSize     int     `gorm:"column:batch_size;type:int;not null"`
	NumTimesteps  int     `gorm:"column:num_timesteps;type:int;not null"`
	T0            float64 `gorm:"column:t0;type:double"`
	Dt            float64 `gorm:"column:dt;type:double;not null"`
	Width         int     `gorm:"column:width;type:int;not null"`
	Depth         int     `gorm:"column:depth;type:int;not null"`
	LearningRate  float64 `gorm:"column:learning_rate;type:double;not null"`
	NumIters      int     `gorm:"column:num_iters;type:int;not null"`
	Seed          uint64  `gorm:"column:seed;type:bigint unsigned"`
	Status        string  `gorm:"column:status;type:varchar(20);index;default:'RUNNING'"`
	InitialLoss   string  `gorm:"column:initial_loss;type:decimal(32,18)"`
	FinalLoss     string  `gorm:"column:final_loss;type:decimal(32,18)"`
	Y0Estimate    string  `gorm:"column:y0_estimate;type:decimal(32,18)"`
	ParamCount    int     `gorm:"column:param_count;type:int"`
	StepFlops     float64 `gorm:"column:step_flops;type:double"`
	DurationMs    int64   `gorm:"column:duration_ms;type:bigint"`
	FailureReason string  `gorm:"column:failure_reason;type:text"`
}

func (TrainingRunModel) TableName() string { return "training_runs" }

// LossSampleModel 损失采样数据库模型
type LossSampleModel struct {
	gorm.Model
	RunID string  `gorm:"column:run_id;type:varchar(32);index;not null"`
	Iter  int     `gorm:"column:iter;type:int;not null"`
	Loss  float64 `gorm:"column:loss;type:double;not null"`
}

func (LossSampleModel) TableName() string { return "loss_samples" }

// mapping helpers

func toTrainingRunModel(r *domain.TrainingRun) *TrainingRunModel {
	if r == nil {
		return nil
	}
	return &TrainingRunModel{
		Model: gorm.Model{
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		},
		ID:            r.ID,
		Dim:           r.Dim,
		NoiseDim:      r.NoiseDim,
		BatchSize:     r.BatchSize,
		NumTimesteps:  r.NumTimesteps,
		T0:            r.T0,
		Dt:            r.Dt,
		Width:         r.Width,
		Depth:         r.Depth,
		LearningRate:  r.LearningRate,
		NumIters:      r.NumIters,
		Seed:          r.Seed,
		Status:        string(r.Status),
		InitialLoss:   r.InitialLoss.String(),
		FinalLoss:     r.FinalLoss.String(),
		Y0Estimate:    r.Y0Estimate.String(),
		ParamCount:    r.ParamCount,
		StepFlops:     r.StepFlops,
		DurationMs:    r.DurationMs,
		FailureReason: r.FailureReason,
	}
}

func toTrainingRun(m *TrainingRunModel) (*domain.TrainingRun, error) {
	if m == nil {
		return nil, nil
	}
	initialLoss, err := decimal.NewFromString(m.InitialLoss)
	if err != nil {
		return nil, err
	}
	finalLoss, err := decimal.NewFromString(m.FinalLoss)
	if err != nil {
		return nil, err
	}
	y0, err := decimal.NewFromString(m.Y0Estimate)
	if err != nil {
		return nil, err
	}

	return &domain.TrainingRun{
		ID:            m.ID,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
		Dim:           m.Dim,
		NoiseDim:      m.NoiseDim,
		BatchSize:     m.BatchSize,
		NumTimesteps:  m.NumTimesteps,
		T0:            m.T0,
		Dt:            m.Dt,
		Width:         m.Width,
		Depth:         m.Depth,
		LearningRate:  m.LearningRate,
		NumIters:      m.NumIters,
		Seed:          m.Seed,
		Status:        domain.RunStatus(m.Status),
		InitialLoss:   initialLoss,
		FinalLoss:     finalLoss,
		Y0Estimate:    y0,
		ParamCount:    m.ParamCount,
		StepFlops:     m.StepFlops,
		DurationMs:    m.DurationMs,
		FailureReason: m.FailureReason,
	}, nil
}

func toLossSampleModel(s *domain.LossSample) *LossSampleModel {
	if s == nil {
		return nil
	}
	return &LossSampleModel{
		RunID: s.RunID,
		Iter:  s.Iter,
		Loss:  s.Loss,
	}
}

func toLossSample(m *LossSampleModel) *domain.LossSample {
	if m == nil {
		return nil
	}
	return &domain.LossSample{
		ID:        m.Model.ID,
		RunID:     m.RunID,
		Iter:      m.Iter,
		Loss:      m.Loss,
		CreatedAt: m.CreatedAt,
	}
}
