package domain

import "context"

// TrainingRunRepository 训练任务写模型仓储接口
type TrainingRunRepository interface {
	Save(ctx context.Context, run *TrainingRun) error
	GetByID(ctx context.Context, id string) (*TrainingRun, error)
	ListRecent(ctx context.Context, limit int) ([]*TrainingRun, error)
	SaveLossSamples(ctx context.Context, samples []*LossSample) error
	ListLossSamples(ctx context.Context, runID string) ([]*LossSample, error)
}

// TrainingRunReadRepository 训练任务读模型缓存
type TrainingRunReadRepository interface {
	Save(ctx context.Context, run *TrainingRun) error
	Get(ctx context.Context, id string) (*TrainingRun, error)
}

// EventPublisher 训练生命周期事件发布接口
type EventPublisher interface {
	PublishTrainingRunStarted(ctx context.Context, event TrainingRunStartedEvent) error
	PublishTrainingRunCompleted(ctx context.Context, event TrainingRunCompletedEvent) error
	PublishTrainingRunFailed(ctx context.Context, event TrainingRunFailedEvent) error
}
