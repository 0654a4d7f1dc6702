package application

import (
	"context"

	"github.com/wyfcoding/pkg/logging"

	"github.com/wyfcoding/deepbsde/internal/deepbsde/domain"
)

// SolverQuery 处理所有训练相关的读取操作（Queries）。
// 读取优先走缓存，未命中再回源仓储并回填。
type SolverQuery struct {
	runRepo  domain.TrainingRunRepository
	readRepo domain.TrainingRunReadRepository
}

// NewSolverQuery 构造函数，readRepo 可为 nil（无缓存部署）。
func NewSolverQuery(runRepo domain.TrainingRunRepository, readRepo domain.TrainingRunReadRepository) *SolverQuery {
	return &SolverQuery{runRepo: runRepo, readRepo: readRepo}
}

// GetRun 查询单个训练任务
func (q *SolverQuery) GetRun(ctx context.Context, id string) (*domain.TrainingRun, error) {
	if q.readRepo != nil {
		run, err := q.readRepo.Get(ctx, id)
		if err != nil {
			logging.Error(ctx, "Run cache lookup failed", "run_id", id, "error", err)
		} else if run != nil {
			return run, nil
		}
	}

	run, err := q.runRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if run != nil && q.readRepo != nil {
		if err := q.readRepo.Save(ctx, run); err != nil {
			logging.Error(ctx, "Run cache backfill failed", "run_id", id, "error", err)
		}
	}
	return run, nil
}

// ListRuns 查询最近的训练任务
func (q *SolverQuery) ListRuns(ctx context.Context, limit int) ([]*domain.TrainingRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return q.runRepo.ListRecent(ctx, limit)
}

// GetLossHistory 查询训练任务的损失轨迹
func (q *SolverQuery) GetLossHistory(ctx context.Context, runID string) ([]*domain.LossSample, error) {
	return q.runRepo.ListLossSamples(ctx, runID)
}
