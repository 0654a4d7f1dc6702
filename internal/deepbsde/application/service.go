package application

import (
	"context"

	"github.com/wyfcoding/deepbsde/internal/deepbsde/domain"
	"github.com/wyfcoding/deepbsde/pkg/metrics"
)

// SolverService 求解器门面服务，整合 Manager 和 Query。
type SolverService struct {
	manager *SolverManager
	query   *SolverQuery
}

// NewSolverService 构造函数，metrics 可为 nil。
func NewSolverService(runRepo domain.TrainingRunRepository, readRepo domain.TrainingRunReadRepository, publisher domain.EventPublisher, m *metrics.Metrics) *SolverService {
	return &SolverService{
		manager: NewSolverManager(runRepo, publisher, m),
		query:   NewSolverQuery(runRepo, readRepo),
	}
}

// --- Manager (Writes) ---

func (s *SolverService) RunTraining(ctx context.Context, cmd RunTrainingCommand) (string, error) {
	return s.manager.RunTraining(ctx, cmd)
}

// --- Query (Reads) ---

func (s *SolverService) GetRun(ctx context.Context, id string) (*domain.TrainingRun, error) {
	return s.query.GetRun(ctx, id)
}

func (s *SolverService) ListRuns(ctx context.Context, limit int) ([]*domain.TrainingRun, error) {
	return s.query.ListRuns(ctx, limit)
}

func (s *SolverService) GetLossHistory(ctx context.Context, runID string) ([]*domain.LossSample, error) {
	return s.query.GetLossHistory(ctx, runID)
}
