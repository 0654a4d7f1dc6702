package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/deepbsde/internal/deepbsde/domain"
)

type trainingRunRepository struct {
	db *gorm.DB
}

// NewTrainingRunRepository 创建训练任务仓储实例
func NewTrainingRunRepository(db *gorm.DB) domain.TrainingRunRepository {
	return &trainingRunRepository{db: db}
}

// Save 以 upsert 语义保存训练任务
func (r *trainingRunRepository) Save(ctx context.Context, run *domain.TrainingRun) error {
	model := toTrainingRunModel(run)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(model).Error
}

// GetByID 按 ID 查询训练任务，未找到返回 nil
func (r *trainingRunRepository) GetByID(ctx context.Context, id string) (*domain.TrainingRun, error) {
	var model TrainingRunModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toTrainingRun(&model)
}

// ListRecent 按创建时间倒序列出最近的训练任务
func (r *trainingRunRepository) ListRecent(ctx context.Context, limit int) ([]*domain.TrainingRun, error) {
	var models []TrainingRunModel
	err := r.db.WithContext(ctx).
		Order("created_at desc").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	runs := make([]*domain.TrainingRun, 0, len(models))
	for i := range models {
		run, err := toTrainingRun(&models[i])
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// SaveLossSamples 批量写入损失采样
func (r *trainingRunRepository) SaveLossSamples(ctx context.Context, samples []*domain.LossSample) error {
	if len(samples) == 0 {
		return nil
	}
	models := make([]*LossSampleModel, 0, len(samples))
	for _, s := range samples {
		models = append(models, toLossSampleModel(s))
	}
	return r.db.WithContext(ctx).CreateInBatches(models, 500).Error
}

// ListLossSamples 按迭代序取某次训练的损失轨迹
func (r *trainingRunRepository) ListLossSamples(ctx context.Context, runID string) ([]*domain.LossSample, error) {
	var models []LossSampleModel
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("iter asc").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	samples := make([]*domain.LossSample, 0, len(models))
	for i := range models {
		samples = append(samples, toLossSample(&models[i]))
	}
	return samples, nil
}
