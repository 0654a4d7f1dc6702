package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wyfcoding/deepbsde/internal/deepbsde/domain"
)

// TrainingRunRedisRepository 训练任务读模型缓存
type TrainingRunRedisRepository struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewTrainingRunRedisRepository 创建缓存仓储实例
func NewTrainingRunRedisRepository(client redis.UniversalClient) *TrainingRunRedisRepository {
	return &TrainingRunRedisRepository{
		client: client,
		prefix: "deepbsde:run:",
		ttl:    24 * time.Hour,
	}
}

// Save 缓存训练任务
func (r *TrainingRunRedisRepository) Save(ctx context.Context, run *domain.TrainingRun) error {
	if run == nil {
		return nil
	}
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal training run: %w", err)
	}
	return r.client.Set(ctx, r.key(run.ID), data, r.ttl).Err()
}

// Get 读取缓存的训练任务，未命中返回 nil
func (r *TrainingRunRedisRepository) Get(ctx context.Context, id string) (*domain.TrainingRun, error) {
	if id == "" {
		return nil, nil
	}
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get training run from redis: %w", err)
	}
	var run domain.TrainingRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal training run: %w", err)
	}
	return &run, nil
}

func (r *TrainingRunRedisRepository) key(id string) string {
	return fmt.Sprintf("%s%s", r.prefix, id)
}
