package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wyfcoding/pkg/idgen"
	"github.com/wyfcoding/pkg/logging"
	"gorm.io/gorm"

	"github.com/wyfcoding/deepbsde/internal/deepbsde/domain"
)

// OutboxMessage 消息队列
type OutboxMessage struct {
	ID        string    `gorm:"type:varchar(64);primary_key"`
	EventID   string    `gorm:"type:varchar(64);index"`
	EventType string    `gorm:"type:varchar(100);index"`
	Payload   string    `gorm:"type:text"`
	Status    string    `gorm:"type:varchar(20);index;default:'pending'"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

// TableName 指定表名
func (OutboxMessage) TableName() string {
	return "deepbsde_outbox_messages"
}

// OutboxEventPublisher 实现 EventPublisher 接口，使用 Outbox 模式。
// 事件先落库，再由中继异步推送到 Kafka，保证与业务写入同库事务一致。
type OutboxEventPublisher struct {
	db       *gorm.DB
	producer *KafkaProducer
	topic    string
}

// NewOutboxEventPublisher 创建新的 OutboxEventPublisher 实例，
// producer 可为 nil（无消息队列部署，消息停留在 outbox 表）。
func NewOutboxEventPublisher(db *gorm.DB, producer *KafkaProducer, topic string) *OutboxEventPublisher {
	return &OutboxEventPublisher{db: db, producer: producer, topic: topic}
}

// PublishTrainingRunStarted 发布训练开始事件
func (p *OutboxEventPublisher) PublishTrainingRunStarted(ctx context.Context, event domain.TrainingRunStartedEvent) error {
	return p.publishEvent(ctx, "TrainingRunStartedEvent", event)
}

// PublishTrainingRunCompleted 发布训练完成事件
func (p *OutboxEventPublisher) PublishTrainingRunCompleted(ctx context.Context, event domain.TrainingRunCompletedEvent) error {
	return p.publishEvent(ctx, "TrainingRunCompletedEvent", event)
}

// PublishTrainingRunFailed 发布训练失败事件
func (p *OutboxEventPublisher) PublishTrainingRunFailed(ctx context.Context, event domain.TrainingRunFailedEvent) error {
	return p.publishEvent(ctx, "TrainingRunFailedEvent", event)
}

// publishEvent 通用事件发布方法
func (p *OutboxEventPublisher) publishEvent(ctx context.Context, eventType string, event interface{}) error {
	eventData, err := json.Marshal(event)
	if err != nil {
		return err
	}

	message := OutboxMessage{
		ID:        fmt.Sprintf("%d", idgen.GenID()),
		EventID:   fmt.Sprintf("%d", idgen.GenID()),
		EventType: eventType,
		Payload:   string(eventData),
		Status:    "pending",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	return p.db.WithContext(ctx).Create(&message).Error
}

// ProcessOutboxMessages 将待处理消息推送到 Kafka 并标记已发送
func (p *OutboxEventPublisher) ProcessOutboxMessages(ctx context.Context, batchSize int) error {
	if p.producer == nil {
		return nil
	}

	var messages []OutboxMessage
	if err := p.db.WithContext(ctx).Where("status = ?", "pending").
		Order("created_at asc").Limit(batchSize).Find(&messages).Error; err != nil {
		return err
	}

	for _, message := range messages {
		if err := p.producer.SendRaw(ctx, p.topic, message.EventType, []byte(message.Payload)); err != nil {
			logging.Error(ctx, "Failed to relay outbox message",
				"message_id", message.ID,
				"event_type", message.EventType,
				"error", err,
			)
			return err
		}
		if err := p.db.WithContext(ctx).Model(&message).Update("status", "sent").Error; err != nil {
			return err
		}
	}
	return nil
}

// RunRelay 周期性地把 outbox 消息中继到 Kafka，直到上下文取消
func (p *OutboxEventPublisher) RunRelay(ctx context.Context, interval time.Duration, batchSize int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.ProcessOutboxMessages(ctx, batchSize); err != nil {
				logging.Error(ctx, "Outbox relay pass failed", "error", err)
			}
		}
	}
}

// CleanupProcessedMessages 清理已处理的消息
func (p *OutboxEventPublisher) CleanupProcessedMessages(ctx context.Context, before time.Time) error {
	return p.db.WithContext(ctx).Where("status = ? AND updated_at < ?", "sent", before).Delete(&OutboxMessage{}).Error
}
