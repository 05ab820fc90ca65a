package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"storesync/internal/config"
	"storesync/internal/domain"
	"storesync/internal/service"
)

// TriggerMessage 外部触发消息
// 上游系统（店铺后台、物流回调网关）在有新动静时推一条消息，
// 让对应店铺立刻同步一轮，而不是等下一个轮询 tick。
type TriggerMessage struct {
	JobType  string `json:"job_type"`            // new_orders / status_sync
	TenantID string `json:"tenant_id,omitempty"` // 空 = 全部活跃店铺
}

// TriggerConsumer MQTT触发消费者
type TriggerConsumer struct {
	config     *config.MQTTConfig
	mqttClient *Client
	scheduler  *service.Scheduler
	logger     *zap.Logger
}

// NewTriggerConsumer 创建触发消费者
func NewTriggerConsumer(
	cfg *config.MQTTConfig,
	mqttClient *Client,
	scheduler *service.Scheduler,
	logger *zap.Logger,
) *TriggerConsumer {
	return &TriggerConsumer{
		config:     cfg,
		mqttClient: mqttClient,
		scheduler:  scheduler,
		logger:     logger,
	}
}

// Start 启动消费者
func (c *TriggerConsumer) Start(ctx context.Context) error {
	topic := c.config.Topic
	if topic == "" {
		return fmt.Errorf("trigger MQTT topic not configured")
	}

	if err := c.mqttClient.Subscribe(topic, 1, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to trigger topic: %w", err)
	}

	c.logger.Info("MQTT trigger consumer started", zap.String("topic", topic))

	<-ctx.Done()
	return nil
}

// Stop 停止消费者
func (c *TriggerConsumer) Stop() {
	topic := c.config.Topic
	if topic != "" {
		if err := c.mqttClient.Unsubscribe(topic); err != nil {
			c.logger.Error("Failed to unsubscribe", zap.Error(err))
		}
	}
	c.logger.Info("MQTT trigger consumer stopped")
}

// handleMessage 处理触发消息
// 已在运行的 (job, tenant) 合并为 no-op，消息风暴不会叠加运行。
func (c *TriggerConsumer) handleMessage(topic string, payload []byte) error {
	var msg TriggerMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.logger.Error("Failed to unmarshal trigger message",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	if !domain.ValidJobType(msg.JobType) || msg.JobType == string(domain.JobCleanup) {
		return fmt.Errorf("invalid trigger job type: %s", msg.JobType)
	}

	err := c.scheduler.TriggerJob(domain.SyncJobType(msg.JobType), msg.TenantID)
	if errors.Is(err, service.ErrRunInFlight) {
		c.logger.Debug("Trigger coalesced, job already running",
			zap.String("job_type", msg.JobType),
			zap.String("tenant_id", msg.TenantID),
		)
		return nil
	}
	if err != nil {
		return err
	}

	c.logger.Info("Sync triggered via MQTT",
		zap.String("job_type", msg.JobType),
		zap.String("tenant_id", msg.TenantID),
	)
	return nil
}
