package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelLabProgress = "lab_progress"
	ChannelLabCancel   = "lab_cancel"
)

// 消息类型
const (
	TypeResultProgress     = "result_progress"
	TypeExperimentFinished = "experiment_finished"
)

// ProgressMessage 实验进度消息
type ProgressMessage struct {
	Type           string `json:"type"`
	UserID         int64  `json:"user_id"`
	ExperimentID   string `json:"experiment_id"`
	ResultID       string `json:"result_id,omitempty"`
	SlotIndex      int    `json:"slot_index"`
	Label          string `json:"label,omitempty"`
	Status         string `json:"status"`
	TotalCompleted int    `json:"total_completed"`
	TotalTargets   int    `json:"total_targets"`
	Message        string `json:"message,omitempty"`
	Error          string `json:"error,omitempty"`
}

// 状态对应的提示消息
var StatusMessages = map[string]string{
	"RUNNING":   "正在调用模型",
	"COMPLETED": "已完成",
	"FAILED":    "失败",
}

type cancelMessage struct {
	ExperimentID string `json:"experiment_id"`
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishProgress 发布进度消息
func (p *Publisher) PublishProgress(ctx context.Context, msg *ProgressMessage) error {
	if msg.Type == "" {
		msg.Type = TypeResultProgress
	}
	if msg.Message == "" {
		msg.Message = StatusMessages[msg.Status]
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal progress message: %w", err)
	}

	return p.client.Publish(ctx, ChannelLabProgress, data).Err()
}

// PublishCancel 通知所有进程取消实验
func (p *Publisher) PublishCancel(ctx context.Context, experimentID string) error {
	data, err := json.Marshal(&cancelMessage{ExperimentID: experimentID})
	if err != nil {
		return fmt.Errorf("failed to marshal cancel message: %w", err)
	}

	return p.client.Publish(ctx, ChannelLabCancel, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅进度消息
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*ProgressMessage)) error {
	return s.listen(ctx, ChannelLabProgress, func(payload []byte) {
		var msg ProgressMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return
		}
		handler(&msg)
	})
}

// SubscribeCancel 订阅取消通知
func (s *Subscriber) SubscribeCancel(ctx context.Context, handler func(experimentID string)) error {
	return s.listen(ctx, ChannelLabCancel, func(payload []byte) {
		var msg cancelMessage
		if err := json.Unmarshal(payload, &msg); err != nil || msg.ExperimentID == "" {
			return
		}
		handler(msg.ExperimentID)
	})
}

func (s *Subscriber) listen(ctx context.Context, channel string, handle func([]byte)) error {
	sub := s.client.Subscribe(ctx, channel)
	defer sub.Close()

	// 等待订阅确认，避免订阅前发布的消息丢失
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe %s: %w", channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			handle([]byte(msg.Payload))
		}
	}
}
