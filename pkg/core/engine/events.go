package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"

	"github.com/LENAX/automation-engine/pkg/core/execution"
)

// EventType 执行生命周期事件类型（对外导出）
type EventType string

const (
	EventExecutionStarted   EventType = "execution.started"
	EventStepCompleted      EventType = "execution.step_completed"
	EventAwaitingConfirm    EventType = "execution.awaiting_confirmation"
	EventExecutionDelayed   EventType = "execution.delayed"
	EventExecutionCompleted EventType = "execution.completed"
	EventExecutionFailed    EventType = "execution.failed"
	EventExecutionCancelled EventType = "execution.cancelled"
	EventExecutionResumed   EventType = "execution.resumed"
)

// executionEventsTopic 所有执行事件走同一topic，订阅方按Type过滤
const executionEventsTopic = "execution.events"

// Event 执行生命周期事件（对外导出）
type Event struct {
	ID          string           `json:"id"`
	Type        EventType        `json:"type"`
	ExecutionID string           `json:"execution_id"`
	WorkflowID  string           `json:"workflow_id,omitempty"`
	StepIndex   int              `json:"step_index"`
	Status      execution.Status `json:"status"`
	Error       string           `json:"error,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}

// EventBus 进程内执行事件总线（对外导出）
// 发布端不阻塞等待订阅方确认；WebSocket通道和测试通过Subscribe接入
type EventBus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter
}

// NewEventBus 创建EventBus（对外导出）
func NewEventBus() *EventBus {
	logger := watermill.NewStdLogger(false, false)
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		},
		logger,
	)
	return &EventBus{pubsub: pubsub, logger: logger}
}

// Publish 发布执行事件（对外导出）
func (b *EventBus) Publish(event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set("event_type", string(event.Type))
	msg.Metadata.Set("execution_id", event.ExecutionID)

	if err := b.pubsub.Publish(executionEventsTopic, msg); err != nil {
		return fmt.Errorf("发布事件失败: %w", err)
	}
	return nil
}

// Subscribe 订阅执行事件流（对外导出）
// 返回的channel在ctx取消后关闭
func (b *EventBus) Subscribe(ctx context.Context) (<-chan Event, error) {
	messages, err := b.pubsub.Subscribe(ctx, executionEventsTopic)
	if err != nil {
		return nil, fmt.Errorf("订阅事件失败: %w", err)
	}

	events := make(chan Event, 64)
	go func() {
		defer close(events)
		for msg := range messages {
			var event Event
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				msg.Nack()
				continue
			}
			msg.Ack()
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

// Close 关闭事件总线（对外导出）
func (b *EventBus) Close() error {
	return b.pubsub.Close()
}
