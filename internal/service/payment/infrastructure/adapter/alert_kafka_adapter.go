package adapter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"paysync/internal/pkg/logger"
	"paysync/internal/pkg/mq"
)

// AlertKafkaAdapter 实现了 port.AlertNotifier 接口，
// 把告警投递到 Kafka 主题，由值班侧的消费者转发到 IM/邮件。
// 投递是 fire-and-forget 的：失败只记日志，绝不反向影响对账流程。
type AlertKafkaAdapter struct {
	writer *kafka.Writer
}

func NewAlertKafkaAdapter(writer *kafka.Writer) *AlertKafkaAdapter {
	return &AlertKafkaAdapter{writer: writer}
}

type alertEvent struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	At      time.Time         `json:"at"`
}

func (a *AlertKafkaAdapter) Notify(ctx context.Context, message string, fields map[string]string) {
	event := alertEvent{Message: message, Fields: fields, At: time.Now()}
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("failed to marshal alert event")
		return
	}

	// 告警自身限时，避免 Kafka 抖动拖住调用方的 goroutine
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()

	if err := mq.ProduceMessage(sendCtx, a.writer, []byte(message), payload); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("alert", message).Msg("failed to publish alert")
	}
}

// Close 关闭底层的 Kafka writer。
func (a *AlertKafkaAdapter) Close() error {
	return a.writer.Close()
}
