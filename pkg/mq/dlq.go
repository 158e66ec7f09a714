package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// DLQExchangeName 无法处理的通知事件投递到这里，按原 routing key 路由
const DLQExchangeName = "events.dlq"

const maxErrorHeader = 512

func DeclareDLQExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(DLQExchangeName, "topic", true, false, false, false, nil)
}

// DeclareDLQQueue declares <routingKey>.dlq and binds it to the DLQ exchange.
func DeclareDLQQueue(ch *amqp091.Channel, routingKey string) (amqp091.Queue, error) {
	q, err := ch.QueueDeclare(DLQQueueName(routingKey), true, false, false, false, nil)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to declare DLQ queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, routingKey, DLQExchangeName, false, nil); err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to bind DLQ queue: %w", err)
	}
	return q, nil
}

func DLQQueueName(routingKey string) string {
	return routingKey + ".dlq"
}

// dlqHeaders 记录失败原因和时间，便于人工排查后重放
func dlqHeaders(routingKey, cause string, failedAt time.Time) amqp091.Table {
	if len(cause) > maxErrorHeader {
		cause = cause[:maxErrorHeader]
	}
	return amqp091.Table{
		"x-original-routing-key": routingKey,
		"x-original-error":       cause,
		"x-failed-at":            failedAt.UTC().Format(time.RFC3339),
	}
}

// PublishToDLQ parks a message that will never succeed. The body is kept
// byte-for-byte so it can be replayed onto the events exchange.
func (p *Publisher) PublishToDLQ(routingKey string, payload []byte, originalError string) error {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	err := p.channel.PublishWithContext(ctx, DLQExchangeName, routingKey, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp091.Persistent,
			Headers:      dlqHeaders(routingKey, originalError, time.Now()),
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s to dlq: %w", routingKey, err)
	}
	return nil
}
