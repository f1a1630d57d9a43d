package mq

import (
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// DLQName returns the dead letter queue name for a work queue.
func DLQName(queueName string) string {
	return queueName + ".dlq"
}

// DeclareDLQExchange declares the dead letter exchange.
func DeclareDLQExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(
		DLQExchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

// DeclareDLQQueue declares the dead letter queue paired with a work queue.
func DeclareDLQQueue(ch *amqp091.Channel, queueName, routingKey string) (amqp091.Queue, error) {
	q, err := ch.QueueDeclare(
		DLQName(queueName),
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to declare DLQ queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, routingKey, DLQExchangeName, false, nil); err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to bind DLQ queue: %w", err)
	}

	return q, nil
}

// DeadLetterHeaders builds the headers attached to a dead-lettered message.
func DeadLetterHeaders(original amqp091.Table, queueName, errorType, reason string) amqp091.Table {
	headers := amqp091.Table{}
	for k, v := range original {
		headers[k] = v
	}
	headers["x-original-queue"] = queueName
	headers["x-error-type"] = errorType
	headers["x-original-error"] = reason
	headers["x-failed-at"] = time.Now().UTC().Format(time.RFC3339)
	return headers
}

func publishToDLQ(ch *amqp091.Channel, routingKey string, msg amqp091.Delivery, headers amqp091.Table) error {
	return ch.Publish(
		DLQExchangeName,
		routingKey,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			MessageId:    msg.MessageId,
			Body:         msg.Body,
			DeliveryMode: amqp091.Persistent,
			Headers:      headers,
		},
	)
}
