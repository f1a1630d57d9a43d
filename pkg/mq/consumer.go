package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"webmail/pkg/metrics"
	"webmail/pkg/otel"
	"webmail/pkg/trace"
	"webmail/pkg/util"
)

type MessageHandler func(ctx context.Context, data json.RawMessage) error

// RetryTracker 记录每条消息的重试次数
type RetryTracker interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type Consumer struct {
	conn       *amqp091.Connection
	channel    *amqp091.Channel
	queue      amqp091.Queue
	routingKey string
	tag        string
	handler    MessageHandler
	retries    RetryTracker
	maxRetries int64
	logger     *zap.Logger

	stopOnce sync.Once
}

// NewConsumer creates a consumer for a specific routing key, with its DLQ declared.
func NewConsumer(url, queueName, routingKey string, logger *zap.Logger) (*Consumer, error) {
	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	cleanup := func() {
		ch.Close()
		conn.Close()
	}

	if err := DeclareExchange(ch); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	if err := DeclareDLQExchange(ch); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to declare dlq exchange: %w", err)
	}

	q, err := DeclareQueue(ch, queueName, routingKey)
	if err != nil {
		cleanup()
		return nil, err
	}
	if _, err := DeclareDLQQueue(ch, queueName, routingKey); err != nil {
		cleanup()
		return nil, err
	}

	if err := ch.Qos(10, 0, false); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	logger.Info("Consumer initialized",
		zap.String("routing_key", routingKey),
		zap.String("queue", queueName),
		zap.String("exchange", ExchangeName),
	)

	return &Consumer{
		conn:       conn,
		channel:    ch,
		queue:      q,
		routingKey: routingKey,
		tag:        "worker-" + queueName,
		maxRetries: 3,
		logger:     logger,
	}, nil
}

func (c *Consumer) SetHandler(h MessageHandler) {
	c.handler = h
}

// SetRetryPolicy 配置重试计数器；未配置时可重试错误直接重新入队
func (c *Consumer) SetRetryPolicy(retries RetryTracker, maxRetries int64) {
	c.retries = retries
	c.maxRetries = maxRetries
}

// Stop cancels the delivery stream; StartConsuming returns once in-flight messages are settled.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() {
		if err := c.channel.Cancel(c.tag, false); err != nil {
			c.logger.Warn("Failed to cancel consumer", zap.String("queue", c.queue.Name), zap.Error(err))
		}
	})
}

func (c *Consumer) Close() {
	c.Stop()
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// StartConsuming starts consuming messages. This method blocks and should be called in a goroutine.
func (c *Consumer) StartConsuming(ctx context.Context) error {
	if c.handler == nil {
		return fmt.Errorf("consumer handler not set")
	}

	deliveries, err := c.channel.Consume(
		c.queue.Name,
		c.tag,
		false, // 手动ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer started consuming messages",
		zap.String("routing_key", c.routingKey),
		zap.String("queue", c.queue.Name),
	)

	for {
		select {
		case <-ctx.Done():
			c.Stop()
			// 排空已投递的消息
			for msg := range deliveries {
				c.handle(context.Background(), msg)
			}
			return nil
		case msg, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handle(ctx, msg)
		}
	}
}

// handle 保证每条消息都会被 ack、nack 或转入 DLQ
func (c *Consumer) handle(ctx context.Context, msg amqp091.Delivery) {
	start := time.Now()

	traceID, _ := msg.Headers[trace.HeaderName].(string)
	if traceID == "" {
		traceID = trace.GenerateTraceID()
	}
	ctx = trace.WithContext(ctx, traceID)
	ctx, span := otel.MQConsumeSpan(ctx, c.queue.Name, c.routingKey, msg.Headers)
	defer span.End()

	log := c.logger.With(
		zap.String("trace_id", traceID),
		zap.String("routing_key", c.routingKey),
		zap.String("queue", c.queue.Name),
		zap.String("message_id", msg.MessageId),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Handler panic recovered", zap.Any("panic", r))
			c.deadLetter(ctx, log, msg, "panic", fmt.Sprint(r))
		}
	}()

	err := c.handler(ctx, msg.Body)
	metrics.RecordMQConsumeLatency(c.routingKey, c.queue.Name, time.Since(start))

	if err == nil {
		if c.retries != nil && msg.MessageId != "" {
			_ = c.retries.Reset(ctx, util.FormatRetryKey(c.queue.Name, msg.MessageId))
		}
		if err := msg.Ack(false); err != nil {
			log.Error("Failed to ack message", zap.Error(err))
		}
		return
	}

	span.RecordError(err)
	retryable, errorType := util.IsRetryableError(err)
	log.Error("Handler error",
		zap.Bool("retryable", retryable),
		zap.String("error_type", errorType),
		zap.Error(err),
	)

	if !retryable {
		c.deadLetter(ctx, log, msg, errorType, err.Error())
		return
	}

	if c.retries != nil && msg.MessageId != "" {
		count, cerr := c.retries.IncrementAndGet(ctx, util.FormatRetryKey(c.queue.Name, msg.MessageId))
		if cerr == nil && !util.ShouldRetry(count, c.maxRetries, true) {
			log.Warn("Retry budget exhausted", zap.Int64("retry_count", count))
			c.deadLetter(ctx, log, msg, errorType, err.Error())
			return
		}
	}

	if err := msg.Nack(false, true); err != nil {
		log.Error("Failed to nack message", zap.Error(err))
	}
}

func (c *Consumer) deadLetter(ctx context.Context, log *zap.Logger, msg amqp091.Delivery, errorType, reason string) {
	headers := DeadLetterHeaders(msg.Headers, c.queue.Name, errorType, reason)
	if err := publishToDLQ(c.channel, c.routingKey, msg, headers); err != nil {
		log.Error("Failed to publish to DLQ, requeueing", zap.Error(err))
		_ = msg.Nack(false, true)
		return
	}
	if c.retries != nil && msg.MessageId != "" {
		_ = c.retries.Reset(ctx, util.FormatRetryKey(c.queue.Name, msg.MessageId))
	}
	if err := msg.Ack(false); err != nil {
		log.Error("Failed to ack dead-lettered message", zap.Error(err))
	}
	log.Warn("Message moved to DLQ", zap.String("error_type", errorType))
}
