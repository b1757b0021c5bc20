package messaging

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/sweshisj/HealthcareApp/internal/domain"
)

const (
	headerClaimID          = "x-claim-id"
	headerRetryCount       = "x-retry-count"
	headerDeliveryCount    = "x-delivery-count"
	headerDeadLetterReason = "x-dead-letter-reason"
	headerOriginalQueue    = "x-original-queue"
)

// settleTimeout bounds the retry and dead-letter publishes issued while
// settling a delivery, including during shutdown.
const settleTimeout = 5 * time.Second

// retryBackoff is indexed by failed attempt number, starting at 1.
var retryBackoff = []time.Duration{
	1 * time.Second,
	5 * time.Second,
	15 * time.Second,
	30 * time.Second,
	60 * time.Second,
}

// RetryDelay returns how long a message waits in the retry queue after its
// attempt-th failed delivery.
func RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(retryBackoff) {
		return retryBackoff[len(retryBackoff)-1]
	}
	return retryBackoff[attempt-1]
}

// Attempt returns the 1-based delivery attempt of a message. It counts
// trips through the retry queue plus broker redeliveries of the current copy.
func Attempt(headers amqp.Table) int {
	return 1 + headerInt(headers[headerRetryCount]) + headerInt(headers[headerDeliveryCount])
}

func headerInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int8:
		return int(n)
	case int16:
		return int(n)
	case int32:
		return int(n)
	case int64:
		return int(n)
	case uint8:
		return int(n)
	case uint16:
		return int(n)
	case uint32:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}

// EventHandler processes one decoded claim-submitted event.
type EventHandler interface {
	OnEvent(ctx context.Context, event *domain.ClaimSubmittedEvent) domain.Outcome
}

// OutcomeRecorder observes how each delivery was settled.
type OutcomeRecorder interface {
	ObserveOutcome(outcome domain.Outcome)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOutcome(domain.Outcome) {}

// ConsumerConfig tunes a Consumer.
type ConsumerConfig struct {
	ConsumerTag string
	Prefetch    int
	Concurrency int
}

// Consumer reads claim events from the adjudication queue and settles each
// delivery according to the handler's outcome.
type Consumer struct {
	conn         *Connection
	publisher    Publisher
	topology     Topology
	handler      EventHandler
	cfg          ConsumerConfig
	recorder     OutcomeRecorder
	logger       *zap.Logger
	restartDelay time.Duration
}

// NewConsumer creates a Consumer. Retries and dead letters are published
// through publisher, which should sit on a different connection than conn.
func NewConsumer(
	conn *Connection,
	publisher Publisher,
	topology Topology,
	handler EventHandler,
	cfg ConsumerConfig,
	recorder OutcomeRecorder,
	logger *zap.Logger,
) *Consumer {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Prefetch < cfg.Concurrency {
		cfg.Prefetch = cfg.Concurrency
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		conn:         conn,
		publisher:    publisher,
		topology:     topology,
		handler:      handler,
		cfg:          cfg,
		recorder:     recorder,
		logger:       logger,
		restartDelay: 2 * time.Second,
	}
}

// Run consumes until ctx is cancelled. When the delivery channel closes,
// for example after a broker restart, it subscribes again once the
// connection has recovered.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("RabbitMQ consumer started",
		zap.String("queue", c.topology.Queue),
		zap.Int("concurrency", c.cfg.Concurrency),
		zap.Int("prefetch", c.cfg.Prefetch),
	)

	for {
		deliveries, err := c.conn.Consume(c.topology.Queue, c.cfg.ConsumerTag, c.cfg.Prefetch)
		if err != nil {
			c.logger.Warn("Failed to start consuming, retrying...", zap.Error(err))
		} else {
			c.consume(ctx, deliveries)
		}

		if ctx.Err() != nil {
			c.logger.Info("Context cancelled, stopping RabbitMQ consumer")
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.restartDelay):
		}
	}
}

// consume fans deliveries out to the worker goroutines and returns once
// they have all stopped.
func (c *Consumer) consume(ctx context.Context, deliveries <-chan amqp.Delivery) {
	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					c.handle(ctx, d)
				}
			}
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		if c.cfg.ConsumerTag != "" {
			if err := c.conn.CancelConsumer(c.cfg.ConsumerTag); err != nil {
				c.logger.Debug("Failed to cancel consumer", zap.Error(err))
			}
		}
		return
	}
	c.logger.Warn("Delivery channel closed, resubscribing")
}

// handle decodes and dispatches one delivery, then settles it.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) (outcome domain.Outcome) {
	attempt := Attempt(d.Headers)
	logger := c.logger.With(
		zap.String("message_id", d.MessageId),
		zap.Int("attempt", attempt),
	)

	event, err := DecodeClaimSubmitted(d.Body)
	if err != nil {
		logger.Error("Discarding malformed claim event", zap.Error(err))
		c.deadLetter(ctx, d, attempt, err.Error(), logger)
		c.recorder.ObserveOutcome(domain.OutcomeDeadLetter)
		return domain.OutcomeDeadLetter
	}
	logger = logger.With(zap.String("claim_id", event.ClaimID.String()))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Event handler panicked", zap.Any("panic", r))
			outcome = c.retry(ctx, d, attempt, logger)
			c.recorder.ObserveOutcome(outcome)
		}
	}()

	switch outcome = c.handler.OnEvent(ctx, event); outcome {
	case domain.OutcomeAck:
		if err := d.Ack(false); err != nil {
			logger.Error("Failed to ack message", zap.Error(err))
		}
	case domain.OutcomeDeadLetter:
		c.deadLetter(ctx, d, attempt, "rejected by adjudication", logger)
	default:
		outcome = c.retry(ctx, d, attempt, logger)
	}

	c.recorder.ObserveOutcome(outcome)
	return outcome
}

// retry schedules d for another attempt through the retry queue, or dead
// letters it once the delivery budget is spent.
func (c *Consumer) retry(ctx context.Context, d amqp.Delivery, attempt int, logger *zap.Logger) domain.Outcome {
	if attempt >= c.topology.MaxDeliveries {
		reason := fmt.Sprintf("gave up after %d attempts", attempt)
		logger.Warn("Delivery limit reached", zap.Int("max_deliveries", c.topology.MaxDeliveries))
		c.deadLetter(ctx, d, attempt, reason, logger)
		return domain.OutcomeDeadLetter
	}

	delay := RetryDelay(attempt)
	msg := republishing(d, attempt)
	msg.Expiration = strconv.FormatInt(delay.Milliseconds(), 10)

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	if err := c.publisher.Publish(pubCtx, c.topology.RetryExchange, c.topology.RoutingKey, msg); err != nil {
		// The broker redelivers a requeued message and the quorum
		// delivery limit still bounds it.
		logger.Warn("Failed to schedule retry, requeueing", zap.Error(err))
		if err := d.Nack(false, true); err != nil {
			logger.Error("Failed to nack message", zap.Error(err))
		}
		return domain.OutcomeRetry
	}

	if err := d.Ack(false); err != nil {
		logger.Error("Failed to ack retried message", zap.Error(err))
	}
	logger.Info("Scheduled claim event retry", zap.Duration("delay", delay))
	return domain.OutcomeRetry
}

// deadLetter routes d to the dead-letter queue with the reason attached.
// If that publish fails the message is rejected, which lands it in the
// same queue through the queue's dead-letter exchange.
func (c *Consumer) deadLetter(ctx context.Context, d amqp.Delivery, attempt int, reason string, logger *zap.Logger) {
	msg := republishing(d, attempt)
	msg.Headers[headerDeadLetterReason] = reason
	msg.Headers[headerOriginalQueue] = c.topology.Queue

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	if err := c.publisher.Publish(pubCtx, c.topology.DeadLetterExchange, c.topology.RoutingKey, msg); err != nil {
		logger.Warn("Failed to publish dead letter, rejecting", zap.Error(err))
		if err := d.Nack(false, false); err != nil {
			logger.Error("Failed to reject message", zap.Error(err))
		}
		return
	}

	if err := d.Ack(false); err != nil {
		logger.Error("Failed to ack dead-lettered message", zap.Error(err))
	}
	logger.Warn("Claim event dead-lettered", zap.String("reason", reason))
}

// republishing copies d into a new message that records attempt as its
// retry count. The broker's own delivery count is folded into it.
func republishing(d amqp.Delivery, attempt int) amqp.Publishing {
	headers := make(amqp.Table, len(d.Headers)+2)
	for k, v := range d.Headers {
		headers[k] = v
	}
	delete(headers, headerDeliveryCount)
	headers[headerRetryCount] = int32(attempt)

	return amqp.Publishing{
		Headers:         headers,
		ContentType:     d.ContentType,
		ContentEncoding: d.ContentEncoding,
		DeliveryMode:    amqp.Persistent,
		CorrelationId:   d.CorrelationId,
		MessageId:       d.MessageId,
		Timestamp:       d.Timestamp,
		Type:            d.Type,
		Body:            d.Body,
	}
}
