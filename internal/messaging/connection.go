package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrChannelUnavailable is returned while the connection is down or reconnecting.
var ErrChannelUnavailable = errors.New("RabbitMQ channel is not initialized or closed")

// SetupFunc runs on every freshly opened channel, before it is handed out.
// It is where the topology is declared.
type SetupFunc func(ch *amqp.Channel) error

// Publisher publishes a single message and waits for the broker to confirm it.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error
}

// Connection manages a RabbitMQ connection and a confirm-mode channel
// with automatic recovery.
type Connection struct {
	url          string
	name         string
	setup        SetupFunc
	logger       *zap.Logger
	conn         *amqp.Connection
	channel      *amqp.Channel
	stopChan     chan struct{}
	mu           sync.RWMutex
	reconnecting bool
	reconnectMu  sync.Mutex

	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewConnection creates a new Connection instance. setup may be nil.
func NewConnection(url, name string, setup SetupFunc, logger *zap.Logger) *Connection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connection{
		url:            url,
		name:           name,
		setup:          setup,
		logger:         logger.With(zap.String("connection_name", name)),
		stopChan:       make(chan struct{}),
		initialBackoff: time.Second,
		maxBackoff:     30 * time.Second,
	}
}

// Connect establishes the connection, retrying with exponential backoff
// up to maxAttempts times, then starts monitoring for reconnection.
func (c *Connection) Connect(ctx context.Context, maxAttempts int) error {
	backoff := c.initialBackoff

	for attempt := 1; ; attempt++ {
		c.logger.Info("Attempting initial connection to RabbitMQ",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
		)

		err := c.connect()
		if err == nil {
			c.logger.Info("Initial connection to RabbitMQ established", zap.Int("attempt", attempt))
			break
		}
		if attempt >= maxAttempts {
			return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxAttempts, err)
		}

		c.logger.Warn("Initial connection to RabbitMQ failed, retrying...",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, c.maxBackoff)
	}

	go c.monitorConnection()

	return nil
}

// connect performs the actual connection logic
func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil && !c.channel.IsClosed() {
		c.channel.Close()
	}
	if c.conn != nil && !c.conn.IsClosed() {
		c.conn.Close()
	}

	// Heartbeat: 10 seconds (helps detect dead connections quickly)
	amqpConfig := amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Properties: amqp.Table{
			"connection_name": c.name,
		},
	}

	conn, err := amqp.DialConfig(c.url, amqpConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	if c.setup != nil {
		if err := c.setup(ch); err != nil {
			conn.Close()
			return fmt.Errorf("failed to set up channel: %w", err)
		}
	}

	c.conn = conn
	c.channel = ch

	c.logger.Info("Successfully connected to RabbitMQ",
		zap.Duration("heartbeat", amqpConfig.Heartbeat),
	)
	return nil
}

// monitorConnection monitors the connection and automatically reconnects on failure
func (c *Connection) monitorConnection() {
	for {
		c.mu.RLock()
		if c.conn == nil || c.channel == nil {
			c.mu.RUnlock()
			c.logger.Error("Connection or channel not initialized, cannot monitor connection")
			return
		}
		connClose := c.conn.NotifyClose(make(chan *amqp.Error, 1))
		channelClose := c.channel.NotifyClose(make(chan *amqp.Error, 1))
		c.mu.RUnlock()

		select {
		case <-c.stopChan:
			return
		case err := <-connClose:
			if err == nil {
				// Closed on purpose.
				return
			}
			c.logger.Error("RabbitMQ connection closed, attempting to reconnect",
				zap.Error(err),
				zap.String("reason", err.Reason),
			)
		case err := <-channelClose:
			if err == nil {
				return
			}
			c.logger.Error("RabbitMQ channel closed, attempting to reconnect",
				zap.Error(err),
				zap.String("reason", err.Reason),
			)
		}

		if !c.reconnect() {
			return
		}
	}
}

// reconnect attempts to reconnect with exponential backoff until it
// succeeds or the connection is closed. Reports whether it reconnected.
func (c *Connection) reconnect() bool {
	c.reconnectMu.Lock()
	if c.reconnecting {
		c.reconnectMu.Unlock()
		return false
	}
	c.reconnecting = true
	c.reconnectMu.Unlock()

	defer func() {
		c.reconnectMu.Lock()
		c.reconnecting = false
		c.reconnectMu.Unlock()
	}()

	backoff := c.initialBackoff
	for attempt := 1; ; attempt++ {
		select {
		case <-c.stopChan:
			return false
		default:
		}

		c.logger.Info("Attempting to reconnect to RabbitMQ",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
		)

		if err := c.connect(); err != nil {
			c.logger.Warn("Failed to reconnect to RabbitMQ, retrying...",
				zap.Error(err),
				zap.Int("attempt", attempt),
			)
			select {
			case <-c.stopChan:
				return false
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, c.maxBackoff)
			continue
		}

		c.logger.Info("Successfully reconnected to RabbitMQ", zap.Int("attempt", attempt))
		return true
	}
}

// Close closes the RabbitMQ connection and channel and stops reconnection monitoring
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.stopChan:
		// Already closed
	default:
		close(c.stopChan)
	}

	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.logger.Info("RabbitMQ connection closed")
	}
}

// currentChannel returns the open channel or ErrChannelUnavailable.
func (c *Connection) currentChannel() (*amqp.Channel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil || c.conn.IsClosed() || c.channel == nil || c.channel.IsClosed() {
		return nil, ErrChannelUnavailable
	}
	return c.channel, nil
}

// Publish publishes msg and blocks until the broker confirms it. A missing
// channel is retried a few times to ride out a reconnect.
func (c *Connection) Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	const maxRetries = 3
	retryDelay := 100 * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		ch, err := c.currentChannel()
		if err == nil {
			lastErr = c.publishConfirmed(ctx, ch, exchange, routingKey, msg)
			if lastErr == nil || !ch.IsClosed() {
				return lastErr
			}
		} else {
			lastErr = err
		}

		if attempt == maxRetries {
			break
		}
		c.logger.Warn("RabbitMQ channel not available for publish, retrying...",
			zap.Error(lastErr),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, ctx.Err())
		case <-time.After(retryDelay):
		}
		retryDelay *= 2
	}

	return fmt.Errorf("failed to publish message after %d attempts: %w", maxRetries, lastErr)
}

func (c *Connection) publishConfirmed(ctx context.Context, ch *amqp.Channel, exchange, routingKey string, msg amqp.Publishing) error {
	if msg.DeliveryMode == 0 {
		msg.DeliveryMode = amqp.Persistent
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	confirmation, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchange, routingKey, false, false, msg)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed waiting for publisher confirm: %w", err)
	}
	if !acked {
		return errors.New("broker rejected published message")
	}
	return nil
}

// Consume starts a manual-ack consumer on queue after applying prefetch.
func (c *Connection) Consume(queue, consumerTag string, prefetch int) (<-chan amqp.Delivery, error) {
	ch, err := c.currentChannel()
	if err != nil {
		return nil, err
	}

	if err := ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := ch.Consume(
		queue,       // queue
		consumerTag, // consumer
		false,       // auto-ack (we'll ack manually)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	return deliveries, nil
}

// CancelConsumer stops the broker from sending further deliveries to consumerTag.
func (c *Connection) CancelConsumer(consumerTag string) error {
	ch, err := c.currentChannel()
	if err != nil {
		return err
	}
	return ch.Cancel(consumerTag, false)
}

// IsHealthy checks if the connection and channel are healthy
func (c *Connection) IsHealthy() bool {
	_, err := c.currentChannel()
	return err == nil
}
