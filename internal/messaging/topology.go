package messaging

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sweshisj/HealthcareApp/internal/config"
)

// Topology names the exchanges and queues of the claims pipeline.
//
//	Exchange (topic) --RoutingKey--> Queue (quorum)
//	Queue rejects and delivery-limit overflows --> DeadLetterExchange --> DeadLetterQueue
//	RetryExchange --> RetryQueue, whose expired messages route back to Exchange
type Topology struct {
	Exchange           string
	RoutingKey         string
	Queue              string
	RetryExchange      string
	RetryQueue         string
	DeadLetterExchange string
	DeadLetterQueue    string
	MaxDeliveries      int
}

// NewTopology takes the topology names from configuration.
func NewTopology(cfg config.RabbitMQConfig) Topology {
	return Topology{
		Exchange:           cfg.Exchange,
		RoutingKey:         cfg.RoutingKey,
		Queue:              cfg.Queue,
		RetryExchange:      cfg.RetryExchange,
		RetryQueue:         cfg.RetryQueue,
		DeadLetterExchange: cfg.DeadLetterExchange,
		DeadLetterQueue:    cfg.DeadLetterQueue,
		MaxDeliveries:      cfg.MaxDeliveries,
	}
}

// Declare idempotently declares every exchange, queue and binding.
// It is used as the SetupFunc of both the publishing and consuming connections.
func (t Topology) Declare(ch *amqp.Channel) error {
	exchanges := []struct {
		name string
		kind string
	}{
		{t.Exchange, amqp.ExchangeTopic},
		{t.RetryExchange, amqp.ExchangeDirect},
		{t.DeadLetterExchange, amqp.ExchangeDirect},
	}
	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			ex.name, // name
			ex.kind, // type
			true,    // durable
			false,   // auto-deleted
			false,   // internal
			false,   // no-wait
			nil,     // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", ex.name, err)
		}
	}

	queues := []struct {
		name     string
		exchange string
		args     amqp.Table
	}{
		{
			name:     t.Queue,
			exchange: t.Exchange,
			args: amqp.Table{
				amqp.QueueTypeArg:           amqp.QueueTypeQuorum,
				"x-delivery-limit":          int32(t.MaxDeliveries),
				"x-dead-letter-exchange":    t.DeadLetterExchange,
				"x-dead-letter-routing-key": t.RoutingKey,
			},
		},
		{
			name:     t.RetryQueue,
			exchange: t.RetryExchange,
			args: amqp.Table{
				"x-dead-letter-exchange":    t.Exchange,
				"x-dead-letter-routing-key": t.RoutingKey,
			},
		},
		{
			name:     t.DeadLetterQueue,
			exchange: t.DeadLetterExchange,
		},
	}
	for _, q := range queues {
		_, err := ch.QueueDeclare(
			q.name, // name
			true,   // durable
			false,  // delete when unused
			false,  // exclusive
			false,  // no-wait
			q.args, // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", q.name, err)
		}

		err = ch.QueueBind(
			q.name,       // queue name
			t.RoutingKey, // routing key
			q.exchange,   // exchange
			false,
			nil,
		)
		if err != nil {
			return fmt.Errorf("failed to bind queue %s to %s: %w", q.name, q.exchange, err)
		}
	}

	return nil
}
