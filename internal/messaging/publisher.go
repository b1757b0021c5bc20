package messaging

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sweshisj/HealthcareApp/internal/domain"
)

// ClaimPublisher implements domain.EventPublisher on top of a confirming Publisher.
type ClaimPublisher struct {
	publisher  Publisher
	exchange   string
	routingKey string
	clock      domain.Clock
}

// NewClaimPublisher creates a ClaimPublisher for the given exchange and routing key.
func NewClaimPublisher(publisher Publisher, exchange, routingKey string, clock domain.Clock) *ClaimPublisher {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &ClaimPublisher{
		publisher:  publisher,
		exchange:   exchange,
		routingKey: routingKey,
		clock:      clock,
	}
}

// PublishClaimSubmitted publishes a claim-submitted event. The event gets a
// ULID when it has none, and that id doubles as the AMQP message id.
func (p *ClaimPublisher) PublishClaimSubmitted(ctx context.Context, event *domain.ClaimSubmittedEvent) error {
	if event.EventID == "" {
		event.EventID = ulid.Make().String()
	}

	body, err := EncodeClaimSubmitted(event)
	if err != nil {
		return domain.Permanent(err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.EventID,
		Type:         EventTypeClaimSubmitted,
		Timestamp:    p.clock.Now(),
		Headers: amqp.Table{
			headerClaimID: event.ClaimID.String(),
		},
		Body: body,
	}

	if err := p.publisher.Publish(ctx, p.exchange, p.routingKey, msg); err != nil {
		return domain.Transient(fmt.Errorf("failed to publish claim %s: %w", event.ClaimID, err))
	}
	return nil
}
