package domain

// Outcome is the worker's verdict on one delivery of a claim event.
type Outcome string

const (
	// OutcomeAck removes the message; the event was applied or is a no-op
	OutcomeAck Outcome = "ack"

	// OutcomeRetry redelivers the message after a backoff
	OutcomeRetry Outcome = "retry"

	// OutcomeDeadLetter parks the message for operators without redelivery
	OutcomeDeadLetter Outcome = "dead_letter"
)
