// Package notify carries customer notifications: order and refund events
// queued on SQS, and the email they are rendered into.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/storefront-payments/internal/aws"
)

// Event types
const (
	OrderCreated    = "order.created"
	OrderPaid       = "order.paid"
	OrderStatus     = "order.status_changed"
	RefundRequested = "refund.requested"
	RefundApproved  = "refund.approved"
	RefundRejected  = "refund.rejected"
	RefundProcessed = "refund.processed"
)

// Event is the payload sent from API -> SQS -> worker.
type Event struct {
	Type            string    `json:"type"`
	OrderID         string    `json:"orderId"`
	Email           string    `json:"email,omitempty"`
	Title           string    `json:"title,omitempty"`
	Amount          string    `json:"amount,omitempty"` // decimal, e.g. "20.00"
	Currency        string    `json:"currency,omitempty"`
	Status          string    `json:"status,omitempty"`
	RefundRequestID string    `json:"refundRequestId,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	OccurredAt      time.Time `json:"occurredAt"`
}

// Publisher hands events to the notification pipeline.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop drops every event. It is used when no queue is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// QueuePublisher publishes events as JSON SQS messages.
type QueuePublisher struct {
	queue  *aws.Publisher
	logger *zap.Logger
}

func NewQueuePublisher(queue *aws.Publisher, logger *zap.Logger) *QueuePublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueuePublisher{queue: queue, logger: logger}
}

func (p *QueuePublisher) Publish(ctx context.Context, ev Event) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.queue.Send(ctx, string(body), map[string]string{"type": ev.Type}); err != nil {
		return err
	}
	p.logger.Debug("event published", zap.String("type", ev.Type), zap.String("order_id", ev.OrderID))
	return nil
}
