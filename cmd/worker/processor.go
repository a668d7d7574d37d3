package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/imrishuroy/storefront-payments/internal/apperr"
	"github.com/imrishuroy/storefront-payments/internal/idempotency"
	"github.com/imrishuroy/storefront-payments/internal/notify"
)

// Processor turns queued order and refund events into customer email.
type Processor struct {
	sender notify.Sender
	keys   deliveryKeys
	logger *zap.Logger
}

// NewProcessor creates a processor. keys may be nil, in which case
// redelivered messages are sent again.
func NewProcessor(sender notify.Sender, keys deliveryKeys, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{sender: sender, keys: keys, logger: logger}
}

// Handle processes an SQS batch. Messages that fail transiently are
// reported back so only they are retried; the rest of the batch is
// deleted. Malformed messages and permanent failures are logged and
// dropped.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.logger.Warn("message will be retried", zap.String("message_id", rec.MessageId), zap.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var ev notify.Event
	if err := json.Unmarshal([]byte(rec.Body), &ev); err != nil {
		p.logger.Error("dropping malformed message", zap.String("message_id", rec.MessageId), zap.Error(err))
		return nil
	}
	log := p.logger.With(
		zap.String("message_id", rec.MessageId),
		zap.String("type", ev.Type),
		zap.String("order_id", ev.OrderID),
	)

	msg, ok := notify.Render(ev)
	if !ok {
		log.Debug("event does not notify the customer")
		return nil
	}

	key := ""
	if p.keys != nil && rec.MessageId != "" {
		key = deliveryKeyPrefix + rec.MessageId
		decision, _, err := p.keys.Begin(ctx, key, "")
		if err != nil {
			return fmt.Errorf("claim delivery: %w", err)
		}
		switch decision {
		case idempotency.Replay:
			log.Info("email already sent")
			return nil
		case idempotency.Busy:
			return fmt.Errorf("delivery of %s is in progress elsewhere", rec.MessageId)
		}
	}

	if err := p.sender.Send(ctx, msg); err != nil {
		if key != "" {
			if mfErr := p.keys.MarkFailed(ctx, key, err.Error()); mfErr != nil {
				log.Warn("mark delivery failed", zap.Error(mfErr))
			}
		}
		if permanent(err) {
			log.Error("dropping undeliverable email", zap.Error(err))
			return nil
		}
		return fmt.Errorf("send email: %w", err)
	}

	if key != "" {
		if err := p.keys.MarkDone(ctx, key, ev.OrderID, "", 0); err != nil {
			log.Warn("mark delivery done", zap.Error(err))
		}
	}
	log.Info("email sent")
	return nil
}

// permanent reports errors a retry cannot fix.
func permanent(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindConfig, apperr.KindValidation:
		return true
	}
	return false
}
