package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/storefront-payments/internal/apperr"
	"github.com/imrishuroy/storefront-payments/internal/money"
	"github.com/imrishuroy/storefront-payments/internal/notify"
	"github.com/imrishuroy/storefront-payments/internal/payments"
)

// saveAttempts bounds read-modify-write retries on version conflicts.
const saveAttempts = 3

// IntentResolver resolves checkout sessions to payment intents.
type IntentResolver interface {
	BySession(ctx context.Context, sessionID string) (*payments.Resolution, error)
}

// Service applies the order and refund-request rules on top of a
// Repository and emits customer notifications.
type Service struct {
	repo     Repository
	resolver IntentResolver
	events   notify.Publisher
	logger   *zap.Logger
	currency string
	newID    func() string
}

func NewService(repo Repository, resolver IntentResolver, events notify.Publisher, currency string, logger *zap.Logger) *Service {
	if events == nil {
		events = notify.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		resolver: resolver,
		events:   events,
		logger:   logger,
		currency: currency,
		newID:    uuid.NewString,
	}
}

type CreateInput struct {
	UserID     string
	Email      string
	Title      string
	Amount     string
	StoreOrder bool
}

// Create stores a pending order. A repeated idempotency key returns the
// order created the first time with replayed set.
func (s *Service) Create(ctx context.Context, in CreateInput, idempotencyKey string) (o *Order, replayed bool, err error) {
	amount, err := money.Parse(in.Amount)
	if err != nil {
		return nil, false, apperr.Validation(apperr.CodeInvalidAmount, "amount must be a positive number")
	}
	minor := money.ToMinor(amount)
	if minor <= 0 {
		return nil, false, apperr.Validation(apperr.CodeInvalidAmount, "amount is below the smallest currency unit")
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, false, apperr.Validation(apperr.CodeMissingFields, "title is required")
	}

	o = &Order{
		OrderID:     s.newID(),
		UserID:      in.UserID,
		Email:       strings.TrimSpace(in.Email),
		Title:       strings.TrimSpace(in.Title),
		AmountMinor: minor,
		Currency:    s.currency,
		Status:      StatusPending,
		StoreOrder:  in.StoreOrder,
	}

	err = s.repo.Create(ctx, o, idempotencyKey)
	if errors.Is(err, ErrDuplicate) && idempotencyKey != "" {
		id, lookupErr := s.repo.OrderIDForKey(ctx, idempotencyKey)
		if lookupErr != nil {
			return nil, false, fmt.Errorf("lookup idempotency key: %w", lookupErr)
		}
		existing, getErr := s.repo.Get(ctx, id)
		if getErr != nil {
			return nil, false, getErr
		}
		if existing == nil {
			return nil, false, apperr.Conflict(apperr.CodeRequestInProgress, "a request with this idempotency key is still in progress")
		}
		s.logger.Info("order create replayed", zap.String("order_id", existing.OrderID))
		return existing, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("create order: %w", err)
	}

	s.logger.Info("order created", zap.String("order_id", o.OrderID), zap.Int64("amount", o.AmountMinor))
	s.emit(ctx, o, notify.Event{Type: notify.OrderCreated})
	return o, false, nil
}

func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if o == nil {
		return nil, apperr.NotFound(apperr.CodeOrderNotFound, "order not found")
	}
	return o, nil
}

// ConfirmPayment resolves the checkout session and marks the order paid
// when the session belongs to it, the intent succeeded and the amounts
// agree. Confirming an order already paid with the same intent is a no-op.
func (s *Service) ConfirmPayment(ctx context.Context, orderID, sessionID string) (*Order, error) {
	if _, err := s.Get(ctx, orderID); err != nil {
		return nil, err
	}
	res, err := s.resolver.BySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if res.OrderID != orderID {
		return nil, apperr.Conflict(apperr.CodePaymentMismatch, "checkout session does not belong to this order")
	}
	if res.Status != payments.IntentSucceeded {
		return nil, apperr.Conflict(apperr.CodePaymentMismatch, "payment has not succeeded")
	}

	return s.markPaid(ctx, orderID, res.PaymentIntentID, sessionID, res.AmountMinor)
}

// MarkPaidFromWebhook applies a completed checkout session to the order
// named in its metadata. Sessions without an order id are ignored.
func (s *Service) MarkPaidFromWebhook(ctx context.Context, sess *payments.Session) (*Order, error) {
	orderID := sess.Metadata[payments.MetadataOrderID]
	if orderID == "" {
		s.logger.Info("checkout session without order id", zap.String("session_id", sess.ID))
		return nil, nil
	}
	if sess.PaymentStatus != "paid" {
		s.logger.Info("checkout session not paid yet",
			zap.String("session_id", sess.ID), zap.String("payment_status", sess.PaymentStatus))
		return nil, nil
	}
	return s.markPaid(ctx, orderID, sess.PaymentIntentID, sess.ID, sess.AmountTotal)
}

func (s *Service) markPaid(ctx context.Context, orderID, intentID, sessionID string, amountMinor int64) (*Order, error) {
	changed := false
	o, err := s.mutate(ctx, orderID, func(o *Order) error {
		if amountMinor != o.AmountMinor {
			return apperr.Conflict(apperr.CodePaymentMismatch, "paid amount does not match the order")
		}
		if o.Status != StatusPending {
			if o.PaymentIntentID == intentID {
				changed = false
				return errNoChange
			}
			return apperr.Conflict(apperr.CodeInvalidTransition,
				fmt.Sprintf("order is %s and cannot be marked paid", o.Status))
		}
		o.Status = StatusPaid
		o.PaymentIntentID = intentID
		o.CheckoutSessionID = sessionID
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.logger.Info("order paid", zap.String("order_id", orderID), zap.String("payment_intent_id", intentID))
		s.emit(ctx, o, notify.Event{Type: notify.OrderPaid})
	}
	return o, nil
}

// Transition moves the order along its fulfilment lifecycle.
func (s *Service) Transition(ctx context.Context, orderID, next string) (*Order, error) {
	if !ValidStatus(next) {
		return nil, apperr.Validation(apperr.CodeInvalidTransition, fmt.Sprintf("unknown status %q", next))
	}
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, next) {
		return nil, apperr.Conflict(apperr.CodeInvalidTransition,
			fmt.Sprintf("cannot move order from %s to %s", o.Status, next))
	}

	err = s.repo.UpdateStatus(ctx, orderID, o.Status, next)
	if errors.Is(err, ErrStatusMismatch) {
		return nil, apperr.Conflict(apperr.CodeInvalidTransition, "order status changed concurrently")
	}
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	o, err = s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("order status changed", zap.String("order_id", orderID), zap.String("status", next))
	s.emit(ctx, o, notify.Event{Type: notify.OrderStatus, Status: next})
	return o, nil
}

// RequestRefund files a refund request. The order must be paid, shipped or
// delivered, and open requests may not exceed the order amount.
func (s *Service) RequestRefund(ctx context.Context, orderID, amount, reason string) (*RefundRequest, error) {
	d, err := money.Parse(amount)
	if err != nil || money.ToMinor(d) <= 0 {
		return nil, apperr.Validation(apperr.CodeInvalidAmount, "amount must be a positive number")
	}
	minor := money.ToMinor(d)

	var created RefundRequest
	o, err := s.mutate(ctx, orderID, func(o *Order) error {
		if !o.Refundable() {
			return apperr.Conflict(apperr.CodeRefundNotAllowed,
				fmt.Sprintf("refunds are not allowed for %s orders", o.Status))
		}
		if o.RefundCommitted()+minor > o.AmountMinor {
			return apperr.Conflict(apperr.CodeRefundNotAllowed, "refund exceeds the refundable amount")
		}
		now := time.Now().UTC()
		created = RefundRequest{
			ID:          s.newID(),
			AmountMinor: minor,
			Reason:      strings.TrimSpace(reason),
			Status:      RefundRequested,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		o.RefundRequests = append(o.RefundRequests, created)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("refund requested", zap.String("order_id", orderID), zap.String("refund_request_id", created.ID))
	s.emitRefund(ctx, o, &created, notify.RefundRequested)
	return &created, nil
}

func (s *Service) ApproveRefund(ctx context.Context, orderID, requestID, note string) (*RefundRequest, error) {
	return s.moveRefund(ctx, orderID, requestID, RefundApproved, func(r *RefundRequest) { r.Note = note })
}

func (s *Service) RejectRefund(ctx context.Context, orderID, requestID, note string) (*RefundRequest, error) {
	return s.moveRefund(ctx, orderID, requestID, RefundRejected, func(r *RefundRequest) { r.Note = note })
}

// ApprovedRefund returns the request if it is approved and ready to be
// submitted to the payment provider.
func (s *Service) ApprovedRefund(ctx context.Context, orderID, requestID string) (*Order, *RefundRequest, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	r := o.FindRefund(requestID)
	if r == nil {
		return nil, nil, apperr.NotFound(apperr.CodeRefundNotFound, "refund request not found")
	}
	if r.Status != RefundApproved {
		return nil, nil, apperr.Conflict(apperr.CodeInvalidTransition,
			fmt.Sprintf("refund request is %s, not approved", r.Status))
	}
	return o, r, nil
}

// CompleteRefund records the provider refund against an approved request.
func (s *Service) CompleteRefund(ctx context.Context, orderID, requestID, intentID, refundID string) (*RefundRequest, error) {
	return s.moveRefund(ctx, orderID, requestID, RefundProcessed, func(r *RefundRequest) {
		r.PaymentIntentID = intentID
		r.RefundID = refundID
	})
}

func (s *Service) moveRefund(ctx context.Context, orderID, requestID, next string, apply func(*RefundRequest)) (*RefundRequest, error) {
	var out RefundRequest
	o, err := s.mutate(ctx, orderID, func(o *Order) error {
		r := o.FindRefund(requestID)
		if r == nil {
			return apperr.NotFound(apperr.CodeRefundNotFound, "refund request not found")
		}
		if !CanTransitionRefund(r.Status, next) {
			return apperr.Conflict(apperr.CodeInvalidTransition,
				fmt.Sprintf("cannot move refund request from %s to %s", r.Status, next))
		}
		r.Status = next
		r.UpdatedAt = time.Now().UTC()
		apply(r)
		out = *r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("refund request updated",
		zap.String("order_id", orderID), zap.String("refund_request_id", requestID), zap.String("status", next))
	s.emitRefund(ctx, o, &out, "refund."+next)
	return &out, nil
}

// Reset deletes the order. Administrative use only.
func (s *Service) Reset(ctx context.Context, orderID string) error {
	if _, err := s.Get(ctx, orderID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, orderID); err != nil {
		return err
	}
	s.logger.Warn("order reset", zap.String("order_id", orderID))
	return nil
}

var errNoChange = errors.New("no change")

// mutate runs a read-modify-write on the order, retrying when another
// writer bumped the version in between. fn returning errNoChange skips the
// write and returns the current order.
func (s *Service) mutate(ctx context.Context, orderID string, fn func(*Order) error) (*Order, error) {
	for attempt := 1; ; attempt++ {
		o, err := s.Get(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if err := fn(o); err != nil {
			if errors.Is(err, errNoChange) {
				return o, nil
			}
			return nil, err
		}
		err = s.repo.Save(ctx, o)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, fmt.Errorf("save order: %w", err)
		}
		if attempt == saveAttempts {
			return nil, apperr.Conflict(apperr.CodeInvalidTransition, "order is being modified concurrently, retry")
		}
		s.logger.Debug("order version conflict, retrying", zap.String("order_id", orderID), zap.Int("attempt", attempt))
	}
}

func (s *Service) emit(ctx context.Context, o *Order, ev notify.Event) {
	ev.OrderID = o.OrderID
	ev.Email = o.Email
	ev.Title = o.Title
	ev.Currency = o.Currency
	if ev.Amount == "" {
		ev.Amount = money.FromMinor(o.AmountMinor).StringFixed(2)
	}
	ev.OccurredAt = time.Now().UTC()
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish event failed", zap.String("type", ev.Type), zap.String("order_id", o.OrderID), zap.Error(err))
	}
}

func (s *Service) emitRefund(ctx context.Context, o *Order, r *RefundRequest, typ string) {
	s.emit(ctx, o, notify.Event{
		Type:            typ,
		RefundRequestID: r.ID,
		Amount:          money.FromMinor(r.AmountMinor).StringFixed(2),
		Reason:          r.Note,
	})
}
