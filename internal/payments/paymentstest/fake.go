// Package paymentstest provides an in-memory payments.Provider for tests.
package paymentstest

import (
	"context"
	"fmt"
	"sync"

	"github.com/imrishuroy/storefront-payments/internal/payments"
)

// Provider records every call and serves sessions and intents from maps.
// Set the *Err fields to make the corresponding call fail.
type Provider struct {
	mu sync.Mutex

	Sessions map[string]*payments.Session
	Intents  map[string]*payments.Intent
	// Listed is returned verbatim by ListIntents, in provider order.
	Listed []payments.Intent

	CreateSessionErr error
	RetrieveErr      error
	ListErr          error
	RefundErr        error
	// RefundStatus defaults to "succeeded".
	RefundStatus string

	SessionCalls  []payments.SessionParams
	RefundCalls   []payments.RefundParams
	ListCalls     []payments.IntentFilter
	RetrieveCalls int
}

func New() *Provider {
	return &Provider{
		Sessions: map[string]*payments.Session{},
		Intents:  map[string]*payments.Intent{},
	}
}

// Calls returns the total number of provider calls made.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SessionCalls) + len(p.RefundCalls) + len(p.ListCalls) + p.RetrieveCalls
}

func (p *Provider) CreateSession(_ context.Context, params payments.SessionParams) (*payments.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SessionCalls = append(p.SessionCalls, params)
	if p.CreateSessionErr != nil {
		return nil, p.CreateSessionErr
	}
	id := fmt.Sprintf("cs_test_%d", len(p.SessionCalls))
	s := &payments.Session{
		ID:            id,
		URL:           "https://checkout.example.com/pay/" + id,
		Status:        "open",
		AmountTotal:   params.UnitAmount,
		CustomerEmail: params.CustomerEmail,
		Metadata:      params.Metadata,
	}
	p.Sessions[id] = s
	return s, nil
}

func (p *Provider) RetrieveSession(_ context.Context, id string) (*payments.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.RetrieveCalls++
	if p.RetrieveErr != nil {
		return nil, p.RetrieveErr
	}
	s, ok := p.Sessions[id]
	if !ok {
		return nil, &payments.ProviderError{Op: "session.retrieve", Code: "resource_missing", Param: "id", HTTPStatus: 404}
	}
	return s, nil
}

func (p *Provider) RetrieveIntent(_ context.Context, id string) (*payments.Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.RetrieveCalls++
	if p.RetrieveErr != nil {
		return nil, p.RetrieveErr
	}
	pi, ok := p.Intents[id]
	if !ok {
		return nil, &payments.ProviderError{Op: "intent.retrieve", Code: "resource_missing", Param: "intent", HTTPStatus: 404}
	}
	return pi, nil
}

func (p *Provider) ListIntents(_ context.Context, f payments.IntentFilter) ([]payments.Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListCalls = append(p.ListCalls, f)
	if p.ListErr != nil {
		return nil, p.ListErr
	}
	return p.Listed, nil
}

// CreateRefund echoes the submitted amount back, like the provider does.
func (p *Provider) CreateRefund(_ context.Context, params payments.RefundParams) (*payments.Refund, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.RefundCalls = append(p.RefundCalls, params)
	if p.RefundErr != nil {
		return nil, p.RefundErr
	}
	status := p.RefundStatus
	if status == "" {
		status = "succeeded"
	}
	return &payments.Refund{
		ID:       fmt.Sprintf("re_test_%d", len(p.RefundCalls)),
		Amount:   params.Amount,
		Currency: "usd",
		Status:   status,
	}, nil
}
