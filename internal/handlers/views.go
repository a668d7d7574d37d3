package handlers

import (
	"github.com/imrishuroy/storefront-payments/internal/money"
	"github.com/imrishuroy/storefront-payments/internal/orders"
)

// orderResponse renders amounts as decimals; the stored order keeps minor
// units only.
type orderResponse struct {
	*orders.Order
	Amount         float64                 `json:"amount"`
	RefundRequests []refundRequestResponse `json:"refundRequests"`
}

type refundRequestResponse struct {
	orders.RefundRequest
	Amount float64 `json:"amount"`
}

func orderView(o *orders.Order) orderResponse {
	out := orderResponse{
		Order:          o,
		Amount:         money.Float(money.FromMinor(o.AmountMinor)),
		RefundRequests: make([]refundRequestResponse, 0, len(o.RefundRequests)),
	}
	for _, r := range o.RefundRequests {
		out.RefundRequests = append(out.RefundRequests, refundView(r))
	}
	return out
}

func refundView(r orders.RefundRequest) refundRequestResponse {
	return refundRequestResponse{RefundRequest: r, Amount: money.Float(money.FromMinor(r.AmountMinor))}
}
