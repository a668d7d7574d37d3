package payments_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/storefront-payments/internal/apperr"
	"github.com/imrishuroy/storefront-payments/internal/payments"
	"github.com/imrishuroy/storefront-payments/internal/payments/paymentstest"
)

func TestCreateSession_TicketCheckout(t *testing.T) {
	fake := paymentstest.New()
	svc := payments.NewCheckoutService(fake, "https://shop.example.com/", "usd")

	res, err := svc.CreateSession(context.Background(), payments.CheckoutRequest{
		Amount:  "49.99",
		OrderID: "T1",
		Title:   "Widget",
	})
	require.NoError(t, err)
	require.Len(t, fake.SessionCalls, 1)

	call := fake.SessionCalls[0]
	assert.Equal(t, int64(4999), call.UnitAmount)
	assert.Equal(t, "Widget", call.ProductName)
	assert.Equal(t, "usd", call.Currency)
	assert.Equal(t, "https://shop.example.com/payment-success?session_id={CHECKOUT_SESSION_ID}&ticketId=T1", call.SuccessURL)
	assert.Equal(t, "https://shop.example.com/payment-cancelled?ticketId=T1", call.CancelURL)
	assert.Equal(t, map[string]string{"orderId": "T1", "isStoreOrder": "false"}, call.Metadata)

	assert.Contains(t, res.SuccessURL, "ticketId=T1")
	assert.Equal(t, "https://checkout.example.com/pay/"+res.SessionID, res.URL)
	assert.Equal(t, int64(4999), res.UnitAmount)
}

func TestCreateSession_StoreOrderUsesOrderID(t *testing.T) {
	fake := paymentstest.New()
	svc := payments.NewCheckoutService(fake, "https://shop.example.com", "eur")

	_, err := svc.CreateSession(context.Background(), payments.CheckoutRequest{
		Amount:        "10",
		OrderID:       "order 7",
		Title:         "Mug",
		CustomerEmail: "a@b.co",
		StoreOrder:    true,
	})
	require.NoError(t, err)

	call := fake.SessionCalls[0]
	assert.Contains(t, call.SuccessURL, "&orderId=order+7")
	assert.NotContains(t, call.SuccessURL, "ticketId")
	assert.Equal(t, "a@b.co", call.CustomerEmail)
	assert.Equal(t, "true", call.Metadata["isStoreOrder"])
	assert.Equal(t, "eur", call.Currency)
}

func TestCreateSession_RoundsToMinorUnits(t *testing.T) {
	cases := map[string]int64{"19.995": 2000, "0.015": 2, "12.344": 1234, "100": 10000, "999999.99": 99999999}
	for amount, want := range cases {
		fake := paymentstest.New()
		svc := payments.NewCheckoutService(fake, "https://shop.example.com", "usd")
		_, err := svc.CreateSession(context.Background(), payments.CheckoutRequest{Amount: amount, OrderID: "o", Title: "t"})
		require.NoError(t, err, amount)
		assert.Equal(t, want, fake.SessionCalls[0].UnitAmount, amount)
	}
}

func TestCreateSession_ValidationHappensBeforeProvider(t *testing.T) {
	cases := []struct {
		name string
		req  payments.CheckoutRequest
		code string
	}{
		{"zero", payments.CheckoutRequest{Amount: "0", OrderID: "o", Title: "t"}, apperr.CodeInvalidAmount},
		{"negative", payments.CheckoutRequest{Amount: "-3", OrderID: "o", Title: "t"}, apperr.CodeInvalidAmount},
		{"non numeric", payments.CheckoutRequest{Amount: "ten", OrderID: "o", Title: "t"}, apperr.CodeInvalidAmount},
		{"empty", payments.CheckoutRequest{OrderID: "o", Title: "t"}, apperr.CodeInvalidAmount},
		{"rounds to zero", payments.CheckoutRequest{Amount: "0.004", OrderID: "o", Title: "t"}, apperr.CodeInvalidAmount},
		{"overflows int64", payments.CheckoutRequest{Amount: "200000000000000000", OrderID: "o", Title: "t"}, apperr.CodeInvalidAmount},
		{"exponent", payments.CheckoutRequest{Amount: "1e19", OrderID: "o", Title: "t"}, apperr.CodeInvalidAmount},
		{"above provider max", payments.CheckoutRequest{Amount: "1000000.00", OrderID: "o", Title: "t"}, apperr.CodeInvalidAmount},
		{"missing order", payments.CheckoutRequest{Amount: "5", Title: "t"}, apperr.CodeMissingFields},
		{"missing title", payments.CheckoutRequest{Amount: "5", OrderID: "o", Title: "  "}, apperr.CodeMissingFields},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fake := paymentstest.New()
			svc := payments.NewCheckoutService(fake, "https://shop.example.com", "usd")

			_, err := svc.CreateSession(context.Background(), tc.req)
			require.Error(t, err)
			assert.Equal(t, tc.code, apperr.CodeOf(err))
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Equal(t, 0, fake.Calls())
		})
	}
}

func TestCreateSession_ProviderFailure(t *testing.T) {
	fake := paymentstest.New()
	fake.CreateSessionErr = &payments.ProviderError{Op: "checkout.create", Code: "parameter_invalid_integer", Param: "line_items[0][price_data][unit_amount]"}
	svc := payments.NewCheckoutService(fake, "https://shop.example.com", "usd")

	_, err := svc.CreateSession(context.Background(), payments.CheckoutRequest{Amount: "5", OrderID: "o", Title: "t"})
	require.Error(t, err)

	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindProvider, ae.Kind)
	assert.Equal(t, apperr.CodeCheckoutCreateFailed, ae.Code)
	assert.Equal(t, "parameter_invalid_integer", ae.Detail["code"])

	var pe *payments.ProviderError
	assert.True(t, errors.As(err, &pe))
}

func TestCreateSession_ConfigErrorPassesThrough(t *testing.T) {
	fake := paymentstest.New()
	fake.CreateSessionErr = apperr.Config("STRIPE_SECRET_KEY")
	svc := payments.NewCheckoutService(fake, "https://shop.example.com", "usd")

	_, err := svc.CreateSession(context.Background(), payments.CheckoutRequest{Amount: "5", OrderID: "o", Title: "t"})
	assert.Equal(t, apperr.KindConfig, apperr.KindOf(err))
}
