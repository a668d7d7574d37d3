package stripepay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/storefront-payments/internal/apperr"
	"github.com/imrishuroy/storefront-payments/internal/payments"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New("sk_test_123", nil, WithBaseURL(srv.URL), WithMaxRetries(0))
}

func TestCreateSession_FormEncoding(t *testing.T) {
	var (
		path   string
		form   url.Values
		header http.Header
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		path, form, header = r.URL.Path, r.PostForm, r.Header
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cs_1","object":"checkout.session","url":"https://checkout.stripe.com/c/cs_1","status":"open","payment_intent":null,"metadata":{"orderId":"T1"}}`)
	})

	s, err := c.CreateSession(context.Background(), payments.SessionParams{
		UnitAmount:     4999,
		Currency:       "usd",
		ProductName:    "Widget",
		SuccessURL:     "https://shop/ok",
		CancelURL:      "https://shop/no",
		Metadata:       map[string]string{"orderId": "T1"},
		IdempotencyKey: "idem-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "/v1/checkout/sessions", path)
	assert.Equal(t, "4999", form.Get("line_items[0][price_data][unit_amount]"))
	assert.Equal(t, "Widget", form.Get("line_items[0][price_data][product_data][name]"))
	assert.Equal(t, "1", form.Get("line_items[0][quantity]"))
	assert.Equal(t, "payment", form.Get("mode"))
	assert.Equal(t, "T1", form.Get("metadata[orderId]"))
	assert.Equal(t, "idem-1", header.Get("Idempotency-Key"))

	assert.Equal(t, "cs_1", s.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/cs_1", s.URL)
	assert.Empty(t, s.PaymentIntentID)
}

func TestRetrieveSession_ErrorDetail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Request-Id", "req_42")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"type":"invalid_request_error","code":"resource_missing","param":"session","message":"No such checkout.session: cs_x"}}`)
	})

	_, err := c.RetrieveSession(context.Background(), "cs_x")
	require.Error(t, err)

	var pe *payments.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "session.retrieve", pe.Op)
	assert.Equal(t, "resource_missing", pe.Code)
	assert.Equal(t, "session", pe.Param)
	assert.Equal(t, http.StatusNotFound, pe.HTTPStatus)
	assert.Equal(t, "req_42", pe.RequestID)
}

func TestRetrieveSession_MissingResolvesToNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"type":"invalid_request_error","code":"resource_missing","param":"session","message":"No such checkout.session: cs_nope"}}`)
	})

	_, err := payments.NewResolver(c).BySession(context.Background(), "cs_nope")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	assert.Equal(t, apperr.CodePaymentIntentNotFound, apperr.CodeOf(err))
}

func TestListIntents_StopsAtLimit(t *testing.T) {
	var query string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","has_more":true,"url":"/v1/payment_intents","data":[
			{"id":"pi_2","object":"payment_intent","amount":2000,"currency":"usd","status":"succeeded","created":1772366400},
			{"id":"pi_1","object":"payment_intent","amount":1500,"currency":"usd","status":"canceled","created":1772362800}]}`)
	})

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	out, err := c.ListIntents(context.Background(), payments.IntentFilter{
		CreatedFrom: from,
		CreatedTo:   from.Add(24 * time.Hour),
		Limit:       2,
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "pi_2", out[0].ID)
	assert.Equal(t, int64(2000), out[0].Amount)
	assert.Equal(t, "succeeded", out[0].Status)
	assert.Equal(t, time.Unix(1772366400, 0).UTC(), out[0].Created)
	assert.Contains(t, query, fmt.Sprintf("created%%5Bgte%%5D=%d", from.Unix()))
}

func TestMissingKeyIsConfigError(t *testing.T) {
	c := New("", nil)
	_, err := c.CreateRefund(context.Background(), payments.RefundParams{PaymentIntentID: "pi", Amount: 1})
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindConfig, ae.Kind)
	assert.NotContains(t, ae.Message, "STRIPE_SECRET_KEY")
}

func sign(secret string, ts int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestWebhookVerify(t *testing.T) {
	const secret = "whsec_test"
	payload := []byte(`{"id":"evt_1","object":"event","api_version":"2022-11-15","type":"checkout.session.completed",
		"data":{"object":{"id":"cs_1","object":"checkout.session","payment_intent":"pi_9","payment_status":"paid","amount_total":4999,"metadata":{"orderId":"o1","isStoreOrder":"true"}}}}`)
	v := NewWebhookVerifier(secret)

	ev, err := v.Verify(payload, sign(secret, time.Now().Unix(), payload))
	require.NoError(t, err)
	assert.Equal(t, EventCheckoutSessionCompleted, ev.Type)
	require.NotNil(t, ev.Session)
	assert.Equal(t, "pi_9", ev.Session.PaymentIntentID)
	assert.Equal(t, "paid", ev.Session.PaymentStatus)
	assert.Equal(t, "o1", ev.Session.Metadata["orderId"])

	_, err = v.Verify(payload, sign("whsec_other", time.Now().Unix(), payload))
	assert.ErrorIs(t, err, ErrBadSignature)

	_, err = NewWebhookVerifier("").Verify(payload, "")
	assert.Equal(t, apperr.KindConfig, apperr.KindOf(err))
}
