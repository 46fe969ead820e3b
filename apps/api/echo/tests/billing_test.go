package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onlineimmigrant/move-plan-next-sub025/core/billing"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/pricing"
)

func createPlans(t *testing.T, orgID string) (oneTime, monthly, bare pricing.Plan) {
	ctx := context.Background()
	product, err := deps.PricingSvc.CreateProduct(ctx, orgID, pricing.ProductInput{Name: "Courses", Slug: "courses"})
	require.NoError(t, err)

	oneTime, err = deps.PricingSvc.CreatePlan(ctx, orgID, pricing.PlanInput{
		ProductID: product.ID, Name: "Lifetime", Interval: "one_time", Currency: "usd", AmountCents: 20000, PromotionPercent: 25,
	})
	require.NoError(t, err)
	monthly, err = deps.PricingSvc.CreatePlan(ctx, orgID, pricing.PlanInput{
		ProductID: product.ID, Name: "Monthly", Interval: "month", Currency: "usd", AmountCents: 1500, StripePriceID: "price_123",
	})
	require.NoError(t, err)
	bare, err = deps.PricingSvc.CreatePlan(ctx, orgID, pricing.PlanInput{
		ProductID: product.ID, Name: "No price", Interval: "month", Currency: "usd", AmountCents: 1500,
	})
	require.NoError(t, err)
	return oneTime, monthly, bare
}

func webhook(body, signature string) int {
	req, rec := newRequest(http.MethodPost, "/api/billing/webhook", []byte(body))
	req.Header.Set("Stripe-Signature", signature)
	app.ServeHTTP(rec, req)
	return rec.Code
}

func Test_billingApi_checkout(t *testing.T) {
	resetDB()
	f := newFixture(t, "acme")
	other := newFixture(t, "globex")
	oneTime, monthly, bare := createPlans(t, f.org.ID)
	token := getToken(t, f.student)

	checkout := func(planID string) []byte {
		return marchallObj(t, billing.CheckoutRequest{PlanID: planID})
	}

	tests := []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/api/billing/checkout", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "plan required", method: http.MethodPost, path: "/api/billing/checkout", token: token,
			wantCode: http.StatusBadRequest, wantData: []byte(`{"plan_id":"this field is required"}`),
		},
		{
			name: "plan of another org", method: http.MethodPost, path: "/api/billing/checkout", token: getToken(t, other.student),
			body: checkout(oneTime.ID), wantCode: http.StatusNotFound,
		},
		{
			name: "recurring plan without price", method: http.MethodPost, path: "/api/billing/checkout", token: token,
			body: checkout(bare.ID), wantCode: http.StatusBadRequest, wantData: []byte(`{"plan_id":"plan has no processor price"}`),
		},
	}
	runHTTPTests(t, tests)

	var payment billing.CheckoutResult
	t.Run("one time payment", func(t *testing.T) {
		rec := do(http.MethodPost, "/api/billing/checkout", token, checkout(oneTime.ID))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		decode(t, rec, &payment)
		assert.NotEmpty(t, payment.TransactionID)
		assert.NotEmpty(t, payment.PaymentIntentID)
		assert.Equal(t, "secret_"+payment.PaymentIntentID, payment.ClientSecret)
		assert.Equal(t, int64(15000), payment.AmountCents)
		assert.Empty(t, payment.SubscriptionID)
	})

	var sub billing.CheckoutResult
	t.Run("subscription", func(t *testing.T) {
		rec := do(http.MethodPost, "/api/billing/checkout", token, checkout(monthly.ID))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		decode(t, rec, &sub)
		assert.NotEmpty(t, sub.SubscriptionID)
		assert.Equal(t, "incomplete", sub.Status)
		assert.Regexp(t, "^pi_in_", sub.PaymentIntentID)
		assert.Equal(t, int64(1500), sub.AmountCents)
	})

	t.Run("customer is reused", func(t *testing.T) {
		gateway.mu.Lock()
		defer gateway.mu.Unlock()
		assert.Len(t, gateway.customers, 1)
	})

	t.Run("webhook: bad signature", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, webhook(`{"Type":"payment_intent.succeeded"}`, "t=1,v1=forged"))
	})
	t.Run("webhook: unhandled event", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/api/billing/webhook", []byte(`{"Type":"customer.created"}`))
		req.Header.Set("Stripe-Signature", webhookSignature)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"received":true,"handled":false}`, rec.Body.String())
	})
	t.Run("webhook: payment succeeded", func(t *testing.T) {
		body := marchallObj(t, billing.Event{ID: "evt_1", Type: billing.EventPaymentSucceeded, PaymentIntentID: payment.PaymentIntentID})
		require.Equal(t, http.StatusOK, webhook(string(body), webhookSignature))
	})
	t.Run("webhook: invoice paid", func(t *testing.T) {
		body := marchallObj(t, billing.Event{ID: "evt_2", Type: billing.EventInvoicePaid, SubscriptionID: sub.SubscriptionID, InvoiceID: "in_x"})
		require.Equal(t, http.StatusOK, webhook(string(body), webhookSignature))
	})
	t.Run("webhook: subscription updated", func(t *testing.T) {
		body := marchallObj(t, billing.Event{ID: "evt_3", Type: billing.EventSubscriptionUpdated, SubscriptionID: sub.SubscriptionID, Status: "active"})
		require.Equal(t, http.StatusOK, webhook(string(body), webhookSignature))
	})
	t.Run("webhook: unknown payment intent", func(t *testing.T) {
		body := marchallObj(t, billing.Event{ID: "evt_4", Type: billing.EventPaymentFailed, PaymentIntentID: "pi_unknown"})
		assert.Equal(t, http.StatusOK, webhook(string(body), webhookSignature))
	})

	t.Run("transactions", func(t *testing.T) {
		rec := do(http.MethodGet, "/api/billing/transactions", token)
		require.Equal(t, http.StatusOK, rec.Code)

		var txs []billing.Transaction
		decode(t, rec, &txs)
		require.Len(t, txs, 2)
		for _, tx := range txs {
			assert.Equal(t, billing.TxSucceeded, tx.Status, "transaction %s", tx.ID)
		}

		rec = do(http.MethodGet, "/api/billing/transactions", getToken(t, f.teacher))
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	var subs []billing.Subscription
	t.Run("subscriptions", func(t *testing.T) {
		rec := do(http.MethodGet, "/api/billing/subscriptions", token)
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &subs)
		require.Len(t, subs, 1)
		assert.Equal(t, "active", subs[0].Status)
		assert.Equal(t, sub.SubscriptionID, subs[0].ProcessorSubscriptionID)
	})

	t.Run("cancel: not the owner", func(t *testing.T) {
		rec := do(http.MethodPost, "/api/billing/subscriptions/"+subs[0].ID+"/cancel", getToken(t, f.teacher))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
	t.Run("cancel", func(t *testing.T) {
		rec := do(http.MethodPost, "/api/billing/subscriptions/"+subs[0].ID+"/cancel", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var canceled billing.Subscription
		decode(t, rec, &canceled)
		assert.True(t, canceled.CancelAtPeriodEnd)
		assert.Equal(t, "active", canceled.Status)
	})
}
