// Package paymentsvc implements billing.Gateway with Stripe.
package paymentsvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/billing"
)

type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

var _ billing.Gateway = (*StripeGateway)(nil)

// NewStripeGateway talks to the live API unless backends is set (tests).
func NewStripeGateway(conf *core.Config, backends *stripe.Backends) *StripeGateway {
	return &StripeGateway{
		api:           client.New(conf.Stripe.SecretKey, backends),
		webhookSecret: conf.Stripe.WebhookSecret,
	}
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func (g *StripeGateway) FindCustomerByEmail(ctx context.Context, email string) (billing.GatewayCustomer, bool, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	iter := g.api.Customers.List(params)
	for iter.Next() {
		c := iter.Customer()
		return billing.GatewayCustomer{ID: c.ID, Email: c.Email}, true, nil
	}
	if err := iter.Err(); err != nil {
		return billing.GatewayCustomer{}, false, errors.Wrap(err, "listing customers")
	}
	return billing.GatewayCustomer{}, false, nil
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (billing.GatewayCustomer, error) {
	params := &stripe.CustomerParams{Email: stripe.String(email), Name: stripe.String(name)}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	c, err := g.api.Customers.New(params)
	if err != nil {
		return billing.GatewayCustomer{}, errors.Wrap(err, "creating customer")
	}
	return billing.GatewayCustomer{ID: c.ID, Email: c.Email}, nil
}

func subscription(s *stripe.Subscription) billing.GatewaySubscription {
	gs := billing.GatewaySubscription{
		ID:                s.ID,
		Status:            string(s.Status),
		CurrentPeriodEnd:  unixTime(s.CurrentPeriodEnd),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
	}
	if s.LatestInvoice != nil {
		gs.LatestInvoiceID = s.LatestInvoice.ID
	}
	return gs
}

// CreateSubscription leaves the first invoice open ("default_incomplete") so the client confirms its payment intent.
func (g *StripeGateway) CreateSubscription(ctx context.Context, p billing.SubscriptionParams) (billing.GatewaySubscription, error) {
	params := &stripe.SubscriptionParams{
		Customer:        stripe.String(p.CustomerID),
		Items:           []*stripe.SubscriptionItemsParams{{Price: stripe.String(p.PriceID)}},
		PaymentBehavior: stripe.String("default_incomplete"),
	}
	if p.TrialDays > 0 {
		params.TrialPeriodDays = stripe.Int64(int64(p.TrialDays))
	}
	params.Context = ctx
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	s, err := g.api.Subscriptions.New(params)
	if err != nil {
		return billing.GatewaySubscription{}, errors.Wrap(err, "creating subscription")
	}
	return subscription(s), nil
}

func (g *StripeGateway) GetInvoice(ctx context.Context, id string) (billing.GatewayInvoice, error) {
	params := &stripe.InvoiceParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")
	inv, err := g.api.Invoices.Get(id, params)
	if err != nil {
		return billing.GatewayInvoice{}, errors.Wrap(err, "getting invoice")
	}
	gi := billing.GatewayInvoice{ID: inv.ID, AmountDue: inv.AmountDue, Currency: string(inv.Currency)}
	if inv.Subscription != nil {
		gi.SubscriptionID = inv.Subscription.ID
	}
	if inv.PaymentIntent != nil {
		gi.PaymentIntentID = inv.PaymentIntent.ID
		gi.PaymentIntentClientSecret = inv.PaymentIntent.ClientSecret
	}
	return gi, nil
}

func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, p billing.PaymentIntentParams) (billing.GatewayPaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.AmountCents),
		Currency: stripe.String(p.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	}
	params.Context = ctx
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return billing.GatewayPaymentIntent{}, errors.Wrap(err, "creating payment intent")
	}
	return billing.GatewayPaymentIntent{ID: pi.ID, ClientSecret: pi.ClientSecret, Status: string(pi.Status)}, nil
}

func (g *StripeGateway) CancelSubscription(ctx context.Context, id string, atPeriodEnd bool) (billing.GatewaySubscription, error) {
	var (
		s   *stripe.Subscription
		err error
	)
	if atPeriodEnd {
		params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
		params.Context = ctx
		s, err = g.api.Subscriptions.Update(id, params)
	} else {
		params := &stripe.SubscriptionCancelParams{}
		params.Context = ctx
		s, err = g.api.Subscriptions.Cancel(id, params)
	}
	if err != nil {
		return billing.GatewaySubscription{}, errors.Wrap(err, "cancelling subscription")
	}
	return subscription(s), nil
}

// ParseWebhook verifies the Stripe-Signature header and extracts the fields of the object the event carries.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (billing.Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return billing.Event{}, err
	}

	event := billing.Event{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data == nil {
		return event, nil
	}
	raw := ev.Data.Raw

	switch event.Type {
	case billing.EventPaymentSucceeded, billing.EventPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(raw, &pi); err != nil {
			return billing.Event{}, errors.Wrap(err, "decoding payment intent")
		}
		event.PaymentIntentID = pi.ID
		event.Status = string(pi.Status)
	case billing.EventChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(raw, &ch); err != nil {
			return billing.Event{}, errors.Wrap(err, "decoding charge")
		}
		if ch.PaymentIntent != nil {
			event.PaymentIntentID = ch.PaymentIntent.ID
		}
		event.Status = string(ch.Status)
	case billing.EventInvoicePaid, billing.EventInvoiceFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return billing.Event{}, errors.Wrap(err, "decoding invoice")
		}
		event.InvoiceID = inv.ID
		if inv.Subscription != nil {
			event.SubscriptionID = inv.Subscription.ID
		}
		event.Status = string(inv.Status)
	case billing.EventSubscriptionUpdated, billing.EventSubscriptionDeleted:
		var s stripe.Subscription
		if err := json.Unmarshal(raw, &s); err != nil {
			return billing.Event{}, errors.Wrap(err, "decoding subscription")
		}
		event.SubscriptionID = s.ID
		event.Status = string(s.Status)
		event.CurrentPeriodEnd = unixTime(s.CurrentPeriodEnd)
		event.CancelAtPeriodEnd = s.CancelAtPeriodEnd
	}
	return event, nil
}
