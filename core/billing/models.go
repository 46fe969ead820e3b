package billing

import (
	"time"

	"github.com/volatiletech/null/v8"
)

// Transaction statuses
const (
	TxPending   = "pending"
	TxSucceeded = "succeeded"
	TxFailed    = "failed"
	TxRefunded  = "refunded"
)

// Webhook event types
const (
	EventPaymentSucceeded    = "payment_intent.succeeded"
	EventPaymentFailed       = "payment_intent.payment_failed"
	EventInvoicePaid         = "invoice.paid"
	EventInvoiceFailed       = "invoice.payment_failed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventChargeRefunded      = "charge.refunded"
)

type Customer struct {
	UserID              string    `json:"user_id" db:"user_id"`
	ProcessorCustomerID string    `json:"processor_customer_id" db:"processor_customer_id"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
}

type Subscription struct {
	ID                      string    `json:"id" db:"id"`
	OrgID                   string    `json:"-" db:"org_id"`
	UserID                  string    `json:"user_id" db:"user_id"`
	PlanID                  string    `json:"plan_id" db:"plan_id"`
	ProcessorSubscriptionID string    `json:"processor_subscription_id" db:"processor_subscription_id"`
	Status                  string    `json:"status" db:"status"`
	CurrentPeriodEnd        null.Time `json:"current_period_end" db:"current_period_end"`
	CancelAtPeriodEnd       bool      `json:"cancel_at_period_end" db:"cancel_at_period_end"`
	CreatedAt               time.Time `json:"created_at" db:"created_at"`
	UpdatedAt               time.Time `json:"updated_at" db:"updated_at"`
}

type Transaction struct {
	ID                       string      `json:"id" db:"id"`
	OrgID                    string      `json:"-" db:"org_id"`
	UserID                   string      `json:"user_id" db:"user_id"`
	PlanID                   string      `json:"plan_id" db:"plan_id"`
	AmountCents              int64       `json:"amount_cents" db:"amount_cents"`
	Currency                 string      `json:"currency" db:"currency"`
	Status                   string      `json:"status" db:"status"`
	ProcessorPaymentIntentID null.String `json:"processor_payment_intent_id" db:"processor_payment_intent_id"`
	ProcessorSubscriptionID  null.String `json:"processor_subscription_id" db:"processor_subscription_id"`
	ProcessorInvoiceID       null.String `json:"processor_invoice_id" db:"processor_invoice_id"`
	CreatedAt                time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt                time.Time   `json:"updated_at" db:"updated_at"`
}

// TransactionFilter selects transactions by processor reference; exactly one of the ids is expected.
type TransactionFilter struct {
	PaymentIntentID string
	SubscriptionID  string
	PendingOnly     bool
}

type TransactionUpdate struct {
	Status    string
	InvoiceID string
}

type SubscriptionFilter struct {
	ID          string
	ProcessorID string
}

type CheckoutRequest struct {
	PlanID string `json:"plan_id" validate:"required,uuid"`
}

type CheckoutResult struct {
	TransactionID   string `json:"transaction_id"`
	PaymentIntentID string `json:"payment_intent_id,omitempty"`
	ClientSecret    string `json:"client_secret,omitempty"`
	SubscriptionID  string `json:"subscription_id,omitempty"`
	Status          string `json:"status"`
	AmountCents     int64  `json:"amount_cents"`
	Currency        string `json:"currency"`
}

// Processor side objects

type (
	GatewayCustomer struct {
		ID    string
		Email string
	}

	SubscriptionParams struct {
		CustomerID string
		PriceID    string
		TrialDays  int
		Metadata   map[string]string
	}

	GatewaySubscription struct {
		ID                string
		Status            string
		LatestInvoiceID   string
		CurrentPeriodEnd  time.Time
		CancelAtPeriodEnd bool
	}

	GatewayInvoice struct {
		ID                        string
		SubscriptionID            string
		PaymentIntentID           string
		PaymentIntentClientSecret string
		AmountDue                 int64
		Currency                  string
	}

	PaymentIntentParams struct {
		CustomerID  string
		AmountCents int64
		Currency    string
		Metadata    map[string]string
	}

	GatewayPaymentIntent struct {
		ID           string
		ClientSecret string
		Status       string
	}

	// Event is a verified webhook notification, reduced to what we act on.
	Event struct {
		ID                string
		Type              string
		PaymentIntentID   string
		SubscriptionID    string
		InvoiceID         string
		Status            string
		CurrentPeriodEnd  time.Time
		CancelAtPeriodEnd bool
	}
)
