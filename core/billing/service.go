package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/pricing"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/user"
)

var (
	ErrCustomerNotFound     = core.NewNotFoundError("customer")
	ErrTransactionNotFound  = core.NewNotFoundError("transaction")
	ErrSubscriptionNotFound = core.NewNotFoundError("subscription")

	errInvalidSignature = errors.New("invalid webhook signature")
)

type (
	// Gateway is the payment processor.
	Gateway interface {
		// FindCustomerByEmail returns false when no customer has email.
		FindCustomerByEmail(ctx context.Context, email string) (GatewayCustomer, bool, error)
		CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (GatewayCustomer, error)
		CreateSubscription(ctx context.Context, params SubscriptionParams) (GatewaySubscription, error)
		GetInvoice(ctx context.Context, id string) (GatewayInvoice, error)
		CreatePaymentIntent(ctx context.Context, params PaymentIntentParams) (GatewayPaymentIntent, error)
		CancelSubscription(ctx context.Context, id string, atPeriodEnd bool) (GatewaySubscription, error)
		ParseWebhook(payload []byte, signature string) (Event, error)
	}

	Repository interface {
		GetCustomer(ctx context.Context, userID string, exec ...core.DBExecutor) (Customer, error)
		CreateCustomer(ctx context.Context, c Customer, exec ...core.DBExecutor) (Customer, error)

		CreateTransaction(ctx context.Context, t Transaction, exec ...core.DBExecutor) (Transaction, error)
		// UpdateTransactions returns the number of updated rows.
		UpdateTransactions(ctx context.Context, filter TransactionFilter, upd TransactionUpdate, exec ...core.DBExecutor) (int64, error)
		QueryTransactions(ctx context.Context, orgID, userID string, exec ...core.DBExecutor) ([]Transaction, error)

		CreateSubscription(ctx context.Context, s Subscription, exec ...core.DBExecutor) (Subscription, error)
		GetSubscription(ctx context.Context, filter SubscriptionFilter, exec ...core.DBExecutor) (Subscription, error)
		UpdateSubscription(ctx context.Context, s Subscription, exec ...core.DBExecutor) (Subscription, error)
		QuerySubscriptions(ctx context.Context, orgID, userID string, exec ...core.DBExecutor) ([]Subscription, error)
	}

	Service interface {
		Checkout(ctx context.Context, usr user.User, planID string) (CheckoutResult, error)
		// HandleWebhook returns false for verified events that are ignored.
		HandleWebhook(ctx context.Context, payload []byte, signature string) (bool, error)
		Cancel(ctx context.Context, usr user.User, subscriptionID string) (Subscription, error)
		Transactions(ctx context.Context, usr user.User) ([]Transaction, error)
		Subscriptions(ctx context.Context, usr user.User) ([]Subscription, error)
	}

	service struct {
		repo    Repository
		gateway Gateway
		plans   pricing.Service
		logger  core.Logger
		nowFunc func() time.Time
	}
)

func NewService(repo Repository, gateway Gateway, plans pricing.Service, logger core.Logger) Service {
	return &service{
		repo:    repo,
		gateway: gateway,
		plans:   plans,
		logger:  logger,
		nowFunc: time.Now,
	}
}

func upstream(err error) error {
	return core.NewUpstreamError("payment processor", err)
}

// Checkout starts the payment of planID by usr; the client confirms the returned payment intent.
// Nothing is rolled back at the processor when a later step fails.
func (svc *service) Checkout(ctx context.Context, usr user.User, planID string) (CheckoutResult, error) {
	plan, err := svc.plans.GetPlan(ctx, usr.OrgID, planID)
	if err != nil {
		return CheckoutResult{}, err
	}
	if !plan.IsActive {
		return CheckoutResult{}, core.NewValidationError(nil, core.FieldError{Field: "plan_id", Error: "plan is not available"})
	}
	if plan.IsRecurring() && !plan.StripePriceID.Valid {
		return CheckoutResult{}, core.NewValidationError(nil, core.FieldError{Field: "plan_id", Error: "plan has no processor price"})
	}

	customerID, err := svc.customerID(ctx, usr)
	if err != nil {
		return CheckoutResult{}, err
	}

	metadata := map[string]string{"org_id": usr.OrgID, "user_id": usr.ID, "plan_id": plan.ID}
	now := svc.nowFunc().UTC()
	tx := Transaction{
		OrgID:     usr.OrgID,
		UserID:    usr.ID,
		PlanID:    plan.ID,
		Currency:  plan.Currency,
		Status:    TxPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	res := CheckoutResult{Currency: plan.Currency}

	if plan.IsRecurring() {
		sub, err := svc.gateway.CreateSubscription(ctx, SubscriptionParams{
			CustomerID: customerID,
			PriceID:    plan.StripePriceID.String,
			TrialDays:  plan.TrialDays,
			Metadata:   metadata,
		})
		if err != nil {
			return CheckoutResult{}, upstream(errors.Wrap(err, "creating subscription"))
		}
		res.SubscriptionID = sub.ID
		res.Status = sub.Status
		tx.ProcessorSubscriptionID = null.StringFrom(sub.ID)

		if sub.LatestInvoiceID != "" {
			inv, err := svc.gateway.GetInvoice(ctx, sub.LatestInvoiceID)
			if err != nil {
				return CheckoutResult{}, upstream(errors.Wrap(err, "retrieving invoice"))
			}
			tx.ProcessorInvoiceID = null.StringFrom(inv.ID)
			tx.AmountCents = inv.AmountDue
			if inv.Currency != "" {
				tx.Currency = inv.Currency
				res.Currency = inv.Currency
			}
			switch {
			case inv.PaymentIntentID != "":
				res.PaymentIntentID = inv.PaymentIntentID
				res.ClientSecret = inv.PaymentIntentClientSecret
			case inv.AmountDue > 0:
				pi, err := svc.gateway.CreatePaymentIntent(ctx, PaymentIntentParams{
					CustomerID:  customerID,
					AmountCents: inv.AmountDue,
					Currency:    tx.Currency,
					Metadata:    metadata,
				})
				if err != nil {
					return CheckoutResult{}, upstream(errors.Wrap(err, "creating payment intent"))
				}
				res.PaymentIntentID = pi.ID
				res.ClientSecret = pi.ClientSecret
			}
		}

		svc.saveSubscription(ctx, Subscription{
			OrgID:                   usr.OrgID,
			UserID:                  usr.ID,
			PlanID:                  plan.ID,
			ProcessorSubscriptionID: sub.ID,
			Status:                  sub.Status,
			CurrentPeriodEnd:        null.NewTime(sub.CurrentPeriodEnd, !sub.CurrentPeriodEnd.IsZero()),
			CreatedAt:               now,
			UpdatedAt:               now,
		}, usr)
	} else {
		tx.AmountCents = plan.FinalAmountCents()
		pi, err := svc.gateway.CreatePaymentIntent(ctx, PaymentIntentParams{
			CustomerID:  customerID,
			AmountCents: tx.AmountCents,
			Currency:    plan.Currency,
			Metadata:    metadata,
		})
		if err != nil {
			return CheckoutResult{}, upstream(errors.Wrap(err, "creating payment intent"))
		}
		res.PaymentIntentID = pi.ID
		res.ClientSecret = pi.ClientSecret
		res.Status = pi.Status
	}

	if res.PaymentIntentID != "" {
		tx.ProcessorPaymentIntentID = null.StringFrom(res.PaymentIntentID)
	}
	res.AmountCents = tx.AmountCents

	saved, err := svc.repo.CreateTransaction(ctx, tx)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("recording transaction for payment intent %q: %v", res.PaymentIntentID, err), err, usr)
	} else {
		res.TransactionID = saved.ID
	}
	return res, nil
}

// customerID resolves the processor customer of usr: local mapping, then lookup by email, then creation.
func (svc *service) customerID(ctx context.Context, usr user.User) (string, error) {
	c, err := svc.repo.GetCustomer(ctx, usr.ID)
	if err == nil {
		return c.ProcessorCustomerID, nil
	}
	if !core.IsNotFound(err) {
		return "", errors.Wrap(err, "getting customer")
	}

	var gc GatewayCustomer
	var found bool
	if usr.Email != "" {
		gc, found, err = svc.gateway.FindCustomerByEmail(ctx, usr.Email)
		if err != nil {
			return "", upstream(errors.Wrap(err, "finding customer"))
		}
	}
	if !found {
		gc, err = svc.gateway.CreateCustomer(ctx, usr.Email, usr.Name, map[string]string{"org_id": usr.OrgID, "user_id": usr.ID})
		if err != nil {
			return "", upstream(errors.Wrap(err, "creating customer"))
		}
	}

	if _, err = svc.repo.CreateCustomer(ctx, Customer{UserID: usr.ID, ProcessorCustomerID: gc.ID, CreatedAt: svc.nowFunc().UTC()}); err != nil {
		svc.logger.Error(fmt.Sprintf("saving processor customer %q: %v", gc.ID, err), err, usr)
	}
	return gc.ID, nil
}

func (svc *service) saveSubscription(ctx context.Context, sub Subscription, usr user.User) {
	if _, err := svc.repo.CreateSubscription(ctx, sub); err != nil {
		svc.logger.Error(fmt.Sprintf("saving subscription %q: %v", sub.ProcessorSubscriptionID, err), err, usr)
	}
}

func (svc *service) HandleWebhook(ctx context.Context, payload []byte, signature string) (bool, error) {
	event, err := svc.gateway.ParseWebhook(payload, signature)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("rejected webhook: %v", err))
		return false, core.NewValidationError(errInvalidSignature)
	}

	switch event.Type {
	case EventPaymentSucceeded:
		return true, svc.updateTransactions(ctx, event, TransactionFilter{PaymentIntentID: event.PaymentIntentID}, TxSucceeded)
	case EventPaymentFailed:
		return true, svc.updateTransactions(ctx, event, TransactionFilter{PaymentIntentID: event.PaymentIntentID}, TxFailed)
	case EventChargeRefunded:
		return true, svc.updateTransactions(ctx, event, TransactionFilter{PaymentIntentID: event.PaymentIntentID}, TxRefunded)
	case EventInvoicePaid:
		return true, svc.updateTransactions(ctx, event, TransactionFilter{SubscriptionID: event.SubscriptionID, PendingOnly: true}, TxSucceeded)
	case EventInvoiceFailed:
		return true, svc.updateTransactions(ctx, event, TransactionFilter{SubscriptionID: event.SubscriptionID, PendingOnly: true}, TxFailed)
	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		return true, svc.syncSubscription(ctx, event)
	default:
		return false, nil
	}
}

func (svc *service) updateTransactions(ctx context.Context, event Event, filter TransactionFilter, status string) error {
	if filter.PaymentIntentID == "" && filter.SubscriptionID == "" {
		svc.logger.Warn(fmt.Sprintf("webhook %s (%s) has no processor reference", event.ID, event.Type))
		return nil
	}
	n, err := svc.repo.UpdateTransactions(ctx, filter, TransactionUpdate{Status: status, InvoiceID: event.InvoiceID})
	if err != nil {
		return errors.Wrap(err, "updating transactions")
	}
	if n == 0 {
		svc.logger.Warn(fmt.Sprintf("webhook %s (%s): no matching transaction", event.ID, event.Type))
	}
	return nil
}

func (svc *service) syncSubscription(ctx context.Context, event Event) error {
	sub, err := svc.repo.GetSubscription(ctx, SubscriptionFilter{ProcessorID: event.SubscriptionID})
	if err != nil {
		if core.IsNotFound(err) {
			svc.logger.Warn(fmt.Sprintf("webhook %s (%s): unknown subscription %q", event.ID, event.Type, event.SubscriptionID))
			return nil
		}
		return errors.Wrap(err, "getting subscription")
	}
	sub.Status = event.Status
	if !event.CurrentPeriodEnd.IsZero() {
		sub.CurrentPeriodEnd = null.TimeFrom(event.CurrentPeriodEnd.UTC())
	}
	sub.CancelAtPeriodEnd = event.CancelAtPeriodEnd
	sub.UpdatedAt = svc.nowFunc().UTC()
	_, err = svc.repo.UpdateSubscription(ctx, sub)
	return errors.Wrap(err, "updating subscription")
}

// Cancel stops the subscription at the end of the current period.
func (svc *service) Cancel(ctx context.Context, usr user.User, subscriptionID string) (Subscription, error) {
	sub, err := svc.repo.GetSubscription(ctx, SubscriptionFilter{ID: subscriptionID})
	if err != nil {
		return Subscription{}, err
	}
	if sub.UserID != usr.ID || sub.OrgID != usr.OrgID {
		return Subscription{}, ErrSubscriptionNotFound
	}

	gs, err := svc.gateway.CancelSubscription(ctx, sub.ProcessorSubscriptionID, true)
	if err != nil {
		return Subscription{}, upstream(errors.Wrap(err, "cancelling subscription"))
	}
	sub.CancelAtPeriodEnd = true
	if gs.Status != "" {
		sub.Status = gs.Status
	}
	if !gs.CurrentPeriodEnd.IsZero() {
		sub.CurrentPeriodEnd = null.TimeFrom(gs.CurrentPeriodEnd.UTC())
	}
	sub.UpdatedAt = svc.nowFunc().UTC()
	return svc.repo.UpdateSubscription(ctx, sub)
}

func (svc *service) Transactions(ctx context.Context, usr user.User) ([]Transaction, error) {
	return svc.repo.QueryTransactions(ctx, usr.OrgID, usr.ID)
}

func (svc *service) Subscriptions(ctx context.Context, usr user.User) ([]Subscription, error) {
	return svc.repo.QuerySubscriptions(ctx, usr.OrgID, usr.ID)
}
