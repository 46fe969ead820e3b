package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/billing"
)

var (
	subscriptionColumns = []string{
		"id", "org_id", "user_id", "plan_id", "processor_subscription_id", "status",
		"current_period_end", "cancel_at_period_end", "created_at", "updated_at",
	}
	transactionColumns = []string{
		"id", "org_id", "user_id", "plan_id", "amount_cents", "currency", "status",
		"processor_payment_intent_id", "processor_subscription_id", "processor_invoice_id", "created_at", "updated_at",
	}
)

type billingRepository struct {
	base
	nowFunc func() time.Time
}

var _ billing.Repository = (*billingRepository)(nil) // interface compliance check

func NewBillingRepository(exec core.DBExecutor) *billingRepository {
	return &billingRepository{base: base{exec: exec}, nowFunc: time.Now}
}

// Customers

func (repo billingRepository) GetCustomer(ctx context.Context, userID string, exec ...core.DBExecutor) (billing.Customer, error) {
	q := psql.Select("user_id", "processor_customer_id", "created_at").From("customers").Where(sq.Eq{"user_id": userID})
	var c billing.Customer
	if err := get(ctx, repo.getExec(exec), &c, q); err != nil {
		return billing.Customer{}, trapNoRows(err, billing.ErrCustomerNotFound, "finding customer")
	}
	return c, nil
}

func (repo billingRepository) CreateCustomer(ctx context.Context, c billing.Customer, exec ...core.DBExecutor) (billing.Customer, error) {
	c.CreatedAt = c.CreatedAt.UTC()
	q := psql.Insert("customers").
		Columns("user_id", "processor_customer_id", "created_at").
		Values(c.UserID, c.ProcessorCustomerID, c.CreatedAt).
		Suffix("ON CONFLICT (user_id) DO UPDATE SET processor_customer_id = EXCLUDED.processor_customer_id")
	if _, err := execute(ctx, repo.getExec(exec), q); err != nil {
		return billing.Customer{}, errors.Wrap(err, "inserting customer")
	}
	return c, nil
}

// Transactions

func (repo billingRepository) CreateTransaction(ctx context.Context, t billing.Transaction, exec ...core.DBExecutor) (billing.Transaction, error) {
	t.ID = uuid.New().String()
	q := psql.Insert("transactions").
		Columns(transactionColumns...).
		Values(
			t.ID, t.OrgID, t.UserID, t.PlanID, t.AmountCents, t.Currency, t.Status,
			t.ProcessorPaymentIntentID, t.ProcessorSubscriptionID, t.ProcessorInvoiceID, t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
		)
	if _, err := execute(ctx, repo.getExec(exec), q); err != nil {
		return billing.Transaction{}, errors.Wrap(err, "inserting transaction")
	}
	return t, nil
}

func (repo billingRepository) UpdateTransactions(ctx context.Context, filter billing.TransactionFilter, upd billing.TransactionUpdate, exec ...core.DBExecutor) (int64, error) {
	q := psql.Update("transactions").Set("updated_at", repo.nowFunc().UTC())
	if upd.Status != "" {
		q = q.Set("status", upd.Status)
	}
	if upd.InvoiceID != "" {
		q = q.Set("processor_invoice_id", upd.InvoiceID)
	}

	switch {
	case filter.PaymentIntentID != "":
		q = q.Where(sq.Eq{"processor_payment_intent_id": filter.PaymentIntentID})
	case filter.SubscriptionID != "":
		q = q.Where(sq.Eq{"processor_subscription_id": filter.SubscriptionID})
	default:
		return 0, nil
	}
	if filter.PendingOnly {
		q = q.Where(sq.Eq{"status": billing.TxPending})
	}

	n, err := execute(ctx, repo.getExec(exec), q)
	if err != nil {
		return 0, errors.Wrap(err, "updating transactions")
	}
	return n, nil
}

func (repo billingRepository) QueryTransactions(ctx context.Context, orgID, userID string, exec ...core.DBExecutor) ([]billing.Transaction, error) {
	q := psql.Select(transactionColumns...).From("transactions").Where(sq.Eq{"org_id": orgID}).OrderBy("created_at DESC")
	if userID != "" {
		q = q.Where(sq.Eq{"user_id": userID})
	}
	txs := make([]billing.Transaction, 0)
	if err := sel(ctx, repo.getExec(exec), &txs, q); err != nil {
		return nil, errors.Wrap(err, "querying transactions")
	}
	return txs, nil
}

// Subscriptions

func (repo billingRepository) CreateSubscription(ctx context.Context, s billing.Subscription, exec ...core.DBExecutor) (billing.Subscription, error) {
	s.ID = uuid.New().String()
	q := psql.Insert("subscriptions").
		Columns(subscriptionColumns...).
		Values(
			s.ID, s.OrgID, s.UserID, s.PlanID, s.ProcessorSubscriptionID, s.Status,
			s.CurrentPeriodEnd, s.CancelAtPeriodEnd, s.CreatedAt.UTC(), s.UpdatedAt.UTC(),
		)
	if _, err := execute(ctx, repo.getExec(exec), q); err != nil {
		return billing.Subscription{}, errors.Wrap(err, "inserting subscription")
	}
	return s, nil
}

func (repo billingRepository) GetSubscription(ctx context.Context, filter billing.SubscriptionFilter, exec ...core.DBExecutor) (billing.Subscription, error) {
	q := psql.Select(subscriptionColumns...).From("subscriptions")
	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return billing.Subscription{}, billing.ErrSubscriptionNotFound
		}
		q = q.Where(sq.Eq{"id": filter.ID})
	case filter.ProcessorID != "":
		q = q.Where(sq.Eq{"processor_subscription_id": filter.ProcessorID})
	default:
		return billing.Subscription{}, billing.ErrSubscriptionNotFound
	}

	var s billing.Subscription
	if err := get(ctx, repo.getExec(exec), &s, q); err != nil {
		return billing.Subscription{}, trapNoRows(err, billing.ErrSubscriptionNotFound, "finding subscription")
	}
	return s, nil
}

func (repo billingRepository) UpdateSubscription(ctx context.Context, s billing.Subscription, exec ...core.DBExecutor) (billing.Subscription, error) {
	q := psql.Update("subscriptions").
		SetMap(map[string]interface{}{
			"status":               s.Status,
			"current_period_end":   s.CurrentPeriodEnd,
			"cancel_at_period_end": s.CancelAtPeriodEnd,
			"updated_at":           s.UpdatedAt.UTC(),
		}).
		Where(sq.Eq{"id": s.ID})
	n, err := execute(ctx, repo.getExec(exec), q)
	if err != nil {
		return billing.Subscription{}, errors.Wrap(err, "updating subscription")
	}
	if n == 0 {
		return billing.Subscription{}, billing.ErrSubscriptionNotFound
	}
	return s, nil
}

func (repo billingRepository) QuerySubscriptions(ctx context.Context, orgID, userID string, exec ...core.DBExecutor) ([]billing.Subscription, error) {
	q := psql.Select(subscriptionColumns...).From("subscriptions").Where(sq.Eq{"org_id": orgID}).OrderBy("created_at DESC")
	if userID != "" {
		q = q.Where(sq.Eq{"user_id": userID})
	}
	subs := make([]billing.Subscription, 0)
	if err := sel(ctx, repo.getExec(exec), &subs, q); err != nil {
		return nil, errors.Wrap(err, "querying subscriptions")
	}
	return subs, nil
}
