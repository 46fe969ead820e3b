package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/billing"
)

type billingRepository struct {
	db *DB
}

var _ billing.Repository = (*billingRepository)(nil) // interface compliance check

func NewBillingRepository(db *DB) billing.Repository {
	return &billingRepository{db: db}
}

func (repo *billingRepository) GetCustomer(_ context.Context, userID string, _ ...core.DBExecutor) (billing.Customer, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if c, ok := repo.db.customers[userID]; ok {
		return c, nil
	}
	return billing.Customer{}, billing.ErrCustomerNotFound
}

func (repo *billingRepository) CreateCustomer(_ context.Context, c billing.Customer, _ ...core.DBExecutor) (billing.Customer, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.customers[c.UserID] = c
	return c, nil
}

// Transactions

func (repo *billingRepository) CreateTransaction(_ context.Context, t billing.Transaction, _ ...core.DBExecutor) (billing.Transaction, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	t.ID = newID()
	repo.db.transactions[t.ID] = t
	return t, nil
}

func (repo *billingRepository) UpdateTransactions(_ context.Context, filter billing.TransactionFilter, upd billing.TransactionUpdate, _ ...core.DBExecutor) (int64, error) {
	if filter.PaymentIntentID == "" && filter.SubscriptionID == "" {
		return 0, nil
	}

	repo.db.Lock()
	defer repo.db.Unlock()

	var n int64
	for id, t := range repo.db.transactions {
		switch {
		case filter.PaymentIntentID != "":
			if t.ProcessorPaymentIntentID.String != filter.PaymentIntentID {
				continue
			}
		default:
			if t.ProcessorSubscriptionID.String != filter.SubscriptionID {
				continue
			}
		}
		if filter.PendingOnly && t.Status != billing.TxPending {
			continue
		}
		if upd.Status != "" {
			t.Status = upd.Status
		}
		if upd.InvoiceID != "" {
			t.ProcessorInvoiceID = null.StringFrom(upd.InvoiceID)
		}
		t.UpdatedAt = time.Now().UTC()
		repo.db.transactions[id] = t
		n++
	}
	return n, nil
}

func (repo *billingRepository) QueryTransactions(_ context.Context, orgID, userID string, _ ...core.DBExecutor) ([]billing.Transaction, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	txs := make([]billing.Transaction, 0)
	for _, t := range repo.db.transactions {
		if t.OrgID == orgID && (userID == "" || t.UserID == userID) {
			txs = append(txs, t)
		}
	}
	sort.Slice(txs, func(i, j int) bool { return txs[i].CreatedAt.After(txs[j].CreatedAt) })
	return txs, nil
}

// Subscriptions

func (repo *billingRepository) CreateSubscription(_ context.Context, s billing.Subscription, _ ...core.DBExecutor) (billing.Subscription, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	s.ID = newID()
	repo.db.subscriptions[s.ID] = s
	return s, nil
}

func (repo *billingRepository) GetSubscription(_ context.Context, filter billing.SubscriptionFilter, _ ...core.DBExecutor) (billing.Subscription, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	switch {
	case filter.ID != "":
		if s, ok := repo.db.subscriptions[filter.ID]; ok {
			return s, nil
		}
	case filter.ProcessorID != "":
		for _, s := range repo.db.subscriptions {
			if s.ProcessorSubscriptionID == filter.ProcessorID {
				return s, nil
			}
		}
	}
	return billing.Subscription{}, billing.ErrSubscriptionNotFound
}

func (repo *billingRepository) UpdateSubscription(_ context.Context, s billing.Subscription, _ ...core.DBExecutor) (billing.Subscription, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.subscriptions[s.ID]
	if !ok {
		return billing.Subscription{}, billing.ErrSubscriptionNotFound
	}
	s.CreatedAt = orig.CreatedAt
	repo.db.subscriptions[s.ID] = s
	return s, nil
}

func (repo *billingRepository) QuerySubscriptions(_ context.Context, orgID, userID string, _ ...core.DBExecutor) ([]billing.Subscription, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	subs := make([]billing.Subscription, 0)
	for _, s := range repo.db.subscriptions {
		if s.OrgID == orgID && (userID == "" || s.UserID == userID) {
			subs = append(subs, s)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].CreatedAt.After(subs[j].CreatedAt) })
	return subs, nil
}
