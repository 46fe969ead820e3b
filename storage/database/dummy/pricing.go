package dummydb

import (
	"context"
	"sort"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/pricing"
)

type pricingRepository struct {
	db *DB
}

var _ pricing.Repository = (*pricingRepository)(nil) // interface compliance check

func NewPricingRepository(db *DB) pricing.Repository {
	return &pricingRepository{db: db}
}

// products

func (repo *pricingRepository) productSlugTaken(p pricing.Product) bool {
	for _, existing := range repo.db.products {
		if existing.ID != p.ID && existing.OrgID == p.OrgID && existing.Slug == p.Slug {
			return true
		}
	}
	return false
}

func (repo *pricingRepository) CreateProduct(_ context.Context, p pricing.Product, _ ...core.DBExecutor) (pricing.Product, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	p.ID = newID()
	if repo.productSlugTaken(p) {
		return pricing.Product{}, pricing.ErrSlugExists
	}
	repo.db.products[p.ID] = p
	return p, nil
}

func (repo *pricingRepository) UpdateProduct(_ context.Context, p pricing.Product, _ ...core.DBExecutor) (pricing.Product, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.products[p.ID]
	if !ok || orig.OrgID != p.OrgID {
		return pricing.Product{}, pricing.ErrProductNotFound
	}
	if repo.productSlugTaken(p) {
		return pricing.Product{}, pricing.ErrSlugExists
	}
	p.CreatedAt = orig.CreatedAt
	repo.db.products[p.ID] = p
	return p, nil
}

func (repo *pricingRepository) GetProduct(_ context.Context, orgID, id string, _ ...core.DBExecutor) (pricing.Product, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if p, ok := repo.db.products[id]; ok && p.OrgID == orgID {
		return p, nil
	}
	return pricing.Product{}, pricing.ErrProductNotFound
}

func (repo *pricingRepository) QueryProducts(_ context.Context, orgID string, activeOnly bool, _ ...core.DBExecutor) ([]pricing.Product, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	products := make([]pricing.Product, 0)
	for _, p := range repo.db.products {
		if p.OrgID == orgID && (!activeOnly || p.IsActive) {
			products = append(products, p)
		}
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, nil
}

func (repo *pricingRepository) DeleteProduct(_ context.Context, orgID, id string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	p, ok := repo.db.products[id]
	if !ok || p.OrgID != orgID {
		return pricing.ErrProductNotFound
	}
	delete(repo.db.products, id)
	// plans cascade with their product
	for planID, plan := range repo.db.plans {
		if plan.ProductID == id {
			delete(repo.db.plans, planID)
			delete(repo.db.planFeatures, planID)
		}
	}
	return nil
}

// plans

func (repo *pricingRepository) CreatePlan(_ context.Context, p pricing.Plan, _ ...core.DBExecutor) (pricing.Plan, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	p.ID = newID()
	repo.db.plans[p.ID] = p
	return p, nil
}

func (repo *pricingRepository) UpdatePlan(_ context.Context, p pricing.Plan, _ ...core.DBExecutor) (pricing.Plan, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.plans[p.ID]
	if !ok {
		return pricing.Plan{}, pricing.ErrPlanNotFound
	}
	p.CreatedAt = orig.CreatedAt
	repo.db.plans[p.ID] = p
	return p, nil
}

func (repo *pricingRepository) GetPlan(_ context.Context, orgID, id string, _ ...core.DBExecutor) (pricing.Plan, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if p, ok := repo.db.plans[id]; ok {
		if prod, ok := repo.db.products[p.ProductID]; ok && prod.OrgID == orgID {
			return p, nil
		}
	}
	return pricing.Plan{}, pricing.ErrPlanNotFound
}

func (repo *pricingRepository) QueryPlans(_ context.Context, productIDs []string, activeOnly bool, _ ...core.DBExecutor) ([]pricing.Plan, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	plans := make([]pricing.Plan, 0)
	for _, p := range repo.db.plans {
		if contains(productIDs, p.ProductID) && (!activeOnly || p.IsActive) {
			plans = append(plans, p)
		}
	}
	sort.Slice(plans, func(i, j int) bool {
		if plans[i].Position != plans[j].Position {
			return plans[i].Position < plans[j].Position
		}
		return plans[i].AmountCents < plans[j].AmountCents
	})
	return plans, nil
}

func (repo *pricingRepository) DeletePlan(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.plans[id]; !ok {
		return pricing.ErrPlanNotFound
	}
	delete(repo.db.plans, id)
	delete(repo.db.planFeatures, id)
	return nil
}

// features

func (repo *pricingRepository) featureSlugTaken(f pricing.Feature) bool {
	for _, existing := range repo.db.features {
		if existing.ID != f.ID && existing.OrgID == f.OrgID && existing.Slug == f.Slug {
			return true
		}
	}
	return false
}

func (repo *pricingRepository) CreateFeature(_ context.Context, f pricing.Feature, _ ...core.DBExecutor) (pricing.Feature, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	f.ID = newID()
	if repo.featureSlugTaken(f) {
		return pricing.Feature{}, pricing.ErrSlugExists
	}
	repo.db.features[f.ID] = f
	return f, nil
}

func (repo *pricingRepository) UpdateFeature(_ context.Context, f pricing.Feature, _ ...core.DBExecutor) (pricing.Feature, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.features[f.ID]
	if !ok || orig.OrgID != f.OrgID {
		return pricing.Feature{}, pricing.ErrFeatureNotFound
	}
	if repo.featureSlugTaken(f) {
		return pricing.Feature{}, pricing.ErrSlugExists
	}
	f.CreatedAt = orig.CreatedAt
	repo.db.features[f.ID] = f
	return f, nil
}

func (repo *pricingRepository) GetFeature(_ context.Context, orgID, id string, _ ...core.DBExecutor) (pricing.Feature, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if f, ok := repo.db.features[id]; ok && f.OrgID == orgID {
		return f, nil
	}
	return pricing.Feature{}, pricing.ErrFeatureNotFound
}

func (repo *pricingRepository) QueryFeatures(_ context.Context, orgID string, _ ...core.DBExecutor) ([]pricing.Feature, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	features := make([]pricing.Feature, 0)
	for _, f := range repo.db.features {
		if f.OrgID == orgID {
			features = append(features, f)
		}
	}
	sort.Slice(features, func(i, j int) bool { return features[i].Name < features[j].Name })
	return features, nil
}

func (repo *pricingRepository) DeleteFeature(_ context.Context, orgID, id string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	f, ok := repo.db.features[id]
	if !ok || f.OrgID != orgID {
		return pricing.ErrFeatureNotFound
	}
	delete(repo.db.features, id)
	for _, set := range repo.db.planFeatures {
		delete(set, id)
	}
	return nil
}

// plan features

func (repo *pricingRepository) AttachFeatures(_ context.Context, planID string, featureIDs []string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	set, ok := repo.db.planFeatures[planID]
	if !ok {
		set = make(map[string]bool)
		repo.db.planFeatures[planID] = set
	}
	for _, id := range featureIDs {
		set[id] = true
	}
	return nil
}

func (repo *pricingRepository) DetachFeature(_ context.Context, planID, featureID string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if !repo.db.planFeatures[planID][featureID] {
		return pricing.ErrFeatureNotFound
	}
	delete(repo.db.planFeatures[planID], featureID)
	return nil
}

func (repo *pricingRepository) QueryPlanFeatures(_ context.Context, planIDs []string, _ ...core.DBExecutor) ([]pricing.PlanFeature, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	links := make([]pricing.PlanFeature, 0)
	for _, planID := range planIDs {
		for featureID := range repo.db.planFeatures[planID] {
			if f, ok := repo.db.features[featureID]; ok {
				links = append(links, pricing.PlanFeature{PlanID: planID, Feature: f})
			}
		}
	}
	sort.SliceStable(links, func(i, j int) bool { return links[i].Name < links[j].Name })
	return links, nil
}
