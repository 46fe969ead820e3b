package pricing

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
)

var (
	ErrProductNotFound = core.NewNotFoundError("product")
	ErrPlanNotFound    = core.NewNotFoundError("plan")
	ErrFeatureNotFound = core.NewNotFoundError("feature")
	ErrSlugExists      = errors.New("this slug is already in use")
)

type (
	Repository interface {
		CreateProduct(ctx context.Context, p Product, exec ...core.DBExecutor) (Product, error)
		UpdateProduct(ctx context.Context, p Product, exec ...core.DBExecutor) (Product, error)
		GetProduct(ctx context.Context, orgID, id string, exec ...core.DBExecutor) (Product, error)
		QueryProducts(ctx context.Context, orgID string, activeOnly bool, exec ...core.DBExecutor) ([]Product, error)
		DeleteProduct(ctx context.Context, orgID, id string, exec ...core.DBExecutor) error

		CreatePlan(ctx context.Context, p Plan, exec ...core.DBExecutor) (Plan, error)
		UpdatePlan(ctx context.Context, p Plan, exec ...core.DBExecutor) (Plan, error)
		// GetPlan only finds plans whose product belongs to orgID.
		GetPlan(ctx context.Context, orgID, id string, exec ...core.DBExecutor) (Plan, error)
		QueryPlans(ctx context.Context, productIDs []string, activeOnly bool, exec ...core.DBExecutor) ([]Plan, error)
		DeletePlan(ctx context.Context, id string, exec ...core.DBExecutor) error

		CreateFeature(ctx context.Context, f Feature, exec ...core.DBExecutor) (Feature, error)
		UpdateFeature(ctx context.Context, f Feature, exec ...core.DBExecutor) (Feature, error)
		GetFeature(ctx context.Context, orgID, id string, exec ...core.DBExecutor) (Feature, error)
		QueryFeatures(ctx context.Context, orgID string, exec ...core.DBExecutor) ([]Feature, error)
		DeleteFeature(ctx context.Context, orgID, id string, exec ...core.DBExecutor) error

		AttachFeatures(ctx context.Context, planID string, featureIDs []string, exec ...core.DBExecutor) error
		DetachFeature(ctx context.Context, planID, featureID string, exec ...core.DBExecutor) error
		QueryPlanFeatures(ctx context.Context, planIDs []string, exec ...core.DBExecutor) ([]PlanFeature, error)
	}

	Service interface {
		Catalog(ctx context.Context, orgID string) ([]CatalogProduct, error)

		CreateProduct(ctx context.Context, orgID string, in ProductInput) (Product, error)
		UpdateProduct(ctx context.Context, orgID, id string, in ProductInput) (Product, error)
		GetProduct(ctx context.Context, orgID, id string) (Product, error)
		QueryProducts(ctx context.Context, orgID string) ([]Product, error)
		DeleteProduct(ctx context.Context, orgID, id string) error

		CreatePlan(ctx context.Context, orgID string, in PlanInput) (Plan, error)
		UpdatePlan(ctx context.Context, orgID, id string, in PlanInput) (Plan, error)
		GetPlan(ctx context.Context, orgID, id string) (Plan, error)
		QueryPlans(ctx context.Context, orgID, productID string) ([]Plan, error)
		DeletePlan(ctx context.Context, orgID, id string) error

		CreateFeature(ctx context.Context, orgID string, in FeatureInput) (Feature, error)
		UpdateFeature(ctx context.Context, orgID, id string, in FeatureInput) (Feature, error)
		QueryFeatures(ctx context.Context, orgID string) ([]Feature, error)
		DeleteFeature(ctx context.Context, orgID, id string) error

		AttachFeatures(ctx context.Context, orgID, planID string, featureIDs []string) ([]Feature, error)
		DetachFeature(ctx context.Context, orgID, planID, featureID string) error
	}

	service struct {
		repo Repository
	}
)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func slugTaken(err error) error {
	if errors.Cause(err) == ErrSlugExists {
		return core.NewValidationError(ErrSlugExists, core.FieldError{Field: "slug", Error: ErrSlugExists.Error()})
	}
	return err
}

// Catalog lists the active products with their active plans (by position) and each plan's features.
func (svc *service) Catalog(ctx context.Context, orgID string) ([]CatalogProduct, error) {
	products, err := svc.repo.QueryProducts(ctx, orgID, true)
	if err != nil {
		return nil, errors.Wrap(err, "querying products")
	}
	catalog := make([]CatalogProduct, 0, len(products))
	if len(products) == 0 {
		return catalog, nil
	}

	productIDs := make([]string, 0, len(products))
	for _, p := range products {
		productIDs = append(productIDs, p.ID)
	}
	plans, err := svc.repo.QueryPlans(ctx, productIDs, true)
	if err != nil {
		return nil, errors.Wrap(err, "querying plans")
	}

	planIDs := make([]string, 0, len(plans))
	for _, p := range plans {
		planIDs = append(planIDs, p.ID)
	}
	featuresByPlan := make(map[string][]Feature, len(plans))
	if len(planIDs) > 0 {
		pfs, err := svc.repo.QueryPlanFeatures(ctx, planIDs)
		if err != nil {
			return nil, errors.Wrap(err, "querying plan features")
		}
		for _, pf := range pfs {
			featuresByPlan[pf.PlanID] = append(featuresByPlan[pf.PlanID], pf.Feature)
		}
	}

	plansByProduct := make(map[string][]CatalogPlan, len(products))
	for _, p := range plans {
		features := featuresByPlan[p.ID]
		if features == nil {
			features = []Feature{}
		}
		plansByProduct[p.ProductID] = append(plansByProduct[p.ProductID], CatalogPlan{
			Plan:             p,
			FinalAmountCents: p.FinalAmountCents(),
			Features:         features,
		})
	}
	for _, p := range products {
		cps := plansByProduct[p.ID]
		if cps == nil {
			cps = []CatalogPlan{}
		}
		catalog = append(catalog, CatalogProduct{Product: p, Plans: cps})
	}
	return catalog, nil
}

// Products

func (svc *service) CreateProduct(ctx context.Context, orgID string, in ProductInput) (Product, error) {
	now := time.Now().UTC()
	p, err := svc.repo.CreateProduct(ctx, Product{
		OrgID:       orgID,
		Name:        in.Name,
		Slug:        in.Slug,
		Description: in.Description,
		IsActive:    boolOr(in.IsActive, true),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	return p, slugTaken(err)
}

func (svc *service) UpdateProduct(ctx context.Context, orgID, id string, in ProductInput) (Product, error) {
	p, err := svc.repo.GetProduct(ctx, orgID, id)
	if err != nil {
		return Product{}, err
	}
	p.Name = in.Name
	p.Slug = in.Slug
	p.Description = in.Description
	p.IsActive = boolOr(in.IsActive, p.IsActive)
	p.UpdatedAt = time.Now().UTC()
	p, err = svc.repo.UpdateProduct(ctx, p)
	return p, slugTaken(err)
}

func (svc *service) GetProduct(ctx context.Context, orgID, id string) (Product, error) {
	return svc.repo.GetProduct(ctx, orgID, id)
}

func (svc *service) QueryProducts(ctx context.Context, orgID string) ([]Product, error) {
	return svc.repo.QueryProducts(ctx, orgID, false)
}

func (svc *service) DeleteProduct(ctx context.Context, orgID, id string) error {
	return svc.repo.DeleteProduct(ctx, orgID, id)
}

// Plans

func (svc *service) CreatePlan(ctx context.Context, orgID string, in PlanInput) (Plan, error) {
	if _, err := svc.repo.GetProduct(ctx, orgID, in.ProductID); err != nil {
		if core.IsNotFound(err) {
			return Plan{}, core.NewValidationError(nil, core.FieldError{Field: "product_id", Error: "unknown product"})
		}
		return Plan{}, errors.Wrap(err, "getting product")
	}
	now := time.Now().UTC()
	return svc.repo.CreatePlan(ctx, Plan{
		ProductID:        in.ProductID,
		Name:             in.Name,
		Interval:         in.Interval,
		Currency:         in.Currency,
		AmountCents:      in.AmountCents,
		TrialDays:        in.TrialDays,
		StripePriceID:    null.NewString(in.StripePriceID, in.StripePriceID != ""),
		IsActive:         boolOr(in.IsActive, true),
		PromotionPercent: in.PromotionPercent,
		Position:         in.Position,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
}

func (svc *service) UpdatePlan(ctx context.Context, orgID, id string, in PlanInput) (Plan, error) {
	p, err := svc.repo.GetPlan(ctx, orgID, id)
	if err != nil {
		return Plan{}, err
	}
	if in.ProductID != p.ProductID {
		return Plan{}, core.NewValidationError(nil, core.FieldError{Field: "product_id", Error: "cannot be changed"})
	}
	p.Name = in.Name
	p.Interval = in.Interval
	p.Currency = in.Currency
	p.AmountCents = in.AmountCents
	p.TrialDays = in.TrialDays
	p.StripePriceID = null.NewString(in.StripePriceID, in.StripePriceID != "")
	p.IsActive = boolOr(in.IsActive, p.IsActive)
	p.PromotionPercent = in.PromotionPercent
	p.Position = in.Position
	p.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdatePlan(ctx, p)
}

func (svc *service) GetPlan(ctx context.Context, orgID, id string) (Plan, error) {
	return svc.repo.GetPlan(ctx, orgID, id)
}

func (svc *service) QueryPlans(ctx context.Context, orgID, productID string) ([]Plan, error) {
	if _, err := svc.repo.GetProduct(ctx, orgID, productID); err != nil {
		return nil, err
	}
	return svc.repo.QueryPlans(ctx, []string{productID}, false)
}

func (svc *service) DeletePlan(ctx context.Context, orgID, id string) error {
	if _, err := svc.repo.GetPlan(ctx, orgID, id); err != nil {
		return err
	}
	return svc.repo.DeletePlan(ctx, id)
}

// Features

func (svc *service) CreateFeature(ctx context.Context, orgID string, in FeatureInput) (Feature, error) {
	f, err := svc.repo.CreateFeature(ctx, Feature{
		OrgID:       orgID,
		Name:        in.Name,
		Slug:        in.Slug,
		Description: in.Description,
		CreatedAt:   time.Now().UTC(),
	})
	return f, slugTaken(err)
}

func (svc *service) UpdateFeature(ctx context.Context, orgID, id string, in FeatureInput) (Feature, error) {
	f, err := svc.repo.GetFeature(ctx, orgID, id)
	if err != nil {
		return Feature{}, err
	}
	f.Name = in.Name
	f.Slug = in.Slug
	f.Description = in.Description
	f, err = svc.repo.UpdateFeature(ctx, f)
	return f, slugTaken(err)
}

func (svc *service) QueryFeatures(ctx context.Context, orgID string) ([]Feature, error) {
	return svc.repo.QueryFeatures(ctx, orgID)
}

func (svc *service) DeleteFeature(ctx context.Context, orgID, id string) error {
	return svc.repo.DeleteFeature(ctx, orgID, id)
}

// AttachFeatures links features of the same organization to the plan and returns all its features.
func (svc *service) AttachFeatures(ctx context.Context, orgID, planID string, featureIDs []string) ([]Feature, error) {
	if _, err := svc.repo.GetPlan(ctx, orgID, planID); err != nil {
		return nil, err
	}
	for _, id := range featureIDs {
		if _, err := svc.repo.GetFeature(ctx, orgID, id); err != nil {
			if core.IsNotFound(err) {
				return nil, core.NewValidationError(nil, core.FieldError{Field: "feature_ids", Error: "unknown feature " + id})
			}
			return nil, errors.Wrap(err, "getting feature")
		}
	}
	if err := svc.repo.AttachFeatures(ctx, planID, featureIDs); err != nil {
		return nil, errors.Wrap(err, "attaching features")
	}

	pfs, err := svc.repo.QueryPlanFeatures(ctx, []string{planID})
	if err != nil {
		return nil, errors.Wrap(err, "querying plan features")
	}
	features := make([]Feature, 0, len(pfs))
	for _, pf := range pfs {
		features = append(features, pf.Feature)
	}
	return features, nil
}

func (svc *service) DetachFeature(ctx context.Context, orgID, planID, featureID string) error {
	if _, err := svc.repo.GetPlan(ctx, orgID, planID); err != nil {
		return err
	}
	return svc.repo.DetachFeature(ctx, planID, featureID)
}
