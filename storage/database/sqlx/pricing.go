package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/pricing"
)

var (
	productColumns = []string{"id", "org_id", "name", "slug", "description", "is_active", "created_at", "updated_at"}
	planColumns    = []string{
		"id", "product_id", "name", "interval", "currency", "amount_cents", "trial_days",
		"stripe_price_id", "is_active", "promotion_percent", "position", "created_at", "updated_at",
	}
	featureColumns = []string{"id", "org_id", "name", "slug", "description", "created_at"}
)

type pricingRepository struct {
	base
}

var _ pricing.Repository = (*pricingRepository)(nil) // interface compliance check

func NewPricingRepository(exec core.DBExecutor) *pricingRepository {
	return &pricingRepository{base{exec: exec}}
}

func (repo pricingRepository) trapWriteErr(err error, msg string) error {
	if isPQError(err, uniqueViolation) {
		return pricing.ErrSlugExists
	}
	return errors.Wrap(err, msg)
}

func validID(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}

// Products

func (repo pricingRepository) CreateProduct(ctx context.Context, p pricing.Product, exec ...core.DBExecutor) (pricing.Product, error) {
	p.ID = uuid.New().String()
	q := psql.Insert("products").
		Columns(productColumns...).
		Values(p.ID, p.OrgID, p.Name, p.Slug, p.Description, p.IsActive, p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	if _, err := execute(ctx, repo.getExec(exec), q); err != nil {
		return pricing.Product{}, repo.trapWriteErr(err, "inserting product")
	}
	return p, nil
}

func (repo pricingRepository) UpdateProduct(ctx context.Context, p pricing.Product, exec ...core.DBExecutor) (pricing.Product, error) {
	q := psql.Update("products").
		SetMap(map[string]interface{}{
			"name":        p.Name,
			"slug":        p.Slug,
			"description": p.Description,
			"is_active":   p.IsActive,
			"updated_at":  p.UpdatedAt.UTC(),
		}).
		Where(sq.Eq{"id": p.ID, "org_id": p.OrgID})
	n, err := execute(ctx, repo.getExec(exec), q)
	if err != nil {
		return pricing.Product{}, repo.trapWriteErr(err, "updating product")
	}
	if n == 0 {
		return pricing.Product{}, pricing.ErrProductNotFound
	}
	return p, nil
}

func (repo pricingRepository) GetProduct(ctx context.Context, orgID, id string, exec ...core.DBExecutor) (pricing.Product, error) {
	if !validID(id) {
		return pricing.Product{}, pricing.ErrProductNotFound
	}
	q := psql.Select(productColumns...).From("products").Where(sq.Eq{"id": id, "org_id": orgID})
	var p pricing.Product
	if err := get(ctx, repo.getExec(exec), &p, q); err != nil {
		return pricing.Product{}, trapNoRows(err, pricing.ErrProductNotFound, "finding product")
	}
	return p, nil
}

func (repo pricingRepository) QueryProducts(ctx context.Context, orgID string, activeOnly bool, exec ...core.DBExecutor) ([]pricing.Product, error) {
	q := psql.Select(productColumns...).From("products").Where(sq.Eq{"org_id": orgID}).OrderBy("name")
	if activeOnly {
		q = q.Where(sq.Eq{"is_active": true})
	}
	products := make([]pricing.Product, 0)
	if err := sel(ctx, repo.getExec(exec), &products, q); err != nil {
		return nil, errors.Wrap(err, "querying products")
	}
	return products, nil
}

func (repo pricingRepository) DeleteProduct(ctx context.Context, orgID, id string, exec ...core.DBExecutor) error {
	if !validID(id) {
		return pricing.ErrProductNotFound
	}
	n, err := execute(ctx, repo.getExec(exec), psql.Delete("products").Where(sq.Eq{"id": id, "org_id": orgID}))
	if err != nil {
		return errors.Wrap(err, "deleting product")
	}
	if n == 0 {
		return pricing.ErrProductNotFound
	}
	return nil
}

// Plans

func (repo pricingRepository) CreatePlan(ctx context.Context, p pricing.Plan, exec ...core.DBExecutor) (pricing.Plan, error) {
	p.ID = uuid.New().String()
	q := psql.Insert("plans").
		Columns(planColumns...).
		Values(
			p.ID, p.ProductID, p.Name, p.Interval, p.Currency, p.AmountCents, p.TrialDays,
			p.StripePriceID, p.IsActive, p.PromotionPercent, p.Position, p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
		)
	if _, err := execute(ctx, repo.getExec(exec), q); err != nil {
		return pricing.Plan{}, errors.Wrap(err, "inserting plan")
	}
	return p, nil
}

func (repo pricingRepository) UpdatePlan(ctx context.Context, p pricing.Plan, exec ...core.DBExecutor) (pricing.Plan, error) {
	q := psql.Update("plans").
		SetMap(map[string]interface{}{
			"product_id":        p.ProductID,
			"name":              p.Name,
			"interval":          p.Interval,
			"currency":          p.Currency,
			"amount_cents":      p.AmountCents,
			"trial_days":        p.TrialDays,
			"stripe_price_id":   p.StripePriceID,
			"is_active":         p.IsActive,
			"promotion_percent": p.PromotionPercent,
			"position":          p.Position,
			"updated_at":        p.UpdatedAt.UTC(),
		}).
		Where(sq.Eq{"id": p.ID})
	n, err := execute(ctx, repo.getExec(exec), q)
	if err != nil {
		return pricing.Plan{}, errors.Wrap(err, "updating plan")
	}
	if n == 0 {
		return pricing.Plan{}, pricing.ErrPlanNotFound
	}
	return p, nil
}

func (repo pricingRepository) GetPlan(ctx context.Context, orgID, id string, exec ...core.DBExecutor) (pricing.Plan, error) {
	if !validID(id) {
		return pricing.Plan{}, pricing.ErrPlanNotFound
	}
	cols := make([]string, 0, len(planColumns))
	for _, c := range planColumns {
		cols = append(cols, "pl."+c)
	}
	q := psql.Select(cols...).
		From("plans pl").
		Join("products pr ON pr.id = pl.product_id").
		Where(sq.Eq{"pl.id": id, "pr.org_id": orgID})
	var p pricing.Plan
	if err := get(ctx, repo.getExec(exec), &p, q); err != nil {
		return pricing.Plan{}, trapNoRows(err, pricing.ErrPlanNotFound, "finding plan")
	}
	return p, nil
}

func (repo pricingRepository) QueryPlans(ctx context.Context, productIDs []string, activeOnly bool, exec ...core.DBExecutor) ([]pricing.Plan, error) {
	plans := make([]pricing.Plan, 0)
	if len(productIDs) == 0 {
		return plans, nil
	}
	q := psql.Select(planColumns...).From("plans").Where(sq.Eq{"product_id": productIDs}).OrderBy("position", "amount_cents")
	if activeOnly {
		q = q.Where(sq.Eq{"is_active": true})
	}
	if err := sel(ctx, repo.getExec(exec), &plans, q); err != nil {
		return nil, errors.Wrap(err, "querying plans")
	}
	return plans, nil
}

func (repo pricingRepository) DeletePlan(ctx context.Context, id string, exec ...core.DBExecutor) error {
	n, err := execute(ctx, repo.getExec(exec), psql.Delete("plans").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting plan")
	}
	if n == 0 {
		return pricing.ErrPlanNotFound
	}
	return nil
}

// Features

func (repo pricingRepository) CreateFeature(ctx context.Context, f pricing.Feature, exec ...core.DBExecutor) (pricing.Feature, error) {
	f.ID = uuid.New().String()
	q := psql.Insert("features").
		Columns(featureColumns...).
		Values(f.ID, f.OrgID, f.Name, f.Slug, f.Description, f.CreatedAt.UTC())
	if _, err := execute(ctx, repo.getExec(exec), q); err != nil {
		return pricing.Feature{}, repo.trapWriteErr(err, "inserting feature")
	}
	return f, nil
}

func (repo pricingRepository) UpdateFeature(ctx context.Context, f pricing.Feature, exec ...core.DBExecutor) (pricing.Feature, error) {
	q := psql.Update("features").
		Set("name", f.Name).
		Set("slug", f.Slug).
		Set("description", f.Description).
		Where(sq.Eq{"id": f.ID, "org_id": f.OrgID})
	n, err := execute(ctx, repo.getExec(exec), q)
	if err != nil {
		return pricing.Feature{}, repo.trapWriteErr(err, "updating feature")
	}
	if n == 0 {
		return pricing.Feature{}, pricing.ErrFeatureNotFound
	}
	return f, nil
}

func (repo pricingRepository) GetFeature(ctx context.Context, orgID, id string, exec ...core.DBExecutor) (pricing.Feature, error) {
	if !validID(id) {
		return pricing.Feature{}, pricing.ErrFeatureNotFound
	}
	q := psql.Select(featureColumns...).From("features").Where(sq.Eq{"id": id, "org_id": orgID})
	var f pricing.Feature
	if err := get(ctx, repo.getExec(exec), &f, q); err != nil {
		return pricing.Feature{}, trapNoRows(err, pricing.ErrFeatureNotFound, "finding feature")
	}
	return f, nil
}

func (repo pricingRepository) QueryFeatures(ctx context.Context, orgID string, exec ...core.DBExecutor) ([]pricing.Feature, error) {
	q := psql.Select(featureColumns...).From("features").Where(sq.Eq{"org_id": orgID}).OrderBy("name")
	features := make([]pricing.Feature, 0)
	if err := sel(ctx, repo.getExec(exec), &features, q); err != nil {
		return nil, errors.Wrap(err, "querying features")
	}
	return features, nil
}

func (repo pricingRepository) DeleteFeature(ctx context.Context, orgID, id string, exec ...core.DBExecutor) error {
	if !validID(id) {
		return pricing.ErrFeatureNotFound
	}
	n, err := execute(ctx, repo.getExec(exec), psql.Delete("features").Where(sq.Eq{"id": id, "org_id": orgID}))
	if err != nil {
		return errors.Wrap(err, "deleting feature")
	}
	if n == 0 {
		return pricing.ErrFeatureNotFound
	}
	return nil
}

// Plan features

func (repo pricingRepository) AttachFeatures(ctx context.Context, planID string, featureIDs []string, exec ...core.DBExecutor) error {
	if len(featureIDs) == 0 {
		return nil
	}
	q := psql.Insert("plan_features").Columns("plan_id", "feature_id")
	for _, id := range featureIDs {
		q = q.Values(planID, id)
	}
	q = q.Suffix("ON CONFLICT (plan_id, feature_id) DO NOTHING")
	if _, err := execute(ctx, repo.getExec(exec), q); err != nil {
		return errors.Wrap(err, "attaching features")
	}
	return nil
}

func (repo pricingRepository) DetachFeature(ctx context.Context, planID, featureID string, exec ...core.DBExecutor) error {
	q := psql.Delete("plan_features").Where(sq.Eq{"plan_id": planID, "feature_id": featureID})
	n, err := execute(ctx, repo.getExec(exec), q)
	if err != nil {
		return errors.Wrap(err, "detaching feature")
	}
	if n == 0 {
		return pricing.ErrFeatureNotFound
	}
	return nil
}

func (repo pricingRepository) QueryPlanFeatures(ctx context.Context, planIDs []string, exec ...core.DBExecutor) ([]pricing.PlanFeature, error) {
	links := make([]pricing.PlanFeature, 0)
	if len(planIDs) == 0 {
		return links, nil
	}
	cols := []string{"pf.plan_id"}
	for _, c := range featureColumns {
		cols = append(cols, "f."+c)
	}
	q := psql.Select(cols...).
		From("plan_features pf").
		Join("features f ON f.id = pf.feature_id").
		Where(sq.Eq{"pf.plan_id": planIDs}).
		OrderBy("f.name")
	if err := sel(ctx, repo.getExec(exec), &links, q); err != nil {
		return nil, errors.Wrap(err, "querying plan features")
	}
	return links, nil
}
