package pricing

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
)

// Plan intervals
const (
	IntervalMonth   = "month"
	IntervalYear    = "year"
	IntervalOneTime = "one_time"
)

type Product struct {
	ID          string    `json:"id" db:"id"`
	OrgID       string    `json:"-" db:"org_id"`
	Name        string    `json:"name" db:"name"`
	Slug        string    `json:"slug" db:"slug"`
	Description string    `json:"description" db:"description"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

type Plan struct {
	ID               string      `json:"id" db:"id"`
	ProductID        string      `json:"product_id" db:"product_id"`
	Name             string      `json:"name" db:"name"`
	Interval         string      `json:"interval" db:"interval"`
	Currency         string      `json:"currency" db:"currency"`
	AmountCents      int64       `json:"amount_cents" db:"amount_cents"`
	TrialDays        int         `json:"trial_days" db:"trial_days"`
	StripePriceID    null.String `json:"stripe_price_id" db:"stripe_price_id"`
	IsActive         bool        `json:"is_active" db:"is_active"`
	PromotionPercent int         `json:"promotion_percent" db:"promotion_percent"`
	Position         int         `json:"position" db:"position"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at" db:"updated_at"`
}

// FinalAmountCents is the amount once the promotion is applied, rounded half up.
func (p Plan) FinalAmountCents() int64 {
	pct := int64(p.PromotionPercent)
	if pct <= 0 {
		return p.AmountCents
	}
	if pct >= 100 {
		return 0
	}
	return (p.AmountCents*(100-pct) + 50) / 100
}

func (p Plan) IsRecurring() bool {
	return p.Interval == IntervalMonth || p.Interval == IntervalYear
}

type Feature struct {
	ID          string    `json:"id" db:"id"`
	OrgID       string    `json:"-" db:"org_id"`
	Name        string    `json:"name" db:"name"`
	Slug        string    `json:"slug" db:"slug"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// PlanFeature links a Feature to a Plan.
type PlanFeature struct {
	PlanID string `db:"plan_id"`
	Feature
}

type (
	CatalogPlan struct {
		Plan
		FinalAmountCents int64     `json:"final_amount_cents"`
		Features         []Feature `json:"features"`
	}

	CatalogProduct struct {
		Product
		Plans []CatalogPlan `json:"plans"`
	}
)

type ProductInput struct {
	Name        string `json:"name" validate:"required,max=200"`
	Slug        string `json:"slug" validate:"omitempty,slug"`
	Description string `json:"description"`
	IsActive    *bool  `json:"is_active"`
}

func (in *ProductInput) Validate(validate *validator.Validate) error {
	in.Name = core.CleanString(in.Name)
	in.Slug = core.CleanString(in.Slug, true /* lower */)
	if in.Slug == "" {
		in.Slug = core.Slugify(in.Name)
	}
	return validate.Struct(in)
}

type PlanInput struct {
	ProductID        string `json:"product_id" validate:"required,uuid"`
	Name             string `json:"name" validate:"required,max=200"`
	Interval         string `json:"interval" validate:"required,oneof=month year one_time"`
	Currency         string `json:"currency" validate:"omitempty,len=3,alpha"`
	AmountCents      int64  `json:"amount_cents" validate:"min=0"`
	TrialDays        int    `json:"trial_days" validate:"min=0,max=730"`
	StripePriceID    string `json:"stripe_price_id"`
	IsActive         *bool  `json:"is_active"`
	PromotionPercent int    `json:"promotion_percent" validate:"min=0,max=100"`
	Position         int    `json:"position"`
}

func (in *PlanInput) Validate(validate *validator.Validate) error {
	in.Name = core.CleanString(in.Name)
	in.Currency = core.CleanString(in.Currency, true /* lower */)
	if in.Currency == "" {
		in.Currency = "usd"
	}
	in.StripePriceID = strings.TrimSpace(in.StripePriceID)
	return validate.Struct(in)
}

type FeatureInput struct {
	Name        string `json:"name" validate:"required,max=200"`
	Slug        string `json:"slug" validate:"omitempty,slug"`
	Description string `json:"description"`
}

func (in *FeatureInput) Validate(validate *validator.Validate) error {
	in.Name = core.CleanString(in.Name)
	in.Slug = core.CleanString(in.Slug, true /* lower */)
	if in.Slug == "" {
		in.Slug = core.Slugify(in.Name)
	}
	return validate.Struct(in)
}

type AttachFeatures struct {
	FeatureIDs []string `json:"feature_ids" validate:"required,min=1,dive,uuid"`
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
