package org

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
)

var (
	ErrNotFound   = core.NewNotFoundError("organization")
	ErrSlugExists = errors.New("an organization with this slug already exists")
)

type Organization struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Slug      string    `json:"slug" db:"slug"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type NewOrganization struct {
	Name string `json:"name" validate:"required"`
	Slug string `json:"slug" validate:"omitempty,slug"`
}

func (no *NewOrganization) Validate(validate *validator.Validate) error {
	no.Name = core.CleanString(no.Name)
	no.Slug = core.CleanString(no.Slug, true /* lower */)
	if no.Slug == "" {
		no.Slug = core.Slugify(no.Name)
	}
	return validate.Struct(no)
}

type GetFilter struct {
	ID   string
	Slug string
}

type (
	Repository interface {
		CreateOrg(ctx context.Context, o Organization, exec ...core.DBExecutor) (Organization, error)
		GetOrg(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Organization, error)
	}

	Service interface {
		Create(ctx context.Context, no NewOrganization) (Organization, error)
		GetByID(ctx context.Context, id string) (Organization, error)
		GetBySlug(ctx context.Context, slug string) (Organization, error)
	}

	service struct {
		repo Repository
	}
)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) Create(ctx context.Context, no NewOrganization) (Organization, error) {
	if _, err := svc.repo.GetOrg(ctx, GetFilter{Slug: no.Slug}); err == nil {
		return Organization{}, core.NewValidationError(ErrSlugExists, core.FieldError{Field: "slug", Error: ErrSlugExists.Error()})
	} else if !core.IsNotFound(err) {
		return Organization{}, errors.Wrap(err, "checking slug")
	}
	return svc.repo.CreateOrg(ctx, Organization{
		Name:      no.Name,
		Slug:      no.Slug,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	})
}

func (svc *service) GetByID(ctx context.Context, id string) (Organization, error) {
	return svc.repo.GetOrg(ctx, GetFilter{ID: id})
}

func (svc *service) GetBySlug(ctx context.Context, slug string) (Organization, error) {
	return svc.repo.GetOrg(ctx, GetFilter{Slug: core.CleanString(slug, true /* lower */)})
}
