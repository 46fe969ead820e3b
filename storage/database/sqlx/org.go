package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/org"
)

var orgColumns = []string{"id", "name", "slug", "is_active", "created_at"}

type orgRepository struct {
	base
}

var _ org.Repository = (*orgRepository)(nil) // interface compliance check

func NewOrgRepository(exec core.DBExecutor) *orgRepository {
	return &orgRepository{base{exec: exec}}
}

func (repo orgRepository) CreateOrg(ctx context.Context, o org.Organization, exec ...core.DBExecutor) (org.Organization, error) {
	o.ID = uuid.New().String()
	o.CreatedAt = o.CreatedAt.UTC()
	q := psql.Insert("organizations").
		Columns(orgColumns...).
		Values(o.ID, o.Name, o.Slug, o.IsActive, o.CreatedAt)
	if _, err := execute(ctx, repo.getExec(exec), q); err != nil {
		if isPQError(err, uniqueViolation) {
			return org.Organization{}, org.ErrSlugExists
		}
		return org.Organization{}, errors.Wrap(err, "inserting organization")
	}
	return o, nil
}

func (repo orgRepository) GetOrg(ctx context.Context, filter org.GetFilter, exec ...core.DBExecutor) (org.Organization, error) {
	q := psql.Select(orgColumns...).From("organizations")
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return org.Organization{}, org.ErrNotFound
		}
		q = q.Where(sq.Eq{"id": filter.ID})
	case filter.Slug != "":
		q = q.Where(sq.Eq{"slug": filter.Slug})
	default:
		return org.Organization{}, org.ErrNotFound
	}

	var o org.Organization
	if err := get(ctx, repo.getExec(exec), &o, q); err != nil {
		return org.Organization{}, trapNoRows(err, org.ErrNotFound, "finding organization")
	}
	return o, nil
}
