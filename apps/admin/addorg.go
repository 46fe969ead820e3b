package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/org"
)

var errOrgExists = errors.New("an organization with this slug already exists")

func (cli *commandLine) addOrg(ctx context.Context, name, slug string) (org.Organization, error) {
	name = core.CleanString(name)
	slug = core.CleanString(slug, true /* lower */)
	if slug == "" {
		slug = core.Slugify(name)
	}
	if name == "" || slug == "" {
		return org.Organization{}, errors.New("a name is required")
	}

	if _, err := cli.orgRepo.GetOrg(ctx, org.GetFilter{Slug: slug}); err == nil {
		return org.Organization{}, errOrgExists
	} else if !core.IsNotFound(err) {
		return org.Organization{}, err
	}
	return cli.orgRepo.CreateOrg(ctx, org.Organization{
		Name:      name,
		Slug:      slug,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	})
}
