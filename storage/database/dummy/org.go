package dummydb

import (
	"context"
	"sort"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/org"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/setting"
)

type orgRepository struct {
	db *DB
}

var _ org.Repository = (*orgRepository)(nil) // interface compliance check

func NewOrgRepository(db *DB) org.Repository {
	return &orgRepository{db: db}
}

func (repo *orgRepository) CreateOrg(_ context.Context, o org.Organization, _ ...core.DBExecutor) (org.Organization, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, existing := range repo.db.orgs {
		if existing.Slug == o.Slug {
			return org.Organization{}, org.ErrSlugExists
		}
	}
	o.ID = newID()
	repo.db.orgs[o.ID] = o
	return o, nil
}

func (repo *orgRepository) GetOrg(_ context.Context, filter org.GetFilter, _ ...core.DBExecutor) (org.Organization, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	switch {
	case filter.ID != "":
		if o, ok := repo.db.orgs[filter.ID]; ok {
			return o, nil
		}
	case filter.Slug != "":
		for _, o := range repo.db.orgs {
			if o.Slug == filter.Slug {
				return o, nil
			}
		}
	}
	return org.Organization{}, org.ErrNotFound
}

type settingRepository struct {
	db *DB
}

var _ setting.Repository = (*settingRepository)(nil) // interface compliance check

func NewSettingRepository(db *DB) setting.Repository {
	return &settingRepository{db: db}
}

func settingKey(orgID, key string) string {
	return orgID + "/" + key
}

func (repo *settingRepository) QuerySettings(_ context.Context, orgID string, publicOnly bool, _ ...core.DBExecutor) ([]setting.Setting, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	settings := make([]setting.Setting, 0)
	for _, s := range repo.db.settings {
		if s.OrgID == orgID && (!publicOnly || s.IsPublic) {
			settings = append(settings, s)
		}
	}
	sort.Slice(settings, func(i, j int) bool { return settings[i].Key < settings[j].Key })
	return settings, nil
}

func (repo *settingRepository) GetSetting(_ context.Context, orgID, key string, _ ...core.DBExecutor) (setting.Setting, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.settings[settingKey(orgID, key)]; ok {
		return s, nil
	}
	return setting.Setting{}, setting.ErrNotFound
}

func (repo *settingRepository) UpsertSetting(_ context.Context, s setting.Setting, _ ...core.DBExecutor) (setting.Setting, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.settings[settingKey(s.OrgID, s.Key)] = s
	return s, nil
}

func (repo *settingRepository) DeleteSetting(_ context.Context, orgID, key string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	k := settingKey(orgID, key)
	if _, ok := repo.db.settings[k]; !ok {
		return setting.ErrNotFound
	}
	delete(repo.db.settings, k)
	return nil
}
