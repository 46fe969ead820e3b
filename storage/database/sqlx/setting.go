package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/setting"
)

var settingColumns = []string{"org_id", "key", "value", "is_public", "updated_at"}

type settingRepository struct {
	base
}

var _ setting.Repository = (*settingRepository)(nil) // interface compliance check

func NewSettingRepository(exec core.DBExecutor) *settingRepository {
	return &settingRepository{base{exec: exec}}
}

func (repo settingRepository) QuerySettings(ctx context.Context, orgID string, publicOnly bool, exec ...core.DBExecutor) ([]setting.Setting, error) {
	q := psql.Select(settingColumns...).From("settings").Where(sq.Eq{"org_id": orgID}).OrderBy("key")
	if publicOnly {
		q = q.Where(sq.Eq{"is_public": true})
	}
	settings := make([]setting.Setting, 0)
	if err := sel(ctx, repo.getExec(exec), &settings, q); err != nil {
		return nil, errors.Wrap(err, "querying settings")
	}
	return settings, nil
}

func (repo settingRepository) GetSetting(ctx context.Context, orgID, key string, exec ...core.DBExecutor) (setting.Setting, error) {
	q := psql.Select(settingColumns...).From("settings").Where(sq.Eq{"org_id": orgID, "key": key})
	var s setting.Setting
	if err := get(ctx, repo.getExec(exec), &s, q); err != nil {
		return setting.Setting{}, trapNoRows(err, setting.ErrNotFound, "finding setting")
	}
	return s, nil
}

func (repo settingRepository) UpsertSetting(ctx context.Context, s setting.Setting, exec ...core.DBExecutor) (setting.Setting, error) {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}
	s.UpdatedAt = s.UpdatedAt.UTC()
	q := psql.Insert("settings").
		Columns(settingColumns...).
		Values(s.OrgID, s.Key, []byte(s.Value), s.IsPublic, s.UpdatedAt).
		Suffix("ON CONFLICT (org_id, key) DO UPDATE SET value = EXCLUDED.value, is_public = EXCLUDED.is_public, updated_at = EXCLUDED.updated_at")
	if _, err := execute(ctx, repo.getExec(exec), q); err != nil {
		return setting.Setting{}, errors.Wrap(err, "upserting setting")
	}
	return s, nil
}

func (repo settingRepository) DeleteSetting(ctx context.Context, orgID, key string, exec ...core.DBExecutor) error {
	n, err := execute(ctx, repo.getExec(exec), psql.Delete("settings").Where(sq.Eq{"org_id": orgID, "key": key}))
	if err != nil {
		return errors.Wrap(err, "deleting setting")
	}
	if n == 0 {
		return setting.ErrNotFound
	}
	return nil
}
