// Package setting stores per-organization configuration values as JSON documents.
package setting

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
)

var (
	ErrNotFound = core.NewNotFoundError("setting")

	errInvalidKey   = "must start with a lowercase letter and only contain lowercase letters, digits, dots and underscores"
	errInvalidValue = "must be a valid JSON value"
)

type Setting struct {
	OrgID     string          `json:"-" db:"org_id"`
	Key       string          `json:"key" db:"key"`
	Value     json.RawMessage `json:"value" db:"value"`
	IsPublic  bool            `json:"is_public" db:"is_public"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

type SetSetting struct {
	Value    json.RawMessage `json:"value"`
	IsPublic bool            `json:"is_public"`
}

type (
	Repository interface {
		QuerySettings(ctx context.Context, orgID string, publicOnly bool, exec ...core.DBExecutor) ([]Setting, error)
		GetSetting(ctx context.Context, orgID, key string, exec ...core.DBExecutor) (Setting, error)
		UpsertSetting(ctx context.Context, s Setting, exec ...core.DBExecutor) (Setting, error)
		DeleteSetting(ctx context.Context, orgID, key string, exec ...core.DBExecutor) error
	}

	Service interface {
		All(ctx context.Context, orgID string) ([]Setting, error)
		Public(ctx context.Context, orgID string) ([]Setting, error)
		Get(ctx context.Context, orgID, key string) (Setting, error)
		Set(ctx context.Context, orgID, key string, data SetSetting) (Setting, error)
		Delete(ctx context.Context, orgID, key string) error
	}

	service struct {
		repo Repository
	}
)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) All(ctx context.Context, orgID string) ([]Setting, error) {
	return svc.repo.QuerySettings(ctx, orgID, false)
}

func (svc *service) Public(ctx context.Context, orgID string) ([]Setting, error) {
	return svc.repo.QuerySettings(ctx, orgID, true)
}

func (svc *service) Get(ctx context.Context, orgID, key string) (Setting, error) {
	return svc.repo.GetSetting(ctx, orgID, key)
}

func (svc *service) Set(ctx context.Context, orgID, key string, data SetSetting) (Setting, error) {
	var fldErrs []core.FieldError
	if !core.JSONKeyRegex.MatchString(key) {
		fldErrs = append(fldErrs, core.FieldError{Field: "key", Error: errInvalidKey})
	}
	if len(data.Value) == 0 || !json.Valid(data.Value) {
		fldErrs = append(fldErrs, core.FieldError{Field: "value", Error: errInvalidValue})
	}
	if fldErrs != nil {
		return Setting{}, core.NewValidationError(nil, fldErrs...)
	}

	s, err := svc.repo.UpsertSetting(ctx, Setting{
		OrgID:     orgID,
		Key:       key,
		Value:     data.Value,
		IsPublic:  data.IsPublic,
		UpdatedAt: time.Now().UTC(),
	})
	return s, errors.Wrap(err, "saving setting")
}

func (svc *service) Delete(ctx context.Context, orgID, key string) error {
	if _, err := svc.repo.GetSetting(ctx, orgID, key); err != nil {
		return err
	}
	return svc.repo.DeleteSetting(ctx, orgID, key)
}
