package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/file"
)

var (
	fileColumns  = []string{"id", "org_id", "owner_id", "name", "blob_name", "content_type", "size", "created_at"}
	shareColumns = []string{"id", "file_id", "token", "expires_at", "created_by", "created_at"}
)

type fileRepository struct {
	base
}

var _ file.Repository = (*fileRepository)(nil) // interface compliance check

func NewFileRepository(exec core.DBExecutor) *fileRepository {
	return &fileRepository{base{exec: exec}}
}

func (repo fileRepository) CreateFile(ctx context.Context, f file.File, exec ...core.DBExecutor) (file.File, error) {
	f.ID = uuid.New().String()
	q := psql.Insert("files").
		Columns(fileColumns...).
		Values(f.ID, f.OrgID, f.OwnerID, f.Name, f.BlobName, f.ContentType, f.Size, f.CreatedAt.UTC())
	if _, err := execute(ctx, repo.getExec(exec), q); err != nil {
		return file.File{}, errors.Wrap(err, "inserting file")
	}
	return f, nil
}

func (repo fileRepository) GetFile(ctx context.Context, filter file.GetFilter, exec ...core.DBExecutor) (file.File, error) {
	if !validID(filter.ID) {
		return file.File{}, file.ErrNotFound
	}
	q := psql.Select(fileColumns...).From("files").Where(sq.Eq{"id": filter.ID})
	if filter.OrgID != "" {
		q = q.Where(sq.Eq{"org_id": filter.OrgID})
	}
	var f file.File
	if err := get(ctx, repo.getExec(exec), &f, q); err != nil {
		return file.File{}, trapNoRows(err, file.ErrNotFound, "finding file")
	}
	return f, nil
}

func (repo fileRepository) QueryFiles(ctx context.Context, orgID, ownerID string, exec ...core.DBExecutor) ([]file.File, error) {
	q := psql.Select(fileColumns...).From("files").Where(sq.Eq{"org_id": orgID}).OrderBy("created_at DESC")
	if ownerID != "" {
		q = q.Where(sq.Eq{"owner_id": ownerID})
	}
	files := make([]file.File, 0)
	if err := sel(ctx, repo.getExec(exec), &files, q); err != nil {
		return nil, errors.Wrap(err, "querying files")
	}
	return files, nil
}

func (repo fileRepository) DeleteFile(ctx context.Context, id string, exec ...core.DBExecutor) error {
	n, err := execute(ctx, repo.getExec(exec), psql.Delete("files").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting file")
	}
	if n == 0 {
		return file.ErrNotFound
	}
	return nil
}

func (repo fileRepository) CreateShare(ctx context.Context, s file.Share, exec ...core.DBExecutor) (file.Share, error) {
	s.ID = uuid.New().String()
	q := psql.Insert("file_shares").
		Columns(shareColumns...).
		Values(s.ID, s.FileID, s.Token, s.ExpiresAt.UTC(), s.CreatedBy, s.CreatedAt.UTC())
	if _, err := execute(ctx, repo.getExec(exec), q); err != nil {
		return file.Share{}, errors.Wrap(err, "inserting share")
	}
	return s, nil
}

func (repo fileRepository) GetShare(ctx context.Context, token string, exec ...core.DBExecutor) (file.Share, error) {
	q := psql.Select(shareColumns...).From("file_shares").Where(sq.Eq{"token": token})
	var s file.Share
	if err := get(ctx, repo.getExec(exec), &s, q); err != nil {
		return file.Share{}, trapNoRows(err, file.ErrShareNotFound, "finding share")
	}
	return s, nil
}
