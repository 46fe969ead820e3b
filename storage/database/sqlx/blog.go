package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/blog"
)

var postColumns = []string{
	"id", "org_id", "author_id", "title", "slug", "excerpt", "content_html", "status",
	"tags", "reading_minutes", "published_at", "created_at", "updated_at",
}

type postRow struct {
	ID             string         `db:"id"`
	OrgID          string         `db:"org_id"`
	AuthorID       null.String    `db:"author_id"`
	Title          string         `db:"title"`
	Slug           string         `db:"slug"`
	Excerpt        string         `db:"excerpt"`
	ContentHTML    string         `db:"content_html"`
	Status         string         `db:"status"`
	Tags           pq.StringArray `db:"tags"`
	ReadingMinutes int            `db:"reading_minutes"`
	PublishedAt    null.Time      `db:"published_at"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (r postRow) post() blog.Post {
	return blog.Post{
		ID:             r.ID,
		OrgID:          r.OrgID,
		AuthorID:       r.AuthorID,
		Title:          r.Title,
		Slug:           r.Slug,
		Excerpt:        r.Excerpt,
		ContentHTML:    r.ContentHTML,
		Status:         r.Status,
		Tags:           r.Tags,
		ReadingMinutes: r.ReadingMinutes,
		PublishedAt:    r.PublishedAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func tagsOf(p blog.Post) pq.StringArray {
	if p.Tags == nil {
		return pq.StringArray{}
	}
	return p.Tags
}

type blogRepository struct {
	base
}

var _ blog.Repository = (*blogRepository)(nil) // interface compliance check

func NewBlogRepository(exec core.DBExecutor) *blogRepository {
	return &blogRepository{base{exec: exec}}
}

func (repo blogRepository) trapWriteErr(err error, msg string) error {
	if isPQError(err, uniqueViolation) {
		return core.NewValidationError(err, core.FieldError{Field: "slug", Error: "this slug is already in use"})
	}
	return errors.Wrap(err, msg)
}

func (repo blogRepository) CreatePost(ctx context.Context, p blog.Post, exec ...core.DBExecutor) (blog.Post, error) {
	p.ID = uuid.New().String()
	p.Tags = tagsOf(p)
	q := psql.Insert("posts").
		Columns(postColumns...).
		Values(
			p.ID, p.OrgID, p.AuthorID, p.Title, p.Slug, p.Excerpt, p.ContentHTML, p.Status,
			pq.StringArray(p.Tags), p.ReadingMinutes, p.PublishedAt, p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
		)
	if _, err := execute(ctx, repo.getExec(exec), q); err != nil {
		return blog.Post{}, repo.trapWriteErr(err, "inserting post")
	}
	return p, nil
}

func (repo blogRepository) UpdatePost(ctx context.Context, p blog.Post, exec ...core.DBExecutor) (blog.Post, error) {
	p.Tags = tagsOf(p)
	q := psql.Update("posts").
		SetMap(map[string]interface{}{
			"title":           p.Title,
			"slug":            p.Slug,
			"excerpt":         p.Excerpt,
			"content_html":    p.ContentHTML,
			"status":          p.Status,
			"tags":            pq.StringArray(p.Tags),
			"reading_minutes": p.ReadingMinutes,
			"published_at":    p.PublishedAt,
			"updated_at":      p.UpdatedAt.UTC(),
		}).
		Where(sq.Eq{"id": p.ID, "org_id": p.OrgID})
	n, err := execute(ctx, repo.getExec(exec), q)
	if err != nil {
		return blog.Post{}, repo.trapWriteErr(err, "updating post")
	}
	if n == 0 {
		return blog.Post{}, blog.ErrNotFound
	}
	return p, nil
}

func (repo blogRepository) GetPost(ctx context.Context, filter blog.GetFilter, exec ...core.DBExecutor) (blog.Post, error) {
	q := psql.Select(postColumns...).From("posts").Where(sq.Eq{"org_id": filter.OrgID})
	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return blog.Post{}, blog.ErrNotFound
		}
		q = q.Where(sq.Eq{"id": filter.ID})
	case filter.Slug != "":
		q = q.Where(sq.Eq{"slug": filter.Slug})
	default:
		return blog.Post{}, blog.ErrNotFound
	}
	if filter.PublishedOnly {
		q = q.Where(sq.Eq{"status": blog.StatusPublished})
	}

	var row postRow
	if err := get(ctx, repo.getExec(exec), &row, q); err != nil {
		return blog.Post{}, trapNoRows(err, blog.ErrNotFound, "finding post")
	}
	return row.post(), nil
}

func (repo blogRepository) QueryPosts(ctx context.Context, filter blog.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]blog.Post, int, error) {
	where := sq.And{sq.Eq{"org_id": filter.OrgID}}
	if filter.IDs != nil {
		where = append(where, sq.Eq{"id": filter.IDs})
	}
	if filter.Status != "" {
		where = append(where, sq.Eq{"status": filter.Status})
	}
	if filter.Tag != "" {
		where = append(where, sq.Expr("? = ANY(tags)", filter.Tag))
	}
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		where = append(where, sq.Or{sq.ILike{"title": val}, sq.ILike{"excerpt": val}, sq.ILike{"content_html": val}})
	}
	exe := repo.getExec(exec)

	var total int
	if err := get(ctx, exe, &total, psql.Select("COUNT(*)").From("posts").Where(where)); err != nil {
		return nil, 0, errors.Wrap(err, "counting posts")
	}

	q := psql.Select(postColumns...).From("posts").Where(where)
	q = orderBy(q, ordering, "title", "status", "published_at", "created_at", "updated_at", "reading_minutes")
	if len(ordering) == 0 {
		q = q.OrderBy("created_at DESC")
	}
	if filter.PageSize > 0 {
		q = q.Limit(filter.Limit()).Offset(filter.Offset())
	}

	var rows []postRow
	if err := sel(ctx, exe, &rows, q); err != nil {
		return nil, 0, errors.Wrap(err, "querying posts")
	}
	posts := make([]blog.Post, 0, len(rows))
	for _, r := range rows {
		posts = append(posts, r.post())
	}
	return posts, total, nil
}

func (repo blogRepository) DeletePost(ctx context.Context, orgID, id string, exec ...core.DBExecutor) error {
	if !validID(id) {
		return blog.ErrNotFound
	}
	n, err := execute(ctx, repo.getExec(exec), psql.Delete("posts").Where(sq.Eq{"id": id, "org_id": orgID}))
	if err != nil {
		return errors.Wrap(err, "deleting post")
	}
	if n == 0 {
		return blog.ErrNotFound
	}
	return nil
}

func (repo blogRepository) SlugExists(ctx context.Context, orgID, slug, excludedID string, exec ...core.DBExecutor) (bool, error) {
	sub := sq.Select("1").From("posts").Where(sq.Eq{"org_id": orgID, "slug": slug})
	if excludedID != "" {
		sub = sub.Where(sq.NotEq{"id": excludedID})
	}
	subSQL, args, err := sub.ToSql()
	if err != nil {
		return false, errors.Wrap(err, "building query")
	}
	var exists bool
	if err := get(ctx, repo.getExec(exec), &exists, psql.Select().Column("EXISTS ("+subSQL+")", args...)); err != nil {
		return false, errors.Wrap(err, "checking slug")
	}
	return exists, nil
}
