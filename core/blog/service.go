package blog

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
)

var ErrNotFound = core.NewNotFoundError("post")

var orderingFields = []string{"title", "status", "published_at", "created_at", "updated_at", "reading_minutes"}

type (
	Repository interface {
		CreatePost(ctx context.Context, p Post, exec ...core.DBExecutor) (Post, error)
		UpdatePost(ctx context.Context, p Post, exec ...core.DBExecutor) (Post, error)
		GetPost(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Post, error)
		// QueryPosts returns a page of posts and the total number of matches.
		QueryPosts(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Post, int, error)
		DeletePost(ctx context.Context, orgID, id string, exec ...core.DBExecutor) error
		SlugExists(ctx context.Context, orgID, slug, excludedID string, exec ...core.DBExecutor) (bool, error)
	}

	// Indexer is the full-text search engine of published posts.
	Indexer interface {
		Index(ctx context.Context, p Post) error
		Remove(ctx context.Context, id string) error
		// Search returns the matching post ids, best match first.
		Search(ctx context.Context, orgID, q string, limit int) ([]string, error)
	}

	Service interface {
		Create(ctx context.Context, orgID, authorID string, in PostInput) (Post, error)
		Update(ctx context.Context, orgID, id string, in PostInput) (Post, error)
		Publish(ctx context.Context, orgID, id string) (Post, error)
		Unpublish(ctx context.Context, orgID, id string) (Post, error)
		Archive(ctx context.Context, orgID, id string) (Post, error)
		Delete(ctx context.Context, orgID, id string) error
		Get(ctx context.Context, orgID, id string) (Post, error)
		GetBySlug(ctx context.Context, orgID, slug string) (Post, error)
		Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) (Page, error)
		Search(ctx context.Context, orgID, q string, pagination core.Pagination) (Page, error)
		Outline(p Post) []Heading
	}

	service struct {
		repo    Repository
		indexer Indexer // optional
		logger  core.Logger
	}
)

// NewService returns the blog service; indexer may be nil.
func NewService(repo Repository, indexer Indexer, logger core.Logger) Service {
	return &service{repo: repo, indexer: indexer, logger: logger}
}

// prepare sanitizes the body and derives excerpt & reading time.
func prepare(p *Post, in PostInput) {
	p.Title = in.Title
	p.ContentHTML = Sanitize(in.ContentHTML)
	text := PlainText(p.ContentHTML)
	if in.Excerpt != "" {
		p.Excerpt = in.Excerpt
	} else {
		p.Excerpt = Excerpt(text)
	}
	p.Tags = in.Tags
	if p.Tags == nil {
		p.Tags = []string{}
	}
	p.ReadingMinutes = ReadingMinutes(text)
}

// uniqueSlug suffixes base with -2, -3... until no other post of the org uses it.
func (svc *service) uniqueSlug(ctx context.Context, orgID, base, excludedID string) (string, error) {
	if base == "" {
		base = "post"
	}
	slug := base
	for i := 2; ; i++ {
		exists, err := svc.repo.SlugExists(ctx, orgID, slug, excludedID)
		if err != nil {
			return "", errors.Wrap(err, "checking slug")
		}
		if !exists {
			return slug, nil
		}
		slug = base + "-" + strconv.Itoa(i)
	}
}

func (svc *service) Create(ctx context.Context, orgID, authorID string, in PostInput) (Post, error) {
	base := in.Slug
	if base == "" {
		base = core.Slugify(in.Title)
	}
	slug, err := svc.uniqueSlug(ctx, orgID, base, "")
	if err != nil {
		return Post{}, err
	}

	now := time.Now().UTC()
	p := Post{
		OrgID:     orgID,
		AuthorID:  null.NewString(authorID, authorID != ""),
		Slug:      slug,
		Status:    StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	prepare(&p, in)
	return svc.repo.CreatePost(ctx, p)
}

func (svc *service) Update(ctx context.Context, orgID, id string, in PostInput) (Post, error) {
	p, err := svc.Get(ctx, orgID, id)
	if err != nil {
		return Post{}, err
	}
	if in.Slug != "" && in.Slug != p.Slug {
		if p.Slug, err = svc.uniqueSlug(ctx, orgID, in.Slug, p.ID); err != nil {
			return Post{}, err
		}
	}
	prepare(&p, in)
	p.UpdatedAt = time.Now().UTC()
	if p, err = svc.repo.UpdatePost(ctx, p); err != nil {
		return Post{}, errors.Wrap(err, "updating post")
	}
	svc.sync(ctx, p)
	return p, nil
}

func (svc *service) setStatus(ctx context.Context, orgID, id, status string) (Post, error) {
	p, err := svc.Get(ctx, orgID, id)
	if err != nil {
		return Post{}, err
	}
	p.Status = status
	if status == StatusPublished && !p.PublishedAt.Valid {
		p.PublishedAt = null.TimeFrom(time.Now().UTC())
	}
	p.UpdatedAt = time.Now().UTC()
	if p, err = svc.repo.UpdatePost(ctx, p); err != nil {
		return Post{}, errors.Wrap(err, "updating post status")
	}
	svc.sync(ctx, p)
	return p, nil
}

// Publish sets PublishedAt on the first publication only.
func (svc *service) Publish(ctx context.Context, orgID, id string) (Post, error) {
	return svc.setStatus(ctx, orgID, id, StatusPublished)
}

func (svc *service) Unpublish(ctx context.Context, orgID, id string) (Post, error) {
	return svc.setStatus(ctx, orgID, id, StatusDraft)
}

func (svc *service) Archive(ctx context.Context, orgID, id string) (Post, error) {
	return svc.setStatus(ctx, orgID, id, StatusArchived)
}

func (svc *service) Delete(ctx context.Context, orgID, id string) error {
	if _, err := svc.Get(ctx, orgID, id); err != nil {
		return err
	}
	if err := svc.repo.DeletePost(ctx, orgID, id); err != nil {
		return errors.Wrap(err, "deleting post")
	}
	if svc.indexer != nil {
		if err := svc.indexer.Remove(ctx, id); err != nil {
			svc.logger.Error(fmt.Sprintf("removing post %s from index: %v", id, err), err)
		}
	}
	return nil
}

// sync indexes published posts and removes the others; index failures are only logged.
func (svc *service) sync(ctx context.Context, p Post) {
	if svc.indexer == nil {
		return
	}
	var err error
	if p.IsPublished() {
		err = svc.indexer.Index(ctx, p)
	} else {
		err = svc.indexer.Remove(ctx, p.ID)
	}
	if err != nil {
		svc.logger.Error(fmt.Sprintf("syncing post %s with index: %v", p.ID, err), err)
	}
}

func (svc *service) Get(ctx context.Context, orgID, id string) (Post, error) {
	return svc.repo.GetPost(ctx, GetFilter{OrgID: orgID, ID: id})
}

// GetBySlug only finds published posts.
func (svc *service) GetBySlug(ctx context.Context, orgID, slug string) (Post, error) {
	return svc.repo.GetPost(ctx, GetFilter{OrgID: orgID, Slug: slug, PublishedOnly: true})
}

func (svc *service) Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) (Page, error) {
	filter.Clean()
	ordering = core.CleanOrderings(ordering, orderingFields...)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	posts, total, err := svc.repo.QueryPosts(ctx, filter, ordering)
	if err != nil {
		return Page{}, errors.Wrap(err, "querying posts")
	}
	return newPage(posts, total, filter.Pagination), nil
}

// Search looks published posts up in the index when there is one, in the database otherwise.
func (svc *service) Search(ctx context.Context, orgID, q string, pagination core.Pagination) (Page, error) {
	pagination.Clean()
	filter := QueryFilter{OrgID: orgID, Status: StatusPublished, Pagination: pagination}
	if svc.indexer == nil {
		filter.Search = q
		return svc.Query(ctx, filter, []core.DBOrdering{{Field: "published_at"}})
	}

	ids, err := svc.indexer.Search(ctx, orgID, core.CleanString(q), core.MaxPageSize)
	if err != nil {
		return Page{}, core.NewUpstreamError("search", err)
	}
	total := len(ids)
	start := int(pagination.Offset())
	if start >= total {
		return newPage(nil, total, pagination), nil
	}
	end := start + pagination.PageSize
	if end > total {
		end = total
	}
	filter.IDs = ids[start:end]
	filter.Pagination = core.Pagination{Page: 1, PageSize: core.MaxPageSize}
	posts, _, err := svc.repo.QueryPosts(ctx, filter, nil)
	if err != nil {
		return Page{}, errors.Wrap(err, "querying posts")
	}

	// keep the relevance order of the index
	byID := make(map[string]Post, len(posts))
	for _, p := range posts {
		byID[p.ID] = p
	}
	ordered := make([]Post, 0, len(posts))
	for _, id := range filter.IDs {
		if p, ok := byID[id]; ok {
			ordered = append(ordered, p)
		}
	}
	return newPage(ordered, total, pagination), nil
}

func (svc *service) Outline(p Post) []Heading {
	return Outline(p.ContentHTML)
}

func newPage(posts []Post, total int, pagination core.Pagination) Page {
	if posts == nil {
		posts = []Post{}
	}
	return Page{Posts: posts, Total: total, Page: pagination.Page, PageSize: pagination.PageSize}
}
