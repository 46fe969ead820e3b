package dummydb

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/blog"
)

var errPostSlugTaken = core.NewValidationError(errors.New("duplicate post slug"), core.FieldError{Field: "slug", Error: "this slug is already in use"})

type blogRepository struct {
	db *DB
}

var _ blog.Repository = (*blogRepository)(nil) // interface compliance check

func NewBlogRepository(db *DB) blog.Repository {
	return &blogRepository{db: db}
}

func (repo *blogRepository) slugTaken(orgID, slug, excludedID string) bool {
	for _, p := range repo.db.posts {
		if p.OrgID == orgID && p.Slug == slug && p.ID != excludedID {
			return true
		}
	}
	return false
}

func copyTags(tags []string) []string {
	cp := make([]string, len(tags))
	copy(cp, tags)
	return cp
}

func (repo *blogRepository) CreatePost(_ context.Context, p blog.Post, _ ...core.DBExecutor) (blog.Post, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if repo.slugTaken(p.OrgID, p.Slug, "") {
		return blog.Post{}, errPostSlugTaken
	}
	p.ID = newID()
	p.Tags = copyTags(p.Tags)
	repo.db.posts[p.ID] = p
	return p, nil
}

func (repo *blogRepository) UpdatePost(_ context.Context, p blog.Post, _ ...core.DBExecutor) (blog.Post, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.posts[p.ID]
	if !ok || orig.OrgID != p.OrgID {
		return blog.Post{}, blog.ErrNotFound
	}
	if repo.slugTaken(p.OrgID, p.Slug, p.ID) {
		return blog.Post{}, errPostSlugTaken
	}
	p.AuthorID, p.CreatedAt = orig.AuthorID, orig.CreatedAt
	p.Tags = copyTags(p.Tags)
	repo.db.posts[p.ID] = p
	return p, nil
}

func (repo *blogRepository) GetPost(_ context.Context, filter blog.GetFilter, _ ...core.DBExecutor) (blog.Post, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, p := range repo.db.posts {
		if p.OrgID != filter.OrgID || (filter.PublishedOnly && !p.IsPublished()) {
			continue
		}
		if (filter.ID != "" && p.ID == filter.ID) || (filter.ID == "" && filter.Slug != "" && p.Slug == filter.Slug) {
			return p, nil
		}
	}
	return blog.Post{}, blog.ErrNotFound
}

func (repo *blogRepository) QueryPosts(_ context.Context, filter blog.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]blog.Post, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	posts := make([]blog.Post, 0)
	for _, p := range repo.db.posts {
		if p.OrgID != filter.OrgID {
			continue
		}
		if filter.IDs != nil && !contains(filter.IDs, p.ID) {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.Tag != "" && !contains(p.Tags, filter.Tag) {
			continue
		}
		if filter.Search != "" && !containsFold(p.Title, filter.Search) && !containsFold(p.Excerpt, filter.Search) {
			continue
		}
		posts = append(posts, p)
	}

	ordering = core.CleanOrderings(ordering, "title", "status", "published_at", "created_at", "updated_at", "reading_minutes")
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	sort.SliceStable(posts, lessBy(ordering, func(i int, field string) interface{} {
		p := posts[i]
		switch field {
		case "title":
			return p.Title
		case "status":
			return p.Status
		case "published_at":
			return p.PublishedAt.Time.UnixNano()
		case "updated_at":
			return p.UpdatedAt.UnixNano()
		case "reading_minutes":
			return int64(p.ReadingMinutes)
		default:
			return p.CreatedAt.UnixNano()
		}
	}))

	total := len(posts)
	if filter.PageSize > 0 {
		start := int(filter.Offset())
		if start > total {
			start = total
		}
		end := start + int(filter.Limit())
		if end > total {
			end = total
		}
		posts = posts[start:end]
	}
	return posts, total, nil
}

func (repo *blogRepository) DeletePost(_ context.Context, orgID, id string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	p, ok := repo.db.posts[id]
	if !ok || p.OrgID != orgID {
		return blog.ErrNotFound
	}
	delete(repo.db.posts, id)
	return nil
}

func (repo *blogRepository) SlugExists(_ context.Context, orgID, slug, excludedID string, _ ...core.DBExecutor) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.slugTaken(orgID, slug, excludedID), nil
}
