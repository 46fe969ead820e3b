package blog

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
)

type memRepo struct {
	posts map[string]Post
}

func (r *memRepo) CreatePost(_ context.Context, p Post, _ ...core.DBExecutor) (Post, error) {
	p.ID = strconv.Itoa(len(r.posts) + 1)
	r.posts[p.ID] = p
	return p, nil
}

func (r *memRepo) UpdatePost(_ context.Context, p Post, _ ...core.DBExecutor) (Post, error) {
	r.posts[p.ID] = p
	return p, nil
}

func (r *memRepo) GetPost(_ context.Context, f GetFilter, _ ...core.DBExecutor) (Post, error) {
	for _, p := range r.posts {
		if p.OrgID == f.OrgID && (p.ID == f.ID || (f.Slug != "" && p.Slug == f.Slug)) {
			if f.PublishedOnly && !p.IsPublished() {
				break
			}
			return p, nil
		}
	}
	return Post{}, ErrNotFound
}

func (r *memRepo) QueryPosts(context.Context, QueryFilter, []core.DBOrdering, ...core.DBExecutor) ([]Post, int, error) {
	return nil, 0, nil
}

func (r *memRepo) DeletePost(_ context.Context, _, id string, _ ...core.DBExecutor) error {
	delete(r.posts, id)
	return nil
}

func (r *memRepo) SlugExists(_ context.Context, orgID, slug, excludedID string, _ ...core.DBExecutor) (bool, error) {
	for _, p := range r.posts {
		if p.OrgID == orgID && p.Slug == slug && p.ID != excludedID {
			return true, nil
		}
	}
	return false, nil
}

type memIndex struct {
	indexed map[string]bool
}

func (idx *memIndex) Index(_ context.Context, p Post) error {
	idx.indexed[p.ID] = true
	return nil
}

func (idx *memIndex) Remove(_ context.Context, id string) error {
	delete(idx.indexed, id)
	return nil
}

func (idx *memIndex) Search(context.Context, string, string, int) ([]string, error) { return nil, nil }

func TestService_CreateUniqueSlugs(t *testing.T) {
	svc := NewService(&memRepo{posts: make(map[string]Post)}, nil, core.NopLogger{})
	ctx := context.Background()

	var slugs []string
	for i := 0; i < 3; i++ {
		p, err := svc.Create(ctx, "org", "author", PostInput{Title: "Hello, World!", ContentHTML: "<p>body</p>"})
		require.NoError(t, err)
		slugs = append(slugs, p.Slug)
	}
	assert.Equal(t, []string{"hello-world", "hello-world-2", "hello-world-3"}, slugs)

	other, err := svc.Create(ctx, "other-org", "", PostInput{Title: "Hello, World!"})
	require.NoError(t, err)
	assert.Equal(t, "hello-world", other.Slug)
	assert.False(t, other.AuthorID.Valid)
}

func TestService_CreateDerivesContent(t *testing.T) {
	svc := NewService(&memRepo{posts: make(map[string]Post)}, nil, core.NopLogger{})
	p, err := svc.Create(context.Background(), "org", "author", PostInput{
		Title:       "Post",
		ContentHTML: `<p onmouseover="x()">Plain words here</p><script>evil()</script>`,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, p.Status)
	assert.Equal(t, "<p>Plain words here</p>", p.ContentHTML)
	assert.Equal(t, "Plain words here", p.Excerpt)
	assert.Equal(t, 1, p.ReadingMinutes)
	assert.Equal(t, []string{}, p.Tags)
}

func TestService_PublishLifecycle(t *testing.T) {
	idx := &memIndex{indexed: make(map[string]bool)}
	svc := NewService(&memRepo{posts: make(map[string]Post)}, idx, core.NopLogger{})
	ctx := context.Background()

	p, err := svc.Create(ctx, "org", "author", PostInput{Title: "Post"})
	require.NoError(t, err)

	_, err = svc.GetBySlug(ctx, "org", p.Slug)
	assert.True(t, core.IsNotFound(err), "drafts are not public")

	published, err := svc.Publish(ctx, "org", p.ID)
	require.NoError(t, err)
	require.True(t, published.PublishedAt.Valid)
	assert.True(t, idx.indexed[p.ID])

	got, err := svc.GetBySlug(ctx, "org", p.Slug)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	draft, err := svc.Unpublish(ctx, "org", p.ID)
	require.NoError(t, err)
	assert.False(t, idx.indexed[p.ID])

	republished, err := svc.Publish(ctx, "org", p.ID)
	require.NoError(t, err)
	assert.Equal(t, published.PublishedAt, republished.PublishedAt, "first publication date is kept")
	assert.Equal(t, StatusDraft, draft.Status)

	_, err = svc.Publish(ctx, "other-org", p.ID)
	assert.True(t, core.IsNotFound(err))
}
