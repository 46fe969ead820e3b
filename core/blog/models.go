package blog

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
)

// Post statuses
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

type Post struct {
	ID             string      `json:"id"`
	OrgID          string      `json:"-"`
	AuthorID       null.String `json:"author_id"`
	Title          string      `json:"title"`
	Slug           string      `json:"slug"`
	Excerpt        string      `json:"excerpt"`
	ContentHTML    string      `json:"content_html"`
	Status         string      `json:"status"`
	Tags           []string    `json:"tags"`
	ReadingMinutes int         `json:"reading_minutes"`
	PublishedAt    null.Time   `json:"published_at"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

func (p Post) IsPublished() bool { return p.Status == StatusPublished }

type Heading struct {
	Level  int    `json:"level"`
	Text   string `json:"text"`
	Anchor string `json:"anchor"`
}

type PostInput struct {
	Title       string   `json:"title" validate:"required,max=300"`
	Slug        string   `json:"slug" validate:"omitempty,slug"`
	Excerpt     string   `json:"excerpt" validate:"max=500"`
	ContentHTML string   `json:"content_html"`
	Tags        []string `json:"tags" validate:"max=20,dive,required,max=50"`
}

func (in *PostInput) Validate(validate *validator.Validate) error {
	in.Title = core.CleanString(in.Title)
	in.Slug = core.CleanString(in.Slug, true /* lower */)
	in.Excerpt = core.CleanString(in.Excerpt)
	tags := make([]string, 0, len(in.Tags))
	seen := make(map[string]bool, len(in.Tags))
	for _, t := range in.Tags {
		t = core.CleanString(t, true /* lower */)
		if t != "" && !seen[t] {
			seen[t] = true
			tags = append(tags, t)
		}
	}
	in.Tags = tags
	return validate.Struct(in)
}

type QueryFilter struct {
	OrgID  string   `query:"-"`
	IDs    []string `query:"-"`
	Status string   `query:"status"`
	Tag    string   `query:"tag"`
	Search string   `query:"search"`
	core.Pagination
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Tag = core.CleanString(qf.Tag, true /* lower */)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
	qf.Pagination.Clean()
}

type GetFilter struct {
	OrgID         string
	ID            string
	Slug          string
	PublishedOnly bool
}

type Page struct {
	Posts    []Post `json:"results"`
	Total    int    `json:"total"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}
