package campaign

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
)

// Campaign statuses
const (
	StatusDraft           = "draft"
	StatusSending         = "sending"
	StatusSent            = "sent"
	StatusPartiallyFailed = "partially_failed"
	StatusFailed          = "failed"
)

// Recipient statuses
const (
	RecipientPending = "pending"
	RecipientSent    = "sent"
	RecipientFailed  = "failed"
)

type Template struct {
	ID        string    `json:"id" db:"id"`
	OrgID     string    `json:"-" db:"org_id"`
	Name      string    `json:"name" db:"name"`
	Slug      string    `json:"slug" db:"slug"`
	Subject   string    `json:"subject" db:"subject"`
	HTMLBody  string    `json:"html_body" db:"html_body"`
	TextBody  string    `json:"text_body" db:"text_body"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type TemplateInput struct {
	Name     string `json:"name" validate:"required,max=200"`
	Slug     string `json:"slug" validate:"omitempty,slug"`
	Subject  string `json:"subject" validate:"required,max=300"`
	HTMLBody string `json:"html_body" validate:"required_without=TextBody"`
	TextBody string `json:"text_body"`
}

func (in *TemplateInput) Validate(validate *validator.Validate) error {
	in.Name = core.CleanString(in.Name)
	in.Slug = core.CleanString(in.Slug, true /* lower */)
	if in.Slug == "" {
		in.Slug = core.Slugify(in.Name)
	}
	in.Subject = core.CleanString(in.Subject)
	return validate.Struct(in)
}

type Campaign struct {
	ID          string    `json:"id" db:"id"`
	OrgID       string    `json:"-" db:"org_id"`
	TemplateID  string    `json:"template_id" db:"template_id"`
	Name        string    `json:"name" db:"name"`
	Status      string    `json:"status" db:"status"`
	SentCount   int       `json:"sent_count" db:"sent_count"`
	FailedCount int       `json:"failed_count" db:"failed_count"`
	SentAt      null.Time `json:"sent_at" db:"sent_at"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

var sendableStatuses = []string{StatusDraft, StatusFailed, StatusPartiallyFailed}

// Sendable reports whether the campaign may be (re)sent.
func (c Campaign) Sendable() bool {
	for _, s := range sendableStatuses {
		if c.Status == s {
			return true
		}
	}
	return false
}

type CampaignInput struct {
	Name       string `json:"name" validate:"required,max=200"`
	TemplateID string `json:"template_id" validate:"required"`
}

func (in *CampaignInput) Validate(validate *validator.Validate) error {
	in.Name = core.CleanString(in.Name)
	in.TemplateID = core.CleanString(in.TemplateID)
	return validate.Struct(in)
}

type Recipient struct {
	ID         string                 `json:"id"`
	CampaignID string                 `json:"campaign_id"`
	Email      string                 `json:"email"`
	Name       string                 `json:"name"`
	Data       map[string]interface{} `json:"data"`
	Status     string                 `json:"status"`
	Error      string                 `json:"error,omitempty"`
	SentAt     null.Time              `json:"sent_at"`
}

type NewRecipient struct {
	Email string                 `json:"email" validate:"required,email"`
	Name  string                 `json:"name"`
	Data  map[string]interface{} `json:"data"`
}

type AddRecipients struct {
	Recipients []NewRecipient `json:"recipients" validate:"required,min=1,dive"`
}

// Validate cleans the recipients and drops the duplicated emails, comparing them case-insensitively.
func (in *AddRecipients) Validate(validate *validator.Validate) error {
	seen := make(map[string]bool, len(in.Recipients))
	cleaned := make([]NewRecipient, 0, len(in.Recipients))
	for _, r := range in.Recipients {
		r.Email = core.CleanString(r.Email, true /* lower */)
		r.Name = core.CleanString(r.Name)
		if r.Email != "" && seen[r.Email] {
			continue
		}
		seen[r.Email] = true
		cleaned = append(cleaned, r)
	}
	in.Recipients = cleaned
	return validate.Struct(in)
}

// Rendered is a template rendered for one recipient.
type Rendered struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

type RenderData struct {
	Data map[string]interface{} `json:"data"`
}

type TestSend struct {
	To   string                 `json:"to" validate:"required,email"`
	Data map[string]interface{} `json:"data"`
}

type SendReport struct {
	CampaignID string `json:"campaign_id"`
	Status     string `json:"status"`
	Sent       int    `json:"sent"`
	Failed     int    `json:"failed"`
	Batches    int    `json:"batches"`
}
