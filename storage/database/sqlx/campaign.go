package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/campaign"
)

var (
	templateColumns  = []string{"id", "org_id", "name", "slug", "subject", "html_body", "text_body", "created_at", "updated_at"}
	campaignColumns  = []string{"id", "org_id", "template_id", "name", "status", "sent_count", "failed_count", "sent_at", "created_at", "updated_at"}
	recipientColumns = []string{"id", "campaign_id", "email", "name", "data", "status", "error", "sent_at"}
)

type recipientRow struct {
	ID         string         `db:"id"`
	CampaignID string         `db:"campaign_id"`
	Email      string         `db:"email"`
	Name       string         `db:"name"`
	Data       types.JSONText `db:"data"`
	Status     string         `db:"status"`
	Error      string         `db:"error"`
	SentAt     null.Time      `db:"sent_at"`
}

func (r recipientRow) recipient() (campaign.Recipient, error) {
	rcp := campaign.Recipient{
		ID:         r.ID,
		CampaignID: r.CampaignID,
		Email:      r.Email,
		Name:       r.Name,
		Status:     r.Status,
		Error:      r.Error,
		SentAt:     r.SentAt,
	}
	if len(r.Data) > 0 {
		if err := r.Data.Unmarshal(&rcp.Data); err != nil {
			return campaign.Recipient{}, errors.Wrap(err, "decoding recipient data")
		}
	}
	return rcp, nil
}

func recipientData(data map[string]interface{}) (types.JSONText, error) {
	if data == nil {
		return types.JSONText("{}"), nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(err, "encoding recipient data")
	}
	return types.JSONText(b), nil
}

type campaignRepository struct {
	base
}

var _ campaign.Repository = (*campaignRepository)(nil) // interface compliance check

func NewCampaignRepository(exec core.DBExecutor) *campaignRepository {
	return &campaignRepository{base{exec: exec}}
}

// Templates

func (repo campaignRepository) CreateTemplate(ctx context.Context, t campaign.Template, exec ...core.DBExecutor) (campaign.Template, error) {
	t.ID = uuid.New().String()
	q := psql.Insert("email_templates").
		Columns(templateColumns...).
		Values(t.ID, t.OrgID, t.Name, t.Slug, t.Subject, t.HTMLBody, t.TextBody, t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if _, err := execute(ctx, repo.getExec(exec), q); err != nil {
		if isPQError(err, uniqueViolation) {
			return campaign.Template{}, campaign.ErrSlugExists
		}
		return campaign.Template{}, errors.Wrap(err, "inserting template")
	}
	return t, nil
}

func (repo campaignRepository) UpdateTemplate(ctx context.Context, t campaign.Template, exec ...core.DBExecutor) (campaign.Template, error) {
	q := psql.Update("email_templates").
		SetMap(map[string]interface{}{
			"name":       t.Name,
			"slug":       t.Slug,
			"subject":    t.Subject,
			"html_body":  t.HTMLBody,
			"text_body":  t.TextBody,
			"updated_at": t.UpdatedAt.UTC(),
		}).
		Where(sq.Eq{"id": t.ID, "org_id": t.OrgID})
	n, err := execute(ctx, repo.getExec(exec), q)
	if err != nil {
		if isPQError(err, uniqueViolation) {
			return campaign.Template{}, campaign.ErrSlugExists
		}
		return campaign.Template{}, errors.Wrap(err, "updating template")
	}
	if n == 0 {
		return campaign.Template{}, campaign.ErrTemplateNotFound
	}
	return t, nil
}

func (repo campaignRepository) GetTemplate(ctx context.Context, orgID, id string, exec ...core.DBExecutor) (campaign.Template, error) {
	if !validID(id) {
		return campaign.Template{}, campaign.ErrTemplateNotFound
	}
	q := psql.Select(templateColumns...).From("email_templates").Where(sq.Eq{"id": id, "org_id": orgID})
	var t campaign.Template
	if err := get(ctx, repo.getExec(exec), &t, q); err != nil {
		return campaign.Template{}, trapNoRows(err, campaign.ErrTemplateNotFound, "finding template")
	}
	return t, nil
}

func (repo campaignRepository) QueryTemplates(ctx context.Context, orgID string, exec ...core.DBExecutor) ([]campaign.Template, error) {
	q := psql.Select(templateColumns...).From("email_templates").Where(sq.Eq{"org_id": orgID}).OrderBy("name")
	templates := make([]campaign.Template, 0)
	if err := sel(ctx, repo.getExec(exec), &templates, q); err != nil {
		return nil, errors.Wrap(err, "querying templates")
	}
	return templates, nil
}

func (repo campaignRepository) DeleteTemplate(ctx context.Context, orgID, id string, exec ...core.DBExecutor) error {
	if !validID(id) {
		return campaign.ErrTemplateNotFound
	}
	n, err := execute(ctx, repo.getExec(exec), psql.Delete("email_templates").Where(sq.Eq{"id": id, "org_id": orgID}))
	if err != nil {
		if isPQError(err, foreignKeyViolation) {
			return campaign.ErrTemplateInUse
		}
		return errors.Wrap(err, "deleting template")
	}
	if n == 0 {
		return campaign.ErrTemplateNotFound
	}
	return nil
}

// Campaigns

func (repo campaignRepository) CreateCampaign(ctx context.Context, c campaign.Campaign, exec ...core.DBExecutor) (campaign.Campaign, error) {
	c.ID = uuid.New().String()
	q := psql.Insert("campaigns").
		Columns(campaignColumns...).
		Values(c.ID, c.OrgID, c.TemplateID, c.Name, c.Status, c.SentCount, c.FailedCount, c.SentAt, c.CreatedAt.UTC(), c.UpdatedAt.UTC())
	if _, err := execute(ctx, repo.getExec(exec), q); err != nil {
		return campaign.Campaign{}, errors.Wrap(err, "inserting campaign")
	}
	return c, nil
}

func (repo campaignRepository) UpdateCampaign(ctx context.Context, c campaign.Campaign, exec ...core.DBExecutor) (campaign.Campaign, error) {
	q := psql.Update("campaigns").
		SetMap(map[string]interface{}{
			"template_id":  c.TemplateID,
			"name":         c.Name,
			"status":       c.Status,
			"sent_count":   c.SentCount,
			"failed_count": c.FailedCount,
			"sent_at":      c.SentAt,
			"updated_at":   c.UpdatedAt.UTC(),
		}).
		Where(sq.Eq{"id": c.ID, "org_id": c.OrgID})
	n, err := execute(ctx, repo.getExec(exec), q)
	if err != nil {
		return campaign.Campaign{}, errors.Wrap(err, "updating campaign")
	}
	if n == 0 {
		return campaign.Campaign{}, campaign.ErrCampaignNotFound
	}
	return c, nil
}

func (repo campaignRepository) SetCampaignStatus(ctx context.Context, orgID, id, status string, from []string, at time.Time, exec ...core.DBExecutor) (bool, error) {
	if !validID(id) {
		return false, campaign.ErrCampaignNotFound
	}
	q := psql.Update("campaigns").
		Set("status", status).
		Set("updated_at", at.UTC()).
		Where(sq.Eq{"id": id, "org_id": orgID, "status": from})
	n, err := execute(ctx, repo.getExec(exec), q)
	if err != nil {
		return false, errors.Wrap(err, "updating campaign status")
	}
	return n > 0, nil
}

func (repo campaignRepository) GetCampaign(ctx context.Context, orgID, id string, exec ...core.DBExecutor) (campaign.Campaign, error) {
	if !validID(id) {
		return campaign.Campaign{}, campaign.ErrCampaignNotFound
	}
	q := psql.Select(campaignColumns...).From("campaigns").Where(sq.Eq{"id": id, "org_id": orgID})
	var c campaign.Campaign
	if err := get(ctx, repo.getExec(exec), &c, q); err != nil {
		return campaign.Campaign{}, trapNoRows(err, campaign.ErrCampaignNotFound, "finding campaign")
	}
	return c, nil
}

func (repo campaignRepository) QueryCampaigns(ctx context.Context, orgID string, exec ...core.DBExecutor) ([]campaign.Campaign, error) {
	q := psql.Select(campaignColumns...).From("campaigns").Where(sq.Eq{"org_id": orgID}).OrderBy("created_at DESC")
	campaigns := make([]campaign.Campaign, 0)
	if err := sel(ctx, repo.getExec(exec), &campaigns, q); err != nil {
		return nil, errors.Wrap(err, "querying campaigns")
	}
	return campaigns, nil
}

func (repo campaignRepository) DeleteCampaign(ctx context.Context, orgID, id string, exec ...core.DBExecutor) error {
	if !validID(id) {
		return campaign.ErrCampaignNotFound
	}
	n, err := execute(ctx, repo.getExec(exec), psql.Delete("campaigns").Where(sq.Eq{"id": id, "org_id": orgID}))
	if err != nil {
		return errors.Wrap(err, "deleting campaign")
	}
	if n == 0 {
		return campaign.ErrCampaignNotFound
	}
	return nil
}

// Recipients

func (repo campaignRepository) AddRecipients(ctx context.Context, campaignID string, recipients []campaign.Recipient, exec ...core.DBExecutor) (int, error) {
	if len(recipients) == 0 {
		return 0, nil
	}
	q := psql.Insert("campaign_recipients").Columns(recipientColumns...)
	for _, r := range recipients {
		data, err := recipientData(r.Data)
		if err != nil {
			return 0, err
		}
		status := r.Status
		if status == "" {
			status = campaign.RecipientPending
		}
		q = q.Values(uuid.New().String(), campaignID, r.Email, r.Name, data, status, r.Error, r.SentAt)
	}
	n, err := execute(ctx, repo.getExec(exec), q.Suffix("ON CONFLICT (campaign_id, email) DO NOTHING"))
	if err != nil {
		return 0, errors.Wrap(err, "inserting recipients")
	}
	return int(n), nil
}

func (repo campaignRepository) QueryRecipients(ctx context.Context, campaignID string, statuses []string, exec ...core.DBExecutor) ([]campaign.Recipient, error) {
	q := psql.Select(recipientColumns...).From("campaign_recipients").Where(sq.Eq{"campaign_id": campaignID}).OrderBy("email")
	if len(statuses) > 0 {
		q = q.Where(sq.Eq{"status": statuses})
	}
	var rows []recipientRow
	if err := sel(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying recipients")
	}
	recipients := make([]campaign.Recipient, 0, len(rows))
	for _, row := range rows {
		r, err := row.recipient()
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, r)
	}
	return recipients, nil
}

func (repo campaignRepository) UpdateRecipient(ctx context.Context, r campaign.Recipient, exec ...core.DBExecutor) error {
	q := psql.Update("campaign_recipients").
		Set("status", r.Status).
		Set("error", r.Error).
		Set("sent_at", r.SentAt).
		Where(sq.Eq{"id": r.ID})
	if _, err := execute(ctx, repo.getExec(exec), q); err != nil {
		return errors.Wrap(err, "updating recipient")
	}
	return nil
}
