package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/campaign"
)

type campaignRepository struct {
	db *DB
}

var _ campaign.Repository = (*campaignRepository)(nil) // interface compliance check

func NewCampaignRepository(db *DB) campaign.Repository {
	return &campaignRepository{db: db}
}

// templates

func (repo *campaignRepository) templateSlugTaken(t campaign.Template) bool {
	for _, existing := range repo.db.templates {
		if existing.ID != t.ID && existing.OrgID == t.OrgID && existing.Slug == t.Slug {
			return true
		}
	}
	return false
}

func (repo *campaignRepository) CreateTemplate(_ context.Context, t campaign.Template, _ ...core.DBExecutor) (campaign.Template, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	t.ID = newID()
	if repo.templateSlugTaken(t) {
		return campaign.Template{}, campaign.ErrSlugExists
	}
	repo.db.templates[t.ID] = t
	return t, nil
}

func (repo *campaignRepository) UpdateTemplate(_ context.Context, t campaign.Template, _ ...core.DBExecutor) (campaign.Template, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.templates[t.ID]
	if !ok || orig.OrgID != t.OrgID {
		return campaign.Template{}, campaign.ErrTemplateNotFound
	}
	if repo.templateSlugTaken(t) {
		return campaign.Template{}, campaign.ErrSlugExists
	}
	t.CreatedAt = orig.CreatedAt
	repo.db.templates[t.ID] = t
	return t, nil
}

func (repo *campaignRepository) GetTemplate(_ context.Context, orgID, id string, _ ...core.DBExecutor) (campaign.Template, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if t, ok := repo.db.templates[id]; ok && t.OrgID == orgID {
		return t, nil
	}
	return campaign.Template{}, campaign.ErrTemplateNotFound
}

func (repo *campaignRepository) QueryTemplates(_ context.Context, orgID string, _ ...core.DBExecutor) ([]campaign.Template, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	templates := make([]campaign.Template, 0)
	for _, t := range repo.db.templates {
		if t.OrgID == orgID {
			templates = append(templates, t)
		}
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].Name < templates[j].Name })
	return templates, nil
}

func (repo *campaignRepository) DeleteTemplate(_ context.Context, orgID, id string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	t, ok := repo.db.templates[id]
	if !ok || t.OrgID != orgID {
		return campaign.ErrTemplateNotFound
	}
	for _, c := range repo.db.campaigns {
		if c.TemplateID == id {
			return campaign.ErrTemplateInUse
		}
	}
	delete(repo.db.templates, id)
	return nil
}

// campaigns

func (repo *campaignRepository) CreateCampaign(_ context.Context, c campaign.Campaign, _ ...core.DBExecutor) (campaign.Campaign, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	c.ID = newID()
	repo.db.campaigns[c.ID] = c
	return c, nil
}

func (repo *campaignRepository) UpdateCampaign(_ context.Context, c campaign.Campaign, _ ...core.DBExecutor) (campaign.Campaign, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.campaigns[c.ID]
	if !ok || orig.OrgID != c.OrgID {
		return campaign.Campaign{}, campaign.ErrCampaignNotFound
	}
	c.CreatedAt = orig.CreatedAt
	repo.db.campaigns[c.ID] = c
	return c, nil
}

func (repo *campaignRepository) SetCampaignStatus(_ context.Context, orgID, id, status string, from []string, at time.Time, _ ...core.DBExecutor) (bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	c, ok := repo.db.campaigns[id]
	if !ok || c.OrgID != orgID {
		return false, campaign.ErrCampaignNotFound
	}
	for _, s := range from {
		if c.Status == s {
			c.Status = status
			c.UpdatedAt = at
			repo.db.campaigns[id] = c
			return true, nil
		}
	}
	return false, nil
}

func (repo *campaignRepository) GetCampaign(_ context.Context, orgID, id string, _ ...core.DBExecutor) (campaign.Campaign, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if c, ok := repo.db.campaigns[id]; ok && c.OrgID == orgID {
		return c, nil
	}
	return campaign.Campaign{}, campaign.ErrCampaignNotFound
}

func (repo *campaignRepository) QueryCampaigns(_ context.Context, orgID string, _ ...core.DBExecutor) ([]campaign.Campaign, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	campaigns := make([]campaign.Campaign, 0)
	for _, c := range repo.db.campaigns {
		if c.OrgID == orgID {
			campaigns = append(campaigns, c)
		}
	}
	sort.Slice(campaigns, func(i, j int) bool { return campaigns[i].CreatedAt.After(campaigns[j].CreatedAt) })
	return campaigns, nil
}

func (repo *campaignRepository) DeleteCampaign(_ context.Context, orgID, id string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	c, ok := repo.db.campaigns[id]
	if !ok || c.OrgID != orgID {
		return campaign.ErrCampaignNotFound
	}
	delete(repo.db.campaigns, id)
	for rid, r := range repo.db.recipients {
		if r.CampaignID == id {
			delete(repo.db.recipients, rid)
		}
	}
	return nil
}

// recipients

func (repo *campaignRepository) AddRecipients(_ context.Context, campaignID string, recipients []campaign.Recipient, _ ...core.DBExecutor) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	existing := make(map[string]bool)
	for _, r := range repo.db.recipients {
		if r.CampaignID == campaignID {
			existing[r.Email] = true
		}
	}
	var added int
	for _, r := range recipients {
		if existing[r.Email] {
			continue
		}
		existing[r.Email] = true
		r.ID = newID()
		r.CampaignID = campaignID
		if r.Status == "" {
			r.Status = campaign.RecipientPending
		}
		if r.Data == nil {
			r.Data = map[string]interface{}{}
		}
		repo.db.recipients[r.ID] = r
		added++
	}
	return added, nil
}

func (repo *campaignRepository) QueryRecipients(_ context.Context, campaignID string, statuses []string, _ ...core.DBExecutor) ([]campaign.Recipient, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	recipients := make([]campaign.Recipient, 0)
	for _, r := range repo.db.recipients {
		if r.CampaignID == campaignID && (len(statuses) == 0 || contains(statuses, r.Status)) {
			recipients = append(recipients, r)
		}
	}
	sort.Slice(recipients, func(i, j int) bool { return recipients[i].Email < recipients[j].Email })
	return recipients, nil
}

func (repo *campaignRepository) UpdateRecipient(_ context.Context, r campaign.Recipient, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.recipients[r.ID]
	if !ok {
		return nil
	}
	orig.Status, orig.Error, orig.SentAt = r.Status, r.Error, r.SentAt
	repo.db.recipients[r.ID] = orig
	return nil
}
