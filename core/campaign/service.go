package campaign

import (
	"context"
	"fmt"
	"net/mail"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
)

const sendLockTTL = time.Hour

var (
	ErrTemplateNotFound = core.NewNotFoundError("email template")
	ErrCampaignNotFound = core.NewNotFoundError("campaign")
	ErrSlugExists       = errors.New("this slug is already in use")

	ErrNotSendable   = core.NewValidationError(errors.New("this campaign has already been sent"))
	ErrNoRecipients  = core.NewValidationError(errors.New("this campaign has no recipients left to send to"))
	ErrSending       = core.NewConflictError("this campaign is being sent")
	ErrTemplateInUse = core.NewConflictError("this template is used by a campaign")
)

type (
	Repository interface {
		CreateTemplate(ctx context.Context, t Template, exec ...core.DBExecutor) (Template, error)
		UpdateTemplate(ctx context.Context, t Template, exec ...core.DBExecutor) (Template, error)
		GetTemplate(ctx context.Context, orgID, id string, exec ...core.DBExecutor) (Template, error)
		QueryTemplates(ctx context.Context, orgID string, exec ...core.DBExecutor) ([]Template, error)
		// DeleteTemplate returns ErrTemplateInUse when campaigns reference the template.
		DeleteTemplate(ctx context.Context, orgID, id string, exec ...core.DBExecutor) error

		CreateCampaign(ctx context.Context, c Campaign, exec ...core.DBExecutor) (Campaign, error)
		UpdateCampaign(ctx context.Context, c Campaign, exec ...core.DBExecutor) (Campaign, error)
		// SetCampaignStatus moves the campaign to status only when its current status is one of
		// from, and reports whether it did.
		SetCampaignStatus(ctx context.Context, orgID, id, status string, from []string, at time.Time, exec ...core.DBExecutor) (bool, error)
		GetCampaign(ctx context.Context, orgID, id string, exec ...core.DBExecutor) (Campaign, error)
		QueryCampaigns(ctx context.Context, orgID string, exec ...core.DBExecutor) ([]Campaign, error)
		DeleteCampaign(ctx context.Context, orgID, id string, exec ...core.DBExecutor) error

		// AddRecipients skips the emails already in the campaign and returns how many were added.
		AddRecipients(ctx context.Context, campaignID string, recipients []Recipient, exec ...core.DBExecutor) (int, error)
		// QueryRecipients filters on statuses when provided.
		QueryRecipients(ctx context.Context, campaignID string, statuses []string, exec ...core.DBExecutor) ([]Recipient, error)
		UpdateRecipient(ctx context.Context, r Recipient, exec ...core.DBExecutor) error
	}

	Service interface {
		CreateTemplate(ctx context.Context, orgID string, in TemplateInput) (Template, error)
		UpdateTemplate(ctx context.Context, orgID, id string, in TemplateInput) (Template, error)
		DeleteTemplate(ctx context.Context, orgID, id string) error
		GetTemplate(ctx context.Context, orgID, id string) (Template, error)
		Templates(ctx context.Context, orgID string) ([]Template, error)
		Preview(ctx context.Context, orgID, id string, data map[string]interface{}) (Rendered, error)
		SendTest(ctx context.Context, orgID, id string, in TestSend) error

		CreateCampaign(ctx context.Context, orgID string, in CampaignInput) (Campaign, error)
		UpdateCampaign(ctx context.Context, orgID, id string, in CampaignInput) (Campaign, error)
		DeleteCampaign(ctx context.Context, orgID, id string) error
		GetCampaign(ctx context.Context, orgID, id string) (Campaign, error)
		Campaigns(ctx context.Context, orgID string) ([]Campaign, error)
		AddRecipients(ctx context.Context, orgID, id string, in AddRecipients) (int, error)
		Recipients(ctx context.Context, orgID, id string) ([]Recipient, error)
		Send(ctx context.Context, orgID, id string) (SendReport, error)
	}

	Option func(*service)

	service struct {
		repo      Repository
		mailSvc   core.EmailService
		cache     core.Cache
		from      mail.Address
		batchSize int
		onBatch   func(size int)
		logger    core.Logger
		nowFunc   func() time.Time
	}
)

var _ Service = (*service)(nil)

// OnBatch registers fn to be called after each sent batch.
func OnBatch(fn func(size int)) Option {
	return func(svc *service) { svc.onBatch = fn }
}

func NewService(repo Repository, mailSvc core.EmailService, cache core.Cache, conf *core.Config, logger core.Logger, opts ...Option) Service {
	svc := &service{
		repo:      repo,
		mailSvc:   mailSvc,
		cache:     cache,
		from:      conf.FromAddress(),
		batchSize: conf.Email.CampaignBatchSize,
		onBatch:   func(int) {},
		logger:    logger,
		nowFunc:   func() time.Time { return time.Now().UTC() },
	}
	if svc.batchSize < 1 {
		svc.batchSize = 50
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func slugTaken(err error) error {
	if errors.Cause(err) == ErrSlugExists {
		return core.NewValidationError(ErrSlugExists, core.FieldError{Field: "slug", Error: ErrSlugExists.Error()})
	}
	return err
}

func (svc *service) CreateTemplate(ctx context.Context, orgID string, in TemplateInput) (Template, error) {
	now := svc.nowFunc()
	t := Template{
		OrgID:     orgID,
		Name:      in.Name,
		Slug:      in.Slug,
		Subject:   in.Subject,
		HTMLBody:  in.HTMLBody,
		TextBody:  in.TextBody,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := compile(t); err != nil {
		return Template{}, err
	}
	t, err := svc.repo.CreateTemplate(ctx, t)
	return t, slugTaken(err)
}

func (svc *service) UpdateTemplate(ctx context.Context, orgID, id string, in TemplateInput) (Template, error) {
	t, err := svc.repo.GetTemplate(ctx, orgID, id)
	if err != nil {
		return Template{}, err
	}
	t.Name = in.Name
	t.Slug = in.Slug
	t.Subject = in.Subject
	t.HTMLBody = in.HTMLBody
	t.TextBody = in.TextBody
	t.UpdatedAt = svc.nowFunc()
	if _, err := compile(t); err != nil {
		return Template{}, err
	}
	t, err = svc.repo.UpdateTemplate(ctx, t)
	return t, slugTaken(err)
}

func (svc *service) DeleteTemplate(ctx context.Context, orgID, id string) error {
	if _, err := svc.repo.GetTemplate(ctx, orgID, id); err != nil {
		return err
	}
	return svc.repo.DeleteTemplate(ctx, orgID, id)
}

func (svc *service) GetTemplate(ctx context.Context, orgID, id string) (Template, error) {
	return svc.repo.GetTemplate(ctx, orgID, id)
}

func (svc *service) Templates(ctx context.Context, orgID string) ([]Template, error) {
	ts, err := svc.repo.QueryTemplates(ctx, orgID)
	return ts, errors.Wrap(err, "querying templates")
}

func (svc *service) Preview(ctx context.Context, orgID, id string, data map[string]interface{}) (Rendered, error) {
	t, err := svc.repo.GetTemplate(ctx, orgID, id)
	if err != nil {
		return Rendered{}, err
	}
	return Render(t, data)
}

func (svc *service) message(r Rendered, to mail.Address) *core.EmailMessage {
	from := svc.from
	return &core.EmailMessage{
		From:        &from,
		To:          []mail.Address{to},
		Subject:     r.Subject,
		TextContent: r.Text,
		HTMLContent: r.HTML,
	}
}

// SendTest renders the template with data and sends it to a single address.
func (svc *service) SendTest(ctx context.Context, orgID, id string, in TestSend) error {
	r, err := svc.Preview(ctx, orgID, id, in.Data)
	if err != nil {
		return err
	}
	if err := svc.mailSvc.Send(ctx, svc.message(r, mail.Address{Address: in.To})); err != nil {
		return core.NewUpstreamError("email provider", err)
	}
	return nil
}

func (svc *service) CreateCampaign(ctx context.Context, orgID string, in CampaignInput) (Campaign, error) {
	if _, err := svc.repo.GetTemplate(ctx, orgID, in.TemplateID); err != nil {
		if core.IsNotFound(err) {
			return Campaign{}, core.NewValidationError(err, core.FieldError{Field: "template_id", Error: err.Error()})
		}
		return Campaign{}, err
	}
	now := svc.nowFunc()
	c, err := svc.repo.CreateCampaign(ctx, Campaign{
		OrgID:      orgID,
		TemplateID: in.TemplateID,
		Name:       in.Name,
		Status:     StatusDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	return c, errors.Wrap(err, "creating campaign")
}

func (svc *service) UpdateCampaign(ctx context.Context, orgID, id string, in CampaignInput) (Campaign, error) {
	c, err := svc.repo.GetCampaign(ctx, orgID, id)
	if err != nil {
		return Campaign{}, err
	}
	if c.Status == StatusSending {
		return Campaign{}, ErrSending
	}
	if in.TemplateID != c.TemplateID {
		if _, err := svc.repo.GetTemplate(ctx, orgID, in.TemplateID); err != nil {
			if core.IsNotFound(err) {
				return Campaign{}, core.NewValidationError(err, core.FieldError{Field: "template_id", Error: err.Error()})
			}
			return Campaign{}, err
		}
	}
	c.Name = in.Name
	c.TemplateID = in.TemplateID
	c.UpdatedAt = svc.nowFunc()
	c, err = svc.repo.UpdateCampaign(ctx, c)
	return c, errors.Wrap(err, "updating campaign")
}

func (svc *service) DeleteCampaign(ctx context.Context, orgID, id string) error {
	c, err := svc.repo.GetCampaign(ctx, orgID, id)
	if err != nil {
		return err
	}
	if c.Status == StatusSending {
		return ErrSending
	}
	return errors.Wrap(svc.repo.DeleteCampaign(ctx, orgID, id), "deleting campaign")
}

func (svc *service) GetCampaign(ctx context.Context, orgID, id string) (Campaign, error) {
	return svc.repo.GetCampaign(ctx, orgID, id)
}

func (svc *service) Campaigns(ctx context.Context, orgID string) ([]Campaign, error) {
	cs, err := svc.repo.QueryCampaigns(ctx, orgID)
	return cs, errors.Wrap(err, "querying campaigns")
}

func (svc *service) AddRecipients(ctx context.Context, orgID, id string, in AddRecipients) (int, error) {
	if _, err := svc.repo.GetCampaign(ctx, orgID, id); err != nil {
		return 0, err
	}
	recipients := make([]Recipient, 0, len(in.Recipients))
	for _, nr := range in.Recipients {
		recipients = append(recipients, Recipient{
			CampaignID: id,
			Email:      nr.Email,
			Name:       nr.Name,
			Data:       nr.Data,
			Status:     RecipientPending,
		})
	}
	n, err := svc.repo.AddRecipients(ctx, id, recipients)
	return n, errors.Wrap(err, "adding recipients")
}

func (svc *service) Recipients(ctx context.Context, orgID, id string) ([]Recipient, error) {
	if _, err := svc.repo.GetCampaign(ctx, orgID, id); err != nil {
		return nil, err
	}
	rs, err := svc.repo.QueryRecipients(ctx, id, nil)
	return rs, errors.Wrap(err, "querying recipients")
}

// Send delivers the campaign to its pending and failed recipients. Recipients are sent in batches
// of batchSize: every message of a batch is sent concurrently and the batch waits for all of them
// before the next one starts.
//
// Only one Send runs per campaign: the cache lock serializes callers and the conditional status
// change to sending rejects a caller that lost the race. Once claimed, the run is detached from
// ctx so a dropped request cannot leave the campaign in sending.
func (svc *service) Send(ctx context.Context, orgID, id string) (SendReport, error) {
	if _, err := svc.repo.GetCampaign(ctx, orgID, id); err != nil {
		return SendReport{}, err
	}

	release, err := svc.cache.Lock(ctx, "campaign:send:"+id, sendLockTTL)
	if err != nil {
		if errors.Cause(err) == core.ErrLockHeld {
			return SendReport{}, ErrSending
		}
		return SendReport{}, errors.Wrap(err, "locking campaign")
	}
	defer release()

	// re-read under the lock, a previous holder may have sent it
	c, err := svc.repo.GetCampaign(ctx, orgID, id)
	if err != nil {
		return SendReport{}, err
	}
	if c.Status == StatusSending {
		return SendReport{}, ErrSending
	}
	if !c.Sendable() {
		return SendReport{}, ErrNotSendable
	}
	t, err := svc.repo.GetTemplate(ctx, orgID, c.TemplateID)
	if err != nil {
		return SendReport{}, errors.Wrap(err, "getting campaign template")
	}
	tmpl, err := compile(t)
	if err != nil {
		return SendReport{}, err
	}
	recipients, err := svc.repo.QueryRecipients(ctx, c.ID, []string{RecipientPending, RecipientFailed})
	if err != nil {
		return SendReport{}, errors.Wrap(err, "querying recipients")
	}
	if len(recipients) == 0 {
		return SendReport{}, ErrNoRecipients
	}

	claimed, err := svc.repo.SetCampaignStatus(ctx, orgID, c.ID, StatusSending, sendableStatuses, svc.nowFunc())
	if err != nil {
		return SendReport{}, errors.Wrap(err, "claiming campaign")
	}
	if !claimed {
		return SendReport{}, ErrSending
	}
	c.Status = StatusSending

	sendCtx := context.WithoutCancel(ctx)
	done := false
	defer func() {
		if done {
			return
		}
		if _, err := svc.repo.SetCampaignStatus(sendCtx, orgID, c.ID, StatusFailed, []string{StatusSending}, svc.nowFunc()); err != nil {
			svc.logger.Error(fmt.Sprintf("restoring campaign %s status: %v", c.ID, err), err)
		}
	}()

	report := SendReport{CampaignID: c.ID}
	for start := 0; start < len(recipients); start += svc.batchSize {
		end := start + svc.batchSize
		if end > len(recipients) {
			end = len(recipients)
		}
		batch := recipients[start:end]
		errs := svc.sendBatch(sendCtx, tmpl, batch)
		report.Batches++

		now := svc.nowFunc()
		for i, r := range batch {
			if errs[i] != nil {
				r.Status = RecipientFailed
				r.Error = errs[i].Error()
				report.Failed++
			} else {
				r.Status = RecipientSent
				r.Error = ""
				r.SentAt = null.TimeFrom(now)
				report.Sent++
			}
			if err := svc.repo.UpdateRecipient(sendCtx, r); err != nil {
				svc.logger.Error(fmt.Sprintf("updating campaign recipient %s: %v", r.ID, err), err)
			}
		}
		svc.onBatch(len(batch))
		svc.logger.Debug(fmt.Sprintf("campaign %s: batch %d sent (%d/%d)", c.ID, report.Batches, end, len(recipients)))
	}

	// the outcome covers every run: recipients sent earlier still count
	c.SentCount += report.Sent
	c.FailedCount = report.Failed
	switch {
	case c.FailedCount == 0:
		c.Status = StatusSent
	case c.SentCount == 0:
		c.Status = StatusFailed
	default:
		c.Status = StatusPartiallyFailed
	}
	c.SentAt = null.TimeFrom(svc.nowFunc())
	c.UpdatedAt = c.SentAt.Time
	if _, err := svc.repo.UpdateCampaign(sendCtx, c); err != nil {
		return report, errors.Wrap(err, "updating campaign status")
	}
	done = true
	report.Status = c.Status
	return report, nil
}

// sendBatch sends one message per recipient concurrently; errs[i] is the outcome of batch[i].
func (svc *service) sendBatch(ctx context.Context, tmpl *compiled, batch []Recipient) []error {
	errs := make([]error, len(batch))
	var wg sync.WaitGroup
	for i := range batch {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := batch[i]
			rendered, err := tmpl.render(recipientData(r))
			if err != nil {
				errs[i] = err
				return
			}
			errs[i] = svc.mailSvc.Send(ctx, svc.message(rendered, mail.Address{Name: r.Name, Address: r.Email}))
		}(i)
	}
	wg.Wait()
	return errs
}
