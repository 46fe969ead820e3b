package emailsvc

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/pkg/errors"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
)

// SESClient is the subset of *ses.Client in use.
type SESClient interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type sesService struct {
	client     SESClient
	from       string
	subjPrefix string
	logger     core.Logger
}

var _ core.EmailService = (*sesService)(nil)

// NewSESService loads the AWS credentials from the default chain (env, shared config, instance role).
func NewSESService(ctx context.Context, conf *core.Config, logger core.Logger) (core.EmailService, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(conf.Email.SESRegion))
	if err != nil {
		return nil, errors.Wrap(err, "loading aws config")
	}
	return NewSESServiceWithClient(ses.NewFromConfig(cfg), conf, logger), nil
}

func NewSESServiceWithClient(client SESClient, conf *core.Config, logger core.Logger) core.EmailService {
	from := conf.FromAddress()
	return &sesService{
		client:     client,
		from:       from.String(),
		subjPrefix: "[" + conf.AppName + "] ",
		logger:     logger,
	}
}

func (svc *sesService) Name() string { return "ses" }

func (svc *sesService) SendMessages(messages ...*core.EmailMessage) {
	sendAsync(svc, svc.logger, messages)
}

func addresses(msg core.EmailMessage) *types.Destination {
	dest := &types.Destination{}
	for _, a := range msg.To {
		dest.ToAddresses = append(dest.ToAddresses, a.String())
	}
	for _, a := range msg.Cc {
		dest.CcAddresses = append(dest.CcAddresses, a.String())
	}
	for _, a := range msg.Bcc {
		dest.BccAddresses = append(dest.BccAddresses, a.String())
	}
	return dest
}

// Send delivers msg with SendEmail; attachments are not supported by that API and are dropped.
func (svc *sesService) Send(ctx context.Context, msg *core.EmailMessage) error {
	if err := prepare(msg); err != nil {
		return err
	}

	body := &types.Body{}
	if msg.TextContent != "" {
		body.Text = &types.Content{Data: aws.String(msg.TextContent), Charset: aws.String("UTF-8")}
	}
	if msg.HTMLContent != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTMLContent), Charset: aws.String("UTF-8")}
	}
	from := svc.from
	if msg.From != nil {
		from = msg.From.String()
	}

	_, err := svc.client.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(from),
		Destination: addresses(*msg),
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(svc.subjPrefix + msg.Subject), Charset: aws.String("UTF-8")},
			Body:    body,
		},
	})
	return errors.Wrap(err, "ses.SendEmail")
}
