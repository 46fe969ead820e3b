// Package emailsvc delivers core.EmailMessage through the console, SendGrid or Amazon SES.
package emailsvc

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/pkg/errors"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
)

var ErrUndeliverable = errors.New("email has no recipient or no content")

// prepare renders msg and checks it can be delivered.
func prepare(msg *core.EmailMessage) error {
	if err := msg.Render(); err != nil {
		return errors.Wrap(err, "rendering email")
	}
	if !msg.HasRecipients() || !(msg.HasContent() || msg.HasAttachments()) {
		return ErrUndeliverable
	}
	return nil
}

type sender interface {
	Send(ctx context.Context, msg *core.EmailMessage) error
	Name() string
}

// sendAsync delivers every message in its own goroutine, logging the failures.
func sendAsync(svc sender, logger core.Logger, messages []*core.EmailMessage) {
	for _, msg := range messages {
		msg := msg
		go func() {
			if err := svc.Send(context.Background(), msg); err != nil {
				logger.Error(fmt.Sprintf("%s: sending email %q: %v", svc.Name(), msg.Subject, err), err)
			}
		}()
	}
}

func joinAddresses(addrs []mail.Address) string {
	toJoin := make([]string, 0, len(addrs))
	for _, a := range addrs {
		toJoin = append(toJoin, a.String())
	}
	return strings.Join(toJoin, ", ")
}

// New picks the provider named by conf.Email.Provider.
func New(ctx context.Context, conf *core.Config, logger core.Logger) (core.EmailService, error) {
	switch conf.Email.Provider {
	case "", "console":
		return NewConsoleService(conf, logger), nil
	case "sendgrid":
		return NewSendgridService(conf, logger), nil
	case "ses":
		return NewSESService(ctx, conf, logger)
	default:
		return nil, errors.Errorf("unknown email provider %q", conf.Email.Provider)
	}
}
