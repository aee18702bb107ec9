package mail

import (
	"context"
	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"time"
)

type SendGridProvider struct {
	client   *sendgrid.Client
	fromAddr string
	fromName string
}

func NewSendGridProvider(apiKey string, fromAddr string, fromName string) *SendGridProvider {
	return &SendGridProvider{
		client:   sendgrid.NewSendClient(apiKey),
		fromAddr: fromAddr,
		fromName: fromName,
	}
}

func (p *SendGridProvider) Send(ctx context.Context, message Message) error {
	from := sgmail.NewEmail(p.fromName, p.fromAddr)
	to := sgmail.NewEmail("", message.To)
	email := sgmail.NewSingleEmail(from, message.Subject, to, message.Text, message.HTML)

	requestStartTime := time.Now()
	response, err := p.client.SendWithContext(ctx, email)
	if err != nil {
		return errors.Wrap(err, "SendGrid request failed")
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return errors.Errorf("SendGrid returned status %d: %s", response.StatusCode, response.Body)
	}

	sigolo.Debugf("Sent mail to %s via SendGrid in %s", message.To, time.Since(requestStartTime))
	return nil
}
