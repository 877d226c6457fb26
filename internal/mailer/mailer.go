// Package mailer delivers transactional email through SendGrid, or to the
// log when no API key is configured.
package mailer

import (
	"context"
	"fmt"
	"strings"

	"github.com/gaiya-app/gaiya-cloud/internal/logging"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const defaultSendGridHost = "https://api.sendgrid.com"

// Message is one outbound email.
type Message struct {
	To        string
	Subject   string
	PlainText string
	HTML      string
}

// Mailer sends email.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SendGridMailer sends through the SendGrid v3 mail API.
type SendGridMailer struct {
	client *sendgrid.Client
	from   *mail.Email
}

// NewSendGrid constructs a SendGridMailer. host defaults to the public API.
func NewSendGrid(apiKey, host, fromAddress, fromName string) *SendGridMailer {
	if strings.TrimSpace(host) == "" {
		host = defaultSendGridHost
	}
	request := sendgrid.GetRequest(apiKey, "/v3/mail/send", host)
	request.Method = "POST"
	return &SendGridMailer{
		client: &sendgrid.Client{Request: request},
		from:   mail.NewEmail(fromName, fromAddress),
	}
}

// Send delivers msg.
func (m *SendGridMailer) Send(ctx context.Context, msg Message) error {
	message := mail.NewSingleEmail(m.from, msg.Subject, mail.NewEmail("", msg.To), msg.PlainText, msg.HTML)
	response, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("mailer: sendgrid: %w", err)
	}
	if response.StatusCode >= 300 {
		return fmt.Errorf("mailer: sendgrid status %d", response.StatusCode)
	}
	return nil
}

// LogMailer records messages in the log instead of sending them.
type LogMailer struct{}

// Send logs msg with the recipient redacted.
func (LogMailer) Send(_ context.Context, msg Message) error {
	logging.Module("mailer").WithFields(logging.Fields(logging.Email(msg.To))).
		WithField("subject", msg.Subject).
		Info("mail delivery disabled, message dropped")
	return nil
}

// New returns a SendGridMailer when apiKey is set and a LogMailer otherwise.
func New(apiKey, fromAddress, fromName string) Mailer {
	if strings.TrimSpace(apiKey) == "" || strings.TrimSpace(fromAddress) == "" {
		return LogMailer{}
	}
	return NewSendGrid(apiKey, "", fromAddress, fromName)
}
