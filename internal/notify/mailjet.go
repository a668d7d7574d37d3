package notify

import (
	"context"
	"fmt"
	"strings"

	mailjet "github.com/mailjet/mailjet-apiv3-go/v4"

	"github.com/imrishuroy/storefront-payments/internal/apperr"
)

// Message is a single outbound email.
type Message struct {
	To      string
	Name    string
	Subject string
	Text    string
	HTML    string
	// CustomID is echoed back by Mailjet in delivery events.
	CustomID string
}

// Sender delivers email.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// MailjetSender sends through the Mailjet v3.1 send API.
type MailjetSender struct {
	send      func(*mailjet.MessagesV31) (*mailjet.ResultsV31, error)
	fromEmail string
	fromName  string
}

// NewMailjetSender returns a sender that fails with a config error on
// every call when the keys or the sender address are missing.
func NewMailjetSender(apiKey, secretKey, fromEmail, fromName string) *MailjetSender {
	s := &MailjetSender{fromEmail: fromEmail, fromName: fromName}
	if apiKey != "" && secretKey != "" {
		client := mailjet.NewMailjetClient(apiKey, secretKey)
		s.send = func(m *mailjet.MessagesV31) (*mailjet.ResultsV31, error) {
			return client.SendMailV31(m)
		}
	}
	return s
}

func (s *MailjetSender) Send(ctx context.Context, m Message) error {
	if s.send == nil {
		return apperr.Config("MAILJET_API_KEY")
	}
	if s.fromEmail == "" {
		return apperr.Config("MAILJET_FROM_EMAIL")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(m.To) == "" || strings.TrimSpace(m.Subject) == "" {
		return apperr.Validation(apperr.CodeMissingFields, "to and subject are required")
	}
	if m.Text == "" && m.HTML == "" {
		return apperr.Validation(apperr.CodeMissingFields, "text or html body is required")
	}

	msg := mailjet.InfoMessagesV31{
		From: &mailjet.RecipientV31{Email: s.fromEmail, Name: s.fromName},
		To: &mailjet.RecipientsV31{
			mailjet.RecipientV31{Email: m.To, Name: m.Name},
		},
		Subject:  m.Subject,
		TextPart: m.Text,
		HTMLPart: m.HTML,
		CustomID: m.CustomID,
	}
	if _, err := s.send(&mailjet.MessagesV31{Info: []mailjet.InfoMessagesV31{msg}}); err != nil {
		return apperr.Provider(apperr.CodeEmailSendFailed, "failed to send email", fmt.Errorf("mailjet send: %w", err), nil)
	}
	return nil
}
