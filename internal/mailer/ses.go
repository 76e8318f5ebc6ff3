// Package mailer delivers email through Amazon SES.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESAPI is the subset of the SES v2 client the mailer uses
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Sender defines the interface for sending email
type Sender interface {
	Send(ctx context.Context, email Email) (string, error)
}

// Email is one message to a single recipient
type Email struct {
	From    string
	To      string
	Subject string
	HTML    string
	Text    string
}

// Validate checks the fields SES rejects when missing
func (e Email) Validate() error {
	if strings.TrimSpace(e.From) == "" {
		return fmt.Errorf("sender address is required")
	}
	if strings.TrimSpace(e.To) == "" {
		return fmt.Errorf("recipient address is required")
	}
	if e.Subject == "" {
		return fmt.Errorf("subject is required")
	}
	if e.HTML == "" && e.Text == "" {
		return fmt.Errorf("email body is required")
	}
	return nil
}

// SESSender implements Sender using SES v2
type SESSender struct {
	client SESAPI
	logger *slog.Logger
}

// NewSESSender creates a new SES sender
func NewSESSender(client SESAPI, logger *slog.Logger) *SESSender {
	if logger == nil {
		logger = slog.Default()
	}

	return &SESSender{
		client: client,
		logger: logger,
	}
}

// Send delivers the email and returns the SES message id
func (s *SESSender) Send(ctx context.Context, email Email) (string, error) {
	if err := email.Validate(); err != nil {
		return "", fmt.Errorf("invalid email: %w", err)
	}

	body := &types.Body{}
	if email.HTML != "" {
		body.Html = utf8Content(email.HTML)
	}
	if email.Text != "" {
		body.Text = utf8Content(email.Text)
	}

	result, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(email.From),
		Destination: &types.Destination{
			ToAddresses: []string{email.To},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: utf8Content(email.Subject),
				Body:    body,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to send email via SES: %w", err)
	}

	messageID := aws.ToString(result.MessageId)
	s.logger.InfoContext(ctx, "email sent via SES",
		slog.String("ses_message_id", messageID),
		slog.String("to", email.To),
	)

	return messageID, nil
}

func utf8Content(data string) *types.Content {
	return &types.Content{
		Data:    aws.String(data),
		Charset: aws.String("UTF-8"),
	}
}
