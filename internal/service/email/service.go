package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/resend/resend-go/v3"

	"civic-automation/internal/config"
	"civic-automation/internal/domain"
)

var ErrNoAddress = errors.New("recipient has no email address")

// Message is one outgoing email.
type Message struct {
	To             string
	ToName         string
	Subject        string
	HTML           string
	IdempotencyKey string
}

// Sender hands a message to the transactional email provider.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type resendSender struct {
	client *resend.Client
	from   string
}

func NewResendSender(cfg *config.Config) Sender {
	return &resendSender{
		client: resend.NewClient(cfg.ResendAPIKey),
		from:   fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromEmail),
	}
}

func (s *resendSender) Send(ctx context.Context, msg Message) error {
	to := msg.To
	if msg.ToName != "" {
		to = fmt.Sprintf("%s <%s>", msg.ToName, msg.To)
	}

	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: msg.Subject,
		Html:    msg.HTML,
	}

	// The provider drops a repeated idempotency key, so a retried send of the
	// same delivery row does not reach the inbox twice.
	_, err := s.client.Emails.SendWithOptions(ctx, params, &resend.SendEmailOptions{IdempotencyKey: msg.IdempotencyKey})
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// Service is the email delivery channel: it renders a single or digest email
// and performs one send attempt. Retrying is left to the caller.
type Service interface {
	SendSingle(ctx context.Context, recipient domain.Recipient, notif domain.Notification, idempotencyKey string) error
	SendDigest(ctx context.Context, recipient domain.Recipient, notifs []domain.Notification, idempotencyKey string) error
}

type service struct {
	sender   Sender
	renderer *Renderer
}

func NewService(sender Sender, renderer *Renderer) Service {
	return &service{
		sender:   sender,
		renderer: renderer,
	}
}

func (s *service) SendSingle(ctx context.Context, recipient domain.Recipient, notif domain.Notification, idempotencyKey string) error {
	if recipient.Email == "" {
		return ErrNoAddress
	}

	rendered, err := s.renderer.RenderSingle(ctx, recipient, notif)
	if err != nil {
		return err
	}
	return s.send(ctx, recipient, rendered, idempotencyKey)
}

func (s *service) SendDigest(ctx context.Context, recipient domain.Recipient, notifs []domain.Notification, idempotencyKey string) error {
	if recipient.Email == "" {
		return ErrNoAddress
	}
	if len(notifs) == 0 {
		return nil
	}
	if len(notifs) == 1 {
		return s.SendSingle(ctx, recipient, notifs[0], idempotencyKey)
	}

	rendered, err := s.renderer.RenderDigest(ctx, recipient, notifs)
	if err != nil {
		return err
	}
	return s.send(ctx, recipient, rendered, idempotencyKey)
}

func (s *service) send(ctx context.Context, recipient domain.Recipient, rendered *Rendered, idempotencyKey string) error {
	return s.sender.Send(ctx, Message{
		To:             recipient.Email,
		ToName:         recipient.Username,
		Subject:        rendered.Subject,
		HTML:           rendered.HTML,
		IdempotencyKey: idempotencyKey,
	})
}
