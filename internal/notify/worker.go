package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/careline/scheduling/internal/appointment"
)

// Directory resolves a recipient to a deliverable address.
type Directory interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*appointment.Patient, error)
}

// Mailer sends one plain-text message.
type Mailer interface {
	SendText(ctx context.Context, to, subject, body string) error
}

// NewDeliverHandler returns the asynq handler that turns a queued
// notification into an email. Returning an error hands the task back to
// asynq for retry; unrecoverable situations (unknown recipient, no email on
// file) are logged and dropped instead.
func NewDeliverHandler(dir Directory, mailer Mailer, log *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var p Payload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			log.Error("bad notification payload, dropping", zap.Error(err))
			return nil
		}

		patient, err := dir.GetPatientByID(ctx, p.RecipientID)
		if err != nil {
			if errors.Is(err, appointment.ErrPatientNotFound) {
				log.Warn("notification recipient not found, dropping",
					zap.String("recipient_id", p.RecipientID.String()))
				return nil
			}
			return fmt.Errorf("load recipient: %w", err)
		}

		if patient.Email == nil || *patient.Email == "" {
			log.Info("recipient has no email on file, dropping",
				zap.String("recipient_id", p.RecipientID.String()))
			return nil
		}

		if err := mailer.SendText(ctx, *patient.Email, p.Title, p.Body); err != nil {
			return fmt.Errorf("send notification email: %w", err)
		}

		log.Info("notification delivered",
			zap.String("recipient_id", p.RecipientID.String()),
			zap.String("title", p.Title),
		)
		return nil
	}
}

// SMTPMailer delivers via go-mail.
type SMTPMailer struct {
	client *mail.Client
	from   string
}

func NewSMTPMailer(host string, port int, username, password, from string) (*SMTPMailer, error) {
	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(username),
			mail.WithPassword(password),
		)
	}

	client, err := mail.NewClient(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}

	return &SMTPMailer{client: client, from: from}, nil
}

func (m *SMTPMailer) SendText(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("set from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("set to address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	return m.client.DialAndSendWithContext(ctx, msg)
}
