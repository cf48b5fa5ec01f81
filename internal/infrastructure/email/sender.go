// Package email delivers the best-effort email mirror of the in-app
// notification feed. Delivery failures never reach the workflow caller; the
// feed record is the system of record.
package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/taskops/workflow/internal/application/dispatcher"
	"github.com/taskops/workflow/internal/application/port"
	"github.com/taskops/workflow/internal/domain/event"
)

// Config holds SMTP delivery settings
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Enabled  bool
}

// SMTPSender implements port.EmailSender over plain SMTP
type SMTPSender struct {
	cfg    Config
	logger *zap.Logger
}

// NewSMTPSender creates a new SMTP sender
func NewSMTPSender(cfg Config, logger *zap.Logger) *SMTPSender {
	return &SMTPSender{
		cfg:    cfg,
		logger: logger,
	}
}

// Send delivers one message. A disabled sender drops messages silently.
func (s *SMTPSender) Send(_ context.Context, to, subject, body string) error {
	if !s.cfg.Enabled {
		return nil
	}

	msg := strings.Join([]string{
		"From: " + s.cfg.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// Mirror subscribes to notification events and mirrors each feed record to
// the target actor's email address.
type Mirror struct {
	sender    port.EmailSender
	actorRepo port.ActorRepository
	logger    *zap.Logger
}

// NewMirror creates a new email mirror
func NewMirror(sender port.EmailSender, actorRepo port.ActorRepository, logger *zap.Logger) *Mirror {
	return &Mirror{
		sender:    sender,
		actorRepo: actorRepo,
		logger:    logger,
	}
}

// Register subscribes the mirror to notification-created events
func (m *Mirror) Register(d dispatcher.Dispatcher) {
	d.SubscribeNamed(event.TypeNotificationCreated, "email-mirror", m.handle)
}

func (m *Mirror) handle(ctx context.Context, e *event.Event) error {
	n := e.Notification
	if n == nil {
		return nil
	}

	actor, err := m.actorRepo.GetByID(ctx, n.ActorID)
	if err != nil {
		return fmt.Errorf("get actor: %w", err)
	}
	if actor == nil || actor.Email == "" {
		return nil
	}

	if err := m.sender.Send(ctx, actor.Email, n.Title, n.Body); err != nil {
		// Best effort: log and move on, the feed record already exists
		m.logger.Warn("Email mirror delivery failed",
			zap.String("notification_id", n.ID),
			zap.String("actor_id", n.ActorID),
			zap.Error(err))
	}
	return nil
}

var _ port.EmailSender = (*SMTPSender)(nil)
