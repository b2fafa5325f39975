package mailer

import (
	"context"
	"errors"
	"fmt"

	"licensing-controlplane/pkg/config"

	"github.com/wneessen/go-mail"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("mailer",
	fx.Provide(New),
)

// Message is one outbound email with a plain text body and an optional HTML
// alternative.
type Message struct {
	To      []string
	Subject string
	Text    string
	HTML    string
}

type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

var ErrNoRecipients = errors.New("mailer: message has no recipients")

// New returns an SMTP sender, or a sender that only logs when MAIL.HOST is
// not configured.
func New(cfg *config.Config) (Sender, error) {
	mc := cfg.Mail
	if mc.Host == "" {
		zap.L().Warn("[Mailer] MAIL.HOST not set, messages will only be logged")
		return &logSender{}, nil
	}

	opts := []mail.Option{
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if mc.Port > 0 {
		opts = append(opts, mail.WithPort(mc.Port))
	}
	if mc.StartTLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	if mc.DialTimeout > 0 {
		opts = append(opts, mail.WithTimeout(mc.DialTimeout))
	}
	if mc.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(mc.Username),
			mail.WithPassword(mc.Password),
		)
	}

	client, err := mail.NewClient(mc.Host, opts...)
	if err != nil {
		zap.L().Error("[Mailer] Failed to create SMTP client", zap.String("host", mc.Host), zap.Error(err))
		return nil, fmt.Errorf("create smtp client: %w", err)
	}

	zap.L().Info("[Mailer] SMTP client configured", zap.String("host", mc.Host), zap.Int("port", mc.Port))
	return &SMTP{client: client, from: mc.From, fromName: cfg.Notification.SenderName}, nil
}

type SMTP struct {
	client   *mail.Client
	from     string
	fromName string
}

func (s *SMTP) Send(ctx context.Context, msg *Message) error {
	m, err := s.build(msg)
	if err != nil {
		return err
	}
	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func (s *SMTP) build(msg *Message) (*mail.Msg, error) {
	if len(msg.To) == 0 {
		return nil, ErrNoRecipients
	}

	m := mail.NewMsg()
	if s.fromName != "" {
		if err := m.FromFormat(s.fromName, s.from); err != nil {
			return nil, fmt.Errorf("set sender: %w", err)
		}
	} else if err := m.From(s.from); err != nil {
		return nil, fmt.Errorf("set sender: %w", err)
	}
	if err := m.To(msg.To...); err != nil {
		return nil, fmt.Errorf("set recipients: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}
	return m, nil
}

type logSender struct{}

func (logSender) Send(ctx context.Context, msg *Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	zap.L().Info("[Mailer] message not sent, no SMTP host",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}
