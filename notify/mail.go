package notify

import (
	"context"
	"fmt"

	"deal_watcher/config"

	"gopkg.in/gomail.v2"
)

type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// MailSink e-mails operator messages. Group announcements are left to the chat bot.
type MailSink struct {
	dialer Dialer
	from   string
	to     string
}

func NewMailSink(cfg config.SMTPConfig) *MailSink {
	return &MailSink{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		from:   cfg.From,
		to:     cfg.Operator,
	}
}

func NewMailSinkWithDialer(d Dialer, from, to string) *MailSink {
	return &MailSink{dialer: d, from: from, to: to}
}

func (s *MailSink) Name() string { return "smtp" }

func (s *MailSink) Send(ctx context.Context, msg Message) error {
	if msg.Audience != AudienceOperator {
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", s.to)
	m.SetHeader("Subject", "deal_watcher: ошибка синхронизации")
	m.SetBody("text/plain", fmt.Sprintf("%s\n\nrun: %s\n%s", msg.Text, msg.RunID, msg.SentAt.Format("2006-01-02 15:04:05 MST")))

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send operator mail: %w", err)
	}
	return nil
}
