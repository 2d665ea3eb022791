package report

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

// SMTPConfig carries the delivery settings for outgoing mail.
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	From      string
	Recipient string
}

func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.From != "" && c.Recipient != ""
}

// Mailer delivers rendered reports over SMTP.
type Mailer struct {
	cfg  SMTPConfig
	send func(*gomail.Message) error
}

func NewMailer(cfg SMTPConfig) *Mailer {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &Mailer{
		cfg:  cfg,
		send: func(m *gomail.Message) error { return dialer.DialAndSend(m) },
	}
}

// SendReport mails the rendered HTML report.
func (m *Mailer) SendReport(subject, html string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", m.cfg.Recipient)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", html)

	if err := m.send(msg); err != nil {
		return fmt.Errorf("failed to send report: %w", err)
	}
	return nil
}

// SendErrorNotification mails a short plain-text failure notice.
func (m *Mailer) SendErrorNotification(subject, detail string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", m.cfg.Recipient)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", detail)

	if err := m.send(msg); err != nil {
		return fmt.Errorf("failed to send error notification: %w", err)
	}
	return nil
}
