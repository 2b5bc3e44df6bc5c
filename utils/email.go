package utils

import (
	"MedVault/config"
	"crypto/tls"
	"errors"
	"net/smtp"

	"github.com/jordan-wright/email"
)

var ErrSMTPNotConfigured = errors.New("smtp config missing")

// Mailer sends account mail through the configured SMTP relay.
type Mailer struct {
	cfg *config.Config
}

func NewMailer(cfg *config.Config) *Mailer {
	return &Mailer{cfg: cfg}
}

// Enabled reports whether activation mail can be sent at all.
func (m *Mailer) Enabled() bool {
	return m != nil && m.cfg != nil && m.cfg.SMTPConfigured()
}

// BuildActivateMail renders the activation message without sending it.
func BuildActivateMail(from, to, link string) *email.Email {
	e := email.NewEmail()
	e.From = from
	e.To = []string{to}
	e.Subject = "MedVault Account Activation"
	e.HTML = []byte(`
		<h2>Welcome to MedVault</h2>
		<p>Please click the link below to activate your account:</p>
		<a href="` + link + `">Activate account</a>
		<p>The link is valid for 10 minutes.</p>
	`)
	return e
}

// SendActivateMail sends activation email.
func (m *Mailer) SendActivateMail(to, link string) error {
	if !m.Enabled() {
		return ErrSMTPNotConfigured
	}
	cfg := m.cfg
	e := BuildActivateMail(cfg.SMTPFrom, to, link)

	addr := cfg.SMTPHost + ":" + cfg.SMTPPort
	auth := smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPHost)
	tlsConfig := &tls.Config{ServerName: cfg.SMTPHost}

	if cfg.SMTPTLS || cfg.SMTPPort == "465" {
		return e.SendWithTLS(addr, auth, tlsConfig)
	}
	if cfg.SMTPStartTLS {
		return e.SendWithStartTLS(addr, auth, tlsConfig)
	}
	return e.Send(addr, auth)
}
