package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"contactbook/api/internal/config"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	TemplateVerifyEmail   = "verify_email.html"
	TemplateResetPassword = "reset_password.html"
)

// Message is one outbound email. Token is the signed email token embedded
// in the confirmation or reset link; Host is the public base URL.
type Message struct {
	To       string
	Subject  string
	Template string
	Username string
	Token    string
	Host     string
}

// Sender delivers email. Callers dispatch fire-and-forget: delivery
// failures are logged by the caller, never surfaced to clients.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender renders an HTML template and delivers it over SMTP.
type SMTPSender struct {
	cfg       config.MailConfig
	templates *template.Template
}

func NewSMTPSender(cfg config.MailConfig) (*SMTPSender, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	return &SMTPSender{cfg: cfg, templates: tmpl}, nil
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	var body bytes.Buffer
	if err := s.templates.ExecuteTemplate(&body, msg.Template, map[string]string{
		"Username": msg.Username,
		"Token":    msg.Token,
		"Host":     msg.Host,
	}); err != nil {
		return fmt.Errorf("render template %s: %w", msg.Template, err)
	}

	var raw strings.Builder
	fmt.Fprintf(&raw, "From: %s <%s>\r\n", s.cfg.FromName, s.cfg.From)
	fmt.Fprintf(&raw, "To: %s\r\n", msg.To)
	fmt.Fprintf(&raw, "Subject: %s\r\n", msg.Subject)
	raw.WriteString("MIME-Version: 1.0\r\n")
	raw.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	raw.WriteString("\r\n")
	raw.Write(body.Bytes())

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, s.cfg.From, []string{msg.To}, []byte(raw.String()))
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send mail to %s: %w", msg.To, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
