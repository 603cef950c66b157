// Package mailer sends the password-reset email. Delivery is best effort;
// when SMTP is not configured the message is logged instead so local
// development works without a relay.
package mailer

import (
	"fmt"
	"log/slog"
	"net/smtp"

	"formlane/internal/config"
)

type Mailer struct {
	cfg    *config.Config
	logger *slog.Logger
}

func New(cfg *config.Config, logger *slog.Logger) *Mailer {
	return &Mailer{cfg: cfg, logger: logger}
}

// SendPasswordReset delivers the reset link for a requested password reset.
func (m *Mailer) SendPasswordReset(to, resetURL string) error {
	subject := "Password reset request"
	body := fmt.Sprintf(
		"You requested a password reset.\r\n\r\n"+
			"Make a PUT request to, or open, the following link to choose a new password:\r\n%s\r\n\r\n"+
			"The link expires in 10 minutes. If you did not request this, ignore this email.\r\n",
		resetURL)

	if m.cfg.SMTPHost == "" {
		m.logger.Info("SMTP not configured, logging reset link instead",
			slog.String("to", to), slog.String("url", resetURL))
		return nil
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		m.cfg.SMTPFrom, to, subject, body)

	addr := fmt.Sprintf("%s:%s", m.cfg.SMTPHost, m.cfg.SMTPPort)
	if err := smtp.SendMail(addr, nil, m.cfg.SMTPFrom, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send reset email: %w", err)
	}
	return nil
}
