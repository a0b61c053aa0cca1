package handlers

import (
	"context"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"webstar/noturno-leadfinder-worker/internal/dto"
	"webstar/noturno-leadfinder-worker/internal/logging"
)

// DefaultSMTPPort is the submission port used with STARTTLS
const DefaultSMTPPort = 587

// SimulatedResult is returned when no delivery credentials are configured
const SimulatedResult = "simulated"

var mailerLog = logging.New("MailerHandler")

// sendMailFunc matches smtp.SendMail, which upgrades to STARTTLS when the server offers it
type sendMailFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// MailerHandler delivers outreach emails over SMTP
type MailerHandler struct {
	defaults *dto.SMTPConfig
	send     sendMailFunc
	now      func() time.Time
}

// NewMailerHandler creates a mailer. defaults is used when a send carries no tenant config
// and may be nil, in which case unconfigured sends are simulated.
func NewMailerHandler(defaults *dto.SMTPConfig) *MailerHandler {
	return &MailerHandler{
		defaults: defaults,
		send:     smtp.SendMail,
		now:      time.Now,
	}
}

// Send delivers one plain-text message and reports (ok, detail)
func (h *MailerHandler) Send(ctx context.Context, recipient, subject, body string, cfg *dto.SMTPConfig) (bool, string) {
	if err := ctx.Err(); err != nil {
		return false, err.Error()
	}
	if cfg == nil {
		cfg = h.defaults
	}

	if _, err := mail.ParseAddress(recipient); err != nil {
		return false, fmt.Sprintf("invalid recipient: %v", err)
	}

	if !cfg.IsConfigured() {
		mailerLog.Info("SMTP not configured, simulating send", map[string]interface{}{
			"to":      recipient,
			"subject": subject,
		})
		return true, SimulatedResult
	}

	port := cfg.Port
	if port <= 0 {
		port = DefaultSMTPPort
	}
	addr := net.JoinHostPort(cfg.Server, strconv.Itoa(port))
	auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Server)
	msg := h.buildMessage(cfg, recipient, subject, body)

	if err := h.send(addr, auth, cfg.Username, []string{recipient}, msg); err != nil {
		mailerLog.Warn("SMTP delivery failed", map[string]interface{}{
			"to":     recipient,
			"server": cfg.Server,
			"error":  err.Error(),
		})
		return false, err.Error()
	}

	mailerLog.Info("Email sent", map[string]interface{}{"to": recipient, "subject": subject})
	return true, "sent"
}

func (h *MailerHandler) buildMessage(cfg *dto.SMTPConfig, recipient, subject, body string) []byte {
	from := (&mail.Address{Name: cfg.SenderName, Address: cfg.Username}).String()

	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + recipient + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("Date: " + h.now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n"))
	return []byte(b.String())
}
