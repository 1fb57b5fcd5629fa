// Package email provides job delivery via SMTP.
package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"net/textproto"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bissquit/eventrelay/internal/domain"
	"github.com/bissquit/eventrelay/internal/jobs"
	"github.com/google/uuid"
)

// Config holds email sender configuration.
type Config struct {
	Enabled      bool
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	FromAddress  string
	// MessageIDDomain is the right-hand side of generated Message-ID headers.
	MessageIDDomain string
	DialTimeout     time.Duration
}

// Sender implements jobs.Sender via SMTP with STARTTLS.
type Sender struct {
	config Config
	auth   smtp.Auth
}

// NewSender creates a new email sender.
// Returns error if enabled but required config is missing.
func NewSender(config Config) (*Sender, error) {
	if config.Enabled {
		if config.SMTPHost == "" {
			return nil, errors.New("email sender: SMTP host is required when enabled")
		}
		if config.FromAddress == "" {
			return nil, errors.New("email sender: from address is required when enabled")
		}
	}

	// Set defaults
	if config.SMTPPort == 0 {
		config.SMTPPort = 587
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 10 * time.Second
	}
	if config.MessageIDDomain == "" {
		config.MessageIDDomain = domainOf(extractEmail(config.FromAddress))
	}

	var auth smtp.Auth
	if config.SMTPUser != "" && config.SMTPPassword != "" {
		auth = smtp.PlainAuth("", config.SMTPUser, config.SMTPPassword, config.SMTPHost)
	}

	slog.Info("email sender configured",
		"enabled", config.Enabled,
		"smtp_host", config.SMTPHost,
		"smtp_port", config.SMTPPort,
		"from_address", config.FromAddress,
	)

	return &Sender{
		config: config,
		auth:   auth,
	}, nil
}

// Kind returns the job kind.
func (s *Sender) Kind() domain.JobKind {
	return domain.JobKindEmail
}

// Send sends one email. The returned receipt carries the Message-ID header
// the message was sent with.
func (s *Sender) Send(ctx context.Context, to string, content jobs.Content) (jobs.Receipt, error) {
	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), s.config.MessageIDDomain)

	if !s.config.Enabled {
		slog.Warn("email sender disabled, skipping send", "message_id", messageID)
		return jobs.Receipt{ProviderMessageID: messageID}, nil
	}

	msg := s.buildMessage(to, messageID, content)
	addr := fmt.Sprintf("%s:%d", s.config.SMTPHost, s.config.SMTPPort)

	tlsConfig := &tls.Config{
		ServerName: s.config.SMTPHost,
		MinVersion: tls.VersionTLS12,
	}

	if err := s.sendWithSTARTTLS(ctx, addr, tlsConfig, to, msg); err != nil {
		return jobs.Receipt{}, classify(err)
	}
	return jobs.Receipt{ProviderMessageID: messageID}, nil
}

// buildMessage constructs the email message with headers.
func (s *Sender) buildMessage(to, messageID string, content jobs.Content) []byte {
	var msg strings.Builder

	// Headers in deterministic order
	msg.WriteString(fmt.Sprintf("From: %s\r\n", headerValue(s.config.FromAddress)))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", headerValue(to)))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", headerValue(content.Subject)))
	msg.WriteString(fmt.Sprintf("Message-ID: %s\r\n", headerValue(messageID)))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(content.Body)

	return []byte(msg.String())
}

// headerValue folds CR and LF out of a header value so user-supplied text
// cannot start a new header line.
func headerValue(v string) string {
	return strings.Join(strings.FieldsFunc(v, func(r rune) bool {
		return r == '\r' || r == '\n'
	}), " ")
}

// sendWithSTARTTLS sends an email using STARTTLS (port 587).
func (s *Sender) sendWithSTARTTLS(ctx context.Context, addr string, tlsConfig *tls.Config, to string, msg []byte) error {
	dialer := &net.Dialer{Timeout: s.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer func() { _ = conn.Close() }()

	// net/smtp has no context support; bound the whole conversation instead.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.config.SMTPHost)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if s.auth != nil {
		if err := client.Auth(s.auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := client.Mail(extractEmail(s.config.FromAddress)); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}

	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}

	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}

	return client.Quit()
}

// extractEmail extracts the email address from formats like "Name <email@example.com>".
func extractEmail(address string) string {
	if idx := strings.Index(address, "<"); idx != -1 {
		end := strings.Index(address, ">")
		if end > idx {
			return address[idx+1 : end]
		}
	}
	return address
}

func domainOf(address string) string {
	if at := strings.LastIndex(address, "@"); at != -1 && at < len(address)-1 {
		return address[at+1:]
	}
	return "localhost"
}

// classify marks SMTP 5xx replies as permanent. 4xx replies and network
// errors stay retryable.
func classify(err error) error {
	if IsRetryable(err) {
		return jobs.NewRetryableError(err)
	}
	return jobs.NewNonRetryableError(err)
}

// IsRetryable determines if an error is retryable. Errors that carry no
// SMTP reply code are treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return retryableCode(protoErr.Code)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}

	if m := replyCode.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return retryableCode(code)
	}
	return true
}

var replyCode = regexp.MustCompile(`\b([45]\d\d)\b`)

// retryableCode reports whether an SMTP reply code is a temporary failure.
// 552 (mailbox full) is commonly transient despite its class.
func retryableCode(code int) bool {
	return code < 500 || code == 552
}
