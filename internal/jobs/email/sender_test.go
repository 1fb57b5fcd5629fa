package email

import (
	"context"
	"errors"
	"net"
	"net/textproto"
	"strings"
	"testing"

	"github.com/bissquit/eventrelay/internal/domain"
	"github.com/bissquit/eventrelay/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSender_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name: "enabled without smtp host",
			config: Config{
				Enabled:     true,
				FromAddress: "test@example.com",
			},
			wantErr: "SMTP host is required",
		},
		{
			name: "enabled without from address",
			config: Config{
				Enabled:  true,
				SMTPHost: "smtp.example.com",
			},
			wantErr: "from address is required",
		},
		{
			name:    "disabled - no validation",
			config:  Config{Enabled: false},
			wantErr: "",
		},
		{
			name: "valid config",
			config: Config{
				Enabled:     true,
				SMTPHost:    "smtp.example.com",
				FromAddress: "test@example.com",
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender, err := NewSender(tt.config)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, sender)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, sender)
			}
		})
	}
}

func TestNewSender_Defaults(t *testing.T) {
	sender, err := NewSender(Config{
		Enabled:     true,
		SMTPHost:    "smtp.example.com",
		FromAddress: "Market <noreply@market.example.com>",
	})
	require.NoError(t, err)

	assert.Equal(t, 587, sender.config.SMTPPort)
	assert.Equal(t, "market.example.com", sender.config.MessageIDDomain)
	assert.Nil(t, sender.auth)
	assert.Equal(t, domain.JobKindEmail, sender.Kind())
}

func TestNewSender_AuthSetup(t *testing.T) {
	sender, err := NewSender(Config{
		Enabled:      true,
		SMTPHost:     "smtp.example.com",
		FromAddress:  "test@example.com",
		SMTPUser:     "user",
		SMTPPassword: "pass",
	})
	require.NoError(t, err)
	assert.NotNil(t, sender.auth)
}

func TestSender_Send_Disabled(t *testing.T) {
	sender, err := NewSender(Config{FromAddress: "noreply@example.com"})
	require.NoError(t, err)

	receipt, err := sender.Send(context.Background(), "user@example.com", jobs.Content{Subject: "s", Body: "b"})
	require.NoError(t, err)
	assert.Regexp(t, `^<[0-9a-f-]{36}@example\.com>$`, receipt.ProviderMessageID)
}

func TestSender_Send_ConnectionRefusedIsRetryable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	sender, err := NewSender(Config{
		Enabled:     true,
		SMTPHost:    "127.0.0.1",
		SMTPPort:    port,
		FromAddress: "noreply@example.com",
	})
	require.NoError(t, err)

	_, err = sender.Send(context.Background(), "user@example.com", jobs.Content{Subject: "s", Body: "b"})
	require.Error(t, err)

	var rerr *jobs.RetryableError
	require.ErrorAs(t, err, &rerr)
	assert.True(t, rerr.IsRetryable())
}

func TestExtractEmail(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "user@example.com", expected: "user@example.com"},
		{input: "Test User <user@example.com>", expected: "user@example.com"},
		{input: "<user@example.com>", expected: "user@example.com"},
		{input: "invalid<", expected: "invalid<"},
		{input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractEmail(tt.input))
		})
	}
}

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "example.com", domainOf("a@example.com"))
	assert.Equal(t, "localhost", domainOf("no-at-sign"))
	assert.Equal(t, "localhost", domainOf("trailing@"))
}

func TestSender_BuildMessage(t *testing.T) {
	sender := &Sender{
		config: Config{FromAddress: "Market <noreply@example.com>"},
	}

	msg := string(sender.buildMessage("buyer@example.com", "<id@example.com>", jobs.Content{
		Subject: "You won",
		Body:    "Congratulations",
	}))

	assert.Contains(t, msg, "From: Market <noreply@example.com>\r\n")
	assert.Contains(t, msg, "To: buyer@example.com\r\n")
	assert.Contains(t, msg, "Subject: You won\r\n")
	assert.Contains(t, msg, "Message-ID: <id@example.com>\r\n")
	assert.Contains(t, msg, "Content-Type: text/plain; charset=\"utf-8\"\r\n")
	assert.Contains(t, msg, "\r\n\r\nCongratulations")
}

func TestSender_BuildMessage_HeaderInjection(t *testing.T) {
	r, err := jobs.NewRenderer("https://market.example.com")
	require.NoError(t, err)

	content, err := r.Render(domain.JobKindEmail, &domain.Event{
		ID:           "offer:o1:created:v1",
		Type:         domain.EventTypeOfferCreated,
		EntityType:   domain.EntityTypeOffer,
		EntityID:     "o1",
		TargetUserID: "seller",
		Payload: &domain.OfferPayload{
			OfferID:      "o1",
			ListingID:    "l1",
			ListingTitle: "Bike\r\nBcc: evil@attacker.test",
			Amount:       900,
			Currency:     "USD",
			ActorRole:    domain.OfferRoleBuyer,
		},
	})
	require.NoError(t, err)

	sender := &Sender{config: Config{FromAddress: "noreply@example.com"}}
	msg := string(sender.buildMessage("seller@example.com\r\nCc: x@attacker.test", "<id@example.com>", jobs.Content{
		Subject: content.Subject + "\nX-Injected: 1",
		Body:    content.Body,
	}))

	headers, _, found := strings.Cut(msg, "\r\n\r\n")
	require.True(t, found)
	assert.NotContains(t, headers, "\r\nBcc:")
	assert.NotContains(t, headers, "\r\nCc:")
	assert.NotContains(t, headers, "\r\nX-Injected:")
	assert.Contains(t, headers, "Subject: New offer on Bike Bcc: evil@attacker.test X-Injected: 1\r\n")
	assert.Contains(t, headers, "To: seller@example.com Cc: x@attacker.test\r\n")
}

func TestHeaderValue(t *testing.T) {
	assert.Equal(t, "plain", headerValue("plain"))
	assert.Equal(t, "a b", headerValue("a\r\nb"))
	assert.Equal(t, "a b c", headerValue("a\nb\rc"))
	assert.Equal(t, "", headerValue("\r\n"))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{name: "nil error", err: nil, retryable: false},
		{name: "421 service unavailable", err: errors.New("421 Service not available"), retryable: true},
		{name: "451 local error", err: errors.New("451 Local error in processing"), retryable: true},
		{name: "552 mailbox full", err: errors.New("552 Mailbox full"), retryable: true},
		{name: "550 mailbox not found", err: errors.New("550 Mailbox not found"), retryable: false},
		{name: "wrapped 535 auth failed", err: errors.New("auth: 535 Authentication failed"), retryable: false},
		{name: "textproto 554", err: &textproto.Error{Code: 554, Msg: "rejected"}, retryable: false},
		{name: "textproto 450", err: &textproto.Error{Code: 450, Msg: "busy"}, retryable: true},
		{name: "no reply code", err: errors.New("tls: handshake failure"), retryable: true},
		{name: "timeout error", err: &timeoutError{}, retryable: true},
		{name: "deadline exceeded", err: context.DeadlineExceeded, retryable: true},
		{name: "network operation error", err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}, retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestClassify(t *testing.T) {
	var rerr *jobs.RetryableError

	require.ErrorAs(t, classify(errors.New("550 no such user")), &rerr)
	assert.False(t, rerr.IsRetryable())

	require.ErrorAs(t, classify(errors.New("421 try later")), &rerr)
	assert.True(t, rerr.IsRetryable())
}

// timeoutError implements net.Error for testing
type timeoutError struct{}

func (e *timeoutError) Error() string   { return "timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }
