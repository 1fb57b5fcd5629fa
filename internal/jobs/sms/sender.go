// Package sms provides job delivery via an HTTP SMS gateway.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bissquit/eventrelay/internal/domain"
	"github.com/bissquit/eventrelay/internal/jobs"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultRateLimit = 10
	maxErrorBody     = 512
)

// Config holds SMS gateway configuration.
type Config struct {
	Enabled    bool
	GatewayURL string
	APIToken   string
	SenderID   string
	// RatePerSecond caps outgoing requests; bursts up to the same count are allowed.
	RatePerSecond float64
	Timeout       time.Duration
}

// Sender implements jobs.Sender on top of an HTTP SMS gateway.
type Sender struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewSender creates a new SMS sender.
func NewSender(config Config) (*Sender, error) {
	if config.Enabled && config.GatewayURL == "" {
		return nil, errors.New("sms sender: gateway URL is required when enabled")
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.RatePerSecond <= 0 {
		config.RatePerSecond = defaultRateLimit
	}

	burst := int(config.RatePerSecond)
	if burst < 1 {
		burst = 1
	}

	slog.Info("sms sender configured",
		"enabled", config.Enabled,
		"gateway", config.GatewayURL,
		"rate_per_second", config.RatePerSecond,
	)

	return &Sender{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(config.RatePerSecond), burst),
	}, nil
}

// Kind returns the job kind.
func (s *Sender) Kind() domain.JobKind {
	return domain.JobKindSMS
}

type sendRequest struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
	Text string `json:"text"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
}

// Send submits one message to the gateway. SMS has no subject line, so only
// the body is sent.
func (s *Sender) Send(ctx context.Context, to string, content jobs.Content) (jobs.Receipt, error) {
	if !s.config.Enabled {
		slog.Warn("sms sender disabled, skipping send", "to", maskPhone(to))
		return jobs.Receipt{}, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return jobs.Receipt{}, jobs.NewRetryableError(fmt.Errorf("rate limiter: %w", err))
	}

	body, err := json.Marshal(sendRequest{To: to, From: s.config.SenderID, Text: content.Body})
	if err != nil {
		return jobs.Receipt{}, jobs.NewNonRetryableError(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.GatewayURL, bytes.NewReader(body))
	if err != nil {
		return jobs.Receipt{}, jobs.NewNonRetryableError(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.APIToken)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return jobs.Receipt{}, jobs.NewRetryableError(fmt.Errorf("send request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	return s.handleResponse(resp, to)
}

func (s *Sender) handleResponse(resp *http.Response, to string) (jobs.Receipt, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return jobs.Receipt{}, jobs.NewRetryableError(fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var out sendResponse
		if err := json.Unmarshal(raw, &out); err != nil {
			// The gateway accepted the message; a malformed body must not cause a resend.
			slog.Warn("sms gateway returned unreadable body", "status", resp.StatusCode, "error", err)
		}
		slog.Debug("sms sent", "to", maskPhone(to), "message_id", out.MessageID)
		return jobs.Receipt{ProviderMessageID: out.MessageID}, nil

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return jobs.Receipt{}, jobs.NewRetryableError(&GatewayError{Code: resp.StatusCode, Message: snippet(raw)})

	default:
		return jobs.Receipt{}, jobs.NewNonRetryableError(&GatewayError{Code: resp.StatusCode, Message: snippet(raw)})
	}
}

// GatewayError is a non-2xx gateway reply.
type GatewayError struct {
	Code    int
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("sms gateway error %d: %s", e.Code, e.Message)
}

func snippet(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}
	return string(body)
}

// maskPhone hides all but the last four digits for logging.
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return "***" + phone[len(phone)-4:]
}
