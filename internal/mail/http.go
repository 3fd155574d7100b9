// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// DefaultEndpoint is the Mailtrap sending API.
const DefaultEndpoint = "https://send.api.mailtrap.io/api/send"

// HTTPConfig configures an HTTPSender.
type HTTPConfig struct {
	Endpoint    string
	APIToken    string
	SenderEmail string
	SenderName  string
	// CodeWindow is quoted in the mail body.
	CodeWindow  time.Duration
	MaxAttempts uint64
	Backoff     time.Duration
	Client      *http.Client
	Logger      *slog.Logger
}

// HTTPSender posts reset mails to a Mailtrap-compatible JSON API. Transport
// errors, 429 and 5xx responses are retried with exponential backoff.
type HTTPSender struct {
	cfg    HTTPConfig
	client *http.Client
	logger *slog.Logger
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendRequest struct {
	From     address   `json:"from"`
	To       []address `json:"to"`
	Subject  string    `json:"subject"`
	Text     string    `json:"text"`
	Category string    `json:"category,omitempty"`
}

// NewHTTPSender creates an HTTPSender.
func NewHTTPSender(cfg HTTPConfig) (*HTTPSender, error) {
	if cfg.APIToken == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("mail api token is required")
	}
	if cfg.SenderEmail == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("mail sender email is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.CodeWindow <= 0 {
		cfg.CodeWindow = 10 * time.Minute
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSender{cfg: cfg, client: client, logger: logger}, nil
}

// SendResetCode delivers the code to email.
func (s *HTTPSender) SendResetCode(ctx context.Context, email, name, code string) error {
	msg := ResetMessage(code, s.cfg.CodeWindow)
	body, err := json.Marshal(sendRequest{
		From:     address{Email: s.cfg.SenderEmail, Name: s.cfg.SenderName},
		To:       []address{{Email: email, Name: name}},
		Subject:  msg.Subject,
		Text:     msg.Text,
		Category: "password_reset",
	})
	if err != nil {
		return oops.Code("MAIL_ENCODE_FAILED").Wrap(err)
	}

	backoff := retry.WithMaxRetries(s.cfg.MaxAttempts-1, retry.NewExponential(s.cfg.Backoff))
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		sendErr := s.post(ctx, body)
		if sendErr != nil && isRetryable(sendErr) {
			s.logger.DebugContext(ctx, "mail send attempt failed",
				"attempt", attempt,
				"recipient", RedactEmail(email),
				"error", sendErr.Error(),
			)
			return retry.RetryableError(sendErr)
		}
		return sendErr
	})
	if err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("recipient", RedactEmail(email)).
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}

// statusError is a non-2xx response from the mail API.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return "mail api returned " + http.StatusText(e.status) + ": " + e.body
}

func isRetryable(err error) bool {
	var se *statusError
	if !errors.As(err, &se) {
		return true // transport error
	}
	return se.status == http.StatusTooManyRequests || se.status >= 500
}

func (s *HTTPSender) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return oops.Code("MAIL_REQUEST_INVALID").Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return err //nolint:wrapcheck // wrapped once by SendResetCode
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &statusError{status: resp.StatusCode, body: string(snippet)}
}
