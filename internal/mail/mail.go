// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

// Package mail delivers password-reset codes.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Sender delivers a reset code to a user. It satisfies auth.ResetNotifier.
type Sender interface {
	SendResetCode(ctx context.Context, email, name, code string) error
}

// Message is a rendered reset mail.
type Message struct {
	Subject string
	Text    string
}

// ResetMessage renders the reset mail for a code valid for window.
func ResetMessage(code string, window time.Duration) Message {
	minutes := int(window.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return Message{
		Subject: "Your password reset code",
		Text: fmt.Sprintf(
			"Your OTP is %s and it will expire in %d minutes. Do not share this OTP with anyone.",
			code, minutes,
		),
	}
}

// LogSender records that a reset mail would have been sent. The code is not
// logged. Intended for local development.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender. A nil logger uses slog.Default().
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// SendResetCode logs a redacted notice.
func (s *LogSender) SendResetCode(ctx context.Context, email, _, _ string) error {
	s.logger.InfoContext(ctx, "reset mail suppressed", "recipient", RedactEmail(email), "driver", "log")
	return nil
}

// RedactEmail keeps the first character of the local part and the domain.
func RedactEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
