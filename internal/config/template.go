// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package config

import (
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
)

// Template renders c as a config file. Secret keys and the database URL
// are omitted.
func (c *Config) Template() ([]byte, error) {
	values := map[string]any{
		"token.ttl":             c.Token.TTL.String(),
		"token.issuer":          c.Token.Issuer,
		"otp.window":            c.Otp.Window.String(),
		"otp.code_length":       c.Otp.CodeLength,
		"otp.max_attempts":      c.Otp.MaxAttempts,
		"otp.purge_interval":    c.Otp.PurgeInterval.String(),
		"hasher.time":           c.Hasher.Time,
		"hasher.memory":         c.Hasher.Memory,
		"hasher.threads":        c.Hasher.Threads,
		"http.addr":             c.HTTP.Addr,
		"http.shutdown_timeout": c.HTTP.ShutdownTimeout.String(),
		"metrics.addr":          c.Metrics.Addr,
		"store.driver":          c.Store.Driver,
		"store.max_conns":       c.Store.MaxConns,
		"mail.driver":           c.Mail.Driver,
		"mail.endpoint":         c.Mail.Endpoint,
		"mail.sender_email":     c.Mail.SenderEmail,
		"mail.sender_name":      c.Mail.SenderName,
		"log.format":            c.Log.Format,
		"log.level":             c.Log.Level,
	}

	k := koanf.New(".")
	for key, value := range values {
		if err := k.Set(key, value); err != nil {
			return nil, oops.Code("CONFIG_TEMPLATE_FAILED").With("key", key).Wrap(err)
		}
	}
	out, err := k.Marshal(yaml.Parser())
	if err != nil {
		return nil, oops.Code("CONFIG_TEMPLATE_FAILED").Wrap(err)
	}
	return out, nil
}
