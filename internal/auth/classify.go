// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package auth

import (
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Kind is the public error category surfaced to callers.
type Kind string

// Public error kinds.
const (
	KindValidation     Kind = "validation"
	KindConflict       Kind = "conflict"
	KindAuthentication Kind = "authentication"
	KindNotFound       Kind = "not_found"
	KindInternal       Kind = "internal"
)

// Public messages. Authentication messages are fixed so responses never
// reveal which check failed.
const (
	MsgInvalidCredentials = "invalid email or password"
	MsgInvalidSession     = "invalid or expired session"
	MsgInvalidResetCode   = "invalid or expired code"
	MsgEmailTaken         = "email already registered"
	MsgIdentityNotFound   = "user not found"
	MsgInternal           = "an unexpected error occurred, please try again later"
)

// PublicError is the caller-safe form of an error.
type PublicError struct {
	Kind          Kind
	Code          string
	Message       string
	CorrelationID string // set for KindInternal only
}

func (e *PublicError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

type publicMapping struct {
	kind    Kind
	message string // empty: use the error's own message
}

// publicCodes is the anti-enumeration policy: every internal code an
// expected outcome can carry, and what the caller is allowed to see.
var publicCodes = map[string]publicMapping{
	"AUTH_INVALID_NAME":     {kind: KindValidation},
	"AUTH_INVALID_EMAIL":    {kind: KindValidation},
	"AUTH_INVALID_PASSWORD": {kind: KindValidation},
	"AUTH_EMPTY_PASSWORD":   {kind: KindValidation},
	"AUTH_INVALID_INPUT":    {kind: KindValidation},
	"OTP_EMAIL_EMPTY":       {kind: KindValidation},

	"AUTH_EMAIL_TAKEN": {kind: KindConflict, message: MsgEmailTaken},

	"AUTH_INVALID_CREDENTIALS": {kind: KindAuthentication, message: MsgInvalidCredentials},
	"TOKEN_MISSING":            {kind: KindAuthentication, message: MsgInvalidSession},
	"TOKEN_MALFORMED":          {kind: KindAuthentication, message: MsgInvalidSession},
	"TOKEN_SIGNATURE_INVALID":  {kind: KindAuthentication, message: MsgInvalidSession},
	"TOKEN_EXPIRED":            {kind: KindAuthentication, message: MsgInvalidSession},
	"TOKEN_SUBJECT_INVALID":    {kind: KindAuthentication, message: MsgInvalidSession},
	"SESSION_SUBJECT_INVALID":  {kind: KindAuthentication, message: MsgInvalidSession},
	"RESET_CODE_INVALID":       {kind: KindAuthentication, message: MsgInvalidResetCode},

	"IDENTITY_NOT_FOUND":       {kind: KindNotFound, message: MsgIdentityNotFound},
	"RESET_IDENTITY_NOT_FOUND": {kind: KindNotFound, message: MsgIdentityNotFound},
}

// Classify maps an error to its public form. Errors without a known code are
// internal: they get a fresh correlation id and no detail.
func Classify(err error) *PublicError {
	if err == nil {
		return nil
	}
	if pub, ok := err.(*PublicError); ok {
		return pub
	}

	if oopsErr, ok := oops.AsOops(err); ok {
		code := fmt.Sprint(oopsErr.Code())
		if mapping, known := publicCodes[code]; known {
			msg := mapping.message
			if msg == "" {
				msg = oopsErr.Error()
			}
			return &PublicError{Kind: mapping.kind, Code: code, Message: msg}
		}
	}

	return &PublicError{
		Kind:          KindInternal,
		Code:          "INTERNAL",
		Message:       MsgInternal,
		CorrelationID: ulid.Make().String(),
	}
}
