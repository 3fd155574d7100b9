// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

// Package auth provides the identity and credential core for Inkwell.
//
// # Domain Types
//
// Identity and OtpRecord are plain records. Identities should be created
// with NewIdentity, which validates the name and email and normalizes the
// address. Only PublicIdentity values leave the package boundary; password
// hashes and OTP code hashes never do.
//
// # Components
//
//   - Argon2idHasher - argon2id hashing, legacy bcrypt verification
//   - TokenIssuer - signed, expiring HS256 session tokens
//   - OtpStore - one outstanding reset challenge per email, single use
//   - Gateway - signup, login, password reset and session authentication
//
// Components are created with New* constructors that validate their
// configuration and dependencies.
//
// # Errors
//
// Every error carries an oops code. Classify maps codes to the public Kind
// taxonomy. Authentication failures share fixed messages so callers cannot
// tell an unknown email from a wrong password, or a wrong reset code from an
// expired one.
package auth
