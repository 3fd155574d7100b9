// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"golang.org/x/crypto/bcrypt"
)

type envelope struct {
	Status  bool           `json:"status"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

func call(method, path, token string, body any) (int, envelope) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(env.ctx, method, env.server.URL+path, reader)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := env.server.Client().Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()

	var out envelope
	Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
	return resp.StatusCode, out
}

func signup(name, email, password string) {
	status, _ := call(http.MethodPost, "/auth/signup", "", map[string]string{
		"full_name": name, "email": email, "password": password,
	})
	Expect(status).To(Equal(http.StatusCreated))
}

func login(email, password string) (int, string) {
	status, out := call(http.MethodPost, "/auth/login", "", map[string]string{
		"email": email, "password": password,
	})
	token, _ := out.Data["access_token"].(string)
	return status, token
}

var _ = Describe("Authentication flows against PostgreSQL", func() {
	BeforeEach(func() {
		env.resetTables()
	})

	Describe("signup and login", func() {
		It("issues a token that resolves to the profile", func() {
			signup("Ada Lovelace", "Ada@Example.com", "correct horse")

			status, token := login("ada@example.com", "correct horse")
			Expect(status).To(Equal(http.StatusOK))
			Expect(token).NotTo(BeEmpty())

			status, out := call(http.MethodGet, "/users/me", token, nil)
			Expect(status).To(Equal(http.StatusOK))
			Expect(out.Data).To(HaveKeyWithValue("email", "ada@example.com"))
			Expect(out.Data).To(HaveKeyWithValue("name", "Ada Lovelace"))
			Expect(out.Data).NotTo(HaveKey("password_hash"))
		})

		It("serves other profiles by id to an authenticated caller", func() {
			signup("Ada Lovelace", "ada@example.com", "correct horse")
			signup("Grace Hopper", "grace@example.com", "battery staple")
			_, token := login("ada@example.com", "correct horse")

			var graceID int64
			Expect(env.pool.QueryRow(env.ctx,
				"SELECT id FROM identities WHERE email = $1", "grace@example.com").
				Scan(&graceID)).To(Succeed())

			status, out := call(http.MethodGet, fmt.Sprintf("/users/%d", graceID), token, nil)
			Expect(status).To(Equal(http.StatusOK))
			Expect(out.Data).To(HaveKeyWithValue("email", "grace@example.com"))

			status, _ = call(http.MethodGet, fmt.Sprintf("/users/%d", graceID), "", nil)
			Expect(status).To(Equal(http.StatusUnauthorized))
		})

		It("rejects a duplicate email regardless of case", func() {
			signup("Ada", "ada@example.com", "correct horse")

			status, out := call(http.MethodPost, "/auth/signup", "", map[string]string{
				"full_name": "Imposter", "email": "ADA@example.com", "password": "another one",
			})
			Expect(status).To(Equal(http.StatusConflict))
			Expect(out.Status).To(BeFalse())
		})

		It("returns the same failure for unknown email and wrong password", func() {
			signup("Ada", "ada@example.com", "correct horse")

			unknownStatus, unknown := call(http.MethodPost, "/auth/login", "", map[string]string{
				"email": "nobody@example.com", "password": "correct horse",
			})
			wrongStatus, wrong := call(http.MethodPost, "/auth/login", "", map[string]string{
				"email": "ada@example.com", "password": "wrong horse",
			})
			Expect(unknownStatus).To(Equal(http.StatusUnauthorized))
			Expect(wrongStatus).To(Equal(unknownStatus))
			Expect(wrong.Message).To(Equal(unknown.Message))
		})

		It("upgrades a legacy bcrypt hash on login", func() {
			legacy, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
			Expect(err).NotTo(HaveOccurred())
			_, err = env.pool.Exec(env.ctx,
				"INSERT INTO identities (name, email, password_hash) VALUES ($1, $2, $3)",
				"Legacy", "legacy@example.com", string(legacy))
			Expect(err).NotTo(HaveOccurred())

			status, _ := login("legacy@example.com", "correct horse")
			Expect(status).To(Equal(http.StatusOK))

			var stored string
			Expect(env.pool.QueryRow(env.ctx,
				"SELECT password_hash FROM identities WHERE email = $1", "legacy@example.com").
				Scan(&stored)).To(Succeed())
			Expect(stored).To(HavePrefix("$argon2id$"))

			status, _ = login("legacy@example.com", "correct horse")
			Expect(status).To(Equal(http.StatusOK))
		})
	})

	Describe("password reset", func() {
		BeforeEach(func() {
			signup("Ada", "ada@example.com", "correct horse")
		})

		It("replaces the password with a mailed code", func() {
			status, _ := call(http.MethodPost, "/auth/forget-password", "", map[string]string{"email": "ada@example.com"})
			Expect(status).To(Equal(http.StatusOK))
			code := env.notifier.code("ada@example.com")
			Expect(code).To(MatchRegexp(`^\d{6}$`))

			var stored string
			Expect(env.pool.QueryRow(env.ctx,
				"SELECT code_hash FROM otp_records WHERE email = $1", "ada@example.com").
				Scan(&stored)).To(Succeed())
			Expect(stored).NotTo(ContainSubstring(code))

			status, _ = call(http.MethodPost, "/auth/reset-password", "", map[string]string{
				"email": "ada@example.com", "otp": code, "new_password": "battery staple",
			})
			Expect(status).To(Equal(http.StatusOK))

			status, _ = login("ada@example.com", "correct horse")
			Expect(status).To(Equal(http.StatusUnauthorized))
			status, _ = login("ada@example.com", "battery staple")
			Expect(status).To(Equal(http.StatusOK))

			status, _ = call(http.MethodPost, "/auth/reset-password", "", map[string]string{
				"email": "ada@example.com", "otp": code, "new_password": "third password",
			})
			Expect(status).To(Equal(http.StatusUnauthorized), "codes are single use")
		})

		It("invalidates an earlier code when a new one is requested", func() {
			call(http.MethodPost, "/auth/forget-password", "", map[string]string{"email": "ada@example.com"})
			first := env.notifier.code("ada@example.com")

			Eventually(func() string {
				call(http.MethodPost, "/auth/forget-password", "", map[string]string{"email": "ada@example.com"})
				return env.notifier.code("ada@example.com")
			}).ShouldNot(Equal(first))

			var rows int
			Expect(env.pool.QueryRow(env.ctx, "SELECT count(*) FROM otp_records").Scan(&rows)).To(Succeed())
			Expect(rows).To(Equal(1))

			status, _ := call(http.MethodPost, "/auth/reset-password", "", map[string]string{
				"email": "ada@example.com", "otp": first, "new_password": "battery staple",
			})
			Expect(status).To(Equal(http.StatusUnauthorized))
		})

		It("purges expired challenges", func() {
			call(http.MethodPost, "/auth/forget-password", "", map[string]string{"email": "ada@example.com"})
			_, err := env.pool.Exec(env.ctx, "UPDATE otp_records SET expires_at = now() - interval '1 minute'")
			Expect(err).NotTo(HaveOccurred())

			n, err := env.otps.Purge(env.ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeEquivalentTo(1))
		})
	})

	It("reports database health", func() {
		status, out := call(http.MethodGet, "/health/db", "", nil)
		Expect(status).To(Equal(http.StatusOK))
		Expect(out.Data).To(HaveKeyWithValue("db", "ok"))
	})
})
