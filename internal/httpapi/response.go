// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/samber/oops"

	"github.com/inkwell/inkwell/internal/auth"
	"github.com/inkwell/inkwell/pkg/errutil"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Envelope is the body of every API response.
type Envelope struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

var kindStatus = map[auth.Kind]int{
	auth.KindValidation:     http.StatusUnprocessableEntity,
	auth.KindConflict:       http.StatusConflict,
	auth.KindAuthentication: http.StatusUnauthorized,
	auth.KindNotFound:       http.StatusNotFound,
	auth.KindInternal:       http.StatusInternalServerError,
}

func (a *API) writeJSON(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.logger.Debug("response write failed", "error", err.Error())
	}
}

func (a *API) writeOK(w http.ResponseWriter, status int, message string, data any) {
	a.writeJSON(w, status, Envelope{Status: true, Message: message, Data: data})
}

// writeError renders err in its public form. Internal errors are logged in
// full with the correlation id returned to the caller as request_id.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	pub := auth.Classify(err)
	status, ok := kindStatus[pub.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	if pub.Kind == auth.KindInternal {
		errutil.LogError(a.logger, "request failed", err,
			"request_id", pub.CorrelationID,
			"method", r.Method,
			"path", r.URL.Path,
		)
		a.writeJSON(w, status, Envelope{
			Message: pub.Message,
			Data:    map[string]string{"request_id": pub.CorrelationID},
		})
		return
	}

	if pub.Kind == auth.KindAuthentication {
		w.Header().Set("WWW-Authenticate", `Bearer realm="inkwell"`)
	}
	a.logger.DebugContext(r.Context(), "request rejected",
		"kind", string(pub.Kind),
		"code", pub.Code,
		"path", r.URL.Path,
	)
	a.writeJSON(w, status, Envelope{Message: pub.Message})
}

// decode reads a JSON object body into dst.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return oops.Code("AUTH_INVALID_INPUT").
			With("path", r.URL.Path).
			Errorf("request body must be a JSON object")
	}
	if dec.More() {
		return oops.Code("AUTH_INVALID_INPUT").
			With("path", r.URL.Path).
			Errorf("request body must contain a single JSON object")
	}
	return nil
}
