// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ProcessTimeHeader carries the handler duration in milliseconds.
const ProcessTimeHeader = "X-Process-Time"

// statusRecorder captures the response status and stamps the process time
// header before the first byte is written.
type statusRecorder struct {
	http.ResponseWriter
	start  time.Time
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	if s.status != 0 {
		return
	}
	s.status = status
	elapsed := time.Since(s.start).Milliseconds()
	s.Header().Set(ProcessTimeHeader, strconv.FormatInt(elapsed, 10))
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.WriteHeader(http.StatusOK)
	}
	return s.ResponseWriter.Write(b)
}

// middleware traces each request, recovers panics into a 500 envelope and
// logs slow requests.
func (a *API) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := a.tracer.Start(r.Context(), r.Method+" "+r.URL.Path)
		defer span.End()
		r = r.WithContext(ctx)

		rec := &statusRecorder{ResponseWriter: w, start: time.Now()}
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				err := oops.Code("HTTP_HANDLER_PANIC").
					With("path", r.URL.Path).
					Errorf("handler panic: %v", p)
				span.SetStatus(codes.Error, "panic")
				if rec.status == 0 {
					a.writeError(rec, r, err)
				}
			}

			elapsed := time.Since(rec.start)
			span.SetAttributes(
				attribute.String("http.method", r.Method),
				attribute.Int("http.status_code", rec.status),
			)
			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", elapsed.Milliseconds(),
			}
			if elapsed >= a.slow {
				a.logger.WarnContext(ctx, "slow request", attrs...)
				return
			}
			a.logger.DebugContext(ctx, "request served", attrs...)
		}()

		next.ServeHTTP(rec, r)
	})
}
