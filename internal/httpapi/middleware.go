package httpapi

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/ent0n29/ttsproxy/internal/policy"
)

const debugBodyLimit = 8 << 10

// recoverer turns a panic in any handler into a 500 JSON response.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.logger.Errorw("panic while handling request",
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", w.Header().Get(requestIDHeader),
				"panic", fmt.Sprint(rec),
			)
			if s.metrics != nil {
				s.metrics.ObserveRequest(outcomeError)
			}
			respondJSON(w, http.StatusInternalServerError, map[string]any{"error": "Internal server error"})
		}()
		next.ServeHTTP(w, r)
	})
}

// debugRequests logs every request with its body. The shared secret is reported only as present
// or absent, and body text goes through PII redaction.
func (s *Server) debugRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fields := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"secret_present", r.Header.Get(secretHeader) != "",
			"remote", r.RemoteAddr,
		}
		if r.Body != nil && r.Method == http.MethodPost {
			raw, err := io.ReadAll(io.LimitReader(r.Body, debugBodyLimit+1))
			// Restore the full stream: what was read, then whatever is left.
			r.Body = struct {
				io.Reader
				io.Closer
			}{io.MultiReader(bytes.NewReader(raw), r.Body), r.Body}
			if err == nil {
				body := raw
				if len(body) > debugBodyLimit {
					body = body[:debugBodyLimit]
				}
				redacted, _ := policy.RedactPII(string(body))
				fields = append(fields, "body", redacted)
			}
		}
		s.logger.Debugw("incoming request", fields...)
		next.ServeHTTP(w, r)
	})
}
