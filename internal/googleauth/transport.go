package googleauth

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// LoggingTransport logs method, URL, status and latency of every outbound request.
// Headers and bodies are never logged since they carry bearer tokens and credentials.
type LoggingTransport struct {
	Base   http.RoundTripper
	Logger *zap.SugaredLogger
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	started := time.Now()
	resp, err := base.RoundTrip(req)
	if err != nil {
		t.Logger.Debugw("outbound request failed",
			"method", req.Method,
			"url", req.URL.Redacted(),
			"took", time.Since(started).String(),
			"error", err,
		)
		return nil, err
	}
	t.Logger.Debugw("outbound request",
		"method", req.Method,
		"url", req.URL.Redacted(),
		"status", resp.StatusCode,
		"took", time.Since(started).String(),
	)
	return resp, nil
}

// NewHTTPClient returns a client with the given timeout, wrapping the default transport in a
// LoggingTransport when debug is set.
func NewHTTPClient(timeout time.Duration, debug bool, logger *zap.SugaredLogger) *http.Client {
	client := &http.Client{Timeout: timeout}
	if debug && logger != nil {
		client.Transport = &LoggingTransport{Base: http.DefaultTransport, Logger: logger}
	}
	return client
}
