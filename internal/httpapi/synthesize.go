package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/ttsproxy/internal/googleauth"
	"github.com/ent0n29/ttsproxy/internal/history"
	"github.com/ent0n29/ttsproxy/internal/observability"
	"github.com/ent0n29/ttsproxy/internal/policy"
	"github.com/ent0n29/ttsproxy/internal/protocol"
	"github.com/ent0n29/ttsproxy/internal/voice"
)

const (
	secretHeader    = "X-Vapi-Secret"
	requestIDHeader = "X-Request-Id"
	cacheHeader     = "X-Cache"

	maxWebhookBytes    = 50 << 20
	historyPreviewLen  = 40
	historySaveTimeout = 2 * time.Second
)

var (
	errRequestTimeout = errors.New("request timeout")
	errWorkPanicked   = errors.New("synthesis panicked")
)

// Request outcomes, used as the requests_total label.
const (
	outcomeOK           = "ok"
	outcomeIgnored      = "ignored"
	outcomeEmpty        = "empty"
	outcomeBadRequest   = "bad_request"
	outcomeUnauthorized = "unauthorized"
	outcomeTimeout      = "timeout"
	outcomeError        = "error"
	outcomeCanceled     = "canceled"
)

// reply is a transport-neutral webhook answer: either audio or a JSON body.
type reply struct {
	status     int
	body       map[string]any
	audio      []byte
	sampleRate int
	cacheHit   bool
	outcome    string
}

func jsonReply(status int, outcome string, body map[string]any) reply {
	return reply{status: status, body: body, outcome: outcome}
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	requestID := uuid.NewString()
	w.Header().Set(requestIDHeader, requestID)

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	var rep reply
	if err != nil {
		rep = jsonReply(http.StatusBadRequest, outcomeBadRequest, map[string]any{"error": "Invalid request body"})
	} else {
		rep = s.process(r.Context(), requestID, r.Header.Get(secretHeader), raw, started)
	}
	s.finish(rep, started)

	if rep.audio != nil {
		w.Header().Set("Content-Type", "audio/l16; rate="+strconv.Itoa(rep.sampleRate))
		w.Header().Set("Content-Length", strconv.Itoa(len(rep.audio)))
		w.Header().Set(cacheHeader, cacheHeaderValue(rep.cacheHit))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(rep.audio)
		return
	}
	respondJSON(w, rep.status, rep.body)
}

// process runs one webhook body through auth, validation and the pipeline. It always
// returns within the request timeout measured from started.
func (s *Server) process(ctx context.Context, requestID, secret string, raw []byte, started time.Time) reply {
	msg, err := protocol.ParseWebhook(raw)
	switch {
	case errors.Is(err, protocol.ErrMissingMessage):
		return jsonReply(http.StatusBadRequest, outcomeBadRequest, map[string]any{"error": "Missing message object"})
	case err != nil:
		return jsonReply(http.StatusBadRequest, outcomeBadRequest, map[string]any{"error": "Invalid request body"})
	}

	if !msg.IsVoiceRequest() {
		return jsonReply(http.StatusOK, outcomeIgnored, map[string]any{"status": "ignored"})
	}
	if !s.authorized(secret) {
		s.logger.Warnw("rejected voice-request with invalid secret",
			"request_id", requestID,
			"secret_present", secret != "",
		)
		return jsonReply(http.StatusUnauthorized, outcomeUnauthorized, map[string]any{"error": "Unauthorized"})
	}

	req, err := msg.VoiceRequest()
	switch {
	case errors.Is(err, protocol.ErrEmptyText):
		return jsonReply(http.StatusOK, outcomeEmpty, map[string]any{"status": "empty"})
	case errors.Is(err, protocol.ErrUnsupportedSampleRate):
		return jsonReply(http.StatusBadRequest, outcomeBadRequest, map[string]any{
			"error":          "Unsupported sample rate",
			"supportedRates": protocol.SupportedSampleRates,
		})
	case err != nil:
		return jsonReply(http.StatusBadRequest, outcomeBadRequest, map[string]any{"error": "Invalid request body"})
	}

	res, err := s.synthesizeWithDeadline(ctx, requestID, req, started)
	s.record(requestID, req, res, err, started)
	switch {
	case err == nil:
		return reply{status: http.StatusOK, audio: res.Audio, sampleRate: req.SampleRate, cacheHit: res.CacheHit, outcome: outcomeOK}
	case errors.Is(err, voice.ErrNothingToSay):
		return jsonReply(http.StatusOK, outcomeEmpty, map[string]any{"status": "empty"})
	case errors.Is(err, errRequestTimeout):
		s.logger.Warnw("request timed out",
			"request_id", requestID,
			"rate", req.SampleRate,
			"took", time.Since(started).String(),
		)
		return jsonReply(http.StatusRequestTimeout, outcomeTimeout, map[string]any{"error": "Request timeout"})
	case errors.Is(err, errWorkPanicked):
		return jsonReply(http.StatusInternalServerError, outcomeError, map[string]any{"error": "Internal server error"})
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		return jsonReply(499, outcomeCanceled, map[string]any{"error": "Client closed request"})
	default:
		s.logSynthesisFailure(requestID, req, err, started)
		return jsonReply(http.StatusInternalServerError, outcomeError, map[string]any{
			"error":     "TTS synthesis failed",
			"requestId": requestID,
			"details":   summarizeError(err),
		})
	}
}

type synthOutcome struct {
	res voice.Result
	err error
}

// synthesizeWithDeadline races the pipeline against the remaining request budget. The pipeline
// runs detached from ctx, bounded by UpstreamTimeout, so a late provider answer still fills
// the cache after the caller has been told 408.
func (s *Server) synthesizeWithDeadline(ctx context.Context, requestID string, req protocol.VoiceRequest, started time.Time) (voice.Result, error) {
	done := make(chan synthOutcome, 1)
	go func() {
		workCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.UpstreamTimeout)
		defer cancel()
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Errorw("panic during synthesis", "request_id", requestID, "panic", fmt.Sprint(rec))
				done <- synthOutcome{err: errWorkPanicked}
			}
		}()
		res, err := s.pipeline.Synthesize(workCtx, requestID, req.Text, req.SampleRate)
		done <- synthOutcome{res: res, err: err}
	}()

	timer := time.NewTimer(s.cfg.RequestTimeout - time.Since(started))
	defer timer.Stop()
	select {
	case out := <-done:
		return out.res, out.err
	case <-timer.C:
		return voice.Result{}, errRequestTimeout
	case <-ctx.Done():
		return voice.Result{}, ctx.Err()
	}
}

// authorized compares the presented secret in constant time. With no secret configured every
// caller is accepted.
func (s *Server) authorized(presented string) bool {
	if s.cfg.VapiSecret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(s.cfg.VapiSecret)) == 1
}

func (s *Server) finish(rep reply, started time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveRequest(rep.outcome)
	if rep.outcome == outcomeOK {
		s.metrics.ObserveStage(observability.StageRequestTotal, time.Since(started))
	}
}

// record saves the outcome of a voice-request in the background; failures are only logged.
func (s *Server) record(requestID string, req protocol.VoiceRequest, res voice.Result, err error, started time.Time) {
	if s.history == nil || errors.Is(err, voice.ErrNothingToSay) {
		return
	}
	rec := history.Record{
		RequestID:   requestID,
		CacheKey:    res.Key,
		TextPreview: policy.Preview(voice.NormalizeText(req.Text), historyPreviewLen),
		SampleRate:  req.SampleRate,
		Bytes:       len(res.Audio),
		CacheHit:    res.CacheHit,
		Outcome:     history.OutcomeOK,
		DurationMS:  time.Since(started).Milliseconds(),
		CreatedAt:   time.Now().UTC(),
	}
	switch {
	case errors.Is(err, errRequestTimeout):
		rec.Outcome = history.OutcomeTimeout
	case err != nil:
		rec.Outcome = history.OutcomeError
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), historySaveTimeout)
		defer cancel()
		if err := s.history.Save(ctx, rec); err != nil {
			s.logger.Warnw("save synthesis history failed", "request_id", requestID, "error", err)
		}
	}()
}

func (s *Server) logSynthesisFailure(requestID string, req protocol.VoiceRequest, err error, started time.Time) {
	fields := []any{
		"request_id", requestID,
		"rate", req.SampleRate,
		"took", time.Since(started).String(),
		"kind", voice.ErrorCode(err),
		"error", err,
	}
	var synthErr *voice.SynthesisError
	if errors.As(err, &synthErr) {
		fields = append(fields, "upstream_status", synthErr.Status, "upstream_body", synthErr.Body)
	}
	s.logger.Errorw("TTS synthesis failed", fields...)
}

// summarizeError describes a failure without leaking credentials or upstream bodies.
func summarizeError(err error) string {
	var authErr *googleauth.AuthError
	var synthErr *voice.SynthesisError
	switch {
	case errors.As(err, &authErr):
		return "failed to obtain access token"
	case errors.As(err, &synthErr):
		return synthErr.Summary()
	case errors.Is(err, context.DeadlineExceeded):
		return "upstream timeout"
	default:
		return "internal error"
	}
}

func cacheHeaderValue(hit bool) string {
	if hit {
		return "HIT"
	}
	return "MISS"
}
