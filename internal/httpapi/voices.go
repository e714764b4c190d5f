package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ent0n29/ttsproxy/internal/audio"
	"github.com/ent0n29/ttsproxy/internal/protocol"
	"github.com/ent0n29/ttsproxy/internal/voice"
)

type listVoicesResponse struct {
	DefaultVoice string            `json:"default_voice"`
	LanguageCode string            `json:"language_code"`
	Voices       []voice.VoiceInfo `json:"voices"`
}

func (s *Server) handleListVoices(w http.ResponseWriter, r *http.Request) {
	if s.voices == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "voice listing not configured")
		return
	}
	languageCode := strings.TrimSpace(r.URL.Query().Get("language"))
	if languageCode == "" {
		languageCode = s.cfg.Google.LanguageCode
	}

	voices, err := s.voices.ListVoices(r.Context(), languageCode)
	if err != nil {
		s.logger.Warnw("list voices failed", "language", languageCode, "error", err)
		respondError(w, http.StatusBadGateway, "voices_request_failed", summarizeError(err))
		return
	}
	respondJSON(w, http.StatusOK, listVoicesResponse{
		DefaultVoice: s.cfg.Google.VoiceName,
		LanguageCode: languageCode,
		Voices:       voices,
	})
}

type previewTTSRequest struct {
	Text       string `json:"text"`
	SampleRate int    `json:"sample_rate"`
}

// handlePreviewTTS renders text as a playable WAV file through the same cache as the webhook.
func (s *Server) handlePreviewTTS(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r.Header.Get(secretHeader)) {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
		return
	}
	var req previewTTSRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "empty_text", "text is required")
		return
	}
	if req.SampleRate == 0 {
		req.SampleRate = 24000
	}
	if !protocol.IsSupportedSampleRate(req.SampleRate) {
		respondError(w, http.StatusBadRequest, "unsupported_sample_rate", "Unsupported sample rate")
		return
	}

	requestID := uuid.NewString()
	w.Header().Set(requestIDHeader, requestID)
	res, err := s.pipeline.Synthesize(r.Context(), requestID, req.Text, req.SampleRate)
	if errors.Is(err, voice.ErrNothingToSay) {
		respondError(w, http.StatusBadRequest, "empty_text", "text is empty after normalization")
		return
	}
	if err != nil {
		s.logger.Errorw("tts preview failed", "request_id", requestID, "error", err)
		respondError(w, http.StatusBadGateway, "tts_preview_failed", summarizeError(err))
		return
	}

	wav, err := audio.EncodeWAVPCM16LE(res.Audio, req.SampleRate)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "tts_preview_failed", err.Error())
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(wav)))
	w.Header().Set(cacheHeader, cacheHeaderValue(res.CacheHit))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}
