package voice

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	ttspb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/ent0n29/ttsproxy/internal/audio"
	"github.com/ent0n29/ttsproxy/internal/observability"
	"github.com/ent0n29/ttsproxy/internal/reliability"
)

// DefaultGoogleEndpoint is the Cloud Text-to-Speech REST synthesize method.
const DefaultGoogleEndpoint = "https://texttospeech.googleapis.com/v1/text:synthesize"

// ProviderGoogle labels provider metrics.
const ProviderGoogle = "google-cloud-tts"

const maxResponseBytes = 32 << 20

var responseDecoder = protojson.UnmarshalOptions{DiscardUnknown: true}

type GoogleConfig struct {
	Endpoint     string
	VoiceName    string
	LanguageCode string
	HTTPClient   *http.Client
}

// GoogleSynthesizer calls text:synthesize over REST with a bearer token and returns the
// LINEAR16 audio with any WAV framing removed.
type GoogleSynthesizer struct {
	cfg     GoogleConfig
	tokens  TokenSource
	metrics *observability.Metrics
	logger  *zap.SugaredLogger
}

func NewGoogleSynthesizer(cfg GoogleConfig, tokens TokenSource, metrics *observability.Metrics, logger *zap.SugaredLogger) *GoogleSynthesizer {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = DefaultGoogleEndpoint
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &GoogleSynthesizer{cfg: cfg, tokens: tokens, metrics: metrics, logger: logger}
}

// Synthesize returns raw PCM. Token failures come back as the token source's error
// (a *googleauth.AuthError in production); everything else is a *SynthesisError.
func (s *GoogleSynthesizer) Synthesize(ctx context.Context, text string, sampleRate int) ([]byte, error) {
	tokenStarted := time.Now()
	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	s.observeStage(observability.StageToken, time.Since(tokenStarted))

	body, err := protojson.Marshal(s.request(text, sampleRate))
	if err != nil {
		return nil, &SynthesisError{Err: fmt.Errorf("encode request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &SynthesisError{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	started := time.Now()
	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, &SynthesisError{Retryable: reliability.IsRetryableNetError(err), Err: fmt.Errorf("post synthesize: %w", err)}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	took := time.Since(started)
	s.observeStage(observability.StageUpstream, took)
	if s.metrics != nil {
		s.metrics.ObserveUpstreamLatency(took)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		s.invalidateToken()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &SynthesisError{
			Status:    resp.StatusCode,
			Body:      truncateBody(payload),
			Retryable: reliability.IsRetryableHTTPStatus(resp.StatusCode),
		}
	}
	if err != nil {
		return nil, &SynthesisError{Retryable: reliability.IsRetryableNetError(err), Err: fmt.Errorf("read response: %w", err)}
	}

	var out ttspb.SynthesizeSpeechResponse
	if err := responseDecoder.Unmarshal(payload, &out); err != nil {
		return nil, &SynthesisError{Body: truncateBody(payload), Err: fmt.Errorf("decode response: %w", err)}
	}
	raw := out.GetAudioContent()
	pcm := audio.ExtractPCM(raw)
	if len(pcm) == 0 {
		return nil, &SynthesisError{Err: ErrEmptyAudio}
	}

	s.logger.Debugw("Google TTS synthesize completed",
		"rate", sampleRate,
		"bytes", len(pcm),
		"wav_container", audio.HasContainer(raw),
		"took", took.String(),
	)
	return pcm, nil
}

func (s *GoogleSynthesizer) request(text string, sampleRate int) *ttspb.SynthesizeSpeechRequest {
	return &ttspb.SynthesizeSpeechRequest{
		Input: &ttspb.SynthesisInput{InputSource: &ttspb.SynthesisInput_Text{Text: text}},
		Voice: &ttspb.VoiceSelectionParams{
			LanguageCode: s.cfg.LanguageCode,
			Name:         s.cfg.VoiceName,
		},
		AudioConfig: &ttspb.AudioConfig{
			AudioEncoding:   ttspb.AudioEncoding_LINEAR16,
			SampleRateHertz: int32(sampleRate),
		},
	}
}

// invalidateToken makes the next call fetch a fresh token after the API rejected the cached one.
func (s *GoogleSynthesizer) invalidateToken() {
	inv, ok := s.tokens.(TokenInvalidator)
	if !ok {
		return
	}
	inv.Invalidate()
	s.logger.Warnw("Google TTS rejected access token, cached token dropped")
}

func (s *GoogleSynthesizer) observeStage(stage string, d time.Duration) {
	if s.metrics != nil {
		s.metrics.ObserveStage(stage, d)
	}
}
