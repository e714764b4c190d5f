package voice

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	ttspb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"

	"github.com/ent0n29/ttsproxy/internal/reliability"
)

// VoiceInfo summarizes one provider voice.
type VoiceInfo struct {
	Name                   string   `json:"name"`
	LanguageCodes          []string `json:"language_codes"`
	Gender                 string   `json:"gender"`
	NaturalSampleRateHertz int      `json:"natural_sample_rate_hertz"`
}

// ListVoices returns the voices available for languageCode (all voices when empty), sorted by name.
func (s *GoogleSynthesizer) ListVoices(ctx context.Context, languageCode string) ([]VoiceInfo, error) {
	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(voicesEndpoint(s.cfg.Endpoint))
	if err != nil {
		return nil, &SynthesisError{Err: fmt.Errorf("parse voices endpoint: %w", err)}
	}
	if lc := strings.TrimSpace(languageCode); lc != "" {
		q := u.Query()
		q.Set("languageCode", lc)
		u.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &SynthesisError{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, &SynthesisError{Retryable: reliability.IsRetryableNetError(err), Err: fmt.Errorf("list voices: %w", err)}
	}
	defer resp.Body.Close()
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &SynthesisError{
			Status:    resp.StatusCode,
			Body:      truncateBody(payload),
			Retryable: reliability.IsRetryableHTTPStatus(resp.StatusCode),
		}
	}

	var out ttspb.ListVoicesResponse
	if err := responseDecoder.Unmarshal(payload, &out); err != nil {
		return nil, &SynthesisError{Body: truncateBody(payload), Err: fmt.Errorf("decode voices: %w", err)}
	}

	voices := make([]VoiceInfo, 0, len(out.GetVoices()))
	for _, v := range out.GetVoices() {
		voices = append(voices, VoiceInfo{
			Name:                   v.GetName(),
			LanguageCodes:          v.GetLanguageCodes(),
			Gender:                 v.GetSsmlGender().String(),
			NaturalSampleRateHertz: int(v.GetNaturalSampleRateHertz()),
		})
	}
	sort.Slice(voices, func(i, j int) bool { return voices[i].Name < voices[j].Name })
	return voices, nil
}

// voicesEndpoint derives .../v1/voices from .../v1/text:synthesize.
func voicesEndpoint(synthesizeEndpoint string) string {
	base := strings.TrimSuffix(strings.TrimRight(synthesizeEndpoint, "/"), "text:synthesize")
	return strings.TrimRight(base, "/") + "/voices"
}
