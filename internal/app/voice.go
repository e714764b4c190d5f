package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ent0n29/ttsproxy/internal/config"
	"github.com/ent0n29/ttsproxy/internal/googleauth"
	"github.com/ent0n29/ttsproxy/internal/httpapi"
	"github.com/ent0n29/ttsproxy/internal/observability"
	"github.com/ent0n29/ttsproxy/internal/voice"
)

type voiceSetup struct {
	synthesizer      voice.Synthesizer
	voices           httpapi.VoiceLister
	resolvedProvider string
	detail           string
}

func resolveSynthesizer(ctx context.Context, cfg config.Config, metrics *observability.Metrics, logger *zap.SugaredLogger) (voiceSetup, error) {
	mock := func(detail string) voiceSetup {
		return voiceSetup{
			synthesizer:      voice.NewMockSynthesizer(),
			resolvedProvider: voice.ProviderMock,
			detail:           detail,
		}
	}
	if cfg.TTSProvider == "mock" {
		return mock("mock tone generator"), nil
	}

	httpClient := googleauth.NewHTTPClient(cfg.UpstreamTimeout, cfg.DebugRequests, logger)
	authOpts := googleauth.Options{
		Lifetime:     cfg.Google.TokenLifetime,
		SafetyMargin: &cfg.Google.TokenSafetyMargin,
		HTTPClient:   httpClient,
		Logger:       logger,
		Observer:     metrics,
	}

	var (
		tokens *googleauth.TokenProvider
		detail string
		err    error
	)
	if cfg.HasRefreshCredentials() {
		tokens, err = googleauth.NewRefreshTokenProvider(googleauth.Credentials{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RefreshToken: cfg.Google.RefreshToken,
			TokenURL:     cfg.Google.TokenURL,
		}, authOpts)
		detail = "google cloud tts (oauth refresh token)"
	} else {
		tokens, err = googleauth.NewDefaultCredentialsProvider(ctx, authOpts)
		detail = "google cloud tts (application default credentials)"
	}
	if err != nil {
		if cfg.TTSProvider == "google" {
			return voiceSetup{}, fmt.Errorf("google tts credentials: %w", err)
		}
		logger.Warnw("no usable Google credentials, falling back to mock synthesizer", "error", err)
		return mock("mock tone generator (no google credentials)"), nil
	}

	synth := voice.NewGoogleSynthesizer(voice.GoogleConfig{
		Endpoint:     cfg.Google.Endpoint,
		VoiceName:    cfg.Google.VoiceName,
		LanguageCode: cfg.Google.LanguageCode,
		HTTPClient:   httpClient,
	}, tokens, metrics, logger)
	return voiceSetup{
		synthesizer:      synth,
		voices:           synth,
		resolvedProvider: voice.ProviderGoogle,
		detail:           detail,
	}, nil
}
