package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ent0n29/ttsproxy/internal/cache"
	"github.com/ent0n29/ttsproxy/internal/config"
	"github.com/ent0n29/ttsproxy/internal/history"
	"github.com/ent0n29/ttsproxy/internal/httpapi"
	"github.com/ent0n29/ttsproxy/internal/observability"
	"github.com/ent0n29/ttsproxy/internal/voice"
)

type VoiceInfo struct {
	Provider string
	Detail   string
	Voice    string
	Language string
}

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Pipeline *voice.Pipeline
	Metrics  *observability.Metrics
	History  history.Store
	Voice    VoiceInfo

	// Cleanup should be called on shutdown to release external resources (DB pool).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger) (*BuildResult, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := history.NewStore(ctx, cfg.DatabaseURL, cfg.HistoryMax)
	if err != nil {
		return nil, fmt.Errorf("history store init failed: %w", err)
	}

	setup, err := resolveSynthesizer(ctx, cfg, metrics, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	pipeline := voice.NewPipeline(voice.PipelineConfig{
		Cache:       cache.NewAudioCache(),
		Synthesizer: setup.synthesizer,
		Metrics:     metrics,
		Logger:      logger,
		Provider:    setup.resolvedProvider,
	})

	api := httpapi.New(cfg, pipeline, store, metrics, logger).WithProvider(setup.resolvedProvider)
	if setup.voices != nil {
		api.WithVoiceLister(setup.voices)
	}

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Pipeline: pipeline,
		Metrics:  metrics,
		History:  store,
		Voice: VoiceInfo{
			Provider: setup.resolvedProvider,
			Detail:   setup.detail,
			Voice:    cfg.Google.VoiceName,
			Language: cfg.Google.LanguageCode,
		},
		Cleanup: store.Close,
	}, nil
}
