package voice

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/ttsproxy/internal/cache"
	"github.com/ent0n29/ttsproxy/internal/googleauth"
	"github.com/ent0n29/ttsproxy/internal/observability"
	"github.com/ent0n29/ttsproxy/internal/policy"
	"github.com/ent0n29/ttsproxy/internal/reliability"
)

// ErrNothingToSay is returned when text is non-blank but normalizes to nothing, e.g. "<speak></speak>".
var ErrNothingToSay = errors.New("text is empty after normalization")

const (
	defaultWarmupConcurrency = 4
	defaultWarmupBackoff     = 500 * time.Millisecond
	maxWarmupBackoff         = 4 * time.Second
	warmupRetries            = 2
	logPreviewRunes          = 30
)

type PipelineConfig struct {
	Cache       *cache.AudioCache
	Synthesizer Synthesizer
	Metrics     *observability.Metrics
	Logger      *zap.SugaredLogger
	// Provider labels provider error metrics. Defaults to ProviderGoogle.
	Provider string

	// WarmupConcurrency bounds parallel provider calls during Warmup.
	WarmupConcurrency int
	// WarmupBackoff is the base delay between warmup retries.
	WarmupBackoff time.Duration
}

// Pipeline runs normalize -> cache lookup -> synthesize -> cache store.
type Pipeline struct {
	cache    *cache.AudioCache
	synth    Synthesizer
	metrics  *observability.Metrics
	logger   *zap.SugaredLogger
	provider string

	warmupConcurrency int
	warmupBackoff     time.Duration
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Cache == nil {
		cfg.Cache = cache.NewAudioCache()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Provider == "" {
		cfg.Provider = ProviderGoogle
	}
	if cfg.WarmupConcurrency <= 0 {
		cfg.WarmupConcurrency = defaultWarmupConcurrency
	}
	if cfg.WarmupBackoff <= 0 {
		cfg.WarmupBackoff = defaultWarmupBackoff
	}
	return &Pipeline{
		cache:             cfg.Cache,
		synth:             cfg.Synthesizer,
		metrics:           cfg.Metrics,
		logger:            cfg.Logger,
		provider:          cfg.Provider,
		warmupConcurrency: cfg.WarmupConcurrency,
		warmupBackoff:     cfg.WarmupBackoff,
	}
}

// Synthesize returns PCM for text at sampleRate, from cache when possible.
// Successful provider results are cached even if the caller has stopped waiting.
func (p *Pipeline) Synthesize(ctx context.Context, requestID, text string, sampleRate int) (Result, error) {
	started := time.Now()
	normalized := NormalizeText(text)
	p.observeStage(observability.StageNormalize, time.Since(started))
	if normalized == "" {
		return Result{}, ErrNothingToSay
	}

	lookupStarted := time.Now()
	key := cache.Key(normalized, sampleRate)
	pcm, hit := p.cache.Get(key)
	p.observeStage(observability.StageCacheLookup, time.Since(lookupStarted))
	if p.metrics != nil {
		p.metrics.ObserveCache(hit)
	}
	res := Result{Key: key, Normalized: normalized, CacheHit: hit, Audio: pcm}
	if hit {
		p.logger.Infow("cache hit",
			"request_id", requestID,
			"text", policy.Preview(normalized, logPreviewRunes),
			"rate", sampleRate,
		)
		return res, nil
	}

	p.logger.Infow("cache miss",
		"request_id", requestID,
		"text", policy.Preview(normalized, logPreviewRunes),
		"rate", sampleRate,
	)
	pcm, err := p.synth.Synthesize(ctx, normalized, sampleRate)
	if err == nil && len(pcm) == 0 {
		err = &SynthesisError{Err: ErrEmptyAudio}
	}
	if err != nil {
		p.observeProviderError(err)
		return res, err
	}

	p.cache.Put(key, pcm)
	if p.metrics != nil {
		p.metrics.SetCacheSize(p.cache.Len(), p.cache.Bytes())
	}
	p.logger.Infow("synthesized",
		"request_id", requestID,
		"rate", sampleRate,
		"bytes", len(pcm),
		"took", time.Since(started).String(),
	)
	res.Audio = pcm
	return res, nil
}

// CacheLen is the number of cached phrases.
func (p *Pipeline) CacheLen() int { return p.cache.Len() }

// WarmupReport counts Warmup outcomes per (phrase, rate) pair.
type WarmupReport struct {
	Cached  int
	Skipped int
	Failed  int
}

// Warmup pre-caches every phrase at every rate. Already cached pairs are skipped and failures
// are logged, never returned; retryable failures get up to two more attempts.
func (p *Pipeline) Warmup(ctx context.Context, phrases []string, rates []int) WarmupReport {
	var cached, skipped, failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.warmupConcurrency)

	for _, phrase := range phrases {
		for _, rate := range rates {
			g.Go(func() error {
				switch p.warmOne(gctx, phrase, rate) {
				case warmCached:
					cached.Add(1)
				case warmSkipped:
					skipped.Add(1)
				default:
					failed.Add(1)
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	report := WarmupReport{Cached: int(cached.Load()), Skipped: int(skipped.Load()), Failed: int(failed.Load())}
	p.logger.Infow("warmup finished",
		"cached", report.Cached,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"entries", p.cache.Len(),
	)
	return report
}

type warmOutcome string

const (
	warmCached  warmOutcome = "cached"
	warmSkipped warmOutcome = "skipped"
	warmFailed  warmOutcome = "failed"
)

func (p *Pipeline) warmOne(ctx context.Context, phrase string, rate int) (outcome warmOutcome) {
	defer func() {
		if p.metrics != nil {
			p.metrics.ObserveWarmup(string(outcome))
		}
	}()

	normalized := NormalizeText(phrase)
	if normalized == "" {
		return warmSkipped
	}
	if _, ok := p.cache.Get(cache.Key(normalized, rate)); ok {
		return warmSkipped
	}

	requestID := "warmup-" + strconv.Itoa(rate)
	for attempt := 0; ; attempt++ {
		res, err := p.Synthesize(ctx, requestID, normalized, rate)
		if err == nil {
			if res.CacheHit {
				return warmSkipped
			}
			return warmCached
		}
		if attempt >= warmupRetries || !IsRetryable(err) {
			p.logger.Warnw("failed to pre-cache phrase",
				"text", policy.Preview(normalized, logPreviewRunes),
				"rate", rate,
				"attempts", attempt+1,
				"error", err,
			)
			return warmFailed
		}
		select {
		case <-ctx.Done():
			return warmFailed
		case <-time.After(reliability.ExponentialBackoff(attempt, p.warmupBackoff, maxWarmupBackoff)):
		}
	}
}

func (p *Pipeline) observeStage(stage string, d time.Duration) {
	if p.metrics != nil {
		p.metrics.ObserveStage(stage, d)
	}
}

func (p *Pipeline) observeProviderError(err error) {
	if p.metrics == nil {
		return
	}
	p.metrics.ObserveProviderError(p.provider, ErrorCode(err))
}

// ErrorCode maps a synthesis failure to a short label for metrics and client summaries.
func ErrorCode(err error) string {
	var authErr *googleauth.AuthError
	var synthErr *SynthesisError
	switch {
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &synthErr):
		return synthErr.Code()
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "unknown"
	}
}
