// Package googleauth issues and caches OAuth access tokens for Google Cloud APIs.
package googleauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"
)

// CloudPlatformScope is requested when falling back to Application Default Credentials.
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

const (
	defaultLifetime      = 3500 * time.Second
	defaultSafetyMargin  = 60 * time.Second
	defaultRefreshTimout = 15 * time.Second
)

// Credentials identify an installed-app OAuth client and its offline refresh token.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	// TokenURL overrides Google's token endpoint.
	TokenURL string
}

// Token is a bearer credential with the instant after which it must not be used.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// AuthError is returned when an access token could not be obtained.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return "google auth: refresh access token: " + e.Err.Error()
}

func (e *AuthError) Unwrap() error { return e.Err }

// RefreshObserver is notified after every refresh attempt.
type RefreshObserver interface {
	ObserveTokenRefresh(err error)
}

type Options struct {
	// Lifetime caps how long a refreshed token is reused.
	Lifetime time.Duration
	// SafetyMargin is subtracted from the provider-reported expiry. Nil means 60s; an explicit
	// zero trusts the reported expiry as is.
	SafetyMargin *time.Duration
	// HTTPClient is used for token requests. Defaults to http.DefaultClient.
	HTTPClient *http.Client
	Logger     *zap.SugaredLogger
	Observer   RefreshObserver
	Now        func() time.Time
}

// TokenProvider caches one access token and refreshes it shortly before it expires.
// Concurrent callers that find the token stale share a single refresh; the cached value is
// guarded only while it is read or replaced, never across the network call.
type TokenProvider struct {
	source func(ctx context.Context) oauth2.TokenSource
	opts   Options
	margin time.Duration

	mu     sync.RWMutex
	cached Token

	group singleflight.Group
}

// NewRefreshTokenProvider exchanges creds.RefreshToken for access tokens.
func NewRefreshTokenProvider(creds Credentials, opts Options) (*TokenProvider, error) {
	if strings.TrimSpace(creds.ClientID) == "" || strings.TrimSpace(creds.ClientSecret) == "" {
		return nil, errors.New("google auth: client id and secret are required")
	}
	if strings.TrimSpace(creds.RefreshToken) == "" {
		return nil, errors.New("google auth: refresh token is required")
	}
	endpoint := google.Endpoint
	if u := strings.TrimSpace(creds.TokenURL); u != "" {
		endpoint.TokenURL = u
	}
	conf := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     endpoint,
		Scopes:       []string{CloudPlatformScope},
	}
	refresh := &oauth2.Token{RefreshToken: creds.RefreshToken}
	return newTokenProvider(func(ctx context.Context) oauth2.TokenSource {
		// A token carrying only a refresh token forces a refresh on every Token() call.
		return conf.TokenSource(ctx, refresh)
	}, opts), nil
}

// NewDefaultCredentialsProvider uses Application Default Credentials
// (GOOGLE_APPLICATION_CREDENTIALS, gcloud user credentials or the metadata server).
func NewDefaultCredentialsProvider(ctx context.Context, opts Options) (*TokenProvider, error) {
	creds, err := google.FindDefaultCredentials(ctx, CloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("google auth: find default credentials: %w", err)
	}
	return newTokenProvider(func(context.Context) oauth2.TokenSource {
		return creds.TokenSource
	}, opts), nil
}

// NewStaticProvider wraps an arbitrary token source, mostly for tests and tooling.
func NewStaticProvider(src oauth2.TokenSource, opts Options) *TokenProvider {
	return newTokenProvider(func(context.Context) oauth2.TokenSource { return src }, opts)
}

func newTokenProvider(source func(ctx context.Context) oauth2.TokenSource, opts Options) *TokenProvider {
	if opts.Lifetime <= 0 {
		opts.Lifetime = defaultLifetime
	}
	margin := defaultSafetyMargin
	if opts.SafetyMargin != nil {
		margin = max(*opts.SafetyMargin, 0)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &TokenProvider{source: source, opts: opts, margin: margin}
}

// AccessToken returns a bearer token valid for at least the safety margin.
func (p *TokenProvider) AccessToken(ctx context.Context) (string, error) {
	tok, err := p.Token(ctx)
	if err != nil {
		return "", err
	}
	return tok.Value, nil
}

// Token returns the cached token, refreshing it when absent or expired.
// Refresh failures are returned as *AuthError; a stale token is never handed out.
func (p *TokenProvider) Token(ctx context.Context) (Token, error) {
	if tok, ok := p.current(); ok {
		return tok, nil
	}

	ch := p.group.DoChan("refresh", func() (any, error) {
		// Another caller may have refreshed while we were queued.
		if tok, ok := p.current(); ok {
			return tok, nil
		}
		return p.refresh(ctx)
	})
	select {
	case <-ctx.Done():
		return Token{}, &AuthError{Err: context.Cause(ctx)}
	case res := <-ch:
		if res.Err != nil {
			return Token{}, res.Err
		}
		return res.Val.(Token), nil
	}
}

// Invalidate drops the cached token so the next call refreshes.
func (p *TokenProvider) Invalidate() {
	p.mu.Lock()
	p.cached = Token{}
	p.mu.Unlock()
}

func (p *TokenProvider) current() (Token, bool) {
	p.mu.RLock()
	tok := p.cached
	p.mu.RUnlock()
	if tok.Value == "" || !p.opts.Now().Before(tok.ExpiresAt) {
		return Token{}, false
	}
	return tok, true
}

func (p *TokenProvider) refresh(ctx context.Context) (Token, error) {
	// The refresh is shared by every waiting caller, so it must outlive the one that started it.
	refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultRefreshTimout)
	defer cancel()
	if p.opts.HTTPClient != nil {
		refreshCtx = context.WithValue(refreshCtx, oauth2.HTTPClient, p.opts.HTTPClient)
	}

	started := p.opts.Now()
	p.opts.Logger.Infow("refreshing OAuth access token")
	raw, err := p.source(refreshCtx).Token()
	if err == nil && (raw == nil || raw.AccessToken == "") {
		err = errors.New("token endpoint returned no access token")
	}
	if p.opts.Observer != nil {
		p.opts.Observer.ObserveTokenRefresh(err)
	}
	if err != nil {
		p.opts.Logger.Errorw("OAuth access token refresh failed", "error", err)
		return Token{}, &AuthError{Err: err}
	}

	tok := Token{Value: raw.AccessToken, ExpiresAt: p.expiry(started, raw.Expiry)}
	p.mu.Lock()
	p.cached = tok
	p.mu.Unlock()

	p.opts.Logger.Infow("OAuth access token refreshed",
		"valid_for", tok.ExpiresAt.Sub(started).Round(time.Second).String(),
		"took", p.opts.Now().Sub(started).String(),
	)
	return tok, nil
}

// expiry is the earlier of refreshedAt+Lifetime and the reported expiry minus SafetyMargin.
func (p *TokenProvider) expiry(refreshedAt, reported time.Time) time.Time {
	exp := refreshedAt.Add(p.opts.Lifetime)
	if !reported.IsZero() {
		if early := reported.Add(-p.margin); early.Before(exp) {
			exp = early
		}
	}
	return exp
}
