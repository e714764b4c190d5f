package googleauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type countingSource struct {
	calls   atomic.Int32
	expires time.Duration
	clock   *fakeClock
	err     error
	delay   time.Duration
}

func (s *countingSource) Token() (*oauth2.Token, error) {
	n := s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	tok := &oauth2.Token{AccessToken: fmt.Sprintf("token-%d", n)}
	if s.expires > 0 {
		tok.Expiry = s.clock.Now().Add(s.expires)
	}
	return tok, nil
}

type refreshRecorder struct {
	ok, failed atomic.Int32
}

func (r *refreshRecorder) ObserveTokenRefresh(err error) {
	if err != nil {
		r.failed.Add(1)
		return
	}
	r.ok.Add(1)
}

func TestTokenReusedWithinLifetime(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	src := &countingSource{clock: clock}
	p := NewStaticProvider(src, Options{Lifetime: 3500 * time.Second, Now: clock.Now})

	first, err := p.AccessToken(context.Background())
	require.NoError(t, err)
	clock.Advance(3499 * time.Second)
	second, err := p.AccessToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, src.calls.Load())
}

func TestTokenRefreshedAfterLifetime(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	src := &countingSource{clock: clock}
	p := NewStaticProvider(src, Options{Lifetime: 3500 * time.Second, Now: clock.Now})

	first, err := p.AccessToken(context.Background())
	require.NoError(t, err)
	clock.Advance(3500 * time.Second)
	second, err := p.AccessToken(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestTokenExpiryHonoursProviderExpiryMinusMargin(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	src := &countingSource{clock: clock, expires: 10 * time.Minute}
	margin := time.Minute
	p := NewStaticProvider(src, Options{Lifetime: time.Hour, SafetyMargin: &margin, Now: clock.Now})

	tok, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(9*time.Minute), tok.ExpiresAt)

	clock.Advance(9 * time.Minute)
	_, err = p.Token(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestTokenZeroSafetyMarginUsesReportedExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	src := &countingSource{clock: clock, expires: 10 * time.Minute}
	var margin time.Duration
	p := NewStaticProvider(src, Options{Lifetime: time.Hour, SafetyMargin: &margin, Now: clock.Now})

	tok, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(10*time.Minute), tok.ExpiresAt)
}

func TestTokenDefaultSafetyMargin(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	src := &countingSource{clock: clock, expires: 10 * time.Minute}
	p := NewStaticProvider(src, Options{Lifetime: time.Hour, Now: clock.Now})

	tok, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(9*time.Minute), tok.ExpiresAt)
}

func TestConcurrentCallersShareOneRefresh(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	src := &countingSource{clock: clock, delay: 50 * time.Millisecond}
	p := NewStaticProvider(src, Options{Now: clock.Now})

	var wg sync.WaitGroup
	tokens := make([]string, 16)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := p.AccessToken(context.Background())
			assert.NoError(t, err)
			tokens[i] = tok
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, src.calls.Load())
	for _, tok := range tokens {
		assert.Equal(t, "token-1", tok)
	}
}

func TestRefreshFailureIsAuthErrorAndNotCached(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	rec := &refreshRecorder{}
	src := &countingSource{clock: clock, err: errors.New("invalid_grant")}
	p := NewStaticProvider(src, Options{Now: clock.Now, Observer: rec})

	_, err := p.AccessToken(context.Background())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, err.Error(), "invalid_grant")

	_, err = p.AccessToken(context.Background())
	require.Error(t, err)
	assert.EqualValues(t, 2, src.calls.Load())
	assert.EqualValues(t, 2, rec.failed.Load())
	assert.EqualValues(t, 0, rec.ok.Load())
}

func TestInvalidateForcesRefresh(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	src := &countingSource{clock: clock}
	p := NewStaticProvider(src, Options{Now: clock.Now})

	_, err := p.AccessToken(context.Background())
	require.NoError(t, err)
	p.Invalidate()
	tok, err := p.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-2", tok)
}

func TestRefreshTokenProviderAgainstTokenEndpoint(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "refresh-abc", r.PostForm.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"ya29.fresh","token_type":"Bearer","expires_in":3599}`))
	}))
	defer srv.Close()

	p, err := NewRefreshTokenProvider(Credentials{
		ClientID:     "client",
		ClientSecret: "secret",
		RefreshToken: "refresh-abc",
		TokenURL:     srv.URL,
	}, Options{HTTPClient: srv.Client()})
	require.NoError(t, err)

	tok, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ya29.fresh", tok.Value)
	// The 3500s lifetime is shorter than expires_in 3599 minus the 60s margin.
	assert.WithinDuration(t, time.Now().Add(3500*time.Second), tok.ExpiresAt, 5*time.Second)

	_, err = p.AccessToken(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, hits.Load())
}

func TestRefreshTokenProviderEndpointError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	p, err := NewRefreshTokenProvider(Credentials{
		ClientID:     "client",
		ClientSecret: "secret",
		RefreshToken: "revoked",
		TokenURL:     srv.URL,
	}, Options{HTTPClient: srv.Client()})
	require.NoError(t, err)

	_, err = p.AccessToken(context.Background())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
}

func TestNewRefreshTokenProviderRequiresCredentials(t *testing.T) {
	_, err := NewRefreshTokenProvider(Credentials{ClientID: "id", ClientSecret: "secret"}, Options{})
	require.Error(t, err)
	_, err = NewRefreshTokenProvider(Credentials{RefreshToken: "r"}, Options{})
	require.Error(t, err)
}

func TestCanceledCallerGetsAuthError(t *testing.T) {
	src := &countingSource{clock: &fakeClock{now: time.Now()}, delay: 200 * time.Millisecond}
	p := NewStaticProvider(src, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := p.AccessToken(ctx)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
