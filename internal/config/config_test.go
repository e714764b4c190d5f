package config

import (
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.BindAddr != ":3000" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":3000")
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Fatalf("RequestTimeout = %v, want 30s", cfg.RequestTimeout)
	}
	if cfg.Google.VoiceName != "th-TH-Neural2-C" || cfg.Google.LanguageCode != "th-TH" {
		t.Fatalf("unexpected voice defaults: %+v", cfg.Google)
	}
	if cfg.Google.TokenLifetime != 3500*time.Second {
		t.Fatalf("TokenLifetime = %v, want 3500s", cfg.Google.TokenLifetime)
	}
	if cfg.VapiSecret != "" {
		t.Fatalf("VapiSecret = %q, want empty", cfg.VapiSecret)
	}
	if len(cfg.WarmupPhrases) != len(DefaultWarmupPhrases) {
		t.Fatalf("len(WarmupPhrases) = %d, want %d", len(cfg.WarmupPhrases), len(DefaultWarmupPhrases))
	}
	if len(cfg.WarmupRates) != 3 || cfg.WarmupRates[0] != 24000 {
		t.Fatalf("WarmupRates = %v, want [24000 16000 8000]", cfg.WarmupRates)
	}
	if cfg.HasRefreshCredentials() {
		t.Fatalf("HasRefreshCredentials() = true with no credentials")
	}
	if cfg.TTSProvider != "google" {
		t.Fatalf("TTSProvider = %q, want google", cfg.TTSProvider)
	}
}

func TestParseRejectsUnknownProvider(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("TTS_PROVIDER", "polly")

	if _, err := Parse(); err == nil {
		t.Fatalf("Parse() error = nil, want validation error")
	}
}

func TestParseExplicitValues(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("PORT", "8081")
	t.Setenv("VAPI_SECRET", "  s3cret ")
	t.Setenv("GOOGLE_CLIENT_ID", "id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "secret")
	t.Setenv("GOOGLE_REFRESH_TOKEN", "refresh")
	t.Setenv("WARMUP_PHRASES", "hello; ;goodbye")
	t.Setenv("WARMUP_RATES", "16000")
	t.Setenv("DEBUG_REQUESTS", "true")
	t.Setenv("TTS_PROVIDER", " Mock ")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.BindAddr != ":8081" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8081")
	}
	if cfg.VapiSecret != "s3cret" {
		t.Fatalf("VapiSecret = %q, want trimmed value", cfg.VapiSecret)
	}
	if !cfg.HasRefreshCredentials() {
		t.Fatalf("HasRefreshCredentials() = false, want true")
	}
	if len(cfg.WarmupPhrases) != 2 || cfg.WarmupPhrases[1] != "goodbye" {
		t.Fatalf("WarmupPhrases = %q, want [hello goodbye]", cfg.WarmupPhrases)
	}
	if !cfg.DebugRequests {
		t.Fatalf("DebugRequests = false, want true")
	}
	if cfg.TTSProvider != "mock" {
		t.Fatalf("TTSProvider = %q, want mock", cfg.TTSProvider)
	}
}

func TestParseBindAddrOverridesPort(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("PORT", "8081")
	t.Setenv("APP_BIND_ADDR", "127.0.0.1:9000")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.BindAddr != "127.0.0.1:9000" {
		t.Fatalf("BindAddr = %q, want explicit value", cfg.BindAddr)
	}
}

func TestParseRejectsShortRequestTimeout(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("REQUEST_TIMEOUT", "200ms")

	if _, err := Parse(); err == nil {
		t.Fatalf("Parse() error = nil, want validation error")
	}
}

func TestParseRejectsMarginAboveLifetime(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("TOKEN_LIFETIME", "30s")
	t.Setenv("TOKEN_SAFETY_MARGIN", "60s")

	if _, err := Parse(); err == nil {
		t.Fatalf("Parse() error = nil, want validation error")
	}
}

func TestParseRejectsUnsupportedWarmupRate(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("WARMUP_RATES", "24000,48000")

	if _, err := Parse(); err == nil {
		t.Fatalf("Parse() error = nil, want validation error for 48000")
	}
}

func TestParseRejectsBadDuration(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("SHUTDOWN_TIMEOUT", "soon")

	if _, err := Parse(); err == nil {
		t.Fatalf("Parse() error = nil, want parse error")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"PORT",
		"APP_BIND_ADDR",
		"SHUTDOWN_TIMEOUT",
		"REQUEST_TIMEOUT",
		"UPSTREAM_TIMEOUT",
		"VAPI_SECRET",
		"DEBUG_REQUESTS",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"APP_METRICS_NAMESPACE",
		"TTS_PROVIDER",
		"GOOGLE_CLIENT_ID",
		"GOOGLE_CLIENT_SECRET",
		"GOOGLE_REFRESH_TOKEN",
		"GOOGLE_TOKEN_URL",
		"GOOGLE_VOICE_NAME",
		"GOOGLE_LANGUAGE_CODE",
		"GOOGLE_TTS_ENDPOINT",
		"TOKEN_LIFETIME",
		"TOKEN_SAFETY_MARGIN",
		"DATABASE_URL",
		"HISTORY_MAX",
		"WARMUP_ENABLED",
		"WARMUP_PHRASES",
		"WARMUP_RATES",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
