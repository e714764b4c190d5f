package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/ent0n29/ttsproxy/internal/protocol"
)

// DefaultWarmupPhrases are the greetings the assistant opens most calls with.
var DefaultWarmupPhrases = []string{
	"สวัสดีค่ะ ดิฉันชื่อโซเฟีย มีอะไรให้ช่วยไหมคะ?",
	"สวัสดีค่ะ มีอะไรให้ช่วยไหมคะ?",
	"สวัสดีค่ะ",
}

// Config contains all runtime settings for the TTS proxy.
type Config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	BindAddr        string        `env:"APP_BIND_ADDR"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"60s"`

	// VapiSecret is compared against the x-vapi-secret header. Empty disables the check.
	VapiSecret    string `env:"VAPI_SECRET"`
	DebugRequests bool   `env:"DEBUG_REQUESTS"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	MetricsNamespace string `env:"APP_METRICS_NAMESPACE" envDefault:"ttsproxy"`

	// TTSProvider selects the synthesis backend: google, mock, or auto (google when credentials
	// resolve, otherwise mock).
	TTSProvider string `env:"TTS_PROVIDER" envDefault:"google"`
	Google      GoogleConfig

	DatabaseURL string `env:"DATABASE_URL"`
	HistoryMax  int    `env:"HISTORY_MAX" envDefault:"500"`

	WarmupEnabled bool     `env:"WARMUP_ENABLED" envDefault:"true"`
	WarmupPhrases []string `env:"WARMUP_PHRASES" envSeparator:";"`
	WarmupRates   []int    `env:"WARMUP_RATES" envSeparator:"," envDefault:"24000,16000,8000"`
}

// GoogleConfig holds OAuth credentials and Cloud Text-to-Speech voice settings.
type GoogleConfig struct {
	ClientID     string `env:"GOOGLE_CLIENT_ID"`
	ClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	RefreshToken string `env:"GOOGLE_REFRESH_TOKEN"`
	TokenURL     string `env:"GOOGLE_TOKEN_URL"`

	VoiceName    string `env:"GOOGLE_VOICE_NAME" envDefault:"th-TH-Neural2-C"`
	LanguageCode string `env:"GOOGLE_LANGUAGE_CODE" envDefault:"th-TH"`
	Endpoint     string `env:"GOOGLE_TTS_ENDPOINT" envDefault:"https://texttospeech.googleapis.com/v1/text:synthesize"`

	TokenLifetime     time.Duration `env:"TOKEN_LIFETIME" envDefault:"3500s"`
	TokenSafetyMargin time.Duration `env:"TOKEN_SAFETY_MARGIN" envDefault:"60s"`
}

// Load reads .env (if present) and the environment, then validates.
func Load() (Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse reads only the process environment.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.VapiSecret = strings.TrimSpace(cfg.VapiSecret)
	cfg.WarmupPhrases = cleanList(cfg.WarmupPhrases)
	if len(cfg.WarmupPhrases) == 0 {
		cfg.WarmupPhrases = append([]string(nil), DefaultWarmupPhrases...)
	}
	cfg.TTSProvider = strings.ToLower(strings.TrimSpace(cfg.TTSProvider))
	if strings.TrimSpace(cfg.BindAddr) == "" {
		cfg.BindAddr = net.JoinHostPort("", strings.TrimSpace(cfg.Port))
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// HasRefreshCredentials reports whether an explicit OAuth client + refresh token is configured.
func (c Config) HasRefreshCredentials() bool {
	return c.Google.ClientID != "" && c.Google.ClientSecret != "" && c.Google.RefreshToken != ""
}

func (c Config) validate() error {
	switch c.TTSProvider {
	case "auto", "google", "mock":
	default:
		return fmt.Errorf("invalid TTS_PROVIDER: %q (expected auto|google|mock)", c.TTSProvider)
	}
	if c.RequestTimeout < time.Second {
		return errors.New("REQUEST_TIMEOUT must be at least 1s")
	}
	if c.UpstreamTimeout < c.RequestTimeout {
		return errors.New("UPSTREAM_TIMEOUT must not be shorter than REQUEST_TIMEOUT")
	}
	if c.Google.TokenLifetime <= c.Google.TokenSafetyMargin {
		return errors.New("TOKEN_LIFETIME must exceed TOKEN_SAFETY_MARGIN")
	}
	if c.Google.TokenSafetyMargin < 0 {
		return errors.New("TOKEN_SAFETY_MARGIN must be >= 0")
	}
	if strings.TrimSpace(c.Google.VoiceName) == "" || strings.TrimSpace(c.Google.LanguageCode) == "" {
		return errors.New("GOOGLE_VOICE_NAME and GOOGLE_LANGUAGE_CODE are required")
	}
	if c.HistoryMax <= 0 {
		return errors.New("HISTORY_MAX must be positive")
	}
	for _, r := range c.WarmupRates {
		if !protocol.IsSupportedSampleRate(r) {
			return fmt.Errorf("WARMUP_RATES contains unsupported rate %d (supported: %v)", r, protocol.SupportedSampleRates)
		}
	}
	return nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
