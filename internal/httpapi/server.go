package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/ttsproxy/internal/config"
	"github.com/ent0n29/ttsproxy/internal/history"
	"github.com/ent0n29/ttsproxy/internal/observability"
	"github.com/ent0n29/ttsproxy/internal/voice"
)

// Version is reported by GET /. Overridden at link time.
var Version = "1.0.0"

const serviceName = "ttsproxy"

// Pipeline synthesizes normalized, cached PCM.
type Pipeline interface {
	Synthesize(ctx context.Context, requestID, text string, sampleRate int) (voice.Result, error)
	CacheLen() int
}

// VoiceLister lists provider voices for a language.
type VoiceLister interface {
	ListVoices(ctx context.Context, languageCode string) ([]voice.VoiceInfo, error)
}

type Server struct {
	cfg      config.Config
	pipeline Pipeline
	voices   VoiceLister
	provider string
	history  history.Store
	metrics  *observability.Metrics
	logger   *zap.SugaredLogger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, pipeline Pipeline, store history.Store, metrics *observability.Metrics, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Server{
		cfg:      cfg,
		pipeline: pipeline,
		provider: voice.ProviderGoogle,
		history:  store,
		metrics:  metrics,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 64 << 10,
			// Callers are telephony backends, not browsers; the shared secret is the gate.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// WithProvider sets the provider name reported by GET / and GET /health.
func (s *Server) WithProvider(name string) *Server {
	if name != "" {
		s.provider = name
	}
	return s
}

// WithVoiceLister enables GET /v1/voices.
func (s *Server) WithVoiceLister(v VoiceLister) *Server {
	s.voices = v
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recoverer)
	if s.cfg.DebugRequests {
		r.Use(s.debugRequests)
	}

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Get("/v1/synthesis/recent", s.handleRecent)
	r.Get("/v1/voices", s.handleListVoices)
	r.Post("/v1/tts/preview", s.handlePreviewTTS)

	r.Post("/api/synthesize", s.handleSynthesize)
	r.Get("/api/synthesize/ws", s.handleSynthesizeWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"provider": s.provider,
		"voice":    s.cfg.Google.VoiceName,
		"language": s.cfg.Google.LanguageCode,
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	cached := 0
	if s.pipeline != nil {
		cached = s.pipeline.CacheLen()
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"name":           serviceName,
		"version":        Version,
		"provider":       s.provider,
		"voice":          s.cfg.Google.VoiceName,
		"language":       s.cfg.Google.LanguageCode,
		"cached_phrases": cached,
		"endpoints": map[string]string{
			"health":     "GET /health",
			"synthesize": "POST /api/synthesize",
			"websocket":  "GET /api/synthesize/ws",
			"metrics":    "GET /metrics",
			"latency":    "GET /v1/perf/latency",
			"recent":     "GET /v1/synthesis/recent",
			"voices":     "GET /v1/voices",
			"preview":    "POST /v1/tts/preview",
		},
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
