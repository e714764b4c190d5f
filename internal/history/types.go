package history

import (
	"context"
	"time"
)

// Outcome is the final state of a voice-request as seen by the caller.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeTimeout Outcome = "timeout"
	OutcomeError   Outcome = "error"
)

// Record describes one voice-request. It never carries audio or the full text.
type Record struct {
	ID          string    `json:"id"`
	RequestID   string    `json:"request_id"`
	CacheKey    string    `json:"cache_key"`
	TextPreview string    `json:"text_preview"`
	SampleRate  int       `json:"sample_rate"`
	Bytes       int       `json:"bytes"`
	CacheHit    bool      `json:"cache_hit"`
	Outcome     Outcome   `json:"outcome"`
	DurationMS  int64     `json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists synthesis records. Recent returns newest first.
type Store interface {
	Save(ctx context.Context, record Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}
