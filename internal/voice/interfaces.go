package voice

import "context"

// TokenSource yields bearer tokens for the synthesis API.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// TokenInvalidator is implemented by token sources that can drop a token the API rejected.
type TokenInvalidator interface {
	Invalidate()
}

// Synthesizer turns normalized text into raw 16-bit little-endian mono PCM at sampleRate.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, sampleRate int) ([]byte, error)
}

// Result is the outcome of a pipeline synthesis.
type Result struct {
	Audio      []byte
	CacheHit   bool
	Key        string
	Normalized string
}
