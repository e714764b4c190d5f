package voice

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

// ProviderMock labels the tone generator in metrics and status endpoints.
const ProviderMock = "mock"

const (
	mockToneHz       = 440.0
	mockRuneDuration = 60 * time.Millisecond
	mockMaxDuration  = 10 * time.Second
)

// MockSynthesizer is a local provider selected with TTS_PROVIDER=mock (or auto without credentials).
// It renders a quiet sine tone whose length follows the text length.
type MockSynthesizer struct {
	// Delay is waited before answering; the call still honours ctx.
	Delay time.Duration
	// Err, when set, is returned instead of audio.
	Err error

	calls atomic.Int32
	mu    sync.Mutex
	texts []string
}

func NewMockSynthesizer() *MockSynthesizer { return &MockSynthesizer{} }

func (m *MockSynthesizer) Synthesize(ctx context.Context, text string, sampleRate int) ([]byte, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.texts = append(m.texts, text)
	m.mu.Unlock()

	if m.Delay > 0 {
		timer := time.NewTimer(m.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return mockTone(utf8.RuneCountInString(text), sampleRate), nil
}

// Calls is the number of Synthesize invocations.
func (m *MockSynthesizer) Calls() int { return int(m.calls.Load()) }

// Texts returns the texts passed to Synthesize, in call order.
func (m *MockSynthesizer) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

func mockTone(runes, sampleRate int) []byte {
	d := time.Duration(runes) * mockRuneDuration
	if d > mockMaxDuration {
		d = mockMaxDuration
	}
	samples := int(d.Seconds() * float64(sampleRate))
	if samples == 0 {
		samples = 1
	}
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := 0.2 * math.Sin(2*math.Pi*mockToneHz*float64(i)/float64(sampleRate))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v*math.MaxInt16)))
	}
	return pcm
}
