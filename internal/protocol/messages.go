package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
)

// MessageType identifies webhook payload variants sent by the assistant platform.
type MessageType string

// TypeVoiceRequest is the only message type that asks for audio.
const TypeVoiceRequest MessageType = "voice-request"

// SupportedSampleRates is the fixed allow-list of PCM output rates.
var SupportedSampleRates = []int{8000, 16000, 22050, 24000, 44100}

var (
	ErrInvalidBody           = errors.New("invalid request body")
	ErrMissingMessage        = errors.New("missing message object")
	ErrEmptyText             = errors.New("empty text")
	ErrUnsupportedSampleRate = errors.New("unsupported sample rate")
)

// Webhook is the body of POST /api/synthesize.
type Webhook struct {
	Message *Message `json:"message"`
}

// Message is the platform message. Text and SampleRate are kept raw so that a wrongly typed
// field can be classified (empty text vs bad rate) instead of failing the whole decode.
type Message struct {
	Type       MessageType     `json:"-"`
	Text       json.RawMessage `json:"text,omitempty"`
	SampleRate json.RawMessage `json:"sampleRate,omitempty"`
}

// UnmarshalJSON accepts any JSON type for "type"; non-strings are treated as unknown types.
func (m *Message) UnmarshalJSON(raw []byte) error {
	var aux struct {
		Type       json.RawMessage `json:"type"`
		Text       json.RawMessage `json:"text"`
		SampleRate json.RawMessage `json:"sampleRate"`
	}
	if err := json.Unmarshal(raw, &aux); err != nil {
		return err
	}
	var typ string
	if len(aux.Type) > 0 && json.Unmarshal(aux.Type, &typ) == nil {
		m.Type = MessageType(typ)
	}
	m.Text = aux.Text
	m.SampleRate = aux.SampleRate
	return nil
}

// VoiceRequest is a validated synthesis request. Text is as received, not yet normalized.
type VoiceRequest struct {
	Text       string
	SampleRate int
}

// ParseWebhook decodes a webhook body and ensures a message object is present.
func ParseWebhook(raw []byte) (*Message, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrMissingMessage
	}
	var wh Webhook
	if err := json.Unmarshal(raw, &wh); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	if wh.Message == nil {
		return nil, ErrMissingMessage
	}
	return wh.Message, nil
}

func (m *Message) IsVoiceRequest() bool {
	return m != nil && m.Type == TypeVoiceRequest
}

// VoiceRequest validates text first, then the sample rate.
func (m *Message) VoiceRequest() (VoiceRequest, error) {
	var text string
	if len(m.Text) == 0 || json.Unmarshal(m.Text, &text) != nil || strings.TrimSpace(text) == "" {
		return VoiceRequest{}, ErrEmptyText
	}
	rate, ok := parseSampleRate(m.SampleRate)
	if !ok {
		return VoiceRequest{}, ErrUnsupportedSampleRate
	}
	return VoiceRequest{Text: text, SampleRate: rate}, nil
}

// IsSupportedSampleRate reports whether rate is in SupportedSampleRates.
func IsSupportedSampleRate(rate int) bool {
	return slices.Contains(SupportedSampleRates, rate)
}

func parseSampleRate(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	if f != math.Trunc(f) {
		return 0, false
	}
	rate := int(f)
	return rate, IsSupportedSampleRate(rate)
}
