package protocol

import (
	"errors"
	"testing"
)

func TestParseWebhookVoiceRequest(t *testing.T) {
	raw := []byte(`{"message":{"type":"voice-request","text":"hello","sampleRate":24000}}`)
	msg, err := ParseWebhook(raw)
	if err != nil {
		t.Fatalf("ParseWebhook() error = %v", err)
	}
	if !msg.IsVoiceRequest() {
		t.Fatalf("IsVoiceRequest() = false, want true")
	}
	req, err := msg.VoiceRequest()
	if err != nil {
		t.Fatalf("VoiceRequest() error = %v", err)
	}
	if req.Text != "hello" || req.SampleRate != 24000 {
		t.Fatalf("unexpected voice request: %+v", req)
	}
}

func TestParseWebhookMissingMessage(t *testing.T) {
	for _, raw := range []string{``, `{}`, `{"message":null}`} {
		_, err := ParseWebhook([]byte(raw))
		if !errors.Is(err, ErrMissingMessage) {
			t.Fatalf("ParseWebhook(%q) error = %v, want ErrMissingMessage", raw, err)
		}
	}
}

func TestParseWebhookInvalidJSON(t *testing.T) {
	_, err := ParseWebhook([]byte(`{"message":`))
	if !errors.Is(err, ErrInvalidBody) {
		t.Fatalf("error = %v, want ErrInvalidBody", err)
	}
}

func TestParseWebhookNonStringTypeIsNotVoiceRequest(t *testing.T) {
	msg, err := ParseWebhook([]byte(`{"message":{"type":42}}`))
	if err != nil {
		t.Fatalf("ParseWebhook() error = %v", err)
	}
	if msg.IsVoiceRequest() {
		t.Fatalf("IsVoiceRequest() = true for numeric type")
	}
}

func TestVoiceRequestEmptyText(t *testing.T) {
	cases := []string{
		`{"message":{"type":"voice-request","sampleRate":24000}}`,
		`{"message":{"type":"voice-request","text":"   \n\t","sampleRate":24000}}`,
		`{"message":{"type":"voice-request","text":123,"sampleRate":24000}}`,
		`{"message":{"type":"voice-request","text":null,"sampleRate":1}}`,
	}
	for _, raw := range cases {
		msg, err := ParseWebhook([]byte(raw))
		if err != nil {
			t.Fatalf("ParseWebhook(%s) error = %v", raw, err)
		}
		if _, err := msg.VoiceRequest(); !errors.Is(err, ErrEmptyText) {
			t.Fatalf("VoiceRequest(%s) error = %v, want ErrEmptyText", raw, err)
		}
	}
}

func TestVoiceRequestSampleRates(t *testing.T) {
	cases := []struct {
		rate string
		ok   bool
	}{
		{`8000`, true},
		{`16000`, true},
		{`22050`, true},
		{`24000`, true},
		{`44100`, true},
		{`24000.0`, true},
		{`48000`, false},
		{`0`, false},
		{`16000.5`, false},
		{`"16000"`, false},
		{`null`, false},
	}
	for _, tc := range cases {
		msg, err := ParseWebhook([]byte(`{"message":{"type":"voice-request","text":"hi","sampleRate":` + tc.rate + `}}`))
		if err != nil {
			t.Fatalf("ParseWebhook(rate=%s) error = %v", tc.rate, err)
		}
		_, err = msg.VoiceRequest()
		if tc.ok && err != nil {
			t.Fatalf("VoiceRequest(rate=%s) error = %v, want nil", tc.rate, err)
		}
		if !tc.ok && !errors.Is(err, ErrUnsupportedSampleRate) {
			t.Fatalf("VoiceRequest(rate=%s) error = %v, want ErrUnsupportedSampleRate", tc.rate, err)
		}
	}
}

func TestVoiceRequestMissingSampleRate(t *testing.T) {
	msg, err := ParseWebhook([]byte(`{"message":{"type":"voice-request","text":"hi"}}`))
	if err != nil {
		t.Fatalf("ParseWebhook() error = %v", err)
	}
	if _, err := msg.VoiceRequest(); !errors.Is(err, ErrUnsupportedSampleRate) {
		t.Fatalf("error = %v, want ErrUnsupportedSampleRate", err)
	}
}
