package voice

import (
	"errors"
	"fmt"
	"strconv"
)

// maxErrorBody bounds how much of an upstream error body is kept.
const maxErrorBody = 4096

// ErrEmptyAudio is wrapped by SynthesisError when the provider returned no audio.
var ErrEmptyAudio = errors.New("provider returned empty audio")

// SynthesisError describes a failed provider call. Status is 0 when no HTTP response arrived.
type SynthesisError struct {
	Status    int
	Body      string
	Retryable bool
	Err       error
}

func (e *SynthesisError) Error() string {
	switch {
	case e.Status != 0 && e.Body != "":
		return fmt.Sprintf("tts synthesis failed: status %d: %s", e.Status, e.Body)
	case e.Status != 0:
		return fmt.Sprintf("tts synthesis failed: status %d", e.Status)
	case e.Err != nil:
		return "tts synthesis failed: " + e.Err.Error()
	default:
		return "tts synthesis failed"
	}
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// Code is a short metric label: the HTTP status, or a class when there was no response.
func (e *SynthesisError) Code() string {
	switch {
	case e.Status != 0:
		return strconv.Itoa(e.Status)
	case errors.Is(e.Err, ErrEmptyAudio):
		return "empty_audio"
	case e.Retryable:
		return "network"
	default:
		return "invalid_response"
	}
}

// Summary is safe to return to clients: it never includes the upstream body.
func (e *SynthesisError) Summary() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream status %d", e.Status)
	}
	if errors.Is(e.Err, ErrEmptyAudio) {
		return ErrEmptyAudio.Error()
	}
	return "upstream request failed"
}

// IsRetryable reports whether err is a SynthesisError marked retryable.
func IsRetryable(err error) bool {
	var synthErr *SynthesisError
	return errors.As(err, &synthErr) && synthErr.Retryable
}

func truncateBody(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return string(b)
}
