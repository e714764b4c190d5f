package audio

import "bytes"

// CanonicalHeaderSize is the length of a minimal RIFF/WAVE header (RIFF + fmt + data chunk headers).
const CanonicalHeaderSize = 44

var (
	riffMagic = []byte("RIFF")
	dataChunk = []byte("data")
)

// ExtractPCM strips RIFF/WAVE framing from payload and returns the sample bytes.
//
// The "data" subchunk is located by scanning, so extra chunks (LIST, fact, ...) before it are
// tolerated. A RIFF payload with no "data" marker falls back to skipping the canonical 44-byte
// header. Anything else is assumed to already be raw PCM and is returned unchanged.
// The returned slice aliases payload.
func ExtractPCM(payload []byte) []byte {
	if idx := bytes.Index(payload, dataChunk); idx >= 0 {
		start := idx + len(dataChunk) + 4
		if start > len(payload) {
			return payload[len(payload):]
		}
		return payload[start:]
	}
	if bytes.HasPrefix(payload, riffMagic) {
		if len(payload) <= CanonicalHeaderSize {
			return payload[len(payload):]
		}
		return payload[CanonicalHeaderSize:]
	}
	return payload
}

// HasContainer reports whether payload starts with a RIFF header.
func HasContainer(payload []byte) bool {
	return bytes.HasPrefix(payload, riffMagic)
}
