// Package cache holds synthesized audio for the lifetime of the process.
//
// There is no eviction, capacity bound or TTL. The proxy fronts a voice assistant whose
// vocabulary of repeated phrases (greetings, confirmations) is small, so every distinct
// phrase is kept once synthesized. It is not suitable for an unbounded long tail of text.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"sync/atomic"
)

// Key returns the fingerprint for normalized text at a sample rate.
func Key(normalizedText string, sampleRate int) string {
	sum := sha256.Sum256([]byte(normalizedText + ":" + strconv.Itoa(sampleRate)))
	return hex.EncodeToString(sum[:])
}

// AudioCache maps fingerprints to raw PCM. Safe for concurrent use.
// Returned slices are shared between callers and must not be modified.
type AudioCache struct {
	entries sync.Map // string -> []byte
	count   atomic.Int64
	size    atomic.Int64
}

func NewAudioCache() *AudioCache {
	return &AudioCache{}
}

func (c *AudioCache) Get(key string) ([]byte, bool) {
	v, ok := c.entries.Load(key)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

// Put stores pcm under key. Racing writers for the same key are fine: last write wins and
// the content is equivalent.
func (c *AudioCache) Put(key string, pcm []byte) {
	prev, loaded := c.entries.Swap(key, pcm)
	if loaded {
		c.size.Add(int64(len(pcm) - len(prev.([]byte))))
		return
	}
	c.count.Add(1)
	c.size.Add(int64(len(pcm)))
}

// Len is the number of cached phrases.
func (c *AudioCache) Len() int {
	return int(c.count.Load())
}

// Bytes is the total PCM held.
func (c *AudioCache) Bytes() int64 {
	return c.size.Load()
}
